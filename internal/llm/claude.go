// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// ClaudeBackend calls the Claude Messages API.
type ClaudeBackend struct {
	APIKey    string
	Model     string
	UserAgent string
	Client    *http.Client
}

// NewClaudeBackend builds a backend from AI configuration.
func NewClaudeBackend(cfg types.AIConfig) *ClaudeBackend {
	return &ClaudeBackend{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Model   string          `json:"model"`
	Content []claudeContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends one request. Rate limiting, overload, and connection
// failures come back as *TransientError; everything else is permanent.
func (c *ClaudeBackend) Complete(ctx context.Context, r Request) (Completion, error) {
	body, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: r.MaxTokens,
		System:    r.System,
		Messages:  []claudeMessage{{Role: "user", Content: r.Prompt}},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		// A client timeout also matches context.DeadlineExceeded; only the
		// caller's own context ends the call for good.
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, &TransientError{Err: fmt.Errorf("calling Claude API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if httputil.IsRetryableStatus(resp.StatusCode) || resp.StatusCode >= 500 {
			return Completion{}, &TransientError{Status: resp.StatusCode, Err: err}
		}
		return Completion{}, err
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return Completion{}, fmt.Errorf("decoding Claude response: %w", err)
	}

	var text strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, errors.New("no text content in Claude API response")
	}

	model := cResp.Model
	if model == "" {
		model = c.Model
	}
	return Completion{
		Content: text.String(),
		Model:   model,
		Usage: types.TokenUsage{
			Input:  cResp.Usage.InputTokens,
			Output: cResp.Usage.OutputTokens,
			Total:  cResp.Usage.InputTokens + cResp.Usage.OutputTokens,
		},
	}, nil
}
