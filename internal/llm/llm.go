// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps the generative model behind a narrow interface. The
// Client adds rate limiting, transient-failure retry, JSON decoding, and
// cost recording so pipeline stages only build prompts and read answers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/internal/ledger"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Request is one prompt to the model.
type Request struct {
	// Stage labels the call for the cost ledger and metrics
	// (e.g. "quotes", "plan", "writer").
	Stage     string
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the model's answer to one Request.
type Completion struct {
	Content string
	Model   string
	Usage   types.TokenUsage
	Latency time.Duration
}

// Model abstracts the generative backend so tests can supply a fake.
type Model interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// ModelFunc adapts an ordinary function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (Completion, error)

// Complete calls f(ctx, req).
func (f ModelFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// TransientError marks a backend failure worth retrying: rate limiting,
// overload, or a dropped connection.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient model error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient model error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

const (
	defaultMaxRetries = 3
	defaultMaxTokens  = 8192
)

// Client is the stage-facing entry point to the model. One Client is built
// per pipeline run so its ledger totals belong to that run.
type Client struct {
	model      Model
	ledger     *ledger.Ledger
	limiter    *rate.Limiter
	maxRetries int
	maxTokens  int
	logger     *zap.Logger
}

// NewClient wraps m. A nil ledger disables cost recording; a nil logger
// discards logs.
func NewClient(m Model, l *ledger.Ledger, cfg types.AIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		model:      m,
		ledger:     l,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
		maxTokens:  maxTokens,
		logger:     logger,
	}
}

// Ledger returns the client's cost ledger, which may be nil.
func (c *Client) Ledger() *ledger.Ledger { return c.ledger }

// Complete sends req, retrying transient failures with exponential backoff.
// Every successful call is recorded in the ledger. Exhausted retries and
// permanent failures are returned as *types.GenerationError; context
// cancellation is returned as the context's error.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.ModelRetries.WithLabelValues(req.Stage).Inc()
			c.logger.Warn("retrying model call",
				zap.String("stage", req.Stage),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if err := httputil.Sleep(ctx, httputil.Backoff(attempt-1, backoffBase)); err != nil {
				return Completion{}, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Completion{}, ctx.Err()
			}
			return Completion{}, &types.GenerationError{Stage: req.Stage, Err: err}
		}

		start := time.Now()
		comp, err := c.model.Complete(ctx, req)
		if err == nil {
			if comp.Latency == 0 {
				comp.Latency = time.Since(start)
			}
			if comp.Usage.Total == 0 {
				comp.Usage.Total = comp.Usage.Input + comp.Usage.Output
			}
			if c.ledger != nil {
				c.ledger.Record(ledger.Entry{
					Stage:   req.Stage,
					Model:   comp.Model,
					Usage:   comp.Usage,
					Latency: comp.Latency,
				})
			}
			return comp, nil
		}
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		if !IsTransient(err) {
			return Completion{}, &types.GenerationError{Stage: req.Stage, Err: err}
		}
		lastErr = err
	}
	return Completion{}, &types.GenerationError{
		Stage: req.Stage,
		Err:   fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr),
	}
}

// CompleteJSON sends req and decodes the first JSON object in the answer into
// out. Output that cannot be decoded is a *types.GenerationError and is not
// retried.
func (c *Client) CompleteJSON(ctx context.Context, req Request, out any) (Completion, error) {
	comp, err := c.Complete(ctx, req)
	if err != nil {
		return comp, err
	}
	raw, ok := ExtractJSON(comp.Content)
	if !ok {
		return comp, &types.GenerationError{Stage: req.Stage, Err: errors.New("response contains no JSON object")}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return comp, &types.GenerationError{Stage: req.Stage, Err: fmt.Errorf("parsing response JSON: %w", err)}
	}
	return comp, nil
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes <think>...</think> reasoning blocks and trims the rest.
// An unterminated block drops everything from its opening tag.
func StripThinking(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	if i := strings.Index(s, "<think>"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ExtractJSON returns the outermost {...} span of s after removing reasoning
// blocks and Markdown code fences.
func ExtractJSON(s string) (string, bool) {
	s = StripThinking(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
