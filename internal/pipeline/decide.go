// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

// DecideStage labels decide-search calls in the cost ledger.
const DecideStage = "decide_search"

const decideSystemPrompt = `You decide whether editing a research report requires searching for new papers.`

var decidePromptTmpl = template.Must(template.New("decide").Parse(`A user wants to edit the research report summarized below.

<current_report>
{{.Digest}}
</current_report>

<edit_instruction>
{{.Instruction}}
</edit_instruction>

<mentioned_papers>
{{.Mentioned}}
</mentioned_papers>

Decide whether new papers must be retrieved to carry out the instruction.
- Answer false when the instruction only restructures, shortens, removes, or rewords existing content.
- Answer false when the instruction only asks to add or use the mentioned papers; they are fetched separately.
- Answer true when the instruction asks for new topics, more evidence, recent work, or anything the current citations cannot support.
When true, write a concise search query for a scholarly search engine.

Respond with JSON only:
{"reasoning": "...", "needs_search": true, "search_query": "..."}
`))

type decideResponse struct {
	Reasoning   string `json:"reasoning"`
	NeedsSearch bool   `json:"needs_search"`
	SearchQuery string `json:"search_query"`
}

// DecideSearch asks the model whether an edit needs new retrieval. A positive
// decision without a query searches with the instruction itself.
func DecideSearch(ctx context.Context, c *llm.Client, ec *types.EditContext, previewChars int, logger *zap.Logger) (*types.SearchDecision, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mentioned := "None"
	if len(ec.Mentioned) > 0 {
		mentioned = strings.Join(ec.Mentioned, ", ")
	}
	var buf bytes.Buffer
	if err := decidePromptTmpl.Execute(&buf, struct{ Digest, Instruction, Mentioned string }{
		Digest:      ec.Report.Digest(previewChars),
		Instruction: ec.Instruction,
		Mentioned:   mentioned,
	}); err != nil {
		return nil, fmt.Errorf("rendering decide prompt: %w", err)
	}

	var resp decideResponse
	if _, err := c.CompleteJSON(ctx, llm.Request{Stage: DecideStage, System: decideSystemPrompt, Prompt: buf.String()}, &resp); err != nil {
		return nil, err
	}

	d := &types.SearchDecision{
		NeedsSearch: resp.NeedsSearch,
		SearchQuery: strings.TrimSpace(resp.SearchQuery),
		Reasoning:   resp.Reasoning,
	}
	if !d.NeedsSearch {
		d.SearchQuery = ""
	} else if d.SearchQuery == "" {
		d.SearchQuery = ec.Instruction
	}
	logger.Info("search decision",
		zap.Bool("needs_search", d.NeedsSearch),
		zap.String("search_query", d.SearchQuery))
	return d, nil
}
