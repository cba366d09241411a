// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quotes pulls verbatim, source-grounded quotes out of evidence items,
// one model call per paper.
package quotes

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Stage labels extraction calls in the cost ledger.
const Stage = "quotes"

const (
	defaultWorkers      = 4
	defaultPreviewChars = 200
)

// Extractor runs per-paper extraction on a bounded worker pool.
type Extractor struct {
	client       *llm.Client
	workers      int
	previewChars int
	logger       *zap.Logger
}

// NewExtractor returns an Extractor using cfg's worker count and digest
// preview length.
func NewExtractor(c *llm.Client, cfg types.PipelineConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.ExtractWorkers
	if workers <= 0 {
		workers = defaultWorkers
	}
	preview := cfg.PreviewChars
	if preview <= 0 {
		preview = defaultPreviewChars
	}
	return &Extractor{client: c, workers: workers, previewChars: preview, logger: logger}
}

// Extract returns the grounded quotes of every item, keyed by paper id. Papers
// with nothing relevant map to an empty slice.
//
// A nil ec means synthesis; otherwise the prompt carries the edit instruction
// and a digest of the current report.
//
// When ctx is cancelled, calls already in flight run to completion, no new
// calls start, and Extract returns ctx.Err() with no results. Any paper whose
// call fails stops the pool the same way and its error is returned.
func (e *Extractor) Extract(ctx context.Context, query string, items []types.EvidenceItem, ec *types.EditContext) (map[string][]types.Quote, error) {
	results := make([][]types.Quote, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			quotes, err := e.extractPaper(context.WithoutCancel(gctx), query, item, ec)
			if err != nil {
				return err
			}
			results[i] = quotes
			return nil
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string][]types.Quote, len(items))
	total := 0
	for i, item := range items {
		out[item.PaperID] = results[i]
		total += len(results[i])
	}
	e.logger.Info("extracted quotes", zap.Int("papers", len(items)), zap.Int("quotes", total))
	return out, nil
}

// extractPaper makes one call for item. If the answer contains any quote
// that cannot be found in the source, the call is retried once; grounded
// quotes from both answers are kept and the rest are dropped with a warning.
func (e *Extractor) extractPaper(ctx context.Context, query string, item types.EvidenceItem, ec *types.EditContext) ([]types.Quote, error) {
	passages := item.Passages()
	if len(passages) == 0 {
		return nil, nil
	}
	prompt, err := renderPrompt(query, item, ec, e.previewChars)
	if err != nil {
		return nil, err
	}
	req := llm.Request{Stage: Stage, System: systemPrompt, Prompt: prompt}

	var resp quoteResponse
	if _, err := e.client.CompleteJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	kept, rejected := ground(item.PaperID, passages, resp)
	if len(rejected) == 0 {
		return kept, nil
	}

	e.logger.Debug("retrying ungrounded extraction", zap.String("paper_id", item.PaperID), zap.Int("ungrounded", len(rejected)))
	var retry quoteResponse
	if _, err := e.client.CompleteJSON(ctx, req, &retry); err != nil {
		return nil, err
	}
	again, rejected := ground(item.PaperID, passages, retry)
	for _, v := range rejected {
		metrics.QuotesDropped.Inc()
		e.logger.Warn("dropping quote", zap.Error(v))
	}

	seen := make(map[string]bool, len(kept))
	for _, q := range kept {
		seen[q.Text] = true
	}
	for _, q := range again {
		if !seen[q.Text] {
			seen[q.Text] = true
			kept = append(kept, q)
		}
	}
	return kept, nil
}

// ground splits a response into quotes found in passages and violations.
func ground(paperID string, passages []string, resp quoteResponse) ([]types.Quote, []*types.GroundingViolation) {
	var kept []types.Quote
	var rejected []*types.GroundingViolation
	for _, rq := range resp.Quotes {
		text := strings.TrimSpace(rq.Text)
		if text == "" || strings.EqualFold(text, "none") {
			continue
		}
		hint := -1
		if rq.Snippet != nil {
			hint = *rq.Snippet
		}
		offset, ok := locate(text, passages, hint)
		if !ok {
			rejected = append(rejected, &types.GroundingViolation{PaperID: paperID, Quote: text})
			continue
		}
		kept = append(kept, types.Quote{PaperID: paperID, Text: text, SourceOffset: offset})
	}
	return kept, rejected
}

// locate reports the passage a quote was copied from. Every "..."-separated
// fragment must occur in the passages after whitespace normalization. The
// hinted passage wins when it holds all fragments; otherwise the offset is
// the passage holding the first fragment.
func locate(quote string, passages []string, hint int) (int, bool) {
	frags := fragments(quote)
	if len(frags) == 0 {
		return 0, false
	}
	norm := make([]string, len(passages))
	for i, p := range passages {
		norm[i] = normalize(p)
	}

	if hint >= 0 && hint < len(norm) && containsAll(norm[hint], frags) {
		return hint, true
	}
	for i, p := range norm {
		if containsAll(p, frags) {
			return i, true
		}
	}

	first := -1
	for _, f := range frags {
		found := -1
		for i, p := range norm {
			if strings.Contains(p, f) {
				found = i
				break
			}
		}
		if found < 0 {
			return 0, false
		}
		if first < 0 {
			first = found
		}
	}
	return first, true
}

func fragments(quote string) []string {
	quote = strings.ReplaceAll(quote, "…", "...")
	var out []string
	for _, f := range strings.Split(quote, "...") {
		f = normalize(strings.Trim(f, " \t\n\"'"))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAll(s string, frags []string) bool {
	for _, f := range frags {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}

// normalize collapses whitespace runs to one space and unifies curly quotes.
func normalize(s string) string {
	s = strings.NewReplacer("“", "\"", "”", "\"", "‘", "'", "’", "'").Replace(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Flatten orders quotes for planning: items in evidence order, each paper's
// quotes in extraction order. Plan quote refs index into this slice.
func Flatten(items []types.EvidenceItem, byPaper map[string][]types.Quote) []types.Quote {
	var out []types.Quote
	for _, it := range items {
		out = append(out, byPaper[it.PaperID]...)
	}
	return out
}
