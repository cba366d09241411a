// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package writer generates section prose with a TLDR and a citation list.
// Synthesis writes every planned dimension; edits dispatch on the section's
// action kind and never call the model for KEEP or DELETE.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/cite"
	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Stage labels writer calls in the cost ledger.
const Stage = "writer"

// Brief is the run-wide context every section write shares.
type Brief struct {
	// Query is the research question; used for synthesis.
	Query string
	// Edit is nil for synthesis.
	Edit *types.EditContext
	// Outline holds every planned section name in report order.
	Outline []string
	// Written holds the titles of sections already produced in this run.
	Written []string
	// Quotes is the run's flattened quote list that dimension refs index.
	Quotes  []types.Quote
	Catalog types.Catalog
}

// Writer produces sections one at a time. Callers invoke it sequentially and
// append each finished title to Brief.Written.
type Writer struct {
	client *llm.Client
	linker *cite.Linker
	logger *zap.Logger
}

// New returns a Writer.
func New(c *llm.Client, l *cite.Linker, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if l == nil {
		l = cite.NewLinker(logger)
	}
	return &Writer{client: c, linker: l, logger: logger}
}

// Write generates the section for one synthesis dimension.
func (w *Writer) Write(ctx context.Context, b *Brief, d types.Dimension) (types.Section, error) {
	quotes := b.sectionQuotes(d)
	prompt, err := render(synthesisTmpl, struct {
		Query, Outline, Written, Name, References string
	}{
		Query:      b.Query,
		Outline:    bulletList(b.Outline),
		Written:    bulletList(b.Written),
		Name:       sectionName(d),
		References: formatReferences(quotes, b.Catalog),
	})
	if err != nil {
		return types.Section{}, err
	}

	dr, err := w.generate(ctx, prompt)
	if err != nil {
		return types.Section{}, err
	}
	ids, _ := w.linker.Link(d.Title, dr.body, quotes, nil)
	return types.Section{
		Title:     d.Title,
		Format:    d.Format,
		TLDR:      dr.tldr,
		Content:   dr.body,
		Citations: b.citations(ids, quotes, nil),
	}, nil
}

// WriteEdit materializes one edit dimension against the existing section at
// d.ExistingIndex, or against nothing for NEW. It returns nil for DELETE.
//
// KEEP returns a copy of existing with no model call. Append-class actions
// must keep every existing citation: a draft that drops one is retried once
// with the missing keys named, and if the retry also drops some they are
// carried over from the existing section.
func (w *Writer) WriteEdit(ctx context.Context, b *Brief, d types.Dimension, existing *types.Section) (*types.Section, error) {
	kind := d.Action.Kind()
	if existing == nil && kind != types.KindFresh {
		return nil, &types.ValidationError{Field: "action", Reason: fmt.Sprintf("%s on %q needs an existing section", d.Action, d.Title)}
	}

	switch kind {
	case types.KindKeep:
		s := existing.Clone()
		return &s, nil
	case types.KindDrop:
		return nil, nil
	case types.KindAppend:
		return w.writeAppend(ctx, b, d, existing)
	case types.KindFresh:
		if d.Action != types.ActionModify {
			existing = nil
		}
		return w.writeFresh(ctx, b, d, existing)
	default:
		return nil, &types.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", d.Action)}
	}
}

func (w *Writer) writeAppend(ctx context.Context, b *Brief, d types.Dimension, existing *types.Section) (*types.Section, error) {
	quotes := b.sectionQuotes(d)
	carried := existing.CitationIDs()

	var (
		dr      draft
		ids     []string
		missing []string
	)
	for attempt := 0; attempt < 2; attempt++ {
		prompt, err := w.editPrompt(b, d, existing, quotes, missing)
		if err != nil {
			return nil, err
		}
		dr, err = w.generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		ids, _ = w.linker.Link(d.Title, dr.body, quotes, carried)
		missing = difference(carried, ids)
		if len(missing) == 0 {
			break
		}
		w.logger.Warn("draft dropped existing citations",
			zap.String("section", d.Title),
			zap.Int("attempt", attempt+1),
			zap.Strings("missing", missing))
	}
	if len(missing) > 0 {
		ids = append(ids, missing...)
	}

	return &types.Section{
		Title:     existing.Title,
		Format:    existing.Format,
		TLDR:      dr.tldr,
		Content:   dr.body,
		Citations: b.citations(ids, quotes, existing.Citations),
	}, nil
}

// writeFresh writes new content. existing is non-nil only for MODIFY, whose
// current citations stay resolvable.
func (w *Writer) writeFresh(ctx context.Context, b *Brief, d types.Dimension, existing *types.Section) (*types.Section, error) {
	quotes := b.sectionQuotes(d)
	prompt, err := w.editPrompt(b, d, existing, quotes, nil)
	if err != nil {
		return nil, err
	}
	dr, err := w.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var carried []string
	var prior []types.Citation
	if existing != nil {
		carried = existing.CitationIDs()
		prior = existing.Citations
	}
	ids, _ := w.linker.Link(d.Title, dr.body, quotes, carried)

	format := d.Format
	if format == "" && existing != nil {
		format = existing.Format
	}
	return &types.Section{
		Title:     d.Title,
		Format:    format,
		TLDR:      dr.tldr,
		Content:   dr.body,
		Citations: b.citations(ids, quotes, prior),
	}, nil
}

func (w *Writer) editPrompt(b *Brief, d types.Dimension, existing *types.Section, quotes []types.Quote, preserve []string) (string, error) {
	data := struct {
		Instruction, SectionInstruction, Outline, Written, Name, Action string
		Existing, ExistingRefs, References, Guidance, Preserve          string
	}{
		SectionInstruction: d.Instruction,
		Outline:            bulletList(b.Outline),
		Written:            bulletList(b.Written),
		Name:               sectionName(d),
		Action:             string(d.Action),
		References:         formatReferences(quotes, b.Catalog),
		Guidance:           actionGuidance[d.Action],
		Preserve:           strings.Join(preserve, ", "),
	}
	if b.Edit != nil {
		data.Instruction = b.Edit.Instruction
	}
	if existing != nil {
		data.Existing = existing.Content
		data.ExistingRefs = formatExistingReferences(existing.Citations)
	}
	return render(editTmpl, data)
}

type draft struct {
	tldr string
	body string
}

func (w *Writer) generate(ctx context.Context, prompt string) (draft, error) {
	comp, err := w.client.Complete(ctx, llm.Request{Stage: Stage, System: systemPrompt, Prompt: prompt})
	if err != nil {
		return draft{}, err
	}
	d := parseDraft(comp.Content)
	if d.body == "" {
		return draft{}, &types.GenerationError{Stage: Stage, Err: errors.New("model returned an empty section")}
	}
	return d, nil
}

// parseDraft splits model output into TLDR and body. The expected layout is
// a title line, a "TLDR;" line, then the body; the title line is discarded.
// Output without a TLDR line within its first three lines is all body.
func parseDraft(raw string) draft {
	text := llm.StripThinking(raw)
	lines := strings.Split(text, "\n")

	nonEmpty := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if tldr, ok := cutTLDR(trimmed); ok {
			return draft{
				tldr: tldr,
				body: strings.TrimSpace(strings.Join(lines[i+1:], "\n")),
			}
		}
		nonEmpty++
		if nonEmpty >= 3 {
			break
		}
	}
	return draft{body: strings.TrimSpace(text)}
}

func cutTLDR(line string) (string, bool) {
	line = strings.TrimLeft(line, "*_ ")
	for _, prefix := range []string{"TLDR;", "TLDR:", "TL;DR:", "TL;DR"} {
		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(strings.Trim(line[len(prefix):], "*_ ")), true
		}
	}
	return "", false
}

// sectionQuotes resolves a dimension's refs against the run's quotes.
func (b *Brief) sectionQuotes(d types.Dimension) []types.Quote {
	out := make([]types.Quote, 0, len(d.QuoteRefs))
	for _, r := range d.QuoteRefs {
		if r >= 0 && r < len(b.Quotes) {
			out = append(out, b.Quotes[r])
		}
	}
	return out
}

// citations builds records for ids in order. Bibliographic fields come from
// the catalog, else from the prior record; snippets are the prior record's
// followed by this section's new quotes.
func (b *Brief) citations(ids []string, quotes []types.Quote, prior []types.Citation) []types.Citation {
	if len(ids) == 0 {
		return nil
	}
	priorByID := make(map[string]types.Citation, len(prior))
	for _, c := range prior {
		priorByID[c.PaperID] = c
	}
	out := make([]types.Citation, 0, len(ids))
	for _, id := range ids {
		c := types.Citation{PaperID: id}
		if p, ok := priorByID[id]; ok {
			c = p
			c.Authors = append([]string(nil), p.Authors...)
			c.Snippets = append([]string(nil), p.Snippets...)
		}
		if meta, ok := b.Catalog[id]; ok {
			c.Title = meta.Title
			c.Authors = append([]string(nil), meta.Authors...)
			c.Year = meta.Year
			c.CitationCount = meta.CitationCount
		}
		for _, q := range quotes {
			if q.PaperID == id && !contains(c.Snippets, q.Text) {
				c.Snippets = append(c.Snippets, q.Text)
			}
		}
		out = append(out, c)
	}
	return out
}

// difference returns the elements of a missing from b, in a's order.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
