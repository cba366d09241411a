// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan clusters extracted quotes into report sections. For edits it
// also assigns one action to every existing section.
package plan

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Stage labels planning calls in the cost ledger.
const Stage = "plan"

const defaultPreviewChars = 200

// Outline is a synthesis plan: a report title and ordered dimensions.
type Outline struct {
	Title      string
	Dimensions []types.Dimension
}

// Planner produces synthesis outlines and edit plans.
type Planner struct {
	client       *llm.Client
	previewChars int
	logger       *zap.Logger
}

// NewPlanner returns a Planner.
func NewPlanner(c *llm.Client, cfg types.PipelineConfig, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	preview := cfg.PreviewChars
	if preview <= 0 {
		preview = defaultPreviewChars
	}
	return &Planner{client: c, previewChars: preview, logger: logger}
}

// Plan groups quotes into ordered dimensions. A quote belongs to at most one
// dimension: the first that claims it.
func (p *Planner) Plan(ctx context.Context, query string, quotes []types.Quote, catalog types.Catalog) (*Outline, error) {
	prompt, err := render(synthesisPromptTmpl, struct{ Query, Quotes string }{
		Query:  query,
		Quotes: FormatQuotes(quotes, catalog),
	})
	if err != nil {
		return nil, err
	}

	var resp synthesisResponse
	if _, err := p.client.CompleteJSON(ctx, llm.Request{Stage: Stage, System: systemPrompt, Prompt: prompt}, &resp); err != nil {
		return nil, err
	}

	dims := make([]types.Dimension, 0, len(resp.Dimensions))
	for _, d := range resp.Dimensions {
		title, format := splitFormat(d.Name, d.Format)
		if title == "" {
			p.logger.Warn("dropping untitled dimension")
			continue
		}
		dims = append(dims, types.Dimension{
			Title:         title,
			Format:        format,
			QuoteRefs:     p.validRefs(d.Quotes, len(quotes), title),
			ExistingIndex: -1,
		})
	}
	dims = p.assignQuotes(dims, quotes)
	if len(dims) == 0 {
		return nil, &types.GenerationError{Stage: Stage, Err: errors.New("plan has no dimensions")}
	}

	title := strings.TrimSpace(resp.ReportTitle)
	if title == "" {
		title = query
	}
	p.logger.Info("planned report", zap.String("title", title), zap.Int("dimensions", len(dims)))
	return &Outline{Title: title, Dimensions: dims}, nil
}

// furtherEvidenceTitle names the dimension that holds quotes from papers no
// planned dimension covers.
const furtherEvidenceTitle = "Further Evidence"

// assignQuotes applies first-claimed-wins across dimensions. A dimension
// whose every quote was claimed earlier is dropped. Quotes nobody claimed are
// attached to the first dimension already citing the same paper; the rest go
// to a trailing catch-all dimension so every quoted paper is covered.
func (p *Planner) assignQuotes(dims []types.Dimension, quotes []types.Quote) []types.Dimension {
	claimed := make(map[int]bool)
	out := dims[:0]
	for _, d := range dims {
		had := len(d.QuoteRefs)
		var refs []int
		for _, r := range d.QuoteRefs {
			if !claimed[r] {
				claimed[r] = true
				refs = append(refs, r)
			}
		}
		if had > 0 && len(refs) == 0 {
			p.logger.Warn("dropping dimension whose quotes were all claimed", zap.String("title", d.Title))
			continue
		}
		d.QuoteRefs = refs
		out = append(out, d)
	}

	var leftover []int
	for i, q := range quotes {
		if claimed[i] {
			continue
		}
		placed := false
		for di := range out {
			if citesPaper(out[di].QuoteRefs, quotes, q.PaperID) {
				out[di].QuoteRefs = append(out[di].QuoteRefs, i)
				placed = true
				break
			}
		}
		if !placed {
			leftover = append(leftover, i)
		}
	}
	if len(out) == 0 || len(leftover) == 0 {
		return out
	}
	p.logger.Warn("collecting unplanned quotes into a catch-all dimension",
		zap.Int("quotes", len(leftover)), zap.String("title", furtherEvidenceTitle))
	return append(out, types.Dimension{
		Title:         furtherEvidenceTitle,
		Format:        types.FormatList,
		QuoteRefs:     leftover,
		ExistingIndex: -1,
	})
}

func citesPaper(refs []int, quotes []types.Quote, paperID string) bool {
	for _, r := range refs {
		if quotes[r].PaperID == paperID {
			return true
		}
	}
	return false
}

// validRefs drops out-of-range and repeated quote indices.
func (p *Planner) validRefs(refs []int, n int, title string) []int {
	seen := make(map[int]bool, len(refs))
	var out []int
	for _, r := range refs {
		if r < 0 || r >= n {
			p.logger.Warn("dropping out-of-range quote ref", zap.String("section", title), zap.Int("ref", r))
			continue
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// PlanEdit assigns an action to every section of ec.Report and proposes new
// sections. The result satisfies ValidateEditPlan.
func (p *Planner) PlanEdit(ctx context.Context, quotes []types.Quote, catalog types.Catalog, ec *types.EditContext) (*types.EditPlan, error) {
	if ec == nil || ec.Report == nil {
		return nil, &types.ValidationError{Field: "edit_context", Reason: "edit planning requires the current report"}
	}
	mentioned := "None"
	if len(ec.Mentioned) > 0 {
		mentioned = strings.Join(ec.Mentioned, ", ")
	}
	prompt, err := render(editPromptTmpl, struct{ Digest, Instruction, Mentioned, Quotes string }{
		Digest:      ec.Report.Digest(p.previewChars),
		Instruction: ec.Instruction,
		Mentioned:   mentioned,
		Quotes:      FormatQuotes(quotes, catalog),
	})
	if err != nil {
		return nil, err
	}

	var resp editResponse
	if _, err := p.client.CompleteJSON(ctx, llm.Request{Stage: Stage, System: systemPrompt, Prompt: prompt}, &resp); err != nil {
		return nil, err
	}

	plan, err := p.normalizeEdit(resp, ec.Report, len(quotes))
	if err != nil {
		return nil, err
	}
	if err := ValidateEditPlan(plan, len(ec.Report.Sections), len(quotes)); err != nil {
		return nil, err
	}
	p.logger.Info("planned edit",
		zap.Int("section_plans", len(plan.SectionPlans)),
		zap.Int("new_sections", len(plan.NewSections)))
	return plan, nil
}

// normalizeEdit converts the model's edit plan into one dimension per
// existing section in original order. Sections the model left out are kept.
func (p *Planner) normalizeEdit(resp editResponse, current *types.Report, nQuotes int) (*types.EditPlan, error) {
	n := len(current.Sections)
	byIndex := make([]*types.Dimension, n)

	for _, sp := range resp.SectionPlans {
		idx := sp.SectionIndex
		if idx < 0 || idx >= n {
			return nil, &types.ValidationError{
				Field:  "section_plans.section_index",
				Reason: fmt.Sprintf("index %d out of range for %d sections", idx, n),
			}
		}
		if byIndex[idx] != nil {
			return nil, &types.ValidationError{
				Field:  "section_plans.section_index",
				Reason: fmt.Sprintf("section %d planned twice", idx),
			}
		}
		action, err := types.ParseAction(sp.Action)
		if err != nil {
			return nil, &types.ValidationError{Field: "section_plans.action", Reason: err.Error()}
		}
		if action == types.ActionNew {
			return nil, &types.ValidationError{
				Field:  "section_plans.action",
				Reason: fmt.Sprintf("section %d: NEW is only valid for new sections", idx),
			}
		}
		existing := current.Sections[idx]
		d := types.Dimension{
			Title:         existing.Title,
			Format:        existing.Format,
			Action:        action,
			Rationale:     sp.Reasoning,
			Instruction:   sp.SpecificInstruction,
			ExistingIndex: idx,
		}
		switch action.Kind() {
		case types.KindKeep, types.KindDrop:
			// Neither kind writes, so quotes would be dead weight.
		default:
			d.QuoteRefs = p.validRefs(sp.Quotes, nQuotes, existing.Title)
		}
		byIndex[idx] = &d
	}

	plan := &types.EditPlan{
		Title:        strings.TrimSpace(resp.ReportTitle),
		Reasoning:    resp.Reasoning,
		SectionPlans: make([]types.Dimension, n),
	}
	if plan.Title == "" {
		plan.Title = current.Title
	}
	for i, d := range byIndex {
		if d == nil {
			p.logger.Debug("section missing from edit plan, keeping", zap.Int("section", i))
			d = &types.Dimension{
				Title:         current.Sections[i].Title,
				Format:        current.Sections[i].Format,
				Action:        types.ActionKeep,
				ExistingIndex: i,
			}
		}
		plan.SectionPlans[i] = *d
	}

	for _, ns := range resp.NewSections {
		title, format := splitFormat(ns.Title, ns.Format)
		if title == "" {
			return nil, &types.ValidationError{Field: "new_sections.title", Reason: "new section has no title"}
		}
		plan.NewSections = append(plan.NewSections, types.Dimension{
			Title:         title,
			Format:        format,
			Action:        types.ActionNew,
			Rationale:     ns.Reasoning,
			Instruction:   ns.Instruction,
			QuoteRefs:     p.validRefs(ns.Quotes, nQuotes, title),
			ExistingIndex: -1,
		})
	}
	return plan, nil
}

// ValidateEditPlan checks the structural invariants of an edit plan against
// a report with sectionCount sections and a run with quoteCount quotes.
func ValidateEditPlan(plan *types.EditPlan, sectionCount, quoteCount int) error {
	if plan == nil {
		return &types.ValidationError{Field: "edit_plan", Reason: "missing"}
	}
	if len(plan.SectionPlans) != sectionCount {
		return &types.ValidationError{
			Field:  "section_plans",
			Reason: fmt.Sprintf("has %d entries for %d sections", len(plan.SectionPlans), sectionCount),
		}
	}
	checkRefs := func(field string, refs []int) error {
		for _, r := range refs {
			if r < 0 || r >= quoteCount {
				return &types.ValidationError{Field: field, Reason: fmt.Sprintf("quote ref %d out of range", r)}
			}
		}
		return nil
	}
	for i, d := range plan.SectionPlans {
		if d.ExistingIndex != i {
			return &types.ValidationError{
				Field:  "section_plans",
				Reason: fmt.Sprintf("entry %d refers to section %d", i, d.ExistingIndex),
			}
		}
		switch d.Action.Kind() {
		case types.KindInvalid:
			return &types.ValidationError{Field: "section_plans.action", Reason: fmt.Sprintf("section %d: invalid action %q", i, d.Action)}
		case types.KindKeep, types.KindDrop:
			if len(d.QuoteRefs) > 0 {
				return &types.ValidationError{Field: "section_plans.quotes", Reason: fmt.Sprintf("section %d: %s carries quotes", i, d.Action)}
			}
		}
		if d.Action == types.ActionNew {
			return &types.ValidationError{Field: "section_plans.action", Reason: fmt.Sprintf("section %d: NEW on an existing section", i)}
		}
		if err := checkRefs("section_plans.quotes", d.QuoteRefs); err != nil {
			return err
		}
	}
	for _, d := range plan.NewSections {
		if d.Action != types.ActionNew {
			return &types.ValidationError{Field: "new_sections.action", Reason: fmt.Sprintf("%q has action %s", d.Title, d.Action)}
		}
		if err := checkRefs("new_sections.quotes", d.QuoteRefs); err != nil {
			return err
		}
	}
	return nil
}

var formatSuffix = regexp.MustCompile(`(?i)\s*\((list|synthesis)\)\s*$`)

// splitFormat strips a trailing "(list)" or "(synthesis)" from name. The
// suffix, when present, overrides the explicit format field.
func splitFormat(name, format string) (string, types.SectionFormat) {
	name = strings.TrimSpace(name)
	if m := formatSuffix.FindStringSubmatch(name); m != nil {
		return strings.TrimSpace(name[:len(name)-len(m[0])]), types.ParseFormat(m[1])
	}
	return name, types.ParseFormat(format)
}
