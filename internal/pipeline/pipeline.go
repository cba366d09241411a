// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one synthesis or edit request end to end. Both flows
// share the same stages; an edit passes a *types.EditContext through them and
// adds a load step, a search decision, and a diff.
//
// A run either completes with a full report or fails with a *StageError.
// Partial reports are never returned or saved.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/cite"
	"github.com/pdiddy/report-engine/internal/evidence"
	"github.com/pdiddy/report-engine/internal/ledger"
	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/internal/plan"
	"github.com/pdiddy/report-engine/internal/quotes"
	"github.com/pdiddy/report-engine/internal/writer"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Stage names used in StageError.
const (
	StageValidate = "validate"
	StageLoad     = "load"
	StageGather   = "gather"
	StageSave     = "save"
)

const defaultPreviewChars = 200

// ReportStore persists one current report per thread.
type ReportStore interface {
	// Load returns the thread's current report or *types.ReportNotFoundError.
	Load(ctx context.Context, threadID string) (*types.Report, error)
	Save(ctx context.Context, threadID string, r *types.Report) error
}

// Request is one synthesis or edit request. EditExisting alone selects the
// edit flow.
type Request struct {
	// Query is the research question. Required for synthesis.
	Query string

	// ThreadID names the report thread. Required for edits; synthesis
	// generates one when empty.
	ThreadID string

	EditExisting    bool
	EditInstruction string

	// MentionedPapers are paper ids the user named; they are always part of
	// the run's evidence.
	MentionedPapers []string

	// Progress, when set, is called as the run enters each stage and before
	// each section is written. It runs on the pipeline's goroutine.
	Progress ProgressFunc
}

// ProgressFunc receives a stage name and a short human readable message.
type ProgressFunc func(stage, message string)

// Result is a completed run.
type Result struct {
	RunID    string
	ThreadID string
	Report   *types.Report

	// Edit, Decision, and Plan are set for edit runs only.
	Edit     *types.EditResult
	Decision *types.SearchDecision
	Plan     *types.EditPlan

	// Usage is this run's model spend. For edits, Report.Cost also includes
	// the spend of earlier versions.
	Usage ledger.Snapshot

	// Saved is false when an edit changed nothing and the stored report was
	// left as is.
	Saved bool
}

// StageError is the failure of a run. It names the stage that failed and
// carries whatever edit state was reached before it.
type StageError struct {
	Stage    string
	RunID    string
	Decision *types.SearchDecision
	Plan     *types.EditPlan
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline builds the stages of each run around shared collaborators.
type Pipeline struct {
	model     llm.Model
	retriever evidence.Retriever
	store     ReportStore
	cfg       types.EngineConfig
	logger    *zap.Logger
}

// New returns a Pipeline. store may be nil, in which case reports are not
// saved and edits cannot run.
func New(m llm.Model, r evidence.Retriever, store ReportStore, cfg types.EngineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Pipeline.PreviewChars <= 0 {
		cfg.Pipeline.PreviewChars = defaultPreviewChars
	}
	return &Pipeline{model: m, retriever: r, store: store, cfg: cfg, logger: logger}
}

// run holds the per-run stages. Each run gets its own ledger so concurrent
// runs never mix costs.
type run struct {
	id        string
	logger    *zap.Logger
	client    *llm.Client
	evidence  *evidence.Store
	extractor *quotes.Extractor
	planner   *plan.Planner
	writer    *writer.Writer

	decision *types.SearchDecision
	plan     *types.EditPlan
	onStage  ProgressFunc
}

func (p *Pipeline) newRun(flow string) *run {
	id := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", id), zap.String("flow", flow))
	client := llm.NewClient(p.model, ledger.New(p.cfg.Pricing), p.cfg.AI, logger)
	return &run{
		id:        id,
		logger:    logger,
		client:    client,
		evidence:  evidence.NewStore(p.retriever, logger),
		extractor: quotes.NewExtractor(client, p.cfg.Pipeline, logger),
		planner:   plan.NewPlanner(client, p.cfg.Pipeline, logger),
		writer:    writer.New(client, cite.NewLinker(logger), logger),
	}
}

// progress reports entry into stage.
func (r *run) progress(stage, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Debug("stage", zap.String("stage", stage), zap.String("message", msg))
	if r.onStage != nil {
		r.onStage(stage, msg)
	}
}

func (r *run) fail(stage string, err error) error {
	r.logger.Error("run failed", zap.String("stage", stage), zap.Error(err))
	return &StageError{Stage: stage, RunID: r.id, Decision: r.decision, Plan: r.plan, Err: err}
}

// checkpoint fails the run if ctx is done. Stages call it between steps so
// a cancelled run stops at the next boundary.
func (r *run) checkpoint(ctx context.Context, next string) error {
	if err := ctx.Err(); err != nil {
		return r.fail(next, err)
	}
	return nil
}

// Run executes req. Every error it returns is a *StageError.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	flow := "synthesis"
	if req.EditExisting {
		flow = "edit"
	}
	r := p.newRun(flow)
	r.onStage = req.Progress
	start := time.Now()
	r.logger.Info("run started", zap.String("thread_id", req.ThreadID))

	var (
		res *Result
		err error
	)
	if req.EditExisting {
		res, err = p.edit(ctx, r, req)
	} else {
		res, err = p.synthesize(ctx, r, req)
	}

	status := "completed"
	if err != nil {
		status = "failed"
	}
	metrics.PipelineRuns.WithLabelValues(flow, status).Inc()
	metrics.PipelineDuration.WithLabelValues(flow).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	res.RunID = r.id
	res.Usage = r.client.Ledger().Snapshot()
	r.logger.Info("run completed",
		zap.String("thread_id", res.ThreadID),
		zap.Int("sections", len(res.Report.Sections)),
		zap.Int("model_calls", res.Usage.Calls),
		zap.Float64("cost_usd", res.Usage.Cost),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (p *Pipeline) synthesize(ctx context.Context, r *run, req Request) (*Result, error) {
	if req.Query == "" {
		return nil, r.fail(StageValidate, &types.ValidationError{Field: "query", Reason: "required for synthesis"})
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	r.progress(StageGather, "searching for evidence on %q", req.Query)
	items, err := r.evidence.Gather(ctx, req.Query, req.MentionedPapers, true)
	if err != nil {
		return nil, r.fail(StageGather, err)
	}
	if len(items) == 0 {
		return nil, r.fail(StageGather, &types.RetrievalError{Op: "search", Err: errors.New("no evidence found for query")})
	}
	if err := r.checkpoint(ctx, quotes.Stage); err != nil {
		return nil, err
	}

	r.progress(quotes.Stage, "extracting quotes from %d papers", len(items))
	byPaper, err := r.extractor.Extract(ctx, req.Query, items, nil)
	if err != nil {
		return nil, r.fail(quotes.Stage, err)
	}
	qs := quotes.Flatten(items, byPaper)
	catalog := types.CatalogOf(items)
	if err := r.checkpoint(ctx, plan.Stage); err != nil {
		return nil, err
	}

	r.progress(plan.Stage, "planning sections from %d quotes", len(qs))
	outline, err := r.planner.Plan(ctx, req.Query, qs, catalog)
	if err != nil {
		return nil, r.fail(plan.Stage, err)
	}

	brief := &writer.Brief{
		Query:   req.Query,
		Outline: writer.SectionNames(outline.Dimensions),
		Quotes:  qs,
		Catalog: catalog,
	}
	sections := make([]types.Section, 0, len(outline.Dimensions))
	for i, d := range outline.Dimensions {
		if err := r.checkpoint(ctx, writer.Stage); err != nil {
			return nil, err
		}
		r.progress(writer.Stage, "writing section %d/%d: %s", i+1, len(outline.Dimensions), d.Title)
		s, err := r.writer.Write(ctx, brief, d)
		if err != nil {
			return nil, r.fail(writer.Stage, err)
		}
		sections = append(sections, s)
		brief.Written = append(brief.Written, s.Title)
	}

	snap := r.client.Ledger().Snapshot()
	report := &types.Report{
		Title:    outline.Title,
		Sections: sections,
		Cost:     snap.Cost,
		Tokens:   snap.Usage,
	}
	if err := p.save(ctx, r, threadID, report); err != nil {
		return nil, err
	}
	return &Result{ThreadID: threadID, Report: report, Saved: p.store != nil}, nil
}

func (p *Pipeline) edit(ctx context.Context, r *run, req Request) (*Result, error) {
	switch {
	case req.ThreadID == "":
		return nil, r.fail(StageValidate, &types.ValidationError{Field: "thread_id", Reason: "required for edits"})
	case req.EditInstruction == "":
		return nil, r.fail(StageValidate, &types.ValidationError{Field: "edit_instruction", Reason: "required for edits"})
	case p.store == nil:
		return nil, r.fail(StageLoad, &types.ReportNotFoundError{ThreadID: req.ThreadID})
	}

	r.progress(StageLoad, "loading report for thread %s", req.ThreadID)
	current, err := p.store.Load(ctx, req.ThreadID)
	if err != nil {
		return nil, r.fail(StageLoad, err)
	}
	ec := &types.EditContext{
		Instruction: req.EditInstruction,
		Report:      current,
		Mentioned:   uniq(req.MentionedPapers),
	}

	r.progress(DecideStage, "deciding whether the edit needs new evidence")
	r.decision, err = DecideSearch(ctx, r.client, ec, p.cfg.Pipeline.PreviewChars, r.logger)
	if err != nil {
		return nil, r.fail(DecideStage, err)
	}

	if r.decision.NeedsSearch {
		r.progress(StageGather, "searching for evidence on %q", r.decision.SearchQuery)
	} else {
		r.progress(StageGather, "gathering %d mentioned papers", len(ec.Mentioned))
	}
	items, err := r.evidence.Gather(ctx, r.decision.SearchQuery, ec.Mentioned, r.decision.NeedsSearch)
	if err != nil {
		return nil, r.fail(StageGather, err)
	}
	if err := r.checkpoint(ctx, quotes.Stage); err != nil {
		return nil, err
	}

	r.progress(quotes.Stage, "extracting quotes from %d papers", len(items))
	byPaper, err := r.extractor.Extract(ctx, req.EditInstruction, items, ec)
	if err != nil {
		return nil, r.fail(quotes.Stage, err)
	}
	qs := quotes.Flatten(items, byPaper)
	catalog := types.CatalogOf(items)
	if err := r.checkpoint(ctx, plan.Stage); err != nil {
		return nil, err
	}

	r.progress(plan.Stage, "planning edits to %d sections", len(current.Sections))
	r.plan, err = r.planner.PlanEdit(ctx, qs, catalog, ec)
	if err != nil {
		return nil, r.fail(plan.Stage, err)
	}

	if r.plan.IsNoop(current) {
		r.logger.Info("edit plan keeps every section, report unchanged")
		return &Result{
			ThreadID: req.ThreadID,
			Report:   current.Clone(),
			Edit:     Diff(current, current, r.plan),
			Decision: r.decision,
			Plan:     r.plan,
		}, nil
	}

	sections, err := p.applyPlan(ctx, r, ec, qs, catalog)
	if err != nil {
		return nil, err
	}

	snap := r.client.Ledger().Snapshot()
	updated := &types.Report{
		Title:    r.plan.Title,
		Sections: sections,
		Cost:     current.Cost + snap.Cost,
		Tokens:   current.Tokens.Add(snap.Usage),
	}
	if updated.Title == "" {
		updated.Title = current.Title
	}
	diff := Diff(current, updated, r.plan)
	if err := p.save(ctx, r, req.ThreadID, updated); err != nil {
		return nil, err
	}
	r.logger.Info("edit applied", zap.String("summary", diff.Summary))
	return &Result{
		ThreadID: req.ThreadID,
		Report:   updated,
		Edit:     diff,
		Decision: r.decision,
		Plan:     r.plan,
		Saved:    true,
	}, nil
}

// applyPlan writes every section plan in original order, then the new
// sections at the end.
func (p *Pipeline) applyPlan(ctx context.Context, r *run, ec *types.EditContext, qs []types.Quote, catalog types.Catalog) ([]types.Section, error) {
	current := ec.Report
	var outline []types.Dimension
	for _, d := range r.plan.SectionPlans {
		if d.Action.Kind() != types.KindDrop {
			outline = append(outline, d)
		}
	}
	outline = append(outline, r.plan.NewSections...)
	if len(outline) == 0 {
		return nil, r.fail(plan.Stage, &types.ValidationError{Field: "edit_plan", Reason: "edit would delete every section"})
	}

	brief := &writer.Brief{
		Query:   ec.Instruction,
		Edit:    ec,
		Outline: writer.SectionNames(outline),
		Quotes:  qs,
		Catalog: catalog,
	}
	sections := make([]types.Section, 0, len(outline))
	write := func(d types.Dimension, existing *types.Section) error {
		if d.Action.Kind() != types.KindKeep {
			if err := r.checkpoint(ctx, writer.Stage); err != nil {
				return err
			}
			r.progress(writer.Stage, "%s section: %s", d.Action, d.Title)
		}
		s, err := r.writer.WriteEdit(ctx, brief, d, existing)
		if err != nil {
			return r.fail(writer.Stage, err)
		}
		if s == nil {
			return nil
		}
		sections = append(sections, *s)
		brief.Written = append(brief.Written, s.Title)
		return nil
	}

	for _, d := range r.plan.SectionPlans {
		existing := current.Sections[d.ExistingIndex]
		if err := write(d, &existing); err != nil {
			return nil, err
		}
	}
	for _, d := range r.plan.NewSections {
		if err := write(d, nil); err != nil {
			return nil, err
		}
	}
	return sections, nil
}

func (p *Pipeline) save(ctx context.Context, r *run, threadID string, report *types.Report) error {
	if p.store == nil {
		return nil
	}
	r.progress(StageSave, "saving report for thread %s", threadID)
	if err := p.store.Save(ctx, threadID, report); err != nil {
		return r.fail(StageSave, fmt.Errorf("saving report: %w", err))
	}
	return nil
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
