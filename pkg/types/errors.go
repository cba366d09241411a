// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// RetrievalError reports a search or metadata backend failure. It is fatal
// for the run.
type RetrievalError struct {
	// Op is "search" or "metadata".
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError reports a model call that exhausted its retries or
// returned output that does not fit the requested schema.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed in %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// GroundingViolation reports an extracted quote whose text is not present in
// the source evidence. It is recovered locally and never aborts a run.
type GroundingViolation struct {
	PaperID string
	Quote   string
}

func (e *GroundingViolation) Error() string {
	q := e.Quote
	if len(q) > 60 {
		q = q[:57] + "..."
	}
	return fmt.Sprintf("quote for paper %s not found in source: %q", e.PaperID, q)
}

// CitationResolutionWarning reports an inline marker that does not resolve to
// a paper behind the section's quotes. The marker is dropped from the
// citation list but left in the text.
type CitationResolutionWarning struct {
	Section string
	Marker  string
}

func (e *CitationResolutionWarning) Error() string {
	return fmt.Sprintf("section %q: unresolvable citation marker %s", e.Section, e.Marker)
}

// ReportNotFoundError reports an edit against an unknown thread.
type ReportNotFoundError struct {
	ThreadID string
}

func (e *ReportNotFoundError) Error() string {
	return fmt.Sprintf("no report found for thread %q", e.ThreadID)
}

// ValidationError reports a malformed request or edit plan.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
