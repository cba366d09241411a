// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Action is the edit operation applied to one section. It is a closed set;
// ParseAction rejects anything else.
type Action string

const (
	ActionKeep     Action = "KEEP"
	ActionExpand   Action = "EXPAND"
	ActionAddTo    Action = "ADD_TO"
	ActionGoDeeper Action = "GO_DEEPER"
	ActionModify   Action = "MODIFY"
	ActionReplace  Action = "REPLACE"
	ActionDelete   Action = "DELETE"
	ActionNew      Action = "NEW"
)

// ActionKind groups actions by how a section is materialized.
type ActionKind int

const (
	KindInvalid ActionKind = iota
	// KindKeep copies the existing section unchanged, with no model call.
	KindKeep
	// KindAppend extends existing content; existing citations must survive.
	KindAppend
	// KindFresh writes new content from the dimension's quotes.
	KindFresh
	// KindDrop omits the section from the output.
	KindDrop
)

// Kind returns the dispatch class of the action.
func (a Action) Kind() ActionKind {
	switch a {
	case ActionKeep:
		return KindKeep
	case ActionExpand, ActionAddTo, ActionGoDeeper:
		return KindAppend
	case ActionModify, ActionReplace, ActionNew:
		return KindFresh
	case ActionDelete:
		return KindDrop
	default:
		return KindInvalid
	}
}

// actionAliases maps model spellings onto canonical actions.
var actionAliases = map[string]Action{
	"KEEP":       ActionKeep,
	"EXPAND":     ActionExpand,
	"ADD_TO":     ActionAddTo,
	"ADD_PAPERS": ActionAddTo,
	"GO_DEEPER":  ActionGoDeeper,
	"MODIFY":     ActionModify,
	"REPLACE":    ActionReplace,
	"DELETE":     ActionDelete,
	"NEW":        ActionNew,
}

// ParseAction normalizes a model-supplied action name ("add to", "add_papers",
// "Keep") into an Action.
func ParseAction(s string) (Action, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if a, ok := actionAliases[norm]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// SectionFormat is how a section body is laid out.
type SectionFormat string

const (
	FormatSynthesis SectionFormat = "synthesis"
	FormatList      SectionFormat = "list"
)

// ParseFormat returns FormatList for "list" (any case) and FormatSynthesis otherwise.
func ParseFormat(s string) SectionFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatList)) {
		return FormatList
	}
	return FormatSynthesis
}

// Dimension is one planned section.
type Dimension struct {
	Title  string        `json:"title" yaml:"title"`
	Format SectionFormat `json:"format" yaml:"format"`

	// QuoteRefs index into the run's flattened quote list, in citation order.
	QuoteRefs []int `json:"quote_refs" yaml:"quote_refs"`

	// Action is empty for synthesis plans.
	Action Action `json:"action,omitempty" yaml:"action,omitempty"`

	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`

	// Instruction is a section-specific edit instruction, if the planner gave one.
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`

	// ExistingIndex is the index of the section this plan applies to, or -1
	// for synthesis dimensions and NEW sections.
	ExistingIndex int `json:"existing_index" yaml:"existing_index"`
}

// Citation is one cited paper within a section.
type Citation struct {
	PaperID       string   `json:"paper_id" yaml:"paper_id"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	Authors       []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year          int      `json:"year,omitempty" yaml:"year,omitempty"`
	CitationCount int      `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`

	// Snippets are the quotes that support the citation.
	Snippets []string `json:"snippets,omitempty" yaml:"snippets,omitempty"`
}

// Meta returns the citation's bibliographic fields as PaperMeta.
func (c Citation) Meta() PaperMeta {
	return PaperMeta{
		PaperID:       c.PaperID,
		Title:         c.Title,
		Authors:       c.Authors,
		Year:          c.Year,
		CitationCount: c.CitationCount,
	}
}

// Section is a written report section. A Section is never mutated after the
// report is finalized; edits produce a new Section.
type Section struct {
	Title  string        `json:"title" yaml:"title"`
	Format SectionFormat `json:"format" yaml:"format"`
	TLDR   string        `json:"tldr" yaml:"tldr"`

	// Content is Markdown prose with inline citation markers.
	Content string `json:"content" yaml:"content"`

	// Citations is ordered by first occurrence and holds each paper once.
	Citations []Citation `json:"citations" yaml:"citations"`
}

// CitationIDs returns the cited paper ids in order.
func (s Section) CitationIDs() []string {
	ids := make([]string, len(s.Citations))
	for i, c := range s.Citations {
		ids[i] = c.PaperID
	}
	return ids
}

// TokenUsage counts model tokens.
type TokenUsage struct {
	Input  int `json:"input" yaml:"input"`
	Output int `json:"output" yaml:"output"`
	Total  int `json:"total" yaml:"total"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{Input: u.Input + o.Input, Output: u.Output + o.Output, Total: u.Total + o.Total}
}

// Report is the artifact produced by one pipeline run. Section order is
// significant.
type Report struct {
	Title    string     `json:"title" yaml:"title"`
	Sections []Section  `json:"sections" yaml:"sections"`
	Cost     float64    `json:"cost" yaml:"cost"`
	Tokens   TokenUsage `json:"token_usage" yaml:"token_usage"`
}

// CitedPapers returns every cited paper id in the report, deduplicated, in
// first-occurrence order.
func (r *Report) CitedPapers() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range r.Sections {
		for _, c := range s.Citations {
			if !seen[c.PaperID] {
				seen[c.PaperID] = true
				ids = append(ids, c.PaperID)
			}
		}
	}
	return ids
}

// Clone returns a deep copy of the report.
func (r *Report) Clone() *Report {
	out := *r
	out.Sections = make([]Section, len(r.Sections))
	for i, s := range r.Sections {
		out.Sections[i] = s.Clone()
	}
	return &out
}

// Clone returns a deep copy of the section.
func (s Section) Clone() Section {
	out := s
	if s.Citations != nil {
		out.Citations = make([]Citation, len(s.Citations))
		for i, c := range s.Citations {
			cc := c
			cc.Authors = append([]string(nil), c.Authors...)
			cc.Snippets = append([]string(nil), c.Snippets...)
			out.Citations[i] = cc
		}
	}
	return out
}

// Digest renders a compact outline of the report for prompts: title, and per
// section its number, title, TLDR, a short preview, and citation count.
func (r *Report) Digest(preview int) string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", r.Title)
	}
	b.WriteString("Sections:")
	for i, s := range r.Sections {
		fmt.Fprintf(&b, "\n[Section %d] %s", i, s.Title)
		if s.TLDR != "" {
			fmt.Fprintf(&b, "\n   Summary: %s", s.TLDR)
		}
		if preview > 0 {
			fmt.Fprintf(&b, "\n   Preview: %s", truncateRunes(s.Content, preview))
		}
		fmt.Fprintf(&b, "\n   Citations: %d papers", len(s.Citations))
		if len(s.Citations) > 0 {
			ids := s.CitationIDs()
			if len(ids) > 5 {
				ids = ids[:5]
			}
			fmt.Fprintf(&b, " (e.g. %s)", strings.Join(ids, ", "))
		}
	}
	return b.String()
}

// truncateRunes cuts s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// EditContext carries the state an edit run adds to every stage. A nil
// *EditContext means synthesis.
type EditContext struct {
	Instruction string   `json:"instruction" yaml:"instruction"`
	Report      *Report  `json:"-" yaml:"-"`
	Mentioned   []string `json:"mentioned_papers,omitempty" yaml:"mentioned_papers,omitempty"`
}

// SearchDecision records whether an edit needs new retrieval.
type SearchDecision struct {
	NeedsSearch bool   `json:"needs_search" yaml:"needs_search"`
	SearchQuery string `json:"search_query,omitempty" yaml:"search_query,omitempty"`
	Reasoning   string `json:"reasoning" yaml:"reasoning"`
}

// EditPlan assigns one Dimension to every existing section, in original
// order, plus NEW dimensions appended at the end of the report.
type EditPlan struct {
	Title        string      `json:"title,omitempty" yaml:"title,omitempty"`
	Reasoning    string      `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	SectionPlans []Dimension `json:"section_plans" yaml:"section_plans"`
	NewSections  []Dimension `json:"new_sections" yaml:"new_sections"`
}

// IsNoop reports whether applying the plan leaves the report unchanged.
func (p *EditPlan) IsNoop(current *Report) bool {
	if len(p.NewSections) > 0 {
		return false
	}
	if p.Title != "" && p.Title != current.Title {
		return false
	}
	for _, sp := range p.SectionPlans {
		if sp.Action.Kind() != KindKeep {
			return false
		}
	}
	return true
}

// EditResult is an observational summary of what an edit changed. Modified
// and deleted indices refer to the original report; added indices refer to
// the new report.
type EditResult struct {
	Summary          string   `json:"summary" yaml:"summary"`
	SectionsModified []int    `json:"sections_modified" yaml:"sections_modified"`
	SectionsAdded    []int    `json:"sections_added" yaml:"sections_added"`
	SectionsDeleted  []int    `json:"sections_deleted" yaml:"sections_deleted"`
	PapersAdded      []string `json:"papers_added" yaml:"papers_added"`
}
