// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the report-engine pipeline:
// evidence, quotes, planned dimensions, sections, reports, and edit records.
package types

// Origin records where an EvidenceItem came from.
type Origin string

const (
	OriginSearched  Origin = "SEARCHED"
	OriginMentioned Origin = "MENTIONED"
)

// MentionedScore is the fixed relevance of user-mentioned evidence. Mentioned
// papers are treated as certainly relevant rather than ranked.
const MentionedScore = 1.0

// EvidenceItem is one retrieved paper with the text the pipeline may quote.
type EvidenceItem struct {
	// PaperID is unique within one pipeline run.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Text is the abstract or the concatenated retrieved snippets.
	Text string `json:"text" yaml:"text"`

	// Snippets holds individual retrieved passages. Quote.SourceOffset
	// indexes into Passages(), which falls back to Text when Snippets is empty.
	Snippets []string `json:"snippets,omitempty" yaml:"snippets,omitempty"`

	// RelevanceScore ranks searched items; MENTIONED items always carry 1.0.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// Origin is SEARCHED or MENTIONED.
	Origin Origin `json:"origin" yaml:"origin"`

	// Meta carries title, authors, and year for reference keys.
	Meta PaperMeta `json:"metadata" yaml:"metadata"`
}

// Passages returns the quotable units of the item in offset order.
func (e EvidenceItem) Passages() []string {
	if len(e.Snippets) > 0 {
		return e.Snippets
	}
	if e.Text == "" {
		return nil
	}
	return []string{e.Text}
}

// Catalog indexes paper metadata by paper id. Writers use it to build
// reference keys and citation records.
type Catalog map[string]PaperMeta

// CatalogOf builds a Catalog from evidence items.
func CatalogOf(items []EvidenceItem) Catalog {
	c := make(Catalog, len(items))
	for _, it := range items {
		meta := it.Meta
		meta.PaperID = it.PaperID
		c[it.PaperID] = meta
	}
	return c
}

// Quote is a verbatim excerpt of one EvidenceItem. Quotes are immutable once
// extracted.
type Quote struct {
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Text is the quoted passage; "..." separates non-contiguous fragments.
	Text string `json:"text" yaml:"text"`

	// SourceOffset is the index into the item's Passages() where the quote begins.
	SourceOffset int `json:"source_offset" yaml:"source_offset"`
}
