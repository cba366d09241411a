// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// PaperMeta holds the bibliographic fields the retrieval backend returns for
// one corpus paper.
type PaperMeta struct {
	// PaperID is the opaque corpus identifier (e.g. a Semantic Scholar corpus id).
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year; zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Venue is the journal or conference.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// CitationCount is the number of incoming citations.
	CitationCount int `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`
}

// AuthorRef returns the short author string used inside reference keys:
// "Smith", "Smith and Doe", or "Smith et al.".
func (m PaperMeta) AuthorRef() string {
	surname := func(name string) string {
		fields := strings.Fields(name)
		if len(fields) == 0 {
			return ""
		}
		return fields[len(fields)-1]
	}
	switch len(m.Authors) {
	case 0:
		return "Unknown"
	case 1:
		return surname(m.Authors[0])
	case 2:
		return surname(m.Authors[0]) + " and " + surname(m.Authors[1])
	default:
		return surname(m.Authors[0]) + " et al."
	}
}

// ReferenceKey returns the inline citation key the model is asked to cite:
// [ID | AUTHOR_REF | YEAR | Citations: N].
func (m PaperMeta) ReferenceKey() string {
	return fmt.Sprintf("[%s | %s | %d | Citations: %d]", m.PaperID, m.AuthorRef(), m.Year, m.CitationCount)
}
