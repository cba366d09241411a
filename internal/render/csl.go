// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/pkg/types"
)

// CSLItem is a bibliographic entry in CSL (Citation Style Language) form.
// Field names follow the CSL-JSON/CSL-YAML schema so Pandoc and reference
// managers can consume the output.
type CSLItem struct {
	ID     string    `json:"id" yaml:"id"`
	Type   string    `json:"type" yaml:"type"`
	Title  string    `json:"title" yaml:"title"`
	Author []CSLName `json:"author,omitempty" yaml:"author,omitempty"`
	Issued *CSLDate  `json:"issued,omitempty" yaml:"issued,omitempty"`
	URL    string    `json:"URL,omitempty" yaml:"URL,omitempty"`
	Note   string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Given   string `json:"given,omitempty" yaml:"given,omitempty"`
	Literal string `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `json:"date-parts" yaml:"date-parts"`
}

const corpusURL = "https://api.semanticscholar.org/CorpusID:"

// CSL writes the papers cited in r as a CSL list. format is "yaml" or "json".
func CSL(w io.Writer, r *types.Report, format string) error {
	refs := References(r)
	items := make([]CSLItem, len(refs))
	for i, c := range refs {
		items[i] = toCSLItem(c)
	}

	switch strings.ToLower(format) {
	case "yaml", "yml", "":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(items)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	default:
		return fmt.Errorf("unknown CSL format %q (use yaml or json)", format)
	}
}

func toCSLItem(c types.Citation) CSLItem {
	item := CSLItem{
		ID:    c.PaperID,
		Type:  "article-journal",
		Title: c.Title,
		URL:   corpusURL + c.PaperID,
	}
	for _, a := range c.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if c.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{c.Year}}}
	}
	if c.CitationCount > 0 {
		item.Note = fmt.Sprintf("Cited by %d", c.CitationCount)
	}
	return item
}

// parseAuthorName splits on the last space: everything before is the given
// name, the last token the family name. Single-token names are literal.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}
