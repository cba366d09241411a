// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns a stored report into Markdown with a reference list,
// and its cited papers into BibTeX or CSL.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdiddy/report-engine/internal/cite"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Options controls Markdown output.
type Options struct {
	// NumberCitations replaces reference keys with [n] labels that point
	// into the reference list. Unresolved keys stay as written.
	NumberCitations bool

	// Snippets lists each reference's supporting quotes under it.
	Snippets bool
}

// References returns every paper cited in r once, in first-citation order.
// Metadata comes from the first citation; snippets are merged.
func References(r *types.Report) []types.Citation {
	index := make(map[string]int)
	var out []types.Citation
	for _, s := range r.Sections {
		for _, c := range s.Citations {
			i, ok := index[c.PaperID]
			if !ok {
				index[c.PaperID] = len(out)
				cc := c
				cc.Snippets = append([]string(nil), c.Snippets...)
				out = append(out, cc)
				continue
			}
			for _, sn := range c.Snippets {
				if !contains(out[i].Snippets, sn) {
					out[i].Snippets = append(out[i].Snippets, sn)
				}
			}
		}
	}
	return out
}

// Markdown writes r as a Markdown document.
func Markdown(w io.Writer, r *types.Report, opts Options) error {
	refs := References(r)
	number := make(map[string]string, len(refs))
	for i, c := range refs {
		number[c.PaperID] = strconv.Itoa(i + 1)
	}

	var b strings.Builder
	title := r.Title
	if title == "" {
		title = "Research Report"
	}
	fmt.Fprintf(&b, "# %s\n", title)

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Title)
		if s.TLDR != "" {
			fmt.Fprintf(&b, "> **TLDR:** %s\n\n", s.TLDR)
		}
		content := s.Content
		if opts.NumberCitations {
			cited := make(map[string]bool, len(s.Citations))
			for _, c := range s.Citations {
				cited[c.PaperID] = true
			}
			content = cite.Rewrite(content, func(m cite.Marker) (string, bool) {
				if !cited[m.PaperID] {
					return "", false
				}
				return number[m.PaperID], true
			})
		}
		b.WriteString(strings.TrimSpace(content))
		b.WriteString("\n")
	}

	if len(refs) > 0 {
		b.WriteString("\n## References\n\n")
		for i, c := range refs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, formatReference(c))
			if opts.Snippets {
				for _, sn := range c.Snippets {
					fmt.Fprintf(&b, "    > %s\n", sn)
				}
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// formatReference renders "Authors (Year). Title. [id, N citations]".
func formatReference(c types.Citation) string {
	var parts []string
	authors := "Unknown"
	if len(c.Authors) > 0 {
		authors = strings.Join(c.Authors, ", ")
	}
	if c.Year > 0 {
		authors += fmt.Sprintf(" (%d)", c.Year)
	}
	parts = append(parts, authors+".")
	if c.Title != "" {
		parts = append(parts, "*"+strings.TrimSuffix(c.Title, ".")+"*.")
	}
	parts = append(parts, fmt.Sprintf("[%s, %d citations]", c.PaperID, c.CitationCount))
	return strings.Join(parts, " ")
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
