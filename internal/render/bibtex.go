// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/report-engine/pkg/types"
)

// BibTeX produces one @article entry per paper cited in r, in reference order.
func BibTeX(r *types.Report) string {
	var b strings.Builder
	used := make(map[string]int)
	for _, c := range References(r) {
		key := bibKey(c)
		if n := used[key]; n > 0 {
			used[key] = n + 1
			key = fmt.Sprintf("%s%c", key, 'a'+rune(n-1))
		} else {
			used[key] = 1
		}
		fmt.Fprintf(&b, "@article{%s,\n", key)
		fmt.Fprintf(&b, "  title = {%s},\n", escapeBibTeX(c.Title))
		if len(c.Authors) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", escapeBibTeX(strings.Join(c.Authors, " and ")))
		}
		if c.Year > 0 {
			fmt.Fprintf(&b, "  year = {%d},\n", c.Year)
		}
		fmt.Fprintf(&b, "  note = {Semantic Scholar CorpusId:%s},\n", c.PaperID)
		fmt.Fprintf(&b, "}\n\n")
	}
	return b.String()
}

// bibKey builds a key like "lovelace2024" from the first author's surname
// and the year, falling back to the paper id.
func bibKey(c types.Citation) string {
	var surname string
	if len(c.Authors) > 0 {
		fields := strings.Fields(c.Authors[0])
		if len(fields) > 0 {
			surname = fields[len(fields)-1]
		}
	}
	var key strings.Builder
	for _, r := range strings.ToLower(surname) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			key.WriteRune(r)
		}
	}
	if key.Len() == 0 {
		return "paper" + c.PaperID
	}
	if c.Year > 0 {
		fmt.Fprintf(&key, "%d", c.Year)
	}
	return key.String()
}

var bibEscaper = strings.NewReplacer(`&`, `\&`, `%`, `\%`, `$`, `\$`, `#`, `\#`, `_`, `\_`)

func escapeBibTeX(s string) string { return bibEscaper.Replace(s) }
