// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cite resolves inline citation markers in generated prose to paper
// ids.
//
// A marker is a bracketed, pipe-separated reference key such as
// [12345 | Doe et al. | 2024 | Citations: 25]. Several keys may share one
// bracket when separated by semicolons. [LLM MEMORY | 2024] marks text the
// model wrote from its own knowledge and is never a citation.
package cite

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/pkg/types"
)

// citationPattern matches bracketed text: [Key] or [Key1; Key2].
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

const memoryKey = "LLM MEMORY"

// Marker is one reference key found in text.
type Marker struct {
	// Raw is the key as written, without brackets.
	Raw string
	// PaperID is the first pipe-separated field.
	PaperID string
}

// Markers returns the reference keys in text in order of appearance,
// including repeats. Bracketed text without a pipe (Markdown links, [1]
// style numbers) and LLM MEMORY keys are skipped.
func Markers(text string) []Marker {
	var out []Marker
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ";") {
			key := strings.TrimSpace(part)
			if !strings.Contains(key, "|") {
				continue
			}
			id := strings.TrimSpace(strings.SplitN(key, "|", 2)[0])
			if id == "" || strings.EqualFold(id, memoryKey) {
				continue
			}
			id = strings.TrimPrefix(id, "CorpusId:")
			out = append(out, Marker{Raw: key, PaperID: id})
		}
	}
	return out
}

// Rewrite replaces bracketed reference keys in text. fn maps one marker to
// its replacement label; a bracket whose markers all map to false is left as
// written. Resolved labels in one bracket are joined with ", ".
func Rewrite(text string, fn func(Marker) (string, bool)) string {
	return citationPattern.ReplaceAllStringFunc(text, func(group string) string {
		var labels []string
		for _, m := range Markers(group) {
			if label, ok := fn(m); ok {
				labels = append(labels, label)
			}
		}
		if len(labels) == 0 {
			return group
		}
		return "[" + strings.Join(labels, ", ") + "]"
	})
}

// Linker turns markers into a section's citation list.
type Linker struct {
	logger *zap.Logger
}

// NewLinker returns a Linker that logs unresolved markers to logger.
func NewLinker(logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{logger: logger}
}

// Link returns the ids of papers cited in text, once each, in first-occurrence
// order. A marker resolves when its paper is behind one of quotes or listed
// in carried (citations an edited section keeps). Unresolved markers are
// logged and returned as warnings; text is never changed.
func (l *Linker) Link(section, text string, quotes []types.Quote, carried []string) ([]string, []*types.CitationResolutionWarning) {
	allowed := make(map[string]bool, len(quotes)+len(carried))
	for _, q := range quotes {
		allowed[q.PaperID] = true
	}
	for _, id := range carried {
		allowed[id] = true
	}

	seen := make(map[string]bool)
	var ids []string
	var warnings []*types.CitationResolutionWarning
	for _, m := range Markers(text) {
		if !allowed[m.PaperID] {
			w := &types.CitationResolutionWarning{Section: section, Marker: "[" + m.Raw + "]"}
			warnings = append(warnings, w)
			metrics.CitationsUnresolved.Inc()
			l.logger.Warn("unresolved citation", zap.Error(w))
			continue
		}
		if !seen[m.PaperID] {
			seen[m.PaperID] = true
			ids = append(ids, m.PaperID)
		}
	}
	return ids, warnings
}
