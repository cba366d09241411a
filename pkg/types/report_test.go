// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"KEEP", ActionKeep, false},
		{"keep", ActionKeep, false},
		{" expand ", ActionExpand, false},
		{"add to", ActionAddTo, false},
		{"ADD_PAPERS", ActionAddTo, false},
		{"go-deeper", ActionGoDeeper, false},
		{"Modify", ActionModify, false},
		{"REPLACE", ActionReplace, false},
		{"DELETE", ActionDelete, false},
		{"NEW", ActionNew, false},
		{"SHRINK", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionKind(t *testing.T) {
	assert.Equal(t, KindKeep, ActionKeep.Kind())
	for _, a := range []Action{ActionExpand, ActionAddTo, ActionGoDeeper} {
		assert.Equal(t, KindAppend, a.Kind(), a)
	}
	for _, a := range []Action{ActionModify, ActionReplace, ActionNew} {
		assert.Equal(t, KindFresh, a.Kind(), a)
	}
	assert.Equal(t, KindDrop, ActionDelete.Kind())
	assert.Equal(t, KindInvalid, Action("").Kind())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatList, ParseFormat(" List "))
	assert.Equal(t, FormatSynthesis, ParseFormat("synthesis"))
	assert.Equal(t, FormatSynthesis, ParseFormat("prose"))
}

func TestReferenceKey(t *testing.T) {
	tests := []struct {
		name    string
		authors []string
		want    string
	}{
		{"none", nil, "[7 | Unknown | 2020 | Citations: 3]"},
		{"one", []string{"Jane Q. Doe"}, "[7 | Doe | 2020 | Citations: 3]"},
		{"two", []string{"Jane Doe", "Raj Patel"}, "[7 | Doe and Patel | 2020 | Citations: 3]"},
		{"many", []string{"Jane Doe", "Raj Patel", "Li Wei"}, "[7 | Doe et al. | 2020 | Citations: 3]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := PaperMeta{PaperID: "7", Authors: tt.authors, Year: 2020, CitationCount: 3}
			assert.Equal(t, tt.want, m.ReferenceKey())
		})
	}
}

func sampleReport() *Report {
	return &Report{
		Title: "Scaling",
		Sections: []Section{
			{Title: "A", TLDR: "a.", Content: "alpha content", Citations: []Citation{
				{PaperID: "1", Authors: []string{"X"}, Snippets: []string{"s1"}},
				{PaperID: "2"},
			}},
			{Title: "B", Content: "beta", Citations: []Citation{{PaperID: "2"}, {PaperID: "3"}}},
		},
		Cost:   0.5,
		Tokens: TokenUsage{Input: 10, Output: 5, Total: 15},
	}
}

func TestReportCitedPapers(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, sampleReport().CitedPapers())
}

func TestReportCloneIsDeep(t *testing.T) {
	r := sampleReport()
	c := r.Clone()
	assert.Equal(t, r, c)

	c.Sections[0].Citations[0].Snippets[0] = "changed"
	c.Sections[0].Citations[0].Authors[0] = "Y"
	c.Sections[1].Title = "changed"
	assert.Equal(t, "s1", r.Sections[0].Citations[0].Snippets[0])
	assert.Equal(t, "X", r.Sections[0].Citations[0].Authors[0])
	assert.Equal(t, "B", r.Sections[1].Title)
}

func TestReportDigest(t *testing.T) {
	d := sampleReport().Digest(5)
	assert.True(t, strings.HasPrefix(d, "Title: Scaling"))
	assert.Contains(t, d, "[Section 0] A")
	assert.Contains(t, d, "Summary: a.")
	assert.Contains(t, d, "Preview: alpha...")
	assert.Contains(t, d, "[Section 1] B")
	assert.Contains(t, d, "Citations: 2 papers (e.g. 2, 3)")
	assert.NotContains(t, d, "Summary: \n")
}

func TestReportDigestPreviewKeepsRunesWhole(t *testing.T) {
	r := &Report{Sections: []Section{{Title: "Umlaut", Content: "Übersicht über Modelle"}, {Title: "Short", Content: "äöü"}}}
	d := r.Digest(3)
	assert.True(t, utf8.ValidString(d))
	assert.Contains(t, d, "Preview: Übe...")
	assert.Contains(t, d, "Preview: äöü\n", "content within the limit is not cut")

	cjk := &Report{Sections: []Section{{Title: "CJK", Content: "検索拡張生成"}}}
	assert.Contains(t, cjk.Digest(2), "Preview: 検索...")
}

func TestEditPlanIsNoop(t *testing.T) {
	r := sampleReport()
	keepAll := &EditPlan{SectionPlans: []Dimension{{Action: ActionKeep}, {Action: ActionKeep}}}
	assert.True(t, keepAll.IsNoop(r))

	sameTitle := &EditPlan{Title: "Scaling", SectionPlans: keepAll.SectionPlans}
	assert.True(t, sameTitle.IsNoop(r))

	retitled := &EditPlan{Title: "Other", SectionPlans: keepAll.SectionPlans}
	assert.False(t, retitled.IsNoop(r))

	expand := &EditPlan{SectionPlans: []Dimension{{Action: ActionKeep}, {Action: ActionExpand}}}
	assert.False(t, expand.IsNoop(r))

	added := &EditPlan{SectionPlans: keepAll.SectionPlans, NewSections: []Dimension{{Title: "C", Action: ActionNew}}}
	assert.False(t, added.IsNoop(r))
}

func TestTokenUsageAdd(t *testing.T) {
	got := TokenUsage{Input: 1, Output: 2, Total: 3}.Add(TokenUsage{Input: 10, Output: 20, Total: 30})
	assert.Equal(t, TokenUsage{Input: 11, Output: 22, Total: 33}, got)
}

func TestCatalogOf(t *testing.T) {
	c := CatalogOf([]EvidenceItem{{PaperID: "9", Meta: PaperMeta{Title: "T"}}})
	assert.Equal(t, PaperMeta{PaperID: "9", Title: "T"}, c["9"])
}

func TestPassages(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, EvidenceItem{Text: "ab", Snippets: []string{"a", "b"}}.Passages())
	assert.Equal(t, []string{"ab"}, EvidenceItem{Text: "ab"}.Passages())
	assert.Nil(t, EvidenceItem{}.Passages())
}
