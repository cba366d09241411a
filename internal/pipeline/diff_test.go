// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pdiddy/report-engine/pkg/types"
)

func TestDiff(t *testing.T) {
	old := currentReport()
	updated := &types.Report{
		Title: "New Title",
		Sections: []types.Section{
			old.Sections[0],
			{Title: "Methods", Citations: []types.Citation{citation("6"), citation("40")}},
			{Title: "Outlook", Citations: []types.Citation{citation("41"), citation("40")}},
		},
	}
	plan := &types.EditPlan{
		SectionPlans: []types.Dimension{
			{Action: types.ActionKeep, ExistingIndex: 0},
			{Action: types.ActionGoDeeper, ExistingIndex: 1},
			{Action: types.ActionDelete, ExistingIndex: 2},
		},
		NewSections: []types.Dimension{{Title: "Outlook", Action: types.ActionNew, ExistingIndex: -1}},
	}

	got := Diff(old, updated, plan)
	want := &types.EditResult{
		Summary:          `Retitled to "New Title". Modified 1 section: "Methods" (go_deeper). Added 1 section: "Outlook". Deleted 1 section: "Evaluation". Cited 2 papers new to the report.`,
		SectionsModified: []int{1},
		SectionsAdded:    []int{2},
		SectionsDeleted:  []int{2},
		PapersAdded:      []string{"40", "41"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffNoChanges(t *testing.T) {
	old := currentReport()
	plan := &types.EditPlan{SectionPlans: []types.Dimension{
		{Action: types.ActionKeep}, {Action: types.ActionKeep}, {Action: types.ActionKeep},
	}}
	got := Diff(old, old, plan)
	if got.Summary != "No changes." {
		t.Errorf("Summary = %q, want %q", got.Summary, "No changes.")
	}
	if len(got.SectionsModified)+len(got.SectionsAdded)+len(got.SectionsDeleted)+len(got.PapersAdded) != 0 {
		t.Errorf("expected empty change sets, got %+v", got)
	}
}
