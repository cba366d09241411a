// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Diff summarizes how plan turned old into updated. Modified and deleted
// indices refer to old; added indices refer to updated, where NEW sections
// follow every surviving original section. PapersAdded lists ids cited in
// updated but not in old, in first-appearance order.
func Diff(old, updated *types.Report, plan *types.EditPlan) *types.EditResult {
	res := &types.EditResult{
		SectionsModified: []int{},
		SectionsAdded:    []int{},
		SectionsDeleted:  []int{},
		PapersAdded:      []string{},
	}

	var modified, deleted, added []string
	kept := 0
	for i, sp := range plan.SectionPlans {
		switch sp.Action.Kind() {
		case types.KindKeep:
			kept++
		case types.KindDrop:
			res.SectionsDeleted = append(res.SectionsDeleted, i)
			deleted = append(deleted, quoteTitle(old.Sections[i].Title))
		default:
			kept++
			res.SectionsModified = append(res.SectionsModified, i)
			modified = append(modified, fmt.Sprintf("%s (%s)", quoteTitle(old.Sections[i].Title), strings.ToLower(string(sp.Action))))
		}
	}
	for j, ns := range plan.NewSections {
		res.SectionsAdded = append(res.SectionsAdded, kept+j)
		added = append(added, quoteTitle(ns.Title))
	}

	before := make(map[string]bool)
	for _, id := range old.CitedPapers() {
		before[id] = true
	}
	for _, id := range updated.CitedPapers() {
		if !before[id] {
			res.PapersAdded = append(res.PapersAdded, id)
		}
	}

	var parts []string
	if updated.Title != old.Title {
		parts = append(parts, fmt.Sprintf("Retitled to %s.", quoteTitle(updated.Title)))
	}
	if len(modified) > 0 {
		parts = append(parts, fmt.Sprintf("Modified %s: %s.", plural(len(modified), "section"), strings.Join(modified, ", ")))
	}
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("Added %s: %s.", plural(len(added), "section"), strings.Join(added, ", ")))
	}
	if len(deleted) > 0 {
		parts = append(parts, fmt.Sprintf("Deleted %s: %s.", plural(len(deleted), "section"), strings.Join(deleted, ", ")))
	}
	if len(res.PapersAdded) > 0 {
		parts = append(parts, fmt.Sprintf("Cited %s new to the report.", plural(len(res.PapersAdded), "paper")))
	}
	if len(parts) == 0 {
		parts = append(parts, "No changes.")
	}
	res.Summary = strings.Join(parts, " ")
	return res
}

func quoteTitle(s string) string { return fmt.Sprintf("%q", s) }

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
