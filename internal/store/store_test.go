// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func sampleReport(title string, paperIDs ...string) *types.Report {
	var cites []types.Citation
	for _, id := range paperIDs {
		cites = append(cites, types.Citation{
			PaperID:       id,
			Title:         "Paper " + id,
			Authors:       []string{"Ada Lovelace", "Alan Turing"},
			Year:          2024,
			CitationCount: 12,
			Snippets:      []string{"a quote from " + id},
		})
	}
	return &types.Report{
		Title: title,
		Sections: []types.Section{
			{Title: "Background", Format: types.FormatSynthesis, TLDR: "Short.", Content: "Body.", Citations: cites},
		},
		Cost:   0.25,
		Tokens: types.TokenUsage{Input: 100, Output: 50, Total: 150},
	}
}

// --- tests ---

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()
	want := sampleReport("RAG", "1", "2")

	if err := s.Save(ctx, "t1", want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded report mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadUnknownThread(t *testing.T) {
	s := testSetup(t)
	_, err := s.Load(context.Background(), "nope")
	var nf *types.ReportNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Load error = %v, want ReportNotFoundError", err)
	}
	if nf.ThreadID != "nope" {
		t.Errorf("ThreadID = %q, want %q", nf.ThreadID, "nope")
	}
}

func TestSaveAddsVersions(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()

	for i, title := range []string{"v1", "v2", "v3"} {
		v, err := s.SaveVersion(ctx, "t1", sampleReport(title, "1"))
		if err != nil {
			t.Fatal(err)
		}
		if v != i+1 {
			t.Errorf("version = %d, want %d", v, i+1)
		}
	}

	latest, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Title != "v3" {
		t.Errorf("latest title = %q, want v3", latest.Title)
	}

	first, err := s.LoadVersion(ctx, "t1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if first.Title != "v1" {
		t.Errorf("version 1 title = %q, want v1", first.Title)
	}

	if _, err := s.LoadVersion(ctx, "t1", 9); err == nil {
		t.Error("expected error for missing version")
	}

	history, err := s.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history has %d versions, want 3", len(history))
	}
	h := history[2]
	if h.Version != 3 || h.Title != "v3" || h.Sections != 1 || h.Tokens != 150 || h.Cost != 0.25 {
		t.Errorf("unexpected history entry: %+v", h)
	}
	if !history[0].CreatedAt.Before(history[2].CreatedAt) {
		t.Errorf("history not in save order: %v then %v", history[0].CreatedAt, history[2].CreatedAt)
	}
}

func TestSaveRequiresThreadID(t *testing.T) {
	s := testSetup(t)
	err := s.Save(context.Background(), "", sampleReport("x"))
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Save error = %v, want ValidationError", err)
	}
}

func TestHistoryUnknownThread(t *testing.T) {
	s := testSetup(t)
	_, err := s.History(context.Background(), "nope")
	var nf *types.ReportNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("History error = %v, want ReportNotFoundError", err)
	}
}

func TestThreadsListsLatestVersions(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()
	mustSave(t, s, "a", sampleReport("a1"))
	mustSave(t, s, "b", sampleReport("b1"))
	mustSave(t, s, "a", sampleReport("a2"))

	threads, err := s.Threads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, v := range threads {
		got = append(got, v.ThreadID+":"+v.Title)
	}
	want := []string{"a:a2", "b:b1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("threads mismatch (-want +got):\n%s", diff)
	}
}

func TestCitationIndex(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()
	mustSave(t, s, "a", sampleReport("a1", "1", "2"))
	mustSave(t, s, "b", sampleReport("b1", "2"))
	mustSave(t, s, "a", sampleReport("a2", "3"))

	threads, err := s.CitingThreads(ctx, "2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b"}, threads); diff != "" {
		t.Errorf("citing threads mismatch (-want +got):\n%s", diff)
	}

	papers, err := s.Papers(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	want := []types.PaperMeta{{PaperID: "3", Title: "Paper 3", Authors: []string{"Ada Lovelace", "Alan Turing"}, Year: 2024, CitationCount: 12}}
	if diff := cmp.Diff(want, papers); diff != "" {
		t.Errorf("papers mismatch (-want +got):\n%s", diff)
	}
}

func TestPaperUpsertKeepsRicherMetadata(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()
	mustSave(t, s, "a", sampleReport("a1", "1"))

	thin := &types.Report{Title: "a2", Sections: []types.Section{
		{Title: "S", Citations: []types.Citation{{PaperID: "1"}}},
	}}
	mustSave(t, s, "a", thin)

	papers, err := s.Papers(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers, want 1", len(papers))
	}
	p := papers[0]
	if p.Title != "Paper 1" || p.Year != 2024 || p.CitationCount != 12 || len(p.Authors) != 2 {
		t.Errorf("metadata lost on thin upsert: %+v", p)
	}
}

func TestExport(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()
	mustSave(t, s, "t1", sampleReport("v1", "1"))
	mustSave(t, s, "t1", sampleReport("v2", "1", "2"))

	yamlPath, err := s.ExportYAML(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(s.dataDir, exportDir, "t1.yaml"); yamlPath != want {
		t.Errorf("yaml path = %q, want %q", yamlPath, want)
	}
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML Export
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatal(err)
	}
	if fromYAML.Version != 2 || fromYAML.Report.Title != "v2" || len(fromYAML.History) != 2 || len(fromYAML.Papers) != 2 {
		t.Errorf("unexpected YAML export: version=%d title=%q history=%d papers=%d",
			fromYAML.Version, fromYAML.Report.Title, len(fromYAML.History), len(fromYAML.Papers))
	}

	jsonPath, err := s.ExportJSON(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON Export
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fromYAML.Report, fromJSON.Report); diff != "" {
		t.Errorf("YAML and JSON exports disagree (-yaml +json):\n%s", diff)
	}

	if _, err := s.ExportJSON(ctx, "missing"); err == nil {
		t.Error("expected error exporting unknown thread")
	}
}

func mustSave(t *testing.T, s *Store, threadID string, r *types.Report) {
	t.Helper()
	if err := s.Save(context.Background(), threadID, r); err != nil {
		t.Fatal(err)
	}
}
