// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/pkg/types"
)

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"nil map", nil, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{
			"multi-word ordered",
			map[string][]int{"We": {0}, "propose": {1}, "a": {2}, "new": {3}, "method": {4}},
			"We propose a new method",
		},
		{
			"repeated word",
			map[string][]int{"the": {0, 4}, "cat": {1}, "sat": {2}, "on": {3}, "mat": {5}},
			"the cat sat on the mat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconstructAbstract(tt.index); got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

const sampleOpenAlexJSON = `{
  "meta": {"count": 3, "per_page": 20, "page": 1},
  "results": [
    {
      "id": "https://openalex.org/W2741809807",
      "title": "Attention Is All You Need",
      "publication_year": 2017,
      "cited_by_count": 90000,
      "authorships": [
        {"author": {"display_name": "Ashish Vaswani"}},
        {"author": {"display_name": "Noam Shazeer"}}
      ],
      "abstract_inverted_index": {"We": [0], "propose": [1], "the": [2], "Transformer": [3]},
      "primary_location": {"source": {"display_name": "NeurIPS"}}
    },
    {
      "id": "https://openalex.org/W3210812345",
      "title": "No abstract here",
      "publication_year": 2018,
      "authorships": [],
      "abstract_inverted_index": {}
    },
    {
      "id": "https://openalex.org/W1",
      "title": "Third",
      "publication_year": 2020,
      "abstract_inverted_index": {"Short": [0]},
      "primary_location": null
    }
  ]
}`

func TestOpenAlexSearch(t *testing.T) {
	var captured *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		fmt.Fprint(w, sampleOpenAlexJSON)
	}))
	defer srv.Close()
	withURL(t, &openAlexSearchBase, srv)

	b := &OpenAlexBackend{Client: srv.Client(), UserAgent: "report-engine/test", Email: "dev@example.org"}
	items, err := b.Search(context.Background(), "attention", 500)
	require.NoError(t, err)

	q := captured.URL.Query()
	assert.Equal(t, "attention", q.Get("search"))
	assert.Equal(t, "200", q.Get("per_page"), "page size is capped")
	assert.Equal(t, "dev@example.org", q.Get("mailto"))
	assert.Equal(t, "report-engine/test", captured.Header.Get("User-Agent"))

	require.Len(t, items, 2, "works without an abstract are skipped")
	first := items[0]
	assert.Equal(t, "W2741809807", first.PaperID)
	assert.Equal(t, "We propose the Transformer", first.Text)
	assert.Equal(t, types.OriginSearched, first.Origin)
	assert.Equal(t, 1.0, first.RelevanceScore)
	assert.Equal(t, types.PaperMeta{
		PaperID:       "W2741809807",
		Title:         "Attention Is All You Need",
		Authors:       []string{"Ashish Vaswani", "Noam Shazeer"},
		Year:          2017,
		Abstract:      "We propose the Transformer",
		Venue:         "NeurIPS",
		CitationCount: 90000,
	}, first.Meta)

	assert.Equal(t, "W1", items[1].PaperID)
	assert.InDelta(t, 0.1, items[1].RelevanceScore, 1e-9)
	assert.Empty(t, items[1].Meta.Venue)
}

func TestOpenAlexSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	withURL(t, &openAlexSearchBase, srv)

	b := &OpenAlexBackend{Client: srv.Client()}
	_, err := b.Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
}
