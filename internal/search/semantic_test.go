// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/httputil"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// withURL points *target at srv for the duration of the test.
func withURL(t *testing.T, target *string, srv *httptest.Server) {
	t.Helper()
	old := *target
	*target = srv.URL
	t.Cleanup(func() { *target = old })
}

func TestSnippetSearchRequestAndParse(t *testing.T) {
	var captured *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		fmt.Fprint(w, `{"data":[
			{"score":0.9,"snippet":{"text":"  Attention is all you need.  "},"paper":{"corpusId":"13756489","title":"Attention","authors":["Ashish Vaswani","Noam Shazeer"]}},
			{"score":0.4,"snippet":{"text":"Second passage"},"paper":{"corpusId":42,"title":"Other","authors":[{"name":"Jane Doe"}]}},
			{"score":0.3,"snippet":{"text":""},"paper":{"corpusId":"7"}}
		]}`)
	}))
	defer srv.Close()
	withURL(t, &snippetAPIURL, srv)

	b := &SnippetBackend{&SemanticScholar{Client: srv.Client(), APIKey: "k", UserAgent: "report-engine/test"}}
	items, err := b.Search(context.Background(), "transformers", 25)
	require.NoError(t, err)

	q := captured.URL.Query()
	assert.Equal(t, "transformers", q.Get("query"))
	assert.Equal(t, "25", q.Get("limit"))
	assert.Equal(t, "k", captured.Header.Get("x-api-key"))
	assert.Equal(t, "report-engine/test", captured.Header.Get("User-Agent"))

	require.Len(t, items, 2, "empty snippets are skipped")
	assert.Equal(t, "13756489", items[0].PaperID)
	assert.Equal(t, "Attention is all you need.", items[0].Text)
	assert.Equal(t, []string{"Attention is all you need."}, items[0].Snippets)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, items[0].Meta.Authors)
	assert.Equal(t, "42", items[1].PaperID)
	assert.Equal(t, []string{"Jane Doe"}, items[1].Meta.Authors)
}

func TestPaperSearchPositionScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("fields"), "citationCount")
		fmt.Fprint(w, `{"total":3,"data":[
			{"corpusId":1,"title":"A","abstract":"First abstract","year":2020,"citationCount":10},
			{"corpusId":2,"title":"B","abstract":"","year":2021},
			{"corpusId":3,"title":"C","abstract":"Third abstract","year":2022}
		]}`)
	}))
	defer srv.Close()
	withURL(t, &paperAPIURL, srv)

	b := &PaperBackend{&SemanticScholar{Client: srv.Client()}}
	items, err := b.Search(context.Background(), "q", 3)
	require.NoError(t, err)

	require.Len(t, items, 2, "papers without an abstract are skipped")
	assert.Equal(t, "1", items[0].PaperID)
	assert.InDelta(t, 1.0, items[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.1, items[1].RelevanceScore, 1e-9)
	assert.Equal(t, 10, items[0].Meta.CitationCount)
	assert.Equal(t, "First abstract", items[0].Text)
}

func TestMetadataBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []string{"CorpusId:1", "CorpusId:999"}, req.IDs)
		fmt.Fprint(w, `[{"corpusId":1,"title":"Known","authors":[{"authorId":"a1","name":"Ada Lovelace"}],"year":1843,"citationCount":5},null]`)
	}))
	defer srv.Close()
	withURL(t, &batchAPIURL, srv)

	ss := &SemanticScholar{Client: srv.Client()}
	got, err := ss.Metadata(context.Background(), []string{"1", "999"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Known", got["1"].Title)
	assert.Equal(t, 1843, got["1"].Year)
	assert.Equal(t, []string{"Ada Lovelace"}, got["1"].Authors)
}

func TestMetadataEmptyMakesNoRequest(t *testing.T) {
	ss := &SemanticScholar{Client: &http.Client{Transport: failTransport{t}}}
	got, err := ss.Metadata(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSemanticScholarHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	withURL(t, &snippetAPIURL, srv)

	b := &SnippetBackend{&SemanticScholar{Client: srv.Client()}}
	_, err := b.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSemanticScholarRetriesRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()
	withURL(t, &snippetAPIURL, srv)

	b := &SnippetBackend{&SemanticScholar{Client: srv.Client()}}
	_, err := b.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

type failTransport struct{ t *testing.T }

func (f failTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.t.Fatal("unexpected HTTP request")
	return nil, nil
}
