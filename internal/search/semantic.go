// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Semantic Scholar endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	snippetAPIURL = "https://api.semanticscholar.org/graph/v1/snippet/search"
	paperAPIURL   = "https://api.semanticscholar.org/graph/v1/paper/search"
	batchAPIURL   = "https://api.semanticscholar.org/graph/v1/paper/batch"
)

const metadataFields = "corpusId,title,authors,year,abstract,venue,citationCount"

// SemanticScholar holds the HTTP settings shared by the Semantic Scholar
// backends and the batch metadata lookup.
type SemanticScholar struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// NewSemanticScholar builds a client from search configuration.
func NewSemanticScholar(cfg types.SearchConfig) *SemanticScholar {
	return &SemanticScholar{
		Client:    &http.Client{Timeout: cfg.Timeout},
		APIKey:    cfg.SemanticScholarAPIKey,
		UserAgent: cfg.UserAgent,
	}
}

func (s *SemanticScholar) newRequest(ctx context.Context, method, u string, body []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	if s.APIKey != "" {
		req.Header.Set("x-api-key", s.APIKey)
	}
	return req, nil
}

func (s *SemanticScholar) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 0)
	if err != nil {
		return fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}
	return nil
}

// SnippetBackend retrieves ranked full-text passages.
type SnippetBackend struct {
	*SemanticScholar
}

// Name returns the backend identifier.
func (b *SnippetBackend) Name() string { return "snippets" }

// Search returns one EvidenceItem per matching passage. Items for the same
// paper are merged by the Retriever.
func (b *SnippetBackend) Search(ctx context.Context, query string, limit int) ([]types.EvidenceItem, error) {
	params := url.Values{
		"query": {query},
		"limit": {strconv.Itoa(limit)},
	}
	req, err := b.newRequest(ctx, http.MethodGet, snippetAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var sr snippetResponse
	if err := b.do(ctx, req, &sr); err != nil {
		return nil, err
	}

	var items []types.EvidenceItem
	for _, hit := range sr.Data {
		id := string(hit.Paper.CorpusID)
		text := strings.TrimSpace(hit.Snippet.Text)
		if id == "" || text == "" {
			continue
		}
		items = append(items, types.EvidenceItem{
			PaperID:        id,
			Text:           text,
			Snippets:       []string{text},
			RelevanceScore: hit.Score,
			Origin:         types.OriginSearched,
			Meta: types.PaperMeta{
				PaperID: id,
				Title:   hit.Paper.Title,
				Authors: []string(hit.Paper.Authors),
			},
		})
	}
	return items, nil
}

// PaperBackend retrieves papers by keyword relevance and quotes their abstracts.
type PaperBackend struct {
	*SemanticScholar
}

// Name returns the backend identifier.
func (b *PaperBackend) Name() string { return "papers" }

// Search returns one EvidenceItem per paper with an abstract. Scores are
// position-based since the endpoint does not return one.
func (b *PaperBackend) Search(ctx context.Context, query string, limit int) ([]types.EvidenceItem, error) {
	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {metadataFields},
	}
	req, err := b.newRequest(ctx, http.MethodGet, paperAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var pr paperSearchResponse
	if err := b.do(ctx, req, &pr); err != nil {
		return nil, err
	}

	total := len(pr.Data)
	var items []types.EvidenceItem
	for i, p := range pr.Data {
		meta := p.meta()
		if meta.PaperID == "" || strings.TrimSpace(meta.Abstract) == "" {
			continue
		}
		score := 1.0
		if total > 1 {
			score = 1.0 - float64(i)/float64(total-1)*0.9
		}
		items = append(items, types.EvidenceItem{
			PaperID:        meta.PaperID,
			Text:           meta.Abstract,
			RelevanceScore: score,
			Origin:         types.OriginSearched,
			Meta:           meta,
		})
	}
	return items, nil
}

// Metadata looks up papers by corpus id in one batch request. Unknown ids are
// absent from the returned map.
func (s *SemanticScholar) Metadata(ctx context.Context, ids []string) (map[string]types.PaperMeta, error) {
	out := make(map[string]types.PaperMeta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "CorpusId:" + id
	}
	body, err := json.Marshal(struct {
		IDs []string `json:"ids"`
	}{IDs: keys})
	if err != nil {
		return nil, fmt.Errorf("marshaling batch request: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, batchAPIURL+"?fields="+url.QueryEscape(metadataFields), body)
	if err != nil {
		return nil, err
	}

	// The batch endpoint answers with one entry per requested id, null for
	// ids it does not know.
	var papers []*semanticPaper
	if err := s.do(ctx, req, &papers); err != nil {
		return nil, err
	}
	for _, p := range papers {
		if p == nil {
			continue
		}
		meta := p.meta()
		if meta.PaperID != "" {
			out[meta.PaperID] = meta
		}
	}
	return out, nil
}

// Semantic Scholar API JSON structures.
type snippetResponse struct {
	Data []snippetHit `json:"data"`
}

type snippetHit struct {
	Score   float64 `json:"score"`
	Snippet struct {
		Text        string `json:"text"`
		SnippetKind string `json:"snippetKind"`
		Section     string `json:"section"`
	} `json:"snippet"`
	Paper struct {
		CorpusID flexID     `json:"corpusId"`
		Title    string     `json:"title"`
		Authors  authorList `json:"authors"`
	} `json:"paper"`
}

type paperSearchResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	CorpusID      flexID     `json:"corpusId"`
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract"`
	Venue         string     `json:"venue"`
	Year          int        `json:"year"`
	CitationCount int        `json:"citationCount"`
	Authors       authorList `json:"authors"`
}

func (p semanticPaper) meta() types.PaperMeta {
	return types.PaperMeta{
		PaperID:       string(p.CorpusID),
		Title:         p.Title,
		Authors:       []string(p.Authors),
		Year:          p.Year,
		Abstract:      p.Abstract,
		Venue:         p.Venue,
		CitationCount: p.CitationCount,
	}
}

// flexID decodes an id sent as either a JSON number or a string.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("corpus id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// authorList decodes authors given either as plain names or as
// {"authorId": ..., "name": ...} objects.
type authorList []string

func (a *authorList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			names = append(names, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			return err
		}
		names = append(names, obj.Name)
	}
	*a = names
	return nil
}
