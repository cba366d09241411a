// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

const (
	openAlexIDPrefix = "https://openalex.org/"
	openAlexMaxPage  = 200
)

// OpenAlexBackend retrieves works by relevance from OpenAlex and quotes
// their abstracts. Paper ids are OpenAlex work ids such as W2741809807.
type OpenAlexBackend struct {
	Client    *http.Client
	UserAgent string
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// NewOpenAlexBackend builds a backend from search configuration.
func NewOpenAlexBackend(cfg types.SearchConfig) *OpenAlexBackend {
	return &OpenAlexBackend{
		Client:    &http.Client{Timeout: cfg.Timeout},
		UserAgent: cfg.UserAgent,
		Email:     cfg.OpenAlexEmail,
	}
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Search returns one EvidenceItem per work with an abstract. OpenAlex sorts
// by relevance without exposing a comparable score, so scores are
// position-based.
func (b *OpenAlexBackend) Search(ctx context.Context, query string, limit int) ([]types.EvidenceItem, error) {
	if limit <= 0 || limit > openAlexMaxPage {
		limit = openAlexMaxPage
	}
	params := url.Values{
		"search":   {query},
		"per_page": {strconv.Itoa(limit)},
		"page":     {"1"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	total := len(oar.Results)
	var items []types.EvidenceItem
	for i, work := range oar.Results {
		meta := work.meta()
		if meta.PaperID == "" || meta.Abstract == "" {
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

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where it
// appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       *struct {
		Source *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

func (w openAlexWork) meta() types.PaperMeta {
	m := types.PaperMeta{
		PaperID:       strings.TrimPrefix(w.ID, openAlexIDPrefix),
		Title:         w.Title,
		Year:          w.PublicationYear,
		Abstract:      strings.TrimSpace(reconstructAbstract(w.AbstractInvertedIndex)),
		CitationCount: w.CitedByCount,
	}
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			m.Authors = append(m.Authors, a.Author.DisplayName)
		}
	}
	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		m.Venue = w.PrimaryLocation.Source.DisplayName
	}
	return m
}
