// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search retrieves ranked evidence passages and paper metadata from
// the Semantic Scholar corpus, optionally joined by OpenAlex abstracts.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Backend searches one retrieval endpoint.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]types.EvidenceItem, error)
}

// MetadataSource looks up bibliographic metadata by paper id.
type MetadataSource interface {
	Metadata(ctx context.Context, ids []string) (map[string]types.PaperMeta, error)
}

const (
	defaultMaxResults       = 20
	defaultSnippetsPerPaper = 5
)

// Retriever fans a query out to its backends, merges hits per paper, and
// returns items ranked by relevance.
type Retriever struct {
	backends []Backend
	meta     MetadataSource
	cfg      types.SearchConfig
	logger   *zap.Logger
}

// NewRetriever builds a Retriever. Search enriches hits with metadata from
// meta when backends return incomplete records.
func NewRetriever(backends []Backend, meta MetadataSource, cfg types.SearchConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.SnippetsPerPaper <= 0 {
		cfg.SnippetsPerPaper = defaultSnippetsPerPaper
	}
	return &Retriever{backends: backends, meta: meta, cfg: cfg, logger: logger}
}

// NewSemanticScholarRetriever wires the snippet backend, plus the paper
// and OpenAlex backends when enabled. Metadata always comes from Semantic
// Scholar.
func NewSemanticScholarRetriever(cfg types.SearchConfig, logger *zap.Logger) *Retriever {
	ss := NewSemanticScholar(cfg)
	backends := []Backend{&SnippetBackend{ss}}
	if cfg.EnablePaperSearch {
		backends = append(backends, &PaperBackend{ss})
	}
	if cfg.EnableOpenAlex {
		backends = append(backends, NewOpenAlexBackend(cfg))
	}
	return NewRetriever(backends, ss, cfg, logger)
}

// Search runs the query against every backend concurrently. Any backend
// failure fails the search.
func (r *Retriever) Search(ctx context.Context, query string) ([]types.EvidenceItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if len(r.backends) == 0 {
		return nil, fmt.Errorf("no search backends configured")
	}

	// Snippet endpoints return several passages per paper, so over-fetch.
	limit := r.cfg.MaxResults * r.cfg.SnippetsPerPaper

	results := make([][]types.EvidenceItem, len(r.backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range r.backends {
		i, b := i, b
		g.Go(func() error {
			items, err := b.Search(gctx, query, limit)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name(), err)
			}
			r.logger.Debug("backend returned", zap.String("backend", b.Name()), zap.Int("hits", len(items)))
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []types.EvidenceItem
	for _, items := range results {
		all = append(all, items...)
	}
	merged := mergeByPaper(all, r.cfg.SnippetsPerPaper)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})
	if len(merged) > r.cfg.MaxResults {
		merged = merged[:r.cfg.MaxResults]
	}

	if err := r.enrich(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Metadata delegates to the configured metadata source.
func (r *Retriever) Metadata(ctx context.Context, ids []string) (map[string]types.PaperMeta, error) {
	if r.meta == nil {
		return nil, fmt.Errorf("no metadata source configured")
	}
	return r.meta.Metadata(ctx, ids)
}

// enrich fills year and citation count for items whose backend did not
// return them. Snippet hits carry title and authors only. Only numeric
// corpus ids can be looked up.
func (r *Retriever) enrich(ctx context.Context, items []types.EvidenceItem) error {
	if r.meta == nil {
		return nil
	}
	var missing []string
	for _, it := range items {
		if it.Meta.Year == 0 && isCorpusID(it.PaperID) {
			missing = append(missing, it.PaperID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	metas, err := r.meta.Metadata(ctx, missing)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	for i := range items {
		if m, ok := metas[items[i].PaperID]; ok {
			mergeMeta(&items[i].Meta, m)
		}
	}
	return nil
}

// mergeByPaper collapses hits that share a paper id. Snippets are kept in
// rank order up to perPaper; the best score wins.
func mergeByPaper(items []types.EvidenceItem, perPaper int) []types.EvidenceItem {
	seen := make(map[string]int)
	var out []types.EvidenceItem
	for _, it := range items {
		idx, ok := seen[it.PaperID]
		if !ok {
			seen[it.PaperID] = len(out)
			it.Snippets = appendSnippets(nil, it.Snippets, perPaper)
			out = append(out, it)
			continue
		}
		dst := &out[idx]
		dst.Snippets = appendSnippets(dst.Snippets, it.Snippets, perPaper)
		if it.RelevanceScore > dst.RelevanceScore {
			dst.RelevanceScore = it.RelevanceScore
		}
		mergeMeta(&dst.Meta, it.Meta)
		if len(dst.Snippets) == 0 && dst.Text == "" {
			dst.Text = it.Text
		}
	}
	for i := range out {
		if len(out[i].Snippets) > 0 {
			out[i].Text = strings.Join(out[i].Snippets, "\n\n")
		}
	}
	return out
}

// appendSnippets adds the passages of src not already in dst until dst holds
// perPaper of them.
func appendSnippets(dst, src []string, perPaper int) []string {
	for _, s := range src {
		if len(dst) >= perPaper {
			break
		}
		if !contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

// mergeMeta fills empty fields of dst from src.
func mergeMeta(dst *types.PaperMeta, src types.PaperMeta) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if dst.Abstract == "" {
		dst.Abstract = src.Abstract
	}
	if dst.Venue == "" {
		dst.Venue = src.Venue
	}
	if dst.CitationCount == 0 {
		dst.CitationCount = src.CitationCount
	}
}

func isCorpusID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
