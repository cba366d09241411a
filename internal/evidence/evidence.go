// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evidence merges searched and user-mentioned papers into the scored
// evidence table a pipeline run draws quotes from.
package evidence

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Retriever is the search and metadata collaborator.
type Retriever interface {
	Search(ctx context.Context, query string) ([]types.EvidenceItem, error)
	Metadata(ctx context.Context, ids []string) (map[string]types.PaperMeta, error)
}

// Store gathers evidence for one run.
type Store struct {
	retriever Retriever
	logger    *zap.Logger
}

// NewStore returns a Store backed by r.
func NewStore(r Retriever, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{retriever: r, logger: logger}
}

// Gather returns mentioned papers first, in request order, followed by
// searched papers in descending relevance. The search source is skipped
// entirely when search is false. A paper present in both sources appears once,
// as MENTIONED with score 1.0, carrying whichever text is richer.
//
// Any backend error is returned as *types.RetrievalError.
func (s *Store) Gather(ctx context.Context, query string, mentioned []string, search bool) ([]types.EvidenceItem, error) {
	mentioned = dedupe(mentioned)

	var searched []types.EvidenceItem
	if search {
		var err error
		searched, err = s.retriever.Search(ctx, query)
		if err != nil {
			return nil, &types.RetrievalError{Op: "search", Err: err}
		}
	}

	var metas map[string]types.PaperMeta
	if len(mentioned) > 0 {
		var err error
		metas, err = s.retriever.Metadata(ctx, mentioned)
		if err != nil {
			return nil, &types.RetrievalError{Op: "metadata", Err: err}
		}
	}

	searchedByID := make(map[string]types.EvidenceItem, len(searched))
	for _, it := range searched {
		if _, dup := searchedByID[it.PaperID]; !dup {
			searchedByID[it.PaperID] = it
		}
	}

	items := make([]types.EvidenceItem, 0, len(mentioned)+len(searched))
	isMentioned := make(map[string]bool, len(mentioned))
	for _, id := range mentioned {
		isMentioned[id] = true
		meta, ok := metas[id]
		if !ok {
			s.logger.Warn("mentioned paper has no metadata", zap.String("paper_id", id))
		}
		item := mentionedItem(id, meta)
		if hit, ok := searchedByID[id]; ok {
			item = mergeMentioned(item, hit)
		}
		items = append(items, item)
	}

	seen := make(map[string]bool, len(searched))
	for _, it := range searched {
		if isMentioned[it.PaperID] || seen[it.PaperID] {
			continue
		}
		seen[it.PaperID] = true
		it.Origin = types.OriginSearched
		items = append(items, it)
	}

	s.logger.Info("gathered evidence",
		zap.Int("mentioned", len(mentioned)),
		zap.Int("searched", len(seen)),
		zap.Bool("search", search))
	return items, nil
}

// mentionedItem builds the evidence for a paper the user named. Its quotable
// text is the abstract, which is thinner than searched snippets.
func mentionedItem(id string, meta types.PaperMeta) types.EvidenceItem {
	meta.PaperID = id
	text := strings.TrimSpace(meta.Abstract)
	if text == "" {
		text = meta.Title
	}
	return types.EvidenceItem{
		PaperID:        id,
		Text:           text,
		RelevanceScore: types.MentionedScore,
		Origin:         types.OriginMentioned,
		Meta:           meta,
	}
}

// mergeMentioned folds a searched hit for the same paper into the mentioned
// item. Origin and score stay MENTIONED/1.0.
func mergeMentioned(m, hit types.EvidenceItem) types.EvidenceItem {
	if len(hit.Snippets) > 0 || len(hit.Text) > len(m.Text) {
		m.Text = hit.Text
		m.Snippets = append([]string(nil), hit.Snippets...)
	}
	if m.Meta.Title == "" {
		m.Meta.Title = hit.Meta.Title
	}
	if len(m.Meta.Authors) == 0 {
		m.Meta.Authors = hit.Meta.Authors
	}
	if m.Meta.Year == 0 {
		m.Meta.Year = hit.Meta.Year
	}
	if m.Meta.CitationCount == 0 {
		m.Meta.CitationCount = hit.Meta.CitationCount
	}
	return m
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
