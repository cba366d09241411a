// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evidence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/report-engine/pkg/types"
)

type fakeRetriever struct {
	hits        []types.EvidenceItem
	metas       map[string]types.PaperMeta
	searchErr   error
	metaErr     error
	searchCalls int
	metaCalls   int
}

func (f *fakeRetriever) Search(_ context.Context, _ string) ([]types.EvidenceItem, error) {
	f.searchCalls++
	return f.hits, f.searchErr
}

func (f *fakeRetriever) Metadata(_ context.Context, ids []string) (map[string]types.PaperMeta, error) {
	f.metaCalls++
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	out := make(map[string]types.PaperMeta)
	for _, id := range ids {
		if m, ok := f.metas[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func hit(id string, score float64, snippets ...string) types.EvidenceItem {
	text := ""
	if len(snippets) > 0 {
		text = snippets[0]
	}
	return types.EvidenceItem{
		PaperID: id, Text: text, Snippets: snippets, RelevanceScore: score,
		Origin: types.OriginSearched, Meta: types.PaperMeta{PaperID: id, Title: "T" + id},
	}
}

func TestGatherMentionedNeverDropped(t *testing.T) {
	r := &fakeRetriever{
		hits: []types.EvidenceItem{hit("333", 0.9, "s333"), hit("222", 0.1, "long snippet about 222")},
		metas: map[string]types.PaperMeta{
			"111": {Title: "One", Abstract: "abstract 111", Year: 2020},
			"222": {Title: "Two", Abstract: "abs", Year: 2021},
		},
	}
	s := NewStore(r, zaptest.NewLogger(t))

	items, err := s.Gather(context.Background(), "q", []string{"111", "222", "111"}, true)
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, "111", items[0].PaperID)
	assert.Equal(t, "222", items[1].PaperID)
	assert.Equal(t, "333", items[2].PaperID)

	for _, it := range items[:2] {
		assert.Equal(t, types.OriginMentioned, it.Origin)
		assert.Equal(t, types.MentionedScore, it.RelevanceScore)
	}
	assert.Equal(t, "abstract 111", items[0].Text)
	assert.Equal(t, "long snippet about 222", items[1].Text, "richer searched text wins")
	assert.Equal(t, []string{"long snippet about 222"}, items[1].Snippets)
	assert.Equal(t, 2021, items[1].Meta.Year)
	assert.Equal(t, types.OriginSearched, items[2].Origin)
}

func TestGatherWithoutSearchIssuesNoSearch(t *testing.T) {
	r := &fakeRetriever{metas: map[string]types.PaperMeta{"111": {Abstract: "a"}}}
	s := NewStore(r, nil)

	items, err := s.Gather(context.Background(), "", []string{"111"}, false)
	require.NoError(t, err)
	assert.Zero(t, r.searchCalls)
	assert.Equal(t, 1, r.metaCalls)
	require.Len(t, items, 1)
	assert.Equal(t, types.OriginMentioned, items[0].Origin)
}

func TestGatherNoMentionedSkipsMetadata(t *testing.T) {
	r := &fakeRetriever{hits: []types.EvidenceItem{hit("1", 0.5, "x")}}
	items, err := NewStore(r, nil).Gather(context.Background(), "q", nil, true)
	require.NoError(t, err)
	assert.Zero(t, r.metaCalls)
	assert.Len(t, items, 1)
}

func TestGatherMentionedWithoutMetadataStillPresent(t *testing.T) {
	r := &fakeRetriever{metas: map[string]types.PaperMeta{}}
	items, err := NewStore(r, zaptest.NewLogger(t)).Gather(context.Background(), "", []string{"404"}, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "404", items[0].PaperID)
	assert.Equal(t, "404", items[0].Meta.PaperID)
	assert.Equal(t, types.OriginMentioned, items[0].Origin)
}

func TestGatherErrorsAreRetrievalErrors(t *testing.T) {
	tests := []struct {
		name   string
		r      *fakeRetriever
		wantOp string
	}{
		{"search", &fakeRetriever{searchErr: errors.New("down")}, "search"},
		{"metadata", &fakeRetriever{metaErr: errors.New("down")}, "metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := NewStore(tt.r, nil).Gather(context.Background(), "q", []string{"1"}, true)
			assert.Nil(t, items)
			var re *types.RetrievalError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.wantOp, re.Op)
		})
	}
}

func TestGatherDedupesSearchedHits(t *testing.T) {
	r := &fakeRetriever{hits: []types.EvidenceItem{hit("1", 0.9, "a"), hit("1", 0.3, "b")}}
	items, err := NewStore(r, nil).Gather(context.Background(), "q", nil, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Text)
}
