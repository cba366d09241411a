// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

func TestDecideSearch(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		want      types.SearchDecision
		wantError bool
	}{
		{
			name:   "no search clears query",
			answer: `{"reasoning": "restructure only", "needs_search": false, "search_query": "ignored"}`,
			want:   types.SearchDecision{NeedsSearch: false, Reasoning: "restructure only"},
		},
		{
			name:   "search with query",
			answer: "<think>hmm</think>```json\n{\"reasoning\": \"new topic\", \"needs_search\": true, \"search_query\": \" graph RAG \"}\n```",
			want:   types.SearchDecision{NeedsSearch: true, SearchQuery: "graph RAG", Reasoning: "new topic"},
		},
		{
			name:   "search without query uses instruction",
			answer: `{"reasoning": "r", "needs_search": true}`,
			want:   types.SearchDecision{NeedsSearch: true, SearchQuery: "Add work on graph retrieval", Reasoning: "r"},
		},
		{
			name:      "not json",
			answer:    "I think you should search.",
			wantError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prompt string
			m := llm.ModelFunc(func(_ context.Context, r llm.Request) (llm.Completion, error) {
				prompt = r.Prompt
				assert.Equal(t, DecideStage, r.Stage)
				return llm.Completion{Content: tt.answer}, nil
			})
			ec := &types.EditContext{
				Instruction: "Add work on graph retrieval",
				Report:      currentReport(),
				Mentioned:   []string{"111"},
			}
			c := llm.NewClient(m, nil, types.AIConfig{}, zaptest.NewLogger(t))

			got, err := DecideSearch(context.Background(), c, ec, 50, zaptest.NewLogger(t))
			if tt.wantError {
				var ge *types.GenerationError
				assert.ErrorAs(t, err, &ge)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
			assert.Contains(t, prompt, "[Section 1] Methods")
			assert.Contains(t, prompt, "Add work on graph retrieval")
			assert.Contains(t, prompt, "<mentioned_papers>\n111\n</mentioned_papers>")
		})
	}
}
