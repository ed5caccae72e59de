package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredResults(scores ...float32) []*core.SearchResult {
	out := make([]*core.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = &core.SearchResult{Memory: &core.Memory{Id: core.ID(i + 1)}, Score: s}
	}
	return out
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"deploy", "friday"}, keywords("How to deploy on a Friday?"))
	assert.True(t, containsAllKeywords("We never deploy on Friday.", "deploy friday"))
	assert.False(t, containsAllKeywords("We deploy on Monday.", "deploy friday"))
	assert.False(t, containsAllKeywords("anything", "the of and"))
}

func TestKeywordReranker(t *testing.T) {
	rs := scoredResults(0.6, 0.5)
	rs[0].Memory.Content = "sourdough starter"
	rs[1].Memory.Title = "Deploy"
	rs[1].Memory.Content = "never on a Friday"

	out, err := KeywordReranker{}.Rerank(context.Background(), "deploy friday", rs)
	require.NoError(t, err)
	assert.Equal(t, core.ID(2), out[0].Memory.Id)
	assert.InDelta(t, 0.8, out[0].Score, 1e-6)
}

func TestIdentityReranker(t *testing.T) {
	rs := scoredResults(0.1, 0.9)
	out, err := IdentityReranker{}.Rerank(context.Background(), "q", rs)
	require.NoError(t, err)
	assert.Equal(t, rs, out)
}

func TestCompletionReranker(t *testing.T) {
	t.Run("orders by model weight", func(t *testing.T) {
		completer := mock.NewMockCompleter()
		completer.DefaultReply = routing.FormatWeights(
			routing.Weight{ID: 3, Weight: 90},
			routing.Weight{ID: 1, Weight: 20},
		)
		out, err := NewCompletionReranker(completer, nil).Rerank(context.Background(), "q", scoredResults(0.9, 0.8, 0.1))
		require.NoError(t, err)

		ids := []core.ID{out[0].Memory.Id, out[1].Memory.Id, out[2].Memory.Id}
		assert.Equal(t, []core.ID{3, 1, 2}, ids)
		assert.Equal(t, rerankPrompt, completer.Calls()[0].System)
	})

	t.Run("single result skips the model", func(t *testing.T) {
		completer := mock.NewMockCompleter()
		out, err := NewCompletionReranker(completer, nil).Rerank(context.Background(), "q", scoredResults(0.5))
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, 0, completer.CallCount())
	})

	t.Run("model failure", func(t *testing.T) {
		completer := mock.NewMockCompleter().WithRespondFunc(func(context.Context, mock.Call) (string, error) {
			return "", errors.New("offline")
		})
		_, err := NewCompletionReranker(completer, nil).Rerank(context.Background(), "q", scoredResults(0.5, 0.4))
		assert.Error(t, err)
	})
}
