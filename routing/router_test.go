package routing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingID = regexp.MustCompile(`(?m)^(\d+) \|`)

// listedIDs returns the store ids shown in a ranking prompt.
func listedIDs(prompt string) []core.ID {
	var ids []core.ID
	for _, m := range listingID.FindAllStringSubmatch(prompt, -1) {
		id, _ := strconv.ParseUint(m[1], 10, 64)
		ids = append(ids, core.ID(id))
	}
	return ids
}

func listings(n int) []*StoreListing {
	out := make([]*StoreListing, n)
	for i := range out {
		id := core.ID(i + 1)
		out[i] = &StoreListing{
			Store: &core.MemoryStore{Id: id, Title: fmt.Sprintf("store %d", id), Description: "about things"},
			Tags:  []string{"tag"},
		}
	}
	return out
}

// weightByID replies with weight = id*10 for every listed store.
func weightByID(ctx context.Context, call mock.Call) (string, error) {
	var ws []Weight
	for _, id := range listedIDs(call.User) {
		ws = append(ws, Weight{ID: id, Weight: float64(id) * 10})
	}
	return FormatWeights(ws...), nil
}

func newTestRouter(t *testing.T, completer *mock.MockCompleter, opts ...Option) *Router {
	t.Helper()
	r, err := NewRouter(completer, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestRankStoresEmpty(t *testing.T) {
	completer := mock.NewMockCompleter()
	r := newTestRouter(t, completer)

	results, err := r.RankStores(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, completer.CallCount())
}

func TestRankStoresBatchesAndSorts(t *testing.T) {
	completer := mock.NewMockCompleter().WithRespondFunc(weightByID)
	r := newTestRouter(t, completer)

	results, err := r.RankStores(context.Background(), "query", listings(7))
	require.NoError(t, err)
	assert.Equal(t, 3, completer.CallCount(), "7 stores in batches of 3")

	require.Len(t, results, 7)
	for i, res := range results {
		assert.Equal(t, core.ID(7-i), res.StoreId)
	}

	for _, call := range completer.Calls() {
		assert.LessOrEqual(t, len(listedIDs(call.User)), DefaultBatchSize)
		assert.Contains(t, call.User, "query")
		assert.False(t, call.JSON)
	}
}

func TestRankStoresOnlyReturnsCandidates(t *testing.T) {
	completer := mock.NewMockCompleter().WithRespondFunc(func(ctx context.Context, call mock.Call) (string, error) {
		reply, _ := weightByID(ctx, call)
		return reply + "%999__100%", nil
	})
	r := newTestRouter(t, completer, WithBatchSize(2))

	candidates := listings(5)
	results, err := r.RankStores(context.Background(), "q", candidates)
	require.NoError(t, err)

	valid := map[core.ID]bool{}
	for _, c := range candidates {
		valid[c.Store.Id] = true
	}
	require.Len(t, results, 5)
	for _, res := range results {
		assert.True(t, valid[res.StoreId], "unexpected store %d", res.StoreId)
	}
}

func TestRankStoresIsolatesFailedBatches(t *testing.T) {
	completer := mock.NewMockCompleter().WithRespondFunc(func(ctx context.Context, call mock.Call) (string, error) {
		ids := listedIDs(call.User)
		for _, id := range ids {
			if id == 4 {
				return "", errors.New("model overloaded")
			}
		}
		return weightByID(ctx, call)
	})
	r := newTestRouter(t, completer)

	results, err := r.RankStores(context.Background(), "q", listings(6))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.LessOrEqual(t, res.StoreId, core.ID(3))
	}
}

func TestRankStoresTiesBrokenByID(t *testing.T) {
	completer := mock.NewMockCompleter().WithRespondFunc(func(ctx context.Context, call mock.Call) (string, error) {
		var ws []Weight
		for _, id := range listedIDs(call.User) {
			ws = append(ws, Weight{ID: id, Weight: 50})
		}
		return FormatWeights(ws...), nil
	})
	r := newTestRouter(t, completer, WithBatchSize(1))

	results, err := r.RankStores(context.Background(), "q", listings(4))
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, core.ID(i+1), res.StoreId)
	}
}

func TestRankStoresBoundedParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	completer := mock.NewMockCompleter().WithRespondFunc(func(ctx context.Context, call mock.Call) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return weightByID(ctx, call)
	})
	r := newTestRouter(t, completer, WithBatchSize(1), WithPoolSize(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.RankStores(context.Background(), "q", listings(6))
	}()
	for i := 0; i < 6; i++ {
		release <- struct{}{}
	}
	<-done
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRankStoresCancelled(t *testing.T) {
	completer := mock.NewMockCompleter().WithRespondFunc(weightByID)
	r := newTestRouter(t, completer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RankStores(ctx, "q", listings(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteMemory(t *testing.T) {
	completer := mock.NewMockCompleter().WithRespondFunc(weightByID)
	r := newTestRouter(t, completer)
	memory := &core.Memory{Title: "note", Description: "a thing to file", Content: "content body"}

	best, err := r.RouteMemory(context.Background(), memory, listings(5))
	require.NoError(t, err)
	assert.Equal(t, core.ID(5), best.StoreId)
	assert.Equal(t, 50.0, best.Relevance)

	calls := completer.Calls()
	require.NotEmpty(t, calls)
	assert.True(t, strings.Contains(calls[0].User, "a thing to file"))
}

func TestRouteMemoryNoRoute(t *testing.T) {
	memory := &core.Memory{Description: "d"}

	r := newTestRouter(t, mock.NewMockCompleter())
	_, err := r.RouteMemory(context.Background(), memory, nil)
	assert.ErrorIs(t, err, ErrNoRoute)

	// A model that returns nothing usable is also a routing failure.
	silent := mock.NewMockCompleter()
	silent.DefaultReply = "I cannot help with that."
	r = newTestRouter(t, silent)
	_, err = r.RouteMemory(context.Background(), memory, listings(3))
	assert.ErrorIs(t, err, ErrNoRoute)

	zeros := mock.NewMockCompleter()
	zeros.DefaultReply = "1__0%2__0%3__0"
	r = newTestRouter(t, zeros)
	_, err = r.RouteMemory(context.Background(), memory, listings(3))
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestNewRouterValidation(t *testing.T) {
	_, err := NewRouter(nil)
	assert.ErrorIs(t, err, ErrCompleterRequired)

	_, err = NewRouter(mock.NewMockCompleter(), WithBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}
