package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mu       sync.Mutex
	caller   core.Caller
	store    *core.MemoryStore
	memories []*core.Memory
	refs     []*core.IngestionReference
	err      error
}

func (r *recordingPersister) ImportStore(ctx context.Context, caller core.Caller, store *core.MemoryStore,
	memories []*core.Memory, refs []*core.IngestionReference) (*core.MemoryStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.caller, r.store, r.memories, r.refs = caller, store, memories, refs
	saved := *store
	saved.Id = 77
	return &saved, nil
}

func runOnQueue(t *testing.T, task tasks.Task) (tasks.Status, []float64) {
	t.Helper()
	var mu sync.Mutex
	var progress []float64
	q, err := tasks.New(4, tasks.WithListener(func(s tasks.Status) {
		mu.Lock()
		progress = append(progress, s.Progress)
		mu.Unlock()
	}))
	require.NoError(t, err)
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Enqueue(core.UserOwner(1), task)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := q.Wait(ctx, id)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	return status, append([]float64(nil), progress...)
}

func TestDocumentTaskPersistsResult(t *testing.T) {
	processor, err := NewFileProcessor(newScriptedCompleter(), wordChunker(t), WithChunkBounds(100, 100, 0))
	require.NoError(t, err)
	persister := &recordingPersister{}
	caller := core.Caller{UserId: 1}

	task, err := NewDocumentTask(processor, persister, caller, testDocument(3, 100))
	require.NoError(t, err)
	assert.Equal(t, TaskType, task.Type())

	status, progress := runOnQueue(t, task)
	assert.Equal(t, tasks.StateCompleted, status.State)
	assert.Equal(t, "77", status.Result)

	persister.mu.Lock()
	defer persister.mu.Unlock()
	assert.Equal(t, caller, persister.caller)
	assert.Equal(t, "Staff handbook", persister.store.Title)
	assert.Len(t, persister.memories, 6)
	assert.Len(t, persister.refs, 3)

	// Chunk progress reached the queue.
	assert.Contains(t, progress, 0.1)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestTextTaskFailures(t *testing.T) {
	processor, err := NewFileProcessor(newScriptedCompleter(), wordChunker(t))
	require.NoError(t, err)
	persister := &recordingPersister{err: errors.New("disk full")}

	task, err := NewTextTask(processor, persister, core.Caller{UserId: 1}, "note.txt", "A note. Another line.")
	require.NoError(t, err)

	status, _ := runOnQueue(t, task)
	assert.Equal(t, tasks.StateFailed, status.State)
	assert.Contains(t, status.Error, "disk full")

	_, err = NewTextTask(processor, nil, core.Caller{}, "x", "y")
	assert.ErrorIs(t, err, ErrPersisterRequired)
}
