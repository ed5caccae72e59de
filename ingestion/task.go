package ingestion

import (
	"context"
	"fmt"
	"strconv"

	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/tasks"
)

// TaskType is the type reported by document tasks.
const TaskType = "document_ingestion"

// Persister stores an assembled result. memory.Provider implements it.
type Persister interface {
	ImportStore(ctx context.Context, caller core.Caller, store *core.MemoryStore,
		memories []*core.Memory, references []*core.IngestionReference) (*core.MemoryStore, error)
}

// DocumentTask runs a FileProcessor on the task queue and persists its result.
// Its result string is the new store's id.
type DocumentTask struct {
	processor *FileProcessor
	persister Persister
	caller    core.Caller

	doc    *chunker.Document
	source string
	text   string
}

var _ tasks.Task = (*DocumentTask)(nil)

// NewDocumentTask ingests a paginated document on behalf of caller.
func NewDocumentTask(processor *FileProcessor, persister Persister, caller core.Caller, doc chunker.Document) (*DocumentTask, error) {
	if err := checkTaskDeps(processor, persister); err != nil {
		return nil, err
	}
	return &DocumentTask{processor: processor, persister: persister, caller: caller, doc: &doc, source: doc.Source}, nil
}

// NewTextTask ingests flat text on behalf of caller.
func NewTextTask(processor *FileProcessor, persister Persister, caller core.Caller, source, text string) (*DocumentTask, error) {
	if err := checkTaskDeps(processor, persister); err != nil {
		return nil, err
	}
	return &DocumentTask{processor: processor, persister: persister, caller: caller, source: source, text: text}, nil
}

func checkTaskDeps(processor *FileProcessor, persister Persister) error {
	if processor == nil {
		return fmt.Errorf("file processor required")
	}
	if persister == nil {
		return ErrPersisterRequired
	}
	return nil
}

func (t *DocumentTask) Type() string { return TaskType }

// Run processes the document, forwarding progress to r, then persists the result.
func (t *DocumentTask) Run(ctx context.Context, r tasks.Reporter) (string, error) {
	t.processor.setObserver(r.Report)

	var result *Result
	var err error
	if t.doc != nil {
		result, err = t.processor.Process(ctx, *t.doc)
	} else {
		result, err = t.processor.ProcessText(ctx, t.source, t.text)
	}
	if err != nil {
		return "", err
	}

	r.Report("saving memories", t.processor.Progress())
	store, err := t.persister.ImportStore(ctx, t.caller, result.Store, result.Memories, result.References)
	if err != nil {
		return "", fmt.Errorf("failed to persist %s: %w", t.source, err)
	}
	return strconv.FormatUint(uint64(store.Id), 10), nil
}
