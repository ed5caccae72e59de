// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
)

const (
	// DefaultMinTokens is the smallest chunk the chunker cuts before the last one.
	DefaultMinTokens = 900
	// DefaultMaxTokens caps a chunk's base content.
	DefaultMaxTokens = 2100
	// DefaultOverlapTokens is the context borrowed from each neighbouring chunk.
	DefaultOverlapTokens = 150
	// DefaultStoreTokenCeiling bounds the descriptions sent when naming the store.
	DefaultStoreTokenCeiling = 6000
	// DefaultPoolSize is the number of concurrent completion calls.
	DefaultPoolSize = 16

	chunkedProgress   = 0.1
	describedProgress = 0.55
)

// Result is the store assembled from one document. Nothing in it has been persisted;
// store and memory ids are unassigned.
type Result struct {
	Store      *core.MemoryStore
	Memories   []*core.Memory
	References []*core.IngestionReference
}

// note is one summary extracted from a chunk.
type note struct {
	identifier  string
	summary     string
	description string
	ref         *core.IngestionReference
}

type memoEntry struct {
	once  sync.Once
	value string
}

// FileProcessor converts one document into a Result. It is single use: Process or
// ProcessText may be called once. Status getters are safe to call concurrently.
type FileProcessor struct {
	completer         ai.Completer
	chunker           *chunker.Chunker
	poolSize          int
	minTokens         int
	maxTokens         int
	overlapTokens     int
	storeTokenCeiling int
	observer          func(message string, progress float64)
	logger            *slog.Logger
	now               func() time.Time

	used atomic.Bool

	mu         sync.RWMutex
	message    string
	progress   float64
	completed  bool
	result     *Result
	references []*core.IngestionReference

	memoMu       sync.Mutex
	descriptions map[string]*memoEntry
}

// Option configures a FileProcessor.
type Option func(*FileProcessor) error

// WithPoolSize caps concurrent completion calls. Default is 16.
func WithPoolSize(size int) Option {
	return func(p *FileProcessor) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithChunkBounds sets the token bounds passed to the chunker.
func WithChunkBounds(minTokens, maxTokens, overlapTokens int) Option {
	return func(p *FileProcessor) error {
		if minTokens <= 0 || maxTokens < minTokens || overlapTokens < 0 {
			return fmt.Errorf("%w: min=%d max=%d overlap=%d", chunker.ErrInvalidBounds, minTokens, maxTokens, overlapTokens)
		}
		p.minTokens, p.maxTokens, p.overlapTokens = minTokens, maxTokens, overlapTokens
		return nil
	}
}

// WithStoreTokenCeiling limits the descriptions sent when naming the store.
func WithStoreTokenCeiling(tokens int) Option {
	return func(p *FileProcessor) error {
		if tokens < 1 {
			return fmt.Errorf("store token ceiling must be positive, got %d", tokens)
		}
		p.storeTokenCeiling = tokens
		return nil
	}
}

// WithObserver registers a function called on every status change.
func WithObserver(fn func(message string, progress float64)) Option {
	return func(p *FileProcessor) error {
		p.observer = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *FileProcessor) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewFileProcessor creates a processor that summarizes with completer and splits
// documents with c.
func NewFileProcessor(completer ai.Completer, c *chunker.Chunker, opts ...Option) (*FileProcessor, error) {
	if completer == nil {
		return nil, ErrCompleterRequired
	}
	if c == nil {
		return nil, ErrChunkerRequired
	}
	p := &FileProcessor{
		completer:         completer,
		chunker:           c,
		poolSize:          DefaultPoolSize,
		minTokens:         DefaultMinTokens,
		maxTokens:         DefaultMaxTokens,
		overlapTokens:     DefaultOverlapTokens,
		storeTokenCeiling: DefaultStoreTokenCeiling,
		logger:            slog.Default(),
		now:               time.Now,
		message:           "pending",
		descriptions:      make(map[string]*memoEntry),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "file-processor")
	return p, nil
}

// Process ingests a paginated document.
func (p *FileProcessor) Process(ctx context.Context, doc chunker.Document) (*Result, error) {
	return p.run(ctx, doc.Source, func() ([]*core.IngestionReference, error) {
		return p.chunker.ChunkPages(doc, p.minTokens, p.maxTokens, p.overlapTokens)
	})
}

// ProcessText ingests flat text.
func (p *FileProcessor) ProcessText(ctx context.Context, source, text string) (*Result, error) {
	return p.run(ctx, source, func() ([]*core.IngestionReference, error) {
		return p.chunker.ChunkText(source, text, p.minTokens, p.maxTokens, p.overlapTokens)
	})
}

func (p *FileProcessor) run(ctx context.Context, source string, chunk func() ([]*core.IngestionReference, error)) (*Result, error) {
	if !p.used.CompareAndSwap(false, true) {
		return nil, ErrAlreadyProcessed
	}
	logger := p.logger.With("source", source)

	p.update("chunking document", 0)
	refs, err := chunk()
	if err != nil {
		p.update("chunking failed", 0)
		return nil, fmt.Errorf("failed to chunk %s: %w", source, err)
	}
	p.mu.Lock()
	p.references = refs
	p.mu.Unlock()
	p.update(fmt.Sprintf("summarizing %d chunks", len(refs)), chunkedProgress)
	logger.Info("document chunked", "chunks", len(refs))

	notes, err := p.summarizeAll(ctx, source, refs)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	var memories []*core.Memory
	var descriptions []string
	for _, chunkNotes := range notes {
		for _, n := range chunkNotes {
			memories = append(memories, &core.Memory{
				Title:       core.Truncate(n.identifier, core.MaxTitleLength),
				Description: n.description,
				Content:     core.Truncate(n.summary, core.MaxContentLength),
				RefType:     core.RefDocument,
				Reference:   strconv.FormatUint(uint64(n.ref.Id), 10),
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			descriptions = append(descriptions, n.description)
		}
	}
	if len(memories) == 0 {
		p.update("no summaries extracted", 0)
		return nil, fmt.Errorf("%w: %s", ErrNothingExtracted, source)
	}

	p.update("describing store", 0)
	store, err := p.describeStore(ctx, source, descriptions)
	if err != nil {
		return nil, err
	}
	store.CreatedAt, store.UpdatedAt = now, now

	result := &Result{Store: store, Memories: memories, References: refs}
	p.mu.Lock()
	p.result = result
	p.completed = true
	p.mu.Unlock()
	p.update(fmt.Sprintf("extracted %d memories", len(memories)), 1)
	logger.Info("document processed", "memories", len(memories), "store", store.Title)
	return result, nil
}

// summarizeAll summarizes every chunk, then describes every summary, both on one
// bounded pool. Results keep chunk order. A chunk that fails yields no notes.
// Once ctx is done no further work is started; work already running finishes.
func (p *FileProcessor) summarizeAll(ctx context.Context, source string, refs []*core.IngestionReference) ([][]note, error) {
	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	total := len(refs)
	notes := make([][]note, total)
	var finished atomic.Int64
	var wg sync.WaitGroup
	for i, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			notes[i] = p.summarizeChunk(ctx, source, ref)
			n := finished.Add(1)
			p.update(fmt.Sprintf("summarized %d of %d chunks", n, total),
				chunkedProgress+(describedProgress-chunkedProgress)*float64(n)/float64(total))
		})
		if err != nil {
			wg.Done()
			p.logger.Error("failed to submit chunk", "chunk", i, "err", err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		p.update("cancelled", 0)
		return nil, err
	}

	var pending []*note
	for i := range notes {
		for j := range notes[i] {
			pending = append(pending, &notes[i][j])
		}
	}
	finished.Store(0)
	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			n.description = p.describe(ctx, n.identifier, n.summary)
			done := finished.Add(1)
			p.update(fmt.Sprintf("described %d of %d summaries", done, len(pending)),
				describedProgress+(1-describedProgress)*float64(done)/float64(len(pending)))
		})
		if err != nil {
			wg.Done()
			p.logger.Error("failed to submit description", "identifier", n.identifier, "err", err)
			n.description = core.Truncate(n.summary, core.MaxDescriptionLength)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		p.update("cancelled", 0)
		return nil, err
	}
	return notes, nil
}

// summarizeChunk returns the chunk's notes without descriptions.
func (p *FileProcessor) summarizeChunk(ctx context.Context, source string, ref *core.IngestionReference) []note {
	var raw json.RawMessage
	if err := p.completer.CompleteJSON(ctx, summarizeSystemPrompt, summarizeUserPrompt(source, ref), &raw); err != nil {
		p.logger.Warn("chunk summarization failed", "ref", ref.Id, "err", err)
		return nil
	}
	items, dropped, err := parseSummaries(raw)
	if err != nil {
		p.logger.Warn("dropping unparseable chunk summaries", "ref", ref.Id, "err", err)
		return nil
	}
	for _, err := range dropped {
		p.logger.Warn("dropping malformed summary", "ref", ref.Id, "err", err)
	}

	notes := make([]note, 0, len(items))
	for _, item := range items {
		identifier := strings.TrimSpace(item.Identifier)
		summary := strings.TrimSpace(item.Summary)
		if identifier == "" || summary == "" {
			p.logger.Warn("dropping incomplete summary", "ref", ref.Id, "identifier", identifier)
			continue
		}
		notes = append(notes, note{identifier: identifier, summary: summary, ref: ref})
	}
	return notes
}

// describe returns the description for identifier, generating it at most once per run.
func (p *FileProcessor) describe(ctx context.Context, identifier, summary string) string {
	p.memoMu.Lock()
	entry, ok := p.descriptions[identifier]
	if !ok {
		entry = &memoEntry{}
		p.descriptions[identifier] = entry
	}
	p.memoMu.Unlock()

	entry.once.Do(func() {
		entry.value = p.generateDescription(ctx, identifier, summary)
	})
	return entry.value
}

// generateDescription never returns an empty string; it falls back to the summary.
func (p *FileProcessor) generateDescription(ctx context.Context, identifier, summary string) string {
	reply, err := p.completer.Complete(ctx, describeSystemPrompt, describeUserPrompt(identifier, summary))
	if err != nil {
		p.logger.Warn("description failed, using summary", "identifier", identifier, "err", err)
		return core.Truncate(summary, core.MaxDescriptionLength)
	}
	desc := strings.Trim(strings.TrimSpace(reply), `"`)
	if desc == "" {
		return core.Truncate(summary, core.MaxDescriptionLength)
	}
	return core.Truncate(desc, core.MaxDescriptionLength)
}

func (p *FileProcessor) describeStore(ctx context.Context, source string, descriptions []string) (*core.MemoryStore, error) {
	seen := make(map[string]bool, len(descriptions))
	unique := make([]string, 0, len(descriptions))
	for _, d := range descriptions {
		if !seen[d] {
			seen[d] = true
			unique = append(unique, "- "+d)
		}
	}
	text := chunker.Truncate(p.chunker.Tokenizer(), strings.Join(unique, "\n"), p.storeTokenCeiling)

	var summary storeSummary
	err := p.completer.CompleteJSON(ctx, storeSystemPrompt, "Notes:\n"+text, &summary)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("store description failed, using fallback", "err", err)
	}

	title := strings.TrimSpace(summary.Title)
	if title == "" {
		title = source
	}
	description := strings.TrimSpace(summary.Description)
	if description == "" {
		description = strings.TrimPrefix(unique[0], "- ")
	}
	return &core.MemoryStore{
		Title:       core.Truncate(title, core.MaxTitleLength),
		Description: core.Truncate(description, core.MaxDescriptionLength),
	}, nil
}

// update records a status change. Progress never decreases.
func (p *FileProcessor) update(message string, progress float64) {
	p.mu.Lock()
	p.message = message
	if progress > p.progress {
		p.progress = progress
	}
	current := p.progress
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(message, current)
	}
}

func (p *FileProcessor) setObserver(fn func(message string, progress float64)) {
	p.mu.Lock()
	p.observer = fn
	p.mu.Unlock()
}

// Message returns the latest status message.
func (p *FileProcessor) Message() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.message
}

// Progress returns a value between 0 and 1.
func (p *FileProcessor) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progress
}

// Completed reports whether processing finished successfully.
func (p *FileProcessor) Completed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.completed
}

// Result returns the assembled store, or nil before completion.
func (p *FileProcessor) Result() *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// References returns the chunk references once chunking has run.
func (p *FileProcessor) References() []*core.IngestionReference {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.references
}
