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

// Package recall wires the structured store, the vector index, the AI services
// and the task queue into one Engine.
package recall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/anthropic"
	"github.com/poiesic/recall/ai/openai"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/memory"
	"github.com/poiesic/recall/reindex"
	"github.com/poiesic/recall/routing"
	"github.com/poiesic/recall/storage/badger"
	"github.com/poiesic/recall/storage/chromem"
	"github.com/poiesic/recall/tasks"
)

type Engine struct {
	settings *config.Settings
	repo     *badger.Repository
	index    *chromem.Index
	provider ai.AIProvider
	router   *routing.Router
	memory   *memory.Provider
	chunker  *chunker.Chunker
	queue    *tasks.Queue
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	provider  ai.AIProvider
	tokenizer chunker.Tokenizer
	monitor   memory.SearchMonitor
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithAIProvider replaces the provider built from the settings.
func WithAIProvider(p ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithTokenizer replaces the default tiktoken tokenizer.
func WithTokenizer(t chunker.Tokenizer) Option {
	return func(o *engineOptions) {
		o.tokenizer = t
	}
}

// WithSearchMonitor observes every search.
func WithSearchMonitor(m memory.SearchMonitor) Option {
	return func(o *engineOptions) {
		o.monitor = m
	}
}

// Open builds an engine from settings and starts its task queue.
func Open(settings *config.Settings, opts ...Option) (*Engine, error) {
	if settings == nil {
		settings = config.Default()
	}
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	e := &Engine{settings: settings, logger: logger.With("component", "engine")}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	var err error
	if e.repo, err = badger.NewRepository(settings.DBPath, logger); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	e.provider = options.provider
	if e.provider == nil {
		if e.provider, err = newAIProvider(settings.AIConfig()); err != nil {
			return nil, fmt.Errorf("failed to create AI provider: %w", err)
		}
	}

	indexOpts := []chromem.Option{
		chromem.WithLogger(logger),
		chromem.WithCacheSize(settings.Embedding.CacheBytes),
	}
	if settings.VectorPath != "" {
		indexOpts = append(indexOpts, chromem.WithPersistence(settings.VectorPath, settings.CompressVectors))
	}
	if e.index, err = chromem.NewIndex(e.provider.Embedder(), indexOpts...); err != nil {
		return nil, err
	}

	completer := e.provider.Completer()
	if e.router, err = routing.NewRouter(completer, routing.WithLogger(logger)); err != nil {
		return nil, err
	}

	chunkOpts := []chunker.Option{
		chunker.WithLogger(logger),
		chunker.WithImageTokens(settings.Chunking.ImageTokens),
	}
	if options.tokenizer != nil {
		chunkOpts = append(chunkOpts, chunker.WithTokenizer(options.tokenizer))
	}
	if e.chunker, err = chunker.New(chunkOpts...); err != nil {
		return nil, err
	}

	memOpts := []memory.Option{
		memory.WithLogger(logger),
		memory.WithReranker(newReranker(settings.Search.Reranker, completer, logger)),
		memory.WithFallbackRetainRatio(settings.Search.RetainRatio),
		memory.WithFallbackVectorWeight(settings.Search.VectorWeight),
		memory.WithFallbackMinHits(settings.Search.FallbackMinHits),
		memory.WithDefaultThreshold(settings.Search.Threshold),
		memory.WithRelevanceBatching(e.chunker.Tokenizer(),
			memory.DefaultRelevanceTokenCeiling, memory.DefaultRelevanceBatchSize),
	}
	if options.monitor != nil {
		memOpts = append(memOpts, memory.WithMonitor(options.monitor))
	}
	if e.memory, err = memory.NewProvider(e.repo, e.index, completer, e.router, memOpts...); err != nil {
		return nil, err
	}

	queueOpts := []tasks.Option{tasks.WithLogger(logger)}
	if settings.Tasks.Retention > 0 {
		queueOpts = append(queueOpts, tasks.WithRetention(settings.Tasks.Retention))
	}
	if e.queue, err = tasks.New(settings.Tasks.Capacity, queueOpts...); err != nil {
		return nil, err
	}
	e.queue.Start(context.Background())

	ok = true
	return e, nil
}

func newAIProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CompletionProvider != ai.ProviderAnthropic {
		return openai.NewProvider(cfg)
	}
	embedder, err := openai.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	completer, err := anthropic.NewCompleter(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewProvider(embedder, completer), nil
}

func newReranker(name string, completer ai.Completer, logger *slog.Logger) memory.Reranker {
	switch strings.ToLower(name) {
	case "keyword":
		return memory.KeywordReranker{}
	case "completion":
		return memory.NewCompletionReranker(completer, logger)
	default:
		return memory.IdentityReranker{}
	}
}

// Close stops the task queue, drains pending vector syncs and closes storage.
func (e *Engine) Close() error {
	if e.queue != nil {
		e.queue.Stop()
	}
	if e.memory != nil {
		e.memory.Close()
	}
	if e.router != nil {
		e.router.Release()
	}

	var errs []error
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			e.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Error("error closing database", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) Memory() *memory.Provider {
	return e.memory
}

func (e *Engine) Tasks() *tasks.Queue {
	return e.queue
}

func (e *Engine) Repository() *badger.Repository {
	return e.repo
}

func (e *Engine) Index() *chromem.Index {
	return e.index
}

// CreateUser adds a user.
func (e *Engine) CreateUser(ctx context.Context, name string) (*core.User, error) {
	return e.repo.AddUser(ctx, &core.User{Name: name})
}

// CreateGroup adds a group with the given members.
func (e *Engine) CreateGroup(ctx context.Context, name string, members ...core.ID) (*core.Group, error) {
	return e.repo.AddGroup(ctx, &core.Group{Name: name, Members: members})
}

// AddGroupMember adds userID to a group.
func (e *Engine) AddGroupMember(ctx context.Context, groupID, userID core.ID) error {
	return e.repo.AddGroupMember(ctx, groupID, userID)
}

// Caller resolves a user and the groups it belongs to.
func (e *Engine) Caller(ctx context.Context, userID core.ID) (core.Caller, error) {
	if _, err := e.repo.GetUser(ctx, userID); err != nil {
		return core.Caller{}, fmt.Errorf("user %d: %w", userID, err)
	}
	groups, err := e.repo.GroupsForUser(ctx, userID)
	if err != nil {
		return core.Caller{}, err
	}
	return core.Caller{UserId: userID, Groups: groups}, nil
}

func (e *Engine) newProcessor() (*ingestion.FileProcessor, error) {
	c := e.settings.Chunking
	return ingestion.NewFileProcessor(e.provider.Completer(), e.chunker,
		ingestion.WithChunkBounds(c.MinTokens, c.MaxTokens, c.OverlapTokens),
		ingestion.WithLogger(e.logger))
}

// Ingest queues a paginated document for ingestion and returns the task id.
// The finished task's result is the id of the new store.
func (e *Engine) Ingest(caller core.Caller, doc chunker.Document) (string, error) {
	p, err := e.newProcessor()
	if err != nil {
		return "", err
	}
	task, err := ingestion.NewDocumentTask(p, e.memory, caller, doc)
	if err != nil {
		return "", err
	}
	return e.queue.Enqueue(core.UserOwner(caller.UserId), task)
}

// IngestText queues flat text for ingestion and returns the task id.
func (e *Engine) IngestText(caller core.Caller, source, text string) (string, error) {
	p, err := e.newProcessor()
	if err != nil {
		return "", err
	}
	task, err := ingestion.NewTextTask(p, e.memory, caller, source, text)
	if err != nil {
		return "", err
	}
	return e.queue.Enqueue(core.UserOwner(caller.UserId), task)
}

// Reindex queues a rebuild of the vector index. progress receives a running
// count; nil discards it.
func (e *Engine) Reindex(caller core.Caller, cfg *reindex.Config, progress io.Writer) (string, error) {
	// Pending syncs would race the rebuild for the same documents.
	e.memory.WaitSync()
	r, err := reindex.NewReindexer(e.repo, e.index, cfg, progress, e.logger)
	if err != nil {
		return "", err
	}
	return e.queue.Enqueue(core.UserOwner(caller.UserId), r.Task())
}
