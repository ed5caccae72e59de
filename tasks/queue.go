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

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/poiesic/recall/core"
)

const (
	DefaultCapacity      = 64
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = time.Hour

	updateBuffer = 256
)

type entry struct {
	task   Task
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Queue is a bounded FIFO of tasks drained by a single worker. Status is kept in
// a map that running tasks update through a channel; callers read it at any time.
type Queue struct {
	items   chan *entry
	updates chan Update

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
	started bool

	retention     time.Duration
	sweepInterval time.Duration
	listener      func(Status)
	logger        *slog.Logger
	now           func() time.Time

	cancel      context.CancelFunc
	quit        chan struct{}
	applierDone chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// Option configures a Queue.
type Option func(*Queue) error

// WithRetention sets how long terminal tasks are kept before Sweep removes them.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) error {
		if d <= 0 {
			return fmt.Errorf("retention must be positive, got %s", d)
		}
		q.retention = d
		return nil
	}
}

// WithSweepInterval sets how often the queue sweeps expired tasks.
func WithSweepInterval(d time.Duration) Option {
	return func(q *Queue) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive, got %s", d)
		}
		q.sweepInterval = d
		return nil
	}
}

// WithListener registers a function called with a snapshot after every status change.
// It runs on the queue's update goroutine and must not block.
func WithListener(fn func(Status)) Option {
	return func(q *Queue) error {
		q.listener = fn
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) error {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) error {
		q.now = now
		return nil
	}
}

// New creates a queue holding at most capacity pending tasks.
func New(capacity int, opts ...Option) (*Queue, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		items:         make(chan *entry, capacity),
		updates:       make(chan Update, updateBuffer),
		entries:       make(map[string]*entry),
		retention:     DefaultRetention,
		sweepInterval: DefaultSweepInterval,
		logger:        slog.Default(),
		now:           time.Now,
		quit:          make(chan struct{}),
		applierDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	q.logger = q.logger.With("component", "task-queue")
	return q, nil
}

// Start launches the worker, the status applier and the sweeper. Cancelling ctx
// cancels the running task; call Stop to shut down cleanly.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	go q.applyLoop()

	q.wg.Add(2)
	go q.workLoop(ctx)
	go q.sweepLoop(ctx)
}

// Stop rejects new tasks, cancels the running one and waits for the worker to exit.
// Tasks still queued stay queued.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		started := q.started
		cancel := q.cancel
		q.mu.Unlock()

		if !started {
			close(q.applierDone)
			return
		}
		cancel()
		q.wg.Wait()
		close(q.quit)
		<-q.applierDone
	})
}

// Enqueue adds a task owned by owner and returns its id. The task is visible
// as Queued before Enqueue returns.
func (q *Queue) Enqueue(owner core.Owner, task Task) (string, error) {
	if task == nil {
		return "", ErrNilTask
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	id := ulid.Make().String()
	e := &entry{
		task: task,
		status: Status{
			Id:        id,
			Owner:     owner,
			Type:      task.Type(),
			State:     StateQueued,
			Message:   "queued",
			CreatedAt: q.now().UTC(),
		},
		done: make(chan struct{}),
	}

	select {
	case q.items <- e:
	default:
		return "", ErrQueueFull
	}
	q.entries[id] = e
	q.notify(e.status)
	q.logger.Debug("task enqueued", "task_id", id, "type", e.status.Type)
	return id, nil
}

// Status returns a snapshot of the task's status.
func (q *Queue) Status(id string) (Status, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.entries[id]
	if !ok {
		return Status{}, ErrTaskNotFound
	}
	return e.status, nil
}

// List returns the status of every task owned by owner, oldest first.
func (q *Queue) List(owner core.Owner) []Status {
	q.mu.RLock()
	out := make([]Status, 0, len(q.entries))
	for _, e := range q.entries {
		if e.status.Owner == owner {
			out = append(out, e.status)
		}
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// Wait blocks until the task reaches a terminal state or ctx is done.
func (q *Queue) Wait(ctx context.Context, id string) (Status, error) {
	q.mu.RLock()
	e, ok := q.entries[id]
	q.mu.RUnlock()
	if !ok {
		return Status{}, ErrTaskNotFound
	}
	select {
	case <-e.done:
		return q.Status(id)
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Cancel fails a queued task immediately or cancels the context of a running one.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	switch e.status.State {
	case StateQueued:
		q.finishLocked(e, Update{TaskId: id, State: StateFailed, Error: ErrCancelled.Error()})
		q.mu.Unlock()
		return nil
	case StateProcessing:
		cancel := e.cancel
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	default:
		q.mu.Unlock()
		return ErrTaskFinished
	}
}

// Sweep removes terminal tasks that finished more than the retention period
// before now. It returns the number removed.
func (q *Queue) Sweep(now time.Time) int {
	cutoff := now.Add(-q.retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, e := range q.entries {
		if e.status.State.IsTerminal() && e.status.CompletedAt.Before(cutoff) {
			delete(q.entries, id)
			removed++
		}
	}
	if removed > 0 {
		q.logger.Debug("swept finished tasks", "removed", removed)
	}
	return removed
}

func (q *Queue) workLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q.items:
			q.run(ctx, e)
		}
	}
}

func (q *Queue) sweepLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Sweep(q.now())
		}
	}
}

func (q *Queue) run(ctx context.Context, e *entry) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	if e.status.State != StateQueued {
		// Cancelled while waiting.
		q.mu.Unlock()
		return
	}
	e.status.State = StateProcessing
	e.status.StartedAt = q.now().UTC()
	e.status.Message = "processing"
	e.cancel = cancel
	id := e.status.Id
	q.notify(e.status)
	q.mu.Unlock()

	logger := q.logger.With("task_id", id, "type", e.status.Type)
	logger.Info("task started")

	reporter := ReporterFunc(func(message string, progress float64) {
		q.send(Update{TaskId: id, Message: message, Progress: progress})
	})
	result, err := runTask(taskCtx, e.task, reporter)
	if err != nil {
		logger.Error("task failed", "err", err)
		q.send(Update{TaskId: id, State: StateFailed, Message: "failed", Error: err.Error()})
		return
	}
	logger.Info("task completed")
	q.send(Update{TaskId: id, State: StateCompleted, Message: "completed", Progress: 1, Result: result})
}

// runTask converts a panicking task into a failure.
func runTask(ctx context.Context, task Task, r Reporter) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return task.Run(ctx, r)
}

func (q *Queue) send(u Update) {
	select {
	case q.updates <- u:
	case <-q.applierDone:
	}
}

func (q *Queue) applyLoop() {
	for {
		select {
		case u := <-q.updates:
			q.apply(u)
		case <-q.quit:
			for {
				select {
				case u := <-q.updates:
					q.apply(u)
				default:
					close(q.applierDone)
					return
				}
			}
		}
	}
}

// apply merges u into the status map. Terminal states are never changed, states
// never move backwards and progress never decreases.
func (q *Queue) apply(u Update) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[u.TaskId]
	if !ok || e.status.State.IsTerminal() {
		return
	}
	if u.State.IsTerminal() {
		q.finishLocked(e, u)
		return
	}
	if u.State > e.status.State {
		e.status.State = u.State
	}
	mergeProgress(&e.status, u)
	q.notify(e.status)
}

func (q *Queue) finishLocked(e *entry, u Update) {
	mergeProgress(&e.status, u)
	e.status.State = u.State
	e.status.Error = u.Error
	e.status.Result = u.Result
	e.status.CompletedAt = q.now().UTC()
	close(e.done)
	q.notify(e.status)
}

func mergeProgress(s *Status, u Update) {
	if u.Message != "" {
		s.Message = u.Message
	}
	p := min(max(u.Progress, 0), 1)
	if p > s.Progress {
		s.Progress = p
	}
}

func (q *Queue) notify(s Status) {
	if q.listener != nil {
		q.listener(s)
	}
}
