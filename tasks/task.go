package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/recall/core"
)

// State is the lifecycle state of a task. States only move forward.
type State int

const (
	StateQueued State = iota + 1
	StateProcessing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task is a unit of background work.
type Task interface {
	// Type names the kind of task, e.g. "document_ingestion".
	Type() string

	// Run does the work, reporting progress through r. The returned result is
	// recorded on the task's status when it completes.
	Run(ctx context.Context, r Reporter) (string, error)
}

// Reporter publishes progress for the running task.
type Reporter interface {
	Report(message string, progress float64)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(message string, progress float64)

func (f ReporterFunc) Report(message string, progress float64) { f(message, progress) }

// Status is a snapshot of a task's state.
type Status struct {
	Id          string
	Owner       core.Owner
	Type        string
	State       State
	Message     string
	Progress    float64
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Result      string
}

// Update is a change pushed from a running task to the status map.
// A zero State leaves the state unchanged.
type Update struct {
	TaskId   string
	State    State
	Message  string
	Progress float64
	Result   string
	Error    string
}
