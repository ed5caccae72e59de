package tasks

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is returned by Enqueue after Stop.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrTaskNotFound is returned for unknown or swept task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinished is returned when cancelling a task that already reached a terminal state.
	ErrTaskFinished = errors.New("task already finished")

	// ErrCancelled is the failure recorded for tasks cancelled before they ran.
	ErrCancelled = errors.New("task cancelled")

	// ErrNilTask is returned when enqueueing a nil task.
	ErrNilTask = errors.New("task cannot be nil")
)
