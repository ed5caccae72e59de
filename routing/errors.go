package routing

import "errors"

var (
	// ErrCompleterRequired is returned when a router is created without a completer.
	ErrCompleterRequired = errors.New("completer is required")

	// ErrNoRoute is returned when no candidate store can take a memory.
	ErrNoRoute = errors.New("no store to route to")

	// ErrInvalidBatchSize is returned for a batch size below one.
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
)
