package reindex

import "errors"

var (
	// ErrRepositoryRequired is returned when a memory repository is not provided.
	ErrRepositoryRequired = errors.New("memory repository required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")
)
