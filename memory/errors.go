package memory

import (
	"errors"
	"fmt"

	"github.com/poiesic/recall/storage"
)

var (
	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrCompleterRequired is returned when a completer is not provided.
	ErrCompleterRequired = errors.New("completer required")

	// ErrRouterRequired is returned when a store router is not provided.
	ErrRouterRequired = errors.New("router required")

	// ErrAccessDenied is returned when the caller cannot see or change a record.
	ErrAccessDenied = errors.New("access denied")

	// ErrAmbiguousTitle is returned when a title matches more than one record.
	ErrAmbiguousTitle = errors.New("title matches more than one record")

	// ErrNotMember is returned when publishing to a group the caller doesn't belong to.
	ErrNotMember = errors.New("caller is not a member of the group")

	// ErrEmptyQuery is returned for a search without query text.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrNoReference is returned when a memory doesn't point at an ingestion reference.
	ErrNoReference = errors.New("memory has no ingestion reference")

	// ErrStoreNotFound is returned when a memory store doesn't exist.
	ErrStoreNotFound = fmt.Errorf("memory store: %w", storage.ErrNotFound)

	// ErrMemoryNotFound is returned when a memory doesn't exist.
	ErrMemoryNotFound = fmt.Errorf("memory: %w", storage.ErrNotFound)
)
