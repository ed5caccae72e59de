package storage

import (
	"context"

	"github.com/poiesic/recall/core"
)

// Repository is the structured store of users, groups, memory stores, memories and
// ingestion references. It is the source of truth for metadata and ownership.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	UserRepository
	StoreRepository
	MemoryRepository
	ReferenceRepository

	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// Repository calls made with the context passed to fn join the transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// UserRepository manages principals.
type UserRepository interface {
	// AddUser stores a user, assigning an ID from a sequence when Id is 0.
	AddUser(ctx context.Context, user *core.User) (*core.User, error)

	// GetUser returns ErrNotFound if the user doesn't exist.
	GetUser(ctx context.Context, id core.ID) (*core.User, error)

	// AddGroup stores a group, assigning an ID from a sequence when Id is 0.
	AddGroup(ctx context.Context, group *core.Group) (*core.Group, error)

	// GetGroup returns ErrNotFound if the group doesn't exist.
	GetGroup(ctx context.Context, id core.ID) (*core.Group, error)

	// AddGroupMember adds userID to the group's member list. Adding an existing member is a no-op.
	AddGroupMember(ctx context.Context, groupID, userID core.ID) error

	// GroupsForUser returns the IDs of every group userID belongs to.
	GroupsForUser(ctx context.Context, userID core.ID) ([]core.ID, error)
}

// StoreRepository manages memory stores.
type StoreRepository interface {
	// AddStore stores a memory store, assigning an ID from a sequence when Id is 0.
	// Sets CreatedAt and UpdatedAt.
	AddStore(ctx context.Context, store *core.MemoryStore) (*core.MemoryStore, error)

	// UpdateStore replaces a store's metadata, including its owner.
	// Returns ErrNotFound if the store doesn't exist.
	UpdateStore(ctx context.Context, store *core.MemoryStore) (*core.MemoryStore, error)

	// GetStore returns ErrNotFound if the store doesn't exist.
	GetStore(ctx context.Context, id core.ID) (*core.MemoryStore, error)

	// GetStoresByOwner returns every store owned by one of the given owners, ordered by ID.
	GetStoresByOwner(ctx context.Context, owners ...core.Owner) ([]*core.MemoryStore, error)

	// DeleteStore removes a store and every memory it contains.
	// Returns ErrNotFound if the store doesn't exist.
	DeleteStore(ctx context.Context, id core.ID) error
}

// MemoryRepository manages memory records.
type MemoryRepository interface {
	// AddMemories stores memories, assigning IDs from a sequence when Id is 0.
	// Every memory's StoreId must refer to an existing store with the same owner.
	AddMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error)

	// UpdateMemories replaces existing memories, updating UpdatedAt.
	// Returns ErrNotFound if any memory doesn't exist.
	UpdateMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error)

	// GetMemory returns ErrNotFound if the memory doesn't exist.
	GetMemory(ctx context.Context, id core.ID) (*core.Memory, error)

	// GetMemories returns only the memories that exist (no error for missing ones).
	GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error)

	// GetStoreMemories returns every memory in a store, ordered by ID.
	GetStoreMemories(ctx context.Context, storeID core.ID) ([]*core.Memory, error)

	// GetMemoriesAfter returns up to limit memories with ID greater than afterID, ordered by ID.
	GetMemoriesAfter(ctx context.Context, afterID core.ID, limit int) ([]*core.Memory, error)

	// DeleteMemories removes memories by ID.
	// Returns ErrNotFound if any memory doesn't exist.
	DeleteMemories(ctx context.Context, ids ...core.ID) error
}

// ReferenceRepository manages immutable ingestion references.
type ReferenceRepository interface {
	// AddReferences stores references. Existing references with the same ID are left untouched.
	AddReferences(ctx context.Context, refs ...*core.IngestionReference) error

	// GetReference returns ErrNotFound if the reference doesn't exist.
	GetReference(ctx context.Context, id core.ID) (*core.IngestionReference, error)
}

// CheckpointRepository persists named progress markers for long-running jobs.
type CheckpointRepository interface {
	// SaveCheckpoint records lastID as the last item processed by the named job.
	SaveCheckpoint(ctx context.Context, name string, lastID core.ID) error

	// LoadCheckpoint returns the last saved ID for the named job, or 0 if none exists.
	LoadCheckpoint(ctx context.Context, name string) (core.ID, error)

	// ClearCheckpoint removes the named checkpoint.
	ClearCheckpoint(ctx context.Context, name string) error
}
