package storage

import (
	"context"

	"github.com/poiesic/recall/core"
)

// Field names a memory field that is embedded on its own.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldContent     Field = "content"
)

// AllFields lists every embedded field.
var AllFields = []Field{FieldTitle, FieldDescription, FieldContent}

// VectorQuery describes a similarity search.
type VectorQuery struct {
	Text   string
	TopK   int
	Owners []core.Owner // namespaces to search; empty searches nothing
	Fields []Field      // empty means AllFields
	// StoreID restricts hits to one memory store when non-zero.
	StoreID core.ID
}

// VectorHit is a single matching field of a memory.
type VectorHit struct {
	MemoryID core.ID
	StoreID  core.ID
	Owner    core.Owner
	Field    Field
	Score    float32
}

// VectorIndex is the vector similarity store. Every memory is embedded on each Field
// independently and stored under its owner's namespace.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Search returns hits across the requested owners and fields, highest score first.
	Search(ctx context.Context, q VectorQuery) ([]VectorHit, error)

	// Upsert embeds and stores every field of a memory under memory.Owner.
	// The memory's Description must not be empty.
	Upsert(ctx context.Context, memory *core.Memory) error

	// Delete removes every field of a memory from the owner's namespace.
	// Deleting a memory that isn't indexed is not an error.
	Delete(ctx context.Context, owner core.Owner, memoryID core.ID) error

	// DeleteStore removes every vector belonging to a store from the owner's namespace.
	DeleteStore(ctx context.Context, owner core.Owner, storeID core.ID) error

	// Close releases resources held by the index.
	Close() error
}
