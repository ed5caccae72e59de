package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Field limits for memory records, measured in runes.
const (
	MaxTitleLength       = 256
	MaxDescriptionLength = 512
	MaxContentLength     = 4096
)

// ReferenceType describes what a memory's Reference string points at.
type ReferenceType int

const (
	RefNone ReferenceType = iota
	RefConversation
	RefMemory
	RefDocument
	RefCodebase
	RefHomepage
)

var referenceTypeNames = []string{"none", "conversation", "memory", "document", "codebase", "homepage"}

func (r ReferenceType) String() string {
	if r < RefNone || int(r) >= len(referenceTypeNames) {
		return fmt.Sprintf("ReferenceType(%d)", int(r))
	}
	return referenceTypeNames[r]
}

// ParseReferenceType converts a name such as "document" into a ReferenceType.
func ParseReferenceType(s string) (ReferenceType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RefNone, nil
	}
	for i, name := range referenceTypeNames {
		if name == s {
			return ReferenceType(i), nil
		}
	}
	return RefNone, fmt.Errorf("%w: %q", ErrInvalidReferenceType, s)
}

// Memory is a single retrievable unit of knowledge.
type Memory struct {
	Id          ID
	StoreId     ID
	Owner       Owner
	Title       string
	Description string // never empty once the memory reaches the vector index
	Content     string
	Pinned      bool
	Tags        []string
	RefType     ReferenceType
	Reference   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemoryStore is a named, described collection of memories sharing a topic.
type MemoryStore struct {
	Id          ID
	Owner       Owner
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IngestionReference records the source text one chunk of a document was built from.
// Content holds the chunk including its overlap; BaseOffset and BaseLength locate
// the non-overlapping region inside Content.
type IngestionReference struct {
	Id         ID
	Source     string
	Content    string
	StartPage  int
	EndPage    int
	BaseOffset int
	BaseLength int
	CreatedAt  time.Time
}

// Base returns the non-overlapping region of the chunk.
func (r *IngestionReference) Base() string {
	end := r.BaseOffset + r.BaseLength
	if r.BaseOffset < 0 || end > len(r.Content) || r.BaseOffset > end {
		return ""
	}
	return r.Content[r.BaseOffset:end]
}

// RoutingResult pairs a store with the relevance a model assigned it.
// Higher is more relevant; there is no fixed range.
type RoutingResult struct {
	StoreId   ID
	Relevance float64
}

// User is a principal that owns personal stores.
type User struct {
	Id        ID
	Name      string
	CreatedAt time.Time
}

// Group is a principal whose stores are visible to all of its members.
type Group struct {
	Id        ID
	Name      string
	Members   []ID
	CreatedAt time.Time
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID ID) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// SearchResult represents a search result with the full memory, its store and relevance score.
type SearchResult struct {
	Memory *Memory
	Store  *MemoryStore
	Score  float32
}
