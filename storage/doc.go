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

// Package storage provides the storage abstraction layer for recall.
//
// Two stores back every memory. The Repository is the structured store and the source
// of truth for metadata, ownership and visibility filtering. The VectorIndex holds one
// embedding per memory field (title, description, content) under a per-owner namespace.
//
// # Backends
//
// Backend packages return concrete types that satisfy the interfaces defined here:
//
//	repo, err := badger.NewRepository(path, logger)  // *badger.Repository
//	index, err := chromem.NewIndex(embedder)         // *chromem.Index
//
// Callers should hold them through the interfaces.
//
// # Serialization
//
// Records are encoded with mus-go primitives (see serialization.go). Timestamps are
// stored as Unix microseconds.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repo, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
