// Package ingestion turns a document into a new memory store.
//
// A FileProcessor drives one upload from start to finish:
//   - Chunk the document into token-bounded references
//   - Summarize every chunk concurrently into (identifier, summary) pairs
//   - Describe every summary, at most once per identifier
//   - Title and describe the store from all descriptions
//
// The processor never writes anything. A DocumentTask runs it on the task queue
// and hands the assembled Result to a Persister.
package ingestion
