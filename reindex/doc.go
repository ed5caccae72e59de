// Package reindex rebuilds the vector index from the structured store.
//
// Memories are read in id order in batches and upserted into the index with
// retry and exponential backoff. The id of the last finished batch is saved as
// a checkpoint, so an interrupted run resumes where it stopped.
package reindex
