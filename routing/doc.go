// Package routing ranks memory stores against a query or a memory with the
// completion service.
//
// Candidates are shown to the model in small batches, one line per store, and the
// model replies with weights in the compact id__weight%id__weight format. Batches
// run concurrently on a bounded ants pool. A failing batch or a malformed entry is
// logged and skipped; it never fails the whole ranking.
package routing
