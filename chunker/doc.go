// Package chunker splits documents into token-bounded, overlapping chunks.
//
// Paginated documents are split on page boundaries and flat text on sentence
// boundaries; a unit is never divided. Each chunk becomes a core.IngestionReference
// whose Base region is disjoint from every other chunk's, so the bases of all
// chunks concatenate back to the document body. Overlap context from neighbouring
// units is added around the base.
//
// Token counts come from a Tokenizer. The default uses tiktoken's cl100k_base
// encoding so limits are reproducible across runs.
package chunker
