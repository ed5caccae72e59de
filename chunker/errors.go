package chunker

import "errors"

var (
	// ErrInvalidBounds is returned when minTokens, maxTokens or overlapTokens are inconsistent.
	ErrInvalidBounds = errors.New("invalid chunk bounds")

	// ErrEmptyDocument is returned when a document has no text and no images.
	ErrEmptyDocument = errors.New("document is empty")
)
