package chromem

import "errors"

var (
	// ErrZeroVector is returned when the embedder yields an empty or all-zero vector.
	ErrZeroVector = errors.New("embedding is a zero vector")
)
