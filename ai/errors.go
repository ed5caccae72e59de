package ai

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when a retry is configured with no attempts.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrMalformedResponse indicates the model's reply could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyResponse indicates the model returned no content.
	ErrEmptyResponse = errors.New("empty model response")
)
