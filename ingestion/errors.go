package ingestion

import "errors"

var (
	// ErrCompleterRequired is returned when a completer is not provided.
	ErrCompleterRequired = errors.New("completer required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrPersisterRequired is returned when a document task has nowhere to store its result.
	ErrPersisterRequired = errors.New("persister required")

	// ErrAlreadyProcessed is returned when a FileProcessor is run a second time.
	ErrAlreadyProcessed = errors.New("file processor already used")

	// ErrNothingExtracted is returned when no chunk yielded a summary.
	ErrNothingExtracted = errors.New("no summaries extracted from document")
)
