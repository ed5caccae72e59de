package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer is the completion service: it answers a user prompt under a system prompt.
// Implementations retry transient failures with bounded backoff and must be
// thread-safe for concurrent use.
type Completer interface {
	// Complete returns the model's text reply.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteJSON asks for a JSON reply and decodes it into out.
	// Malformed replies are repaired where possible and re-requested a bounded
	// number of times before an error wrapping ErrMalformedResponse is returned.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Completer returns the completion service.
	// The returned Completer is safe for concurrent use.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}

type provider struct {
	embedder  Embedder
	completer Completer
}

// NewProvider pairs an embedder with a completer from a different back end.
func NewProvider(embedder Embedder, completer Completer) AIProvider {
	return &provider{embedder: embedder, completer: completer}
}

func (p *provider) Embedder() Embedder   { return p.embedder }
func (p *provider) Completer() Completer { return p.completer }
func (p *provider) Close() error         { return nil }
