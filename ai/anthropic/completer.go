package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/poiesic/recall/ai"
)

const (
	// DefaultModel is used when the config names no completion model.
	DefaultModel = "claude-sonnet-4-20250514"

	maxParseAttempts = 3

	jsonInstruction = "\n\nRespond with a single JSON value only. Do not wrap it in markdown or add commentary."
)

// Completer implements ai.Completer on the Anthropic Messages API.
type Completer struct {
	client *anthropic.Client
	config *ai.Config
	model  string
	logger *slog.Logger
}

var _ ai.Completer = (*Completer)(nil)

// NewCompleter creates a completer from config. CompletionHost, when set,
// overrides the API base URL.
func NewCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.CompletionHost != "" {
		opts = append(opts, option.WithBaseURL(config.CompletionHost))
	}
	// Retries are handled by ai.RetryWithBackoff so the attempt budget stays in config.
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)

	model := config.CompletionModel
	if model == "" {
		model = DefaultModel
	}

	return &Completer{
		client: &client,
		config: config,
		model:  model,
		logger: slog.Default().With("component", "anthropic-completer"),
	}, nil
}

// Complete returns the concatenated text blocks of the model's reply.
func (c *Completer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt)
}

// CompleteJSON asks for a JSON-only reply and decodes it into out,
// re-asking up to three times when the reply doesn't parse.
func (c *Completer) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		reply, err := c.generate(ctx, systemPrompt+jsonInstruction, userPrompt)
		if err != nil {
			return err
		}
		if err := ai.DecodeJSON(reply, out); err != nil {
			lastErr = err
			c.logger.Warn("error parsing completion response", "attempt", attempt+1, "err", err)
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Completer) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Temperature: anthropic.Float(0.0),
	}

	var reply string
	err := ai.RetryWithBackoff(ctx, func() error {
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			c.logger.Warn("claude API error", "err", err)
			return err
		}

		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return ai.ErrEmptyResponse
		}
		reply = sb.String()
		return nil
	}, c.config.MaxRetries, c.config.RetryDelay)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return reply, nil
}
