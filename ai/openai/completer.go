// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/recall/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const maxParseAttempts = 3

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client     llms.Model
	maxTokens  int
	maxRetries int
	config     *ai.Config
	logger     *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return newCompleterWithModel(client, config), nil
}

func newCompleterWithModel(client llms.Model, config *ai.Config) *Completer {
	return &Completer{
		client:     client,
		maxTokens:  config.MaxTokens,
		maxRetries: config.MaxRetries,
		config:     config,
		logger:     slog.Default().With("component", "openai-completer"),
	}
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete returns the model's reply, retrying transport failures with backoff.
func (c *Completer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt)
}

// CompleteJSON requests a JSON reply in JSON mode and decodes it into out.
// It re-asks up to three times when the reply doesn't parse.
func (c *Completer) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		reply, err := c.generate(ctx, systemPrompt, userPrompt, llms.WithJSONMode())
		if err != nil {
			return err
		}

		if err := ai.DecodeJSON(reply, out); err != nil {
			lastErr = err
			c.logger.Warn("error parsing completion response",
				"attempt", attempt+1,
				"response", reply,
				"err", err)
			continue
		}
		return nil
	}

	c.logger.Error("failed to parse completion response after retries", "err", lastErr)
	return lastErr
}

func (c *Completer) generate(ctx context.Context, systemPrompt, userPrompt string, extra ...llms.CallOption) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(systemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(userPrompt),
			},
		},
	}
	opts := append([]llms.CallOption{
		llms.WithTemperature(0.0),
		llms.WithMaxTokens(c.maxTokens),
	}, extra...)

	var reply string
	err := ai.RetryWithBackoff(ctx, func() error {
		response, err := c.client.GenerateContent(ctx, content, opts...)
		if err != nil {
			c.logger.Warn("failed to generate content", "err", err)
			return err
		}
		if len(response.Choices) < 1 {
			return ai.ErrEmptyResponse
		}
		reply = response.Choices[0].Content
		return nil
	}, c.maxRetries, c.config.RetryDelay)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return reply, nil
}
