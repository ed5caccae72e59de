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

// Package ai provides abstractions for the AI services recall depends on.
//
// Two services are consumed:
//
//   - Embedder: generates vector embeddings from text
//   - Completer: the completion service used for chunk summaries, memory and
//     store descriptions, store titles, and weighted ranking replies
//
// AIProvider bundles the two for lifecycle management.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo against OpenAI-compatible APIs (embeddings and completions)
//   - ai/anthropic: anthropic-sdk-go Messages API (completions only)
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types to enforce abstraction. Test utility constructors
// (mock.NewMockEmbedder, mock.NewMockCompleter) return CONCRETE types to enable
// test assertions and behavior injection.
//
// # Failure Handling
//
// Completion calls are retried with bounded exponential backoff (RetryWithBackoff).
// JSON replies pass through DecodeJSON, which strips markdown fences and repairs
// unquoted keys before unmarshaling.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	reply, err := provider.Completer().Complete(ctx, systemPrompt, userPrompt)
package ai
