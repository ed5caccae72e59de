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

// Package anthropic provides an ai.Completer backed by the Anthropic Messages API.
//
// Anthropic serves no embedding models, so a provider built here pairs the
// completer with an embedder from another back end:
//
//	completer, err := anthropic.NewCompleter(config)
//	provider := ai.NewProvider(openaiEmbedder, completer)
package anthropic
