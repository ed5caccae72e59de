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

// Package memory is the read and write path over memories and memory stores.
//
// The Provider writes the structured store first and then schedules vector
// index updates on a bounded worker pool. Each update re-reads the current row,
// so the index converges on the structured store no matter the order updates
// run in. Deleting a store removes its vectors synchronously before its rows.
//
// Search is two-staged:
//   - Vector similarity over the title, description and content of every
//     visible memory, deduplicated per memory and filtered by threshold
//   - When that keeps too few results, the store router ranks visible stores
//     and the memories of the best ones are scored by blending vector
//     similarity with a model relevance judgement
//
// Primary results pass through a Reranker; a SearchMonitor observes each step.
package memory
