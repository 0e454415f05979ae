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

// Package retrieval finds candidate excerpts for a query across the
// knowledge sources and ranks them into a single list.
//
// A SourceRetriever wraps the similarity search over one source kind. FanOut
// runs every retriever concurrently on an ants pool and waits for all of them
// to settle, so a failing source never aborts the others. Aggregate merges the
// per-source outcomes into one list ordered by normalized score.
//
// Scores use cosine similarity clamped to [0,1] for every source kind, so
// candidates from different sources are comparable before weighting.
package retrieval
