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


// Package search answers queries with hybrid retrieval.
//
// The Searcher runs each query through a fixed sequence of states:
//
//	Received → Expanded → Ranked → Fused → Deduplicated → Reranked → Assembled → Done
//
// Any state may move to Error. Reranked is skipped when no reranker is
// configured.
//
// Three signals are ranked in parallel against a single corpus snapshot:
//   - BM25 over the expanded query
//   - L2 nearest neighbors of the embedded original query
//   - Keyword overlap with the expanded query
//
// The lists are merged with reciprocal rank fusion. A failed query
// embedding drops the vector signal; a failed generation call yields a
// placeholder answer. Neither fails the query. Consistency violations
// always do.
package search
