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


// Package rank implements the independent ranking signals of the engine:
// BM25 lexical ranking, flat squared-L2 vector search, and keyword overlap.
//
// Every ranker assigns document IDs by position in the slice it was built
// from, matching corpus chunk IDs. Scores are ranker-specific and only the
// order of a RankedList is meaningful across rankers.
package rank

import (
	"cmp"
	"slices"

	"github.com/poiesic/ragfuse/core"
)

// topK sorts hits by score descending, ties by ascending ID, and truncates
// to k when k > 0.
func topK(hits core.RankedList, k int) core.RankedList {
	slices.SortFunc(hits, func(a, b core.Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
