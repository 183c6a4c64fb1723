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


// Package fusion merges independently ranked lists with reciprocal rank fusion.
package fusion

import (
	"fmt"
	"slices"

	"github.com/poiesic/ragfuse/core"
)

// DefaultK is the default RRF constant.
const DefaultK = 60.0

// Fuse combines lists with reciprocal rank fusion: every list adds
// 1/(rank+k) to the score of each document it contains, rank being the
// zero-based position inside that list. Results are ordered by fused score,
// highest first; ties keep the order in which documents were first seen
// across lists in argument order. k must be positive.
func Fuse(k float64, lists ...core.RankedList) ([]core.FusionResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: rrf k must be positive, got %v", core.ErrInput, k)
	}

	scores := make(map[core.ID]float64)
	order := make([]core.ID, 0)
	for _, list := range lists {
		for rank, hit := range list {
			if _, seen := scores[hit.DocID]; !seen {
				order = append(order, hit.DocID)
			}
			scores[hit.DocID] += 1 / (float64(rank) + k)
		}
	}

	results := make([]core.FusionResult, len(order))
	for i, id := range order {
		results[i] = core.FusionResult{DocID: id, Score: scores[id]}
	}
	slices.SortStableFunc(results, func(a, b core.FusionResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return results, nil
}

// Dedup keeps the first occurrence of every document ID.
func Dedup(results []core.FusionResult) []core.FusionResult {
	seen := make(map[core.ID]bool, len(results))
	out := make([]core.FusionResult, 0, len(results))
	for _, r := range results {
		if seen[r.DocID] {
			continue
		}
		seen[r.DocID] = true
		out = append(out, r)
	}
	return out
}
