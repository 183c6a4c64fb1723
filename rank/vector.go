package rank

import (
	"fmt"
	"slices"

	"github.com/poiesic/ragfuse/core"
)

// VectorIndex is a flat nearest-neighbor index using squared Euclidean
// distance. It is immutable once built and safe for concurrent use.
type VectorIndex struct {
	dim     int
	vectors [][]float32
}

// NewVectorIndex builds an index over vectors. Vector i gets ID i.
// All vectors must share one non-zero dimension.
func NewVectorIndex(vectors [][]float32) (*VectorIndex, error) {
	ix := &VectorIndex{vectors: vectors}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %w: index %d", core.ErrConsistency, core.ErrEmptyEmbedding, i)
		}
		if ix.dim == 0 {
			ix.dim = len(v)
		}
		if len(v) != ix.dim {
			return nil, fmt.Errorf("%w: %w: index %d has %d, want %d",
				core.ErrConsistency, core.ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}
	return ix, nil
}

// Dim returns the dimensionality of the indexed vectors, 0 when empty.
func (ix *VectorIndex) Dim() int {
	return ix.dim
}

// Len returns the number of indexed vectors.
func (ix *VectorIndex) Len() int {
	return len(ix.vectors)
}

// Search returns up to k nearest vectors scored by Similarity of their
// squared distance, nearest first, ties by ascending ID. Neighbors with a
// similarity below threshold are dropped; threshold <= 0 disables the
// filter.
func (ix *VectorIndex) Search(query []float32, k int, threshold float64) (core.RankedList, error) {
	hits := make(core.RankedList, 0)
	if ix.Len() == 0 {
		return hits, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: %w: query has %d, index has %d",
			core.ErrConsistency, core.ErrDimensionMismatch, len(query), ix.dim)
	}

	type neighbor struct {
		id   core.ID
		dist float64
	}
	neighbors := make([]neighbor, len(ix.vectors))
	for i, v := range ix.vectors {
		neighbors[i] = neighbor{id: core.ID(i), dist: SquaredL2(query, v)}
	}
	slices.SortStableFunc(neighbors, func(a, b neighbor) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})
	if k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	for _, n := range neighbors {
		sim := Similarity(n.dist)
		if threshold > 0 && sim < threshold {
			continue
		}
		hits = append(hits, core.Hit{DocID: n.id, Score: sim})
	}
	return hits, nil
}

// Similarity converts a distance into a score in (0, 1]: 1/(1+d).
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

// SquaredL2 returns the squared Euclidean distance between a and b,
// which must have equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
