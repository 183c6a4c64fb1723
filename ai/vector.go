package ai

import "math"

// NormalizeL2 returns v scaled to unit length. The zero vector maps to a
// zero vector of the same length. v is not modified.
func NormalizeL2(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// NormalizeAll applies NormalizeL2 to every vector.
func NormalizeAll(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = NormalizeL2(v)
	}
	return out
}
