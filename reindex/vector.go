package reindex

import "math"

// NormalizeVector returns v scaled to unit length as a new slice.
// A zero vector stays zero.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	magnitude := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / magnitude)
	}
	return out
}
