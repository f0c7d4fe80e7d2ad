// Package vecmath provides the L2 normalization helpers applied to
// embedding vectors on ingest and at query time. Normalized vectors
// make cosine similarity and inner product coincide, so the vector
// index can rank with a plain inner product.
//
// All functions accumulate in float64 even for float32 inputs so that
// results are stable regardless of vector dimension.
package vecmath

import "math"

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns an L2-normalized copy of v. Zero or empty vectors
// are returned as-is.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / norm
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// IsNormalized reports whether v already has unit L2 norm, within a
// small tolerance.
func IsNormalized(v []float32) bool {
	const tolerance = 1e-4
	return math.Abs(Norm(v)-1) < tolerance
}
