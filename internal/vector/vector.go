// Package vector holds the numeric helpers behind interest profiles and
// thread embeddings.
//
// Vectors of different lengths are never an error here. Every binary
// operation works on the overlapping prefix (see Overlap), so a profile built
// against one embedding model keeps working, in degraded form, against
// another.
package vector

import "math"

// Vector is a topic embedding or an interest profile.
type Vector []float64

// Dim returns the dimension of the vector.
func (v Vector) Dim() int {
	return len(v)
}

// IsEmpty reports whether the vector carries no dimensions yet.
func (v Vector) IsEmpty() bool {
	return len(v) == 0
}

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Overlap returns the number of leading dimensions shared by a and b.
func Overlap(a, b Vector) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

// UpdateInterest nudges current toward target by rate:
//
//	out[i] = current[i] + rate*target[i]  for i < Overlap(current, target)
//
// A negative rate pushes the profile away from the target. The result is not
// normalized, so its magnitude is unbounded over many updates. It is Combine
// with weights {1, rate}.
func UpdateInterest(current, target Vector, rate float64) Vector {
	return Combine([]float64{1, rate}, current, target)
}

// Cosine returns the cosine similarity of a and b. Empty vectors, vectors of
// different dimension and zero-magnitude vectors score 0.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Combine returns the weighted sum of vectors over their common prefix.
// Extra weights or vectors are ignored.
func Combine(weights []float64, vectors ...Vector) Vector {
	n := len(weights)
	if len(vectors) < n {
		n = len(vectors)
	}
	if n == 0 {
		return Vector{}
	}
	dim := len(vectors[0])
	for _, v := range vectors[1:n] {
		if len(v) < dim {
			dim = len(v)
		}
	}
	out := make(Vector, dim)
	for k := 0; k < n; k++ {
		for i := 0; i < dim; i++ {
			out[i] += weights[k] * vectors[k][i]
		}
	}
	return out
}
