package model

import "math"

// CosineSimilarity computes the cosine similarity between two vectors over
// their common length. Zero-norm inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	length := min(len(a), len(b))
	for i := 0; i < length; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// WeightedAverage computes sum(w[d] * segment(d)) component-wise over the three
// domain segments. Weights are expected to sum to 1; a zero weight zeroes the
// domain's contribution instead of excluding it.
func WeightedAverage(s Segments, w Weights) []float32 {
	out := make([]float32, SegmentDim)
	for _, d := range Domains {
		weight := w[d]
		seg := s.Domain(d)
		for i := 0; i < SegmentDim && i < len(seg); i++ {
			out[i] += float32(weight * float64(seg[i]))
		}
	}
	return out
}

// Mean is the uniform average of the three domain segments.
func Mean(s Segments) []float32 {
	third := 1.0 / float64(len(Domains))
	return WeightedAverage(s, Weights{DomainMovie: third, DomainMusic: third, DomainProduct: third})
}

// Normalize scales v to unit L2 norm in place and returns it. Zero vectors are
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
