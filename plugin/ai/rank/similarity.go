// Package rank scores embedding candidates against a query and orders them.
package rank

import (
	"gonum.org/v1/gonum/floats"
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Zero-magnitude or mismatched vectors score 0.
func Cosine(a, b []float32) float64 {
	scores := ScoreAll(a, [][]float32{b})
	return scores[0]
}

// ScoreAll returns the cosine similarity between query and each candidate,
// in candidate order. The query norm is computed once for the batch.
func ScoreAll(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))

	q := toFloat64(query, nil)
	qNorm := floats.Norm(q, 2)
	if qNorm == 0 || len(q) == 0 {
		return scores
	}

	buf := make([]float64, len(q))
	for i, candidate := range candidates {
		if len(candidate) != len(q) {
			continue
		}
		c := toFloat64(candidate, buf)
		cNorm := floats.Norm(c, 2)
		if cNorm == 0 {
			continue
		}
		scores[i] = clamp(floats.Dot(q, c)/(qNorm*cNorm), -1, 1)
	}
	return scores
}

func toFloat64(v []float32, dst []float64) []float64 {
	if cap(dst) < len(v) {
		dst = make([]float64, len(v))
	}
	dst = dst[:len(v)]
	for i, f := range v {
		dst[i] = float64(f)
	}
	return dst
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
