package rank

import (
	"context"
	"fmt"
	"sort"

	"github.com/hrygo/saga/plugin/ai"
)

// DefaultAlpha weights semantic similarity over recency.
const DefaultAlpha = 0.7

// recencyEpsilon guards the recency normalisation against a zero maximum.
const recencyEpsilon = 1e-9

// RankedCandidate holds the per-request scores of one candidate.
type RankedCandidate struct {
	EntryID  string
	Semantic float64
	Recency  float64
	Hybrid   float64
}

// Blend returns alpha*semantic[i] + (1-alpha)*recency[i]/max(recency).
func Blend(semantic, recency []float64, alpha float64) ([]float64, error) {
	if len(semantic) != len(recency) {
		return nil, fmt.Errorf("blend: %d semantic scores but %d recency scores", len(semantic), len(recency))
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("blend: alpha %v outside [0, 1]", alpha)
	}

	maxRecency := 0.0
	for _, r := range recency {
		if r > maxRecency {
			maxRecency = r
		}
	}
	if maxRecency < recencyEpsilon {
		maxRecency = recencyEpsilon
	}

	hybrid := make([]float64, len(semantic))
	for i := range semantic {
		hybrid[i] = alpha*semantic[i] + (1-alpha)*(recency[i]/maxRecency)
	}
	return hybrid, nil
}

// TopK returns the indices of the k highest scores, best first.
// Equal scores keep their input order.
func TopK(scores []float64, k int) []int {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})
	if k < 0 {
		k = 0
	}
	if k < len(indices) {
		indices = indices[:k]
	}
	return indices
}

// Rerank reorders the already-pruned top indices by cross-encoder relevance of
// (query, texts[index]). Indices the reranker does not return keep their prior
// relative order after the returned ones.
func Rerank(ctx context.Context, reranker ai.RerankerService, query string, top []int, texts []string) ([]int, error) {
	if len(top) < 2 {
		return top, nil
	}

	documents := make([]string, len(top))
	for i, idx := range top {
		documents[i] = texts[idx]
	}
	results, err := reranker.Rerank(ctx, query, documents, len(documents))
	if err != nil {
		return nil, err
	}

	ordered := make([]int, 0, len(top))
	seen := make([]bool, len(top))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(top) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		ordered = append(ordered, top[r.Index])
	}
	for i, idx := range top {
		if !seen[i] {
			ordered = append(ordered, idx)
		}
	}
	return ordered, nil
}
