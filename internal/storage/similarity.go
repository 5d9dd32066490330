package storage

import (
	"fmt"
	"math"
	"sort"
)

// rank scores candidates against query by cosine similarity and returns the top limit matches.
// A non-positive limit returns every candidate.
func rank(query []float32, candidates []Record, limit int) ([]Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrDimensionMismatch)
	}

	matches := make([]Match, 0, len(candidates))
	for _, rec := range candidates {
		if len(rec.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dimensions, record %s has %d",
				ErrDimensionMismatch, len(query), rec.ID, len(rec.Embedding))
		}
		matches = append(matches, Match{
			ID:       rec.ID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Score:    cosine(query, rec.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
