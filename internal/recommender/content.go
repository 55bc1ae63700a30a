package recommender

import (
	"github.com/temcen/marketrec/internal/similarity"
)

// ContentEngine recommends catalog items whose features resemble what the
// user already bought.
type ContentEngine struct{}

// NewContentEngine creates a content-based engine.
func NewContentEngine() *ContentEngine {
	return &ContentEngine{}
}

// ItemSimilarity is the term-frequency cosine similarity of two items' features.
func (e *ContentEngine) ItemSimilarity(a, b CatalogItem) float64 {
	return similarity.TokenCosine(ExtractFeatures(a), ExtractFeatures(b))
}

// Recommend compares every purchased item against the whole catalog and sums
// similarities per candidate. Items the user already purchased are excluded,
// matching the collaborative engine. The cost is purchases x catalog.
func (e *ContentEngine) Recommend(catalog, purchases []CatalogItem, limit int) ([]Score, error) {
	if len(purchases) == 0 || len(catalog) == 0 {
		return []Score{}, nil
	}

	// A repeated purchase contributes once per occurrence but is extracted once.
	owned := make(map[string]map[string]float64, len(purchases))
	purchasedCounts := make([]map[string]float64, 0, len(purchases))
	for _, p := range purchases {
		counts, ok := owned[p.ID]
		if !ok {
			if err := p.Validate(); err != nil {
				return nil, err
			}
			counts = similarity.TokenCounts(ExtractFeatures(p))
			owned[p.ID] = counts
		}
		purchasedCounts = append(purchasedCounts, counts)
	}

	scores := make(map[string]float64)
	for _, candidate := range catalog {
		if err := candidate.Validate(); err != nil {
			return nil, err
		}
		if _, ok := owned[candidate.ID]; ok {
			continue
		}

		candidateCounts := similarity.TokenCounts(ExtractFeatures(candidate))
		for _, purchased := range purchasedCounts {
			scores[candidate.ID] += similarity.Cosine(purchased, candidateCounts)
		}
	}

	return topScores(scores, limit), nil
}
