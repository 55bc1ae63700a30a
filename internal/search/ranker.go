package search

import (
	"sort"

	"github.com/temcen/marketrec/internal/similarity"
)

// Candidate is the slice of a product the fuzzy ranker looks at.
type Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Ranked pairs a candidate with its relevance score.
type Ranked struct {
	Candidate
	Score float64 `json:"score"`
}

// FieldWeights scale the per-field string similarity.
type FieldWeights struct {
	Name        float64 `json:"name"`
	Description float64 `json:"description"`
	Category    float64 `json:"category"`
}

// DefaultFieldWeights rank name matches above description and category matches.
var DefaultFieldWeights = FieldWeights{Name: 3, Description: 2, Category: 1}

// Ranker orders an already filtered candidate set by edit-distance relevance.
// It never drops candidates.
type Ranker struct {
	Weights FieldWeights
}

// NewRanker creates a ranker with DefaultFieldWeights.
func NewRanker() *Ranker {
	return &Ranker{Weights: DefaultFieldWeights}
}

// Score is the best weighted field similarity of c against query. Both sides
// are case folded first.
func (r *Ranker) Score(query string, c Candidate) float64 {
	q := similarity.Fold(query)

	name := similarity.StringSimilarity(q, similarity.Fold(c.Name)) * r.Weights.Name
	desc := similarity.StringSimilarity(q, similarity.Fold(c.Description)) * r.Weights.Description
	category := similarity.StringSimilarity(q, similarity.Fold(c.Category)) * r.Weights.Category

	return max(name, desc, category)
}

// Rank scores every candidate and sorts by score descending. Candidates with
// equal scores keep their input order.
//
// An empty query is not special-cased here; callers wanting pass-through
// ordering should pick the Unranked strategy instead.
func (r *Ranker) Rank(query string, candidates []Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Score: r.Score(query, c)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}
