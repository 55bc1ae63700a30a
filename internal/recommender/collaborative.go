package recommender

import (
	"context"

	"github.com/temcen/marketrec/internal/similarity"
)

// CollaborativeEngine implements item-based collaborative filtering over an
// InteractionMatrix.
type CollaborativeEngine struct {
	// MinCoInteractions skips item pairs bought together by fewer users than
	// this. Values below 1 behave like 1.
	MinCoInteractions int
}

// NewCollaborativeEngine creates an engine that scores every co-purchased pair.
func NewCollaborativeEngine() *CollaborativeEngine {
	return &CollaborativeEngine{MinCoInteractions: 1}
}

// ComputeItemSimilarity scores every unordered pair of items in the matrix by
// the cosine similarity of their user columns. It is quadratic in the number
// of items and checks ctx between rows.
func (e *CollaborativeEngine) ComputeItemSimilarity(ctx context.Context, matrix InteractionMatrix) (ItemSimilarityIndex, error) {
	minShared := max(e.MinCoInteractions, 1)

	// Columns: item -> (user -> weight).
	columns := make(map[string]map[string]float64)
	for userID, items := range matrix {
		for itemID, w := range items {
			col, ok := columns[itemID]
			if !ok {
				col = make(map[string]float64)
				columns[itemID] = col
			}
			col[userID] = w
		}
	}

	items := matrix.Items()
	index := make(ItemSimilarityIndex, len(items))

	for i := 0; i < len(items); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a := items[i]
		colA := columns[a]
		for j := i + 1; j < len(items); j++ {
			b := items[j]
			colB := columns[b]

			if sharedUsers(colA, colB) < minShared {
				continue
			}

			sim := similarity.Cosine(colA, colB)
			if sim == 0 {
				continue
			}

			if index[a] == nil {
				index[a] = make(map[string]float64)
			}
			if index[b] == nil {
				index[b] = make(map[string]float64)
			}
			index[a][b] = sim
			index[b][a] = sim
		}
	}

	return index, nil
}

// Recommend walks the neighbours of every item the user interacted with and
// accumulates similarity * weight. Items the user already has are never
// returned. A user without history gets an empty result.
func (e *CollaborativeEngine) Recommend(matrix InteractionMatrix, index ItemSimilarityIndex, userID string, limit int) []Score {
	userItems := matrix[userID]
	if len(userItems) == 0 {
		return []Score{}
	}

	scores := make(map[string]float64)
	for _, itemID := range sortedKeys(userItems) {
		weight := userItems[itemID]
		neighbours := index[itemID]
		for _, neighbourID := range sortedKeys(neighbours) {
			if _, owned := userItems[neighbourID]; owned {
				continue
			}
			scores[neighbourID] += neighbours[neighbourID] * weight
		}
	}

	return topScores(scores, limit)
}

func sharedUsers(a, b map[string]float64) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
