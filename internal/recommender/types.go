package recommender

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/temcen/marketrec/internal/similarity"
)

// CatalogItem is the read-only view of a product the engines score against.
// Price is the effective selling price (discount price when one is set).
type CatalogItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Rating      float64   `json:"rating"`
	Tags        string    `json:"tags,omitempty"`
	SoldCount   int       `json:"sold_count"`
	ShopID      string    `json:"shop_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate rejects items that feature extraction is not defined for.
func (c CatalogItem) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: catalog item without id", similarity.ErrInvalidInput)
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) {
		return fmt.Errorf("%w: item %s has non-finite price", similarity.ErrInvalidInput, c.ID)
	}
	if math.IsNaN(c.Rating) || math.IsInf(c.Rating, 0) {
		return fmt.Errorf("%w: item %s has non-finite rating", similarity.ErrInvalidInput, c.ID)
	}
	return nil
}

// LineItem is one product line of a fulfilled order. An empty ItemID marks a
// line whose product no longer resolves.
type LineItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// FulfilledOrder is an order that reached the delivered state.
type FulfilledOrder struct {
	OrderID   string     `json:"order_id"`
	UserID    string     `json:"user_id"`
	LineItems []LineItem `json:"line_items"`
}

// Score is a ranked item identifier. Scores are only comparable within the
// result set that produced them.
type Score struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// InteractionMatrix maps user id to item id to accumulated purchase weight.
type InteractionMatrix map[string]map[string]float64

// ItemSimilarityIndex maps item id to neighbour item id to similarity in (0,1].
// Missing entries mean zero similarity.
type ItemSimilarityIndex map[string]map[string]float64

// Similarity returns sim(a, b), zero when the pair was never scored.
func (idx ItemSimilarityIndex) Similarity(a, b string) float64 {
	return idx[a][b]
}

// Items returns the distinct item ids referenced by the matrix in sorted order.
func (m InteractionMatrix) Items() []string {
	seen := make(map[string]struct{})
	for _, items := range m {
		for itemID := range items {
			seen[itemID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// topScores orders accumulated scores descending, ties broken by item id, and
// truncates to limit.
func topScores(scores map[string]float64, limit int) []Score {
	results := make([]Score, 0, len(scores))
	for id, s := range scores {
		results = append(results, Score{ItemID: id, Score: s})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
