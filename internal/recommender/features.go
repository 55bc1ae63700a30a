package recommender

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/temcen/marketrec/internal/similarity"
)

// FeatureSet is the token multiset describing an item. Order carries no meaning.
type FeatureSet []string

const (
	priceLowCeiling    = 50
	priceMediumCeiling = 200
	priceHighCeiling   = 500

	minKeywordLength = 4
)

// PriceBucket discretizes an effective price.
func PriceBucket(price float64) string {
	switch {
	case price < priceLowCeiling:
		return "low"
	case price < priceMediumCeiling:
		return "medium"
	case price < priceHighCeiling:
		return "high"
	default:
		return "premium"
	}
}

// ExtractFeatures derives the categorical tokens used by content-based
// filtering. It is deterministic and performs no I/O; callers validate the
// item first.
func ExtractFeatures(item CatalogItem) FeatureSet {
	features := FeatureSet{
		"category:" + similarity.Fold(item.Category),
		"price:" + PriceBucket(item.Price),
		"rating:" + strconv.Itoa(int(math.Floor(item.Rating))),
	}

	text := similarity.Fold(item.Name + " " + item.Description)
	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) >= minKeywordLength {
			features = append(features, "keyword:"+word)
		}
	}

	if item.Tags != "" {
		for _, tag := range strings.Split(similarity.Fold(item.Tags), ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				features = append(features, "tag:"+tag)
			}
		}
	}

	return features
}
