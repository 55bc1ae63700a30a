package search

import "strings"

// Strategy names how a product search is answered.
type Strategy int

const (
	// Unranked returns the filtered catalog page in its natural order.
	Unranked Strategy = iota
	// IndexedSearch delegates matching and scoring to the full-text index.
	IndexedSearch
	// FuzzyFallback filters in the datastore and ranks the page with Ranker.
	FuzzyFallback
)

func (s Strategy) String() string {
	switch s {
	case IndexedSearch:
		return "indexed"
	case FuzzyFallback:
		return "fuzzy"
	default:
		return "unranked"
	}
}

// SelectStrategy picks the search path for a request. Without a query there
// is nothing to rank against.
func SelectStrategy(indexAvailable bool, query string) Strategy {
	switch {
	case strings.TrimSpace(query) == "":
		return Unranked
	case indexAvailable:
		return IndexedSearch
	default:
		return FuzzyFallback
	}
}
