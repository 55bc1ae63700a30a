package recommender

import "context"

// SortOrder selects the catalog ordering a CatalogSource applies.
type SortOrder string

const (
	SortNone      SortOrder = ""
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortRating    SortOrder = "rating"
	SortNewest    SortOrder = "newest"
	// SortTrending orders by units sold, then rating.
	SortTrending SortOrder = "trending"
	// SortTopRated orders by rating, then units sold.
	SortTopRated SortOrder = "top_rated"
)

// CatalogFilter narrows a catalog read. Zero values mean "no constraint";
// Limit 0 means unbounded.
type CatalogFilter struct {
	Query     string
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	Sort      SortOrder
	Limit     int
	Offset    int
}

// OrderSource yields orders in a terminal delivered state. The engines trust
// this contract and do not filter by status themselves.
type OrderSource interface {
	FetchFulfilledOrders(ctx context.Context) ([]FulfilledOrder, error)
}

// CatalogSource reads catalog items.
type CatalogSource interface {
	FetchCatalogItems(ctx context.Context, filter CatalogFilter) ([]CatalogItem, error)
	FetchCatalogItemsByIDs(ctx context.Context, ids []string) ([]CatalogItem, error)
	CountCatalogItems(ctx context.Context, filter CatalogFilter) (int64, error)
}

// PurchaseHistorySource resolves a user's fulfilled purchases to catalog
// items. An item bought in several orders appears once per purchase.
type PurchaseHistorySource interface {
	FetchUserPurchasedItems(ctx context.Context, userID string) ([]CatalogItem, error)
}

// TermCount is a distinct catalog value with the number of products carrying
// it and their mean rating.
type TermCount struct {
	Term      string
	Count     int
	AvgRating float64
}

// CatalogInsights aggregates catalog values for search assistance. Queries
// match as case-insensitive substrings; an empty query matches everything.
// Results are ordered by count descending, then term. Limit 0 means
// unbounded.
type CatalogInsights interface {
	// ProductNameCounts groups products whose name or tags match by name.
	ProductNameCounts(ctx context.Context, query string, limit int) ([]TermCount, error)
	// CategoryCounts groups products whose category matches by category.
	CategoryCounts(ctx context.Context, query string, limit int) ([]TermCount, error)
	// ShopProductCounts counts the products of each shop whose name matches.
	ShopProductCounts(ctx context.Context, query string, limit int) ([]TermCount, error)
}
