package services

import (
	"context"

	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/pkg/models"
)

// Recommender is the model-backed engine behind personalized recommendations.
// *recommender.HybridRecommender implements it.
type Recommender interface {
	GetRecommendations(ctx context.Context, userID string, limit int) ([]recommender.Score, error)
	Retrain(ctx context.Context) error
	Version() uint64
	Stats() (recommender.ModelStats, bool)
	ItemSimilarity(a, b recommender.CatalogItem) float64
}

// RecommendationServiceInterface defines the recommendation operations the HTTP layer uses
type RecommendationServiceInterface interface {
	Personalized(ctx context.Context, userID string, limit int) (*models.RecommendationResponse, error)
	Similar(ctx context.Context, productID string, limit int) (*models.RecommendationResponse, error)
	Trending(ctx context.Context, category string, limit int) (*models.RecommendationResponse, error)
	Category(ctx context.Context, category string, limit int) (*models.RecommendationResponse, error)
	Retrain(ctx context.Context) (*models.RetrainResponse, error)
}

// SearchServiceInterface defines the product search operations the HTTP layer uses
type SearchServiceInterface interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	IndexProducts(ctx context.Context) (int, error)
	Rank(req *models.RankRequest) *models.RankResponse
	Suggestions(ctx context.Context, query string) (*models.SuggestionsResponse, error)
	TrendingSearches(ctx context.Context) (*models.TrendingSearchesResponse, error)
}
