package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/cache"
	"github.com/temcen/marketrec/internal/config"
	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/pkg/models"
)

const (
	defaultSimilarLimit = 6

	reasonPersonalized = "personalized"
	reasonSimilar      = "similar_products"
	reasonTrending     = "trending"
	reasonCategory     = "category_based"
)

// RecommendationService serves every recommendation endpoint: personalized
// results from the hybrid model, and catalog-driven similar, trending and
// category lists.
type RecommendationService struct {
	engine  Recommender
	catalog recommender.CatalogSource
	cache   *cache.Recommendations
	metrics *Metrics
	config  config.RecommendationConfig
	logger  *logrus.Logger

	now func() time.Time
}

func NewRecommendationService(
	engine Recommender,
	catalog recommender.CatalogSource,
	cache *cache.Recommendations,
	metrics *Metrics,
	cfg config.RecommendationConfig,
	logger *logrus.Logger,
) *RecommendationService {
	return &RecommendationService{
		engine:  engine,
		catalog: catalog,
		cache:   cache,
		metrics: metrics,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Personalized returns hybrid recommendations for userID resolved to full
// products. Scores whose product no longer exists are dropped; the remaining
// order is the model's.
func (s *RecommendationService) Personalized(ctx context.Context, userID string, limit int) (resp *models.RecommendationResponse, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRecommendation(models.KindPersonalized, start, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", recommender.ErrInvalidInput)
	}
	limit, err = s.resolveLimit(limit, s.config.DefaultLimit)
	if err != nil {
		return nil, err
	}

	version := s.engine.Version()
	scores, hit := s.lookupCache(ctx, version, userID, limit)
	if !hit {
		scores, err = s.engine.GetRecommendations(ctx, userID, limit)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Error("Failed to generate recommendations")
			return nil, err
		}
		version = s.engine.Version()
		s.metrics.SetModelVersion(version)
		s.cache.Set(ctx, version, userID, limit, scores)
	}

	recs, err := s.resolveScores(ctx, scores)
	if err != nil {
		return nil, err
	}

	return &models.RecommendationResponse{
		Kind:            models.KindPersonalized,
		UserID:          userID,
		Recommendations: recs,
		ModelVersion:    version,
		CacheHit:        hit,
		GeneratedAt:     s.now(),
	}, nil
}

// Similar ranks the other products of productID's category by content
// similarity to it.
func (s *RecommendationService) Similar(ctx context.Context, productID string, limit int) (resp *models.RecommendationResponse, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRecommendation(models.KindSimilar, start, err) }()

	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: product id is required", recommender.ErrInvalidInput)
	}
	limit, err = s.resolveLimit(limit, defaultSimilarLimit)
	if err != nil {
		return nil, err
	}

	found, err := s.catalog.FetchCatalogItemsByIDs(ctx, []string{productID})
	if err != nil {
		return nil, recommender.Upstream("catalog", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	target := found[0]

	peers, err := s.catalog.FetchCatalogItems(ctx, recommender.CatalogFilter{Category: target.Category})
	if err != nil {
		return nil, recommender.Upstream("catalog", err)
	}

	type scored struct {
		item  recommender.CatalogItem
		score float64
	}
	ranked := make([]scored, 0, len(peers))
	for _, peer := range peers {
		if peer.ID == target.ID {
			continue
		}
		ranked = append(ranked, scored{item: peer, score: s.engine.ItemSimilarity(target, peer)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.ID < ranked[j].item.ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	recs := make([]models.Recommendation, 0, len(ranked))
	for _, r := range ranked {
		recs = append(recs, models.Recommendation{
			Product: toProduct(r.item),
			Score:   r.score,
			Reason:  reasonSimilar,
		})
	}

	return &models.RecommendationResponse{
		Kind:            models.KindSimilar,
		ProductID:       target.ID,
		Category:        target.Category,
		Recommendations: recs,
		GeneratedAt:     s.now(),
	}, nil
}

// Trending lists the best-selling products, optionally within one category.
func (s *RecommendationService) Trending(ctx context.Context, category string, limit int) (resp *models.RecommendationResponse, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRecommendation(models.KindTrending, start, err) }()

	limit, err = s.resolveLimit(limit, s.config.DefaultLimit)
	if err != nil {
		return nil, err
	}

	items, err := s.catalog.FetchCatalogItems(ctx, recommender.CatalogFilter{
		Category: strings.TrimSpace(category),
		Sort:     recommender.SortTrending,
		Limit:    limit,
	})
	if err != nil {
		return nil, recommender.Upstream("catalog", err)
	}

	recs := make([]models.Recommendation, 0, len(items))
	for _, item := range items {
		recs = append(recs, models.Recommendation{
			Product: toProduct(item),
			Score:   TrendingScore(item),
			Reason:  reasonTrending,
		})
	}

	if category == "" {
		category = "all"
	}
	return &models.RecommendationResponse{
		Kind:            models.KindTrending,
		Category:        category,
		Recommendations: recs,
		GeneratedAt:     s.now(),
	}, nil
}

// Category lists the top-rated products of one category.
func (s *RecommendationService) Category(ctx context.Context, category string, limit int) (resp *models.RecommendationResponse, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRecommendation(models.KindCategory, start, err) }()

	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", recommender.ErrInvalidInput)
	}
	limit, err = s.resolveLimit(limit, s.config.DefaultLimit)
	if err != nil {
		return nil, err
	}

	items, err := s.catalog.FetchCatalogItems(ctx, recommender.CatalogFilter{
		Category: category,
		Sort:     recommender.SortTopRated,
		Limit:    limit,
	})
	if err != nil {
		return nil, recommender.Upstream("catalog", err)
	}

	recs := make([]models.Recommendation, 0, len(items))
	for _, item := range items {
		recs = append(recs, models.Recommendation{
			Product: toProduct(item),
			Score:   CategoryScore(item),
			Reason:  reasonCategory,
		})
	}

	return &models.RecommendationResponse{
		Kind:            models.KindCategory,
		Category:        category,
		Recommendations: recs,
		GeneratedAt:     s.now(),
	}, nil
}

// Retrain rebuilds the model and reports the one now serving.
func (s *RecommendationService) Retrain(ctx context.Context) (*models.RetrainResponse, error) {
	if err := s.engine.Retrain(ctx); err != nil {
		s.logger.WithError(err).Error("Recommendation model retrain failed")
		return nil, err
	}

	stats, _ := s.engine.Stats()
	s.metrics.SetModelVersion(stats.Version)

	return &models.RetrainResponse{
		Status: "retrained",
		Model:  toModelInfo(stats),
	}, nil
}

// TrendingScore weighs units sold over rating.
func TrendingScore(item recommender.CatalogItem) float64 {
	return float64(item.SoldCount)*0.7 + item.Rating*0.3
}

// CategoryScore weighs rating over units sold.
func CategoryScore(item recommender.CatalogItem) float64 {
	return item.Rating*0.6 + float64(item.SoldCount)/100*0.4
}

func (s *RecommendationService) resolveLimit(limit, fallback int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: limit must not be negative, got %d", recommender.ErrInvalidInput, limit)
	}
	if limit == 0 {
		limit = fallback
	}
	if s.config.MaxLimit > 0 && limit > s.config.MaxLimit {
		return 0, fmt.Errorf("%w: limit %d exceeds maximum %d", recommender.ErrInvalidInput, limit, s.config.MaxLimit)
	}
	return limit, nil
}

func (s *RecommendationService) lookupCache(ctx context.Context, version uint64, userID string, limit int) ([]recommender.Score, bool) {
	// Nothing cached can belong to a model that was never built.
	if version == 0 {
		return nil, false
	}
	scores, hit := s.cache.Get(ctx, version, userID, limit)
	s.metrics.ObserveCache(hit)
	return scores, hit
}

func (s *RecommendationService) resolveScores(ctx context.Context, scores []recommender.Score) ([]models.Recommendation, error) {
	recs := make([]models.Recommendation, 0, len(scores))
	if len(scores) == 0 {
		return recs, nil
	}

	ids := make([]string, len(scores))
	for i, sc := range scores {
		ids[i] = sc.ItemID
	}

	items, err := s.catalog.FetchCatalogItemsByIDs(ctx, ids)
	if err != nil {
		return nil, recommender.Upstream("catalog", err)
	}
	byID := make(map[string]recommender.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	for _, sc := range scores {
		item, ok := byID[sc.ItemID]
		if !ok {
			continue
		}
		recs = append(recs, models.Recommendation{
			Product: toProduct(item),
			Score:   sc.Score,
			Reason:  reasonPersonalized,
		})
	}
	return recs, nil
}

func toProduct(item recommender.CatalogItem) models.Product {
	return models.Product{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Price:       item.Price,
		Rating:      item.Rating,
		Tags:        splitTags(item.Tags),
		SoldCount:   item.SoldCount,
		ShopID:      item.ShopID,
		CreatedAt:   item.CreatedAt,
	}
}

func splitTags(tags string) []string {
	var out []string
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func toModelInfo(stats recommender.ModelStats) models.ModelInfo {
	return models.ModelInfo{
		Version:      stats.Version,
		Users:        stats.Users,
		Items:        stats.Items,
		ScoredPairs:  stats.ScoredPairs,
		BuiltAt:      stats.BuiltAt,
		BuildLatency: stats.BuildLatency,
	}
}
