package services

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/cache"
	"github.com/temcen/marketrec/internal/config"
	"github.com/temcen/marketrec/internal/recommender"
)

// Dependencies are the collaborators the services are assembled from.
type Dependencies struct {
	Engine   *recommender.HybridRecommender
	Catalog  recommender.CatalogSource
	Insights recommender.CatalogInsights
	Cache    *cache.Recommendations
	// Index is nil when the search index is disabled.
	Index        SearchIndex
	HealthChecks []HealthCheck
	Registerer   prometheus.Registerer
}

type Services struct {
	Metrics        *Metrics
	Recommendation *RecommendationService
	Search         *SearchService
	Scheduler      *RetrainScheduler
	Health         *HealthService
}

func New(cfg *config.Config, logger *logrus.Logger, deps Dependencies) *Services {
	metrics := NewMetrics(deps.Registerer)
	deps.Engine.OnBuild = metrics.ObserveBuild

	checks := append([]HealthCheck{}, deps.HealthChecks...)
	checks = append(checks, HealthCheck{
		Name:  "recommendation_model",
		Check: modelCheck(deps.Engine),
	})

	return &Services{
		Metrics:        metrics,
		Recommendation: NewRecommendationService(deps.Engine, deps.Catalog, deps.Cache, metrics, cfg.Recommendation, logger),
		Search:         NewSearchService(deps.Catalog, deps.Insights, deps.Index, metrics, cfg.Search, logger),
		Scheduler:      NewRetrainScheduler(deps.Engine, cfg.Recommendation.RetrainInterval, logger),
		Health:         NewHealthService(checks, deps.Registerer, logger),
	}
}

func modelCheck(engine *recommender.HybridRecommender) func(context.Context) error {
	return func(context.Context) error {
		if !engine.Initialized() {
			return errors.New("recommendation model not built yet")
		}
		return nil
	}
}
