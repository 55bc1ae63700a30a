package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Search         *SearchHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Recommendation: NewRecommendationHandler(services.Recommendation, logger),
		Search:         NewSearchHandler(services.Search, logger),
	}
}
