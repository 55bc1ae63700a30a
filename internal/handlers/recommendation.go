package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/services"
	"github.com/temcen/marketrec/pkg/models"
)

type RecommendationHandler struct {
	service   services.RecommendationServiceInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewRecommendationHandler(
	service services.RecommendationServiceInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Personalized handles GET /recommendations/personalized/:userId
func (h *RecommendationHandler) Personalized(c *gin.Context) {
	var req models.RecommendationRequest
	if !h.bindQuery(c, &req) {
		return
	}

	resp, err := h.service.Personalized(c.Request.Context(), c.Param("userId"), req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Similar handles GET /recommendations/similar/:productId
func (h *RecommendationHandler) Similar(c *gin.Context) {
	var req models.RecommendationRequest
	if !h.bindQuery(c, &req) {
		return
	}

	resp, err := h.service.Similar(c.Request.Context(), c.Param("productId"), req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Trending handles GET /recommendations/trending
func (h *RecommendationHandler) Trending(c *gin.Context) {
	var req models.TrendingRequest
	if !h.bindQuery(c, &req) {
		return
	}

	resp, err := h.service.Trending(c.Request.Context(), req.Category, req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Category handles GET /recommendations/category/:category
func (h *RecommendationHandler) Category(c *gin.Context) {
	var req models.RecommendationRequest
	if !h.bindQuery(c, &req) {
		return
	}

	resp, err := h.service.Category(c.Request.Context(), c.Param("category"), req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Retrain handles POST /recommendations/retrain
func (h *RecommendationHandler) Retrain(c *gin.Context) {
	resp, err := h.service.Retrain(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithField("version", resp.Model.Version).Info("Recommendation model retrained on request")
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		respondValidationError(c, "INVALID_QUERY", "Invalid query parameters", err)
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		respondValidationError(c, "VALIDATION_FAILED", "Request validation failed", err)
		return false
	}
	return true
}
