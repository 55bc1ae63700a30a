package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/services"
	"github.com/temcen/marketrec/pkg/models"
)

type SearchHandler struct {
	service   services.SearchServiceInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewSearchHandler(service services.SearchServiceInterface, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Products handles GET /search/products
func (h *SearchHandler) Products(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondValidationError(c, "INVALID_QUERY", "Invalid query parameters", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidationError(c, "VALIDATION_FAILED", "Request validation failed", err)
		return
	}

	resp, err := h.service.Search(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// IndexProducts handles POST /search/index-products
func (h *SearchHandler) IndexProducts(c *gin.Context) {
	indexed, err := h.service.IndexProducts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.IndexResponse{Status: "indexed", Indexed: indexed})
}

// Rank handles POST /search/rank. The body has already passed the
// rank-request schema.
func (h *SearchHandler) Rank(c *gin.Context) {
	var req models.RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "INVALID_REQUEST_BODY", "Invalid request body format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidationError(c, "VALIDATION_FAILED", "Request validation failed", err)
		return
	}

	c.JSON(http.StatusOK, h.service.Rank(&req))
}

// Suggestions handles GET /search/suggestions
func (h *SearchHandler) Suggestions(c *gin.Context) {
	var req models.SuggestionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondValidationError(c, "INVALID_QUERY", "Invalid query parameters", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidationError(c, "VALIDATION_FAILED", "Search query must be at least 2 characters", err)
		return
	}

	resp, err := h.service.Suggestions(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Trending handles GET /search/trending
func (h *SearchHandler) Trending(c *gin.Context) {
	resp, err := h.service.TrendingSearches(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
