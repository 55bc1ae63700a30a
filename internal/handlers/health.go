package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/services"
)

type HealthHandler struct {
	logger        *logrus.Logger
	healthService *services.HealthService
}

func NewHealthHandler(logger *logrus.Logger, healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
	}
}

// Check handles GET /health. A degraded service still answers 200.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth(c.Request.Context())

	code, ok := healthStatusCodes[status.Status]
	if !ok {
		code = http.StatusInternalServerError
	}
	if code != http.StatusOK {
		h.logger.WithFields(logrus.Fields{
			"status":            status.Status,
			"critical_failures": status.Critical,
		}).Warn("Health check failed")
	}

	c.JSON(code, status)
}

var healthStatusCodes = map[string]int{
	"healthy":   http.StatusOK,
	"degraded":  http.StatusOK,
	"unhealthy": http.StatusServiceUnavailable,
}
