package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/services"
)

// respondError maps a service error to its HTTP status and writes the
// standard error body.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		status  int
		code    string
		message string
	)

	switch {
	case errors.Is(err, recommender.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, services.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, services.ErrIndexDisabled):
		status, code, message = http.StatusServiceUnavailable, "INDEX_DISABLED", "Search index is disabled"
	case errors.Is(err, recommender.ErrUpstreamUnavailable):
		status, code, message = http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "A data source is temporarily unavailable"
	default:
		status, code, message = http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondValidationError(c *gin.Context, code, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": err.Error(),
		},
	})
}
