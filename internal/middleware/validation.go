package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temcen/marketrec/internal/validation"
)

const maxPathParamLength = 128

// ValidationMiddleware provides request validation middleware
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

// NewValidationMiddleware creates a new validation middleware instance
func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validator,
	}
}

// ValidateRankRequest validates rank request bodies
func (vm *ValidationMiddleware) ValidateRankRequest() gin.HandlerFunc {
	return vm.validateRequestBody(validation.RankRequestSchema)
}

// validateRequestBody creates a middleware that validates request body against a schema
func (vm *ValidationMiddleware) validateRequestBody(schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			vm.sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		// Restore request body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if len(bytes.TrimSpace(bodyBytes)) == 0 {
			vm.sendValidationError(c, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		result := vm.validator.Validate(schemaName, bodyBytes)
		if !result.Valid {
			vm.sendValidationErrors(c, result.Errors)
			return
		}

		c.Next()
	}
}

// ValidatePathParams rejects empty, oversized or non-printable path identifiers
func (vm *ValidationMiddleware) ValidatePathParams(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		errors := make([]validation.ValidationError, 0)

		for _, name := range names {
			value := c.Param(name)
			if !isValidIdentifier(value) {
				errors = append(errors, validation.ValidationError{
					Field:   name,
					Message: "Path parameter must be 1-128 printable characters",
					Code:    "INVALID_PATH_PARAM",
					Value:   value,
				})
			}
		}

		if len(errors) > 0 {
			vm.sendValidationErrors(c, errors)
			return
		}

		c.Next()
	}
}

func isValidIdentifier(value string) bool {
	if len(value) == 0 || len(value) > maxPathParamLength {
		return false
	}
	for _, char := range value {
		if char < 0x20 || char == 0x7f {
			return false
		}
	}
	return true
}

// Error response helpers
func (vm *ValidationMiddleware) sendValidationError(c *gin.Context, code, message string, details map[string]interface{}) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      code,
			"message":   message,
			"details":   details,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"requestId": GetRequestID(c),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		},
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse)
}

func (vm *ValidationMiddleware) sendValidationErrors(c *gin.Context, errors []validation.ValidationError) {
	errorDetails := make(map[string]interface{})
	errorDetails["validationErrors"] = errors

	// Group errors by field for easier client handling
	fieldErrors := make(map[string][]string)
	for _, err := range errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	if len(fieldErrors) > 0 {
		errorDetails["fieldErrors"] = fieldErrors
	}

	code := "VALIDATION_ERROR"
	if len(errors) == 1 && errors[0].Code == "INVALID_JSON" {
		code = "INVALID_JSON"
	}

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      code,
			"message":   "Request validation failed",
			"details":   errorDetails,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"requestId": GetRequestID(c),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		},
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse)
}
