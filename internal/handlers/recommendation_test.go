package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/services"
	"github.com/temcen/marketrec/pkg/models"
)

// MockRecommendationService is a mock implementation
type MockRecommendationService struct {
	mock.Mock
}

func (m *MockRecommendationService) Personalized(ctx context.Context, userID string, limit int) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, userID, limit)
	resp, _ := args.Get(0).(*models.RecommendationResponse)
	return resp, args.Error(1)
}

func (m *MockRecommendationService) Similar(ctx context.Context, productID string, limit int) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, productID, limit)
	resp, _ := args.Get(0).(*models.RecommendationResponse)
	return resp, args.Error(1)
}

func (m *MockRecommendationService) Trending(ctx context.Context, category string, limit int) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, category, limit)
	resp, _ := args.Get(0).(*models.RecommendationResponse)
	return resp, args.Error(1)
}

func (m *MockRecommendationService) Category(ctx context.Context, category string, limit int) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, category, limit)
	resp, _ := args.Get(0).(*models.RecommendationResponse)
	return resp, args.Error(1)
}

func (m *MockRecommendationService) Retrain(ctx context.Context) (*models.RetrainResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*models.RetrainResponse)
	return resp, args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func recommendationRouter(handler *RecommendationHandler) *gin.Engine {
	router := gin.New()
	recommendations := router.Group("/api/v1/recommendations")
	{
		recommendations.GET("/personalized/:userId", handler.Personalized)
		recommendations.GET("/similar/:productId", handler.Similar)
		recommendations.GET("/trending", handler.Trending)
		recommendations.GET("/category/:category", handler.Category)
		recommendations.POST("/retrain", handler.Retrain)
	}
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error models.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestRecommendationHandler_Personalized(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := new(MockRecommendationService)
	router := recommendationRouter(NewRecommendationHandler(service, testLogger()))

	service.On("Personalized", mock.Anything, "u1", 0).Return(&models.RecommendationResponse{
		Kind:   models.KindPersonalized,
		UserID: "u1",
		Recommendations: []models.Recommendation{
			{Product: models.Product{ID: "p1", Name: "Keyboard"}, Score: 0.9, Reason: "personalized"},
			{Product: models.Product{ID: "p2", Name: "Mouse"}, Score: 0.5, Reason: "personalized"},
		},
		ModelVersion: 2,
		GeneratedAt:  time.Now(),
	}, nil)
	service.On("Personalized", mock.Anything, "u1", 5).Return(&models.RecommendationResponse{
		Kind:            models.KindPersonalized,
		UserID:          "u1",
		Recommendations: []models.Recommendation{},
	}, nil)
	service.On("Personalized", mock.Anything, "u1", 500).
		Return(nil, fmt.Errorf("%w: limit 500 exceeds maximum 100", recommender.ErrInvalidInput))
	service.On("Personalized", mock.Anything, "down", 0).
		Return(nil, recommender.Upstream("orders", errors.New("connection refused")))

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedCount  int
		expectedCode   string
	}{
		{
			name:           "Valid request with default limit",
			path:           "/api/v1/recommendations/personalized/u1",
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:           "Valid request with custom limit",
			path:           "/api/v1/recommendations/personalized/u1?limit=5",
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:           "Non-numeric limit",
			path:           "/api/v1/recommendations/personalized/u1?limit=abc",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_QUERY",
		},
		{
			name:           "Negative limit",
			path:           "/api/v1/recommendations/personalized/u1?limit=-3",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "Limit above maximum",
			path:           "/api/v1/recommendations/personalized/u1?limit=500",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_INPUT",
		},
		{
			name:           "Upstream failure",
			path:           "/api/v1/recommendations/personalized/down",
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "UPSTREAM_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response models.RecommendationResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "u1", response.UserID)
				assert.Len(t, response.Recommendations, tt.expectedCount)
			} else {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
			}
		})
	}
}

func TestRecommendationHandler_Similar(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := new(MockRecommendationService)
	router := recommendationRouter(NewRecommendationHandler(service, testLogger()))

	service.On("Similar", mock.Anything, "p1", 3).Return(&models.RecommendationResponse{
		Kind:      models.KindSimilar,
		ProductID: "p1",
		Recommendations: []models.Recommendation{
			{Product: models.Product{ID: "p3"}, Score: 0.46, Reason: "similar_products"},
		},
	}, nil)
	service.On("Similar", mock.Anything, "missing", 0).
		Return(nil, fmt.Errorf("%w: product missing", services.ErrNotFound))

	req, _ := http.NewRequest("GET", "/api/v1/recommendations/similar/p1?limit=3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response models.RecommendationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Recommendations, 1)
	assert.Equal(t, "p3", response.Recommendations[0].Product.ID)

	req, _ = http.NewRequest("GET", "/api/v1/recommendations/similar/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestRecommendationHandler_TrendingAndCategory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := new(MockRecommendationService)
	router := recommendationRouter(NewRecommendationHandler(service, testLogger()))

	service.On("Trending", mock.Anything, "Electronics", 4).
		Return(&models.RecommendationResponse{Kind: models.KindTrending, Category: "Electronics"}, nil)
	service.On("Category", mock.Anything, "Home Decor", 0).
		Return(&models.RecommendationResponse{Kind: models.KindCategory, Category: "Home Decor"}, nil)

	req, _ := http.NewRequest("GET", "/api/v1/recommendations/trending?category=Electronics&limit=4", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest("GET", "/api/v1/recommendations/category/Home%20Decor", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.RecommendationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Home Decor", response.Category)

	service.AssertExpectations(t)
}

func TestRecommendationHandler_Retrain(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("success", func(t *testing.T) {
		service := new(MockRecommendationService)
		router := recommendationRouter(NewRecommendationHandler(service, testLogger()))
		service.On("Retrain", mock.Anything).Return(&models.RetrainResponse{
			Status: "retrained",
			Model:  models.ModelInfo{Version: 3, Users: 10, Items: 25},
		}, nil)

		req, _ := http.NewRequest("POST", "/api/v1/recommendations/retrain", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.RetrainResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, uint64(3), response.Model.Version)
	})

	t.Run("unexpected failure", func(t *testing.T) {
		service := new(MockRecommendationService)
		router := recommendationRouter(NewRecommendationHandler(service, testLogger()))
		service.On("Retrain", mock.Anything).Return(nil, errors.New("failed to compute item similarity: context deadline exceeded"))

		req, _ := http.NewRequest("POST", "/api/v1/recommendations/retrain", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w))
	})
}
