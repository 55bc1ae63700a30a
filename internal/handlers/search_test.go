package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/marketrec/internal/middleware"
	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/services"
	"github.com/temcen/marketrec/internal/validation"
	"github.com/temcen/marketrec/pkg/models"
)

// MockSearchService is a mock implementation
type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.SearchResponse)
	return resp, args.Error(1)
}

func (m *MockSearchService) IndexProducts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSearchService) Rank(req *models.RankRequest) *models.RankResponse {
	args := m.Called(req)
	return args.Get(0).(*models.RankResponse)
}

func (m *MockSearchService) Suggestions(ctx context.Context, query string) (*models.SuggestionsResponse, error) {
	args := m.Called(ctx, query)
	resp, _ := args.Get(0).(*models.SuggestionsResponse)
	return resp, args.Error(1)
}

func (m *MockSearchService) TrendingSearches(ctx context.Context) (*models.TrendingSearchesResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*models.TrendingSearchesResponse)
	return resp, args.Error(1)
}

func searchRouter(t *testing.T, handler *SearchHandler) *gin.Engine {
	t.Helper()
	schemas, err := validation.NewSchemaValidator()
	require.NoError(t, err)
	validator := middleware.NewValidationMiddleware(schemas)

	router := gin.New()
	search := router.Group("/api/v1/search")
	{
		search.GET("/products", handler.Products)
		search.POST("/index-products", handler.IndexProducts)
		search.POST("/rank", validator.ValidateRankRequest(), handler.Rank)
		search.GET("/suggestions", handler.Suggestions)
		search.GET("/trending", handler.Trending)
	}
	return router
}

func TestSearchHandler_Products(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := new(MockSearchService)
	router := searchRouter(t, NewSearchHandler(service, testLogger()))

	score := 3.0
	service.On("Search", mock.Anything, mock.MatchedBy(func(req *models.SearchRequest) bool {
		return req.Query == "laptop" && req.Category == "Computers" &&
			req.MinPrice != nil && *req.MinPrice == 100 &&
			req.Rating != nil && *req.Rating == 4 &&
			req.SortBy == "price_asc" && req.Page == 2 && req.Limit == 5
	})).Return(&models.SearchResponse{
		Products:   []models.SearchResult{{Product: models.Product{ID: "laptop"}, Score: &score}},
		Pagination: models.NewPagination(6, 2, 5),
		Strategy:   "fuzzy",
	}, nil)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{
			name:           "Valid search",
			query:          "?query=laptop&category=Computers&minPrice=100&rating=4&sortBy=price_asc&page=2&limit=5",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Unknown sort",
			query:          "?query=laptop&sortBy=cheapest",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Rating out of range",
			query:          "?rating=9",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Malformed price",
			query:          "?minPrice=cheap",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/api/v1/search/products"+tt.query, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response models.SearchResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "fuzzy", response.Strategy)
				assert.Equal(t, 2, response.Pagination.TotalPages)
				assert.True(t, response.Pagination.HasPrevPage)
				assert.False(t, response.Pagination.HasNextPage)
				require.Len(t, response.Products, 1)
			}
		})
	}

	service.AssertNumberOfCalls(t, "Search", 1)
}

func TestSearchHandler_IndexProducts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("success", func(t *testing.T) {
		service := new(MockSearchService)
		router := searchRouter(t, NewSearchHandler(service, testLogger()))
		service.On("IndexProducts", mock.Anything).Return(42, nil)

		req, _ := http.NewRequest("POST", "/api/v1/search/index-products", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.IndexResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 42, response.Indexed)
	})

	t.Run("index disabled", func(t *testing.T) {
		service := new(MockSearchService)
		router := searchRouter(t, NewSearchHandler(service, testLogger()))
		service.On("IndexProducts", mock.Anything).Return(0, services.ErrIndexDisabled)

		req, _ := http.NewRequest("POST", "/api/v1/search/index-products", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "INDEX_DISABLED", errorCode(t, w))
	})
}

func TestSearchHandler_Rank(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := new(MockSearchService)
	router := searchRouter(t, NewSearchHandler(service, testLogger()))

	service.On("Rank", mock.MatchedBy(func(req *models.RankRequest) bool {
		return req.Query == "laptop" && len(req.Candidates) == 2
	})).Return(&models.RankResponse{
		Query: "laptop",
		Results: []models.RankedCandidate{
			{RankCandidate: models.RankCandidate{ID: "b"}, Score: 3},
			{RankCandidate: models.RankCandidate{ID: "a"}, Score: 1.8},
		},
	})

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Valid request",
			body:           `{"query":"laptop","candidates":[{"id":"a","name":"Laptop Bag"},{"id":"b","name":"Laptop"}]}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Candidate without id",
			body:           `{"query":"laptop","candidates":[{"name":"Laptop Bag"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "Negative weight",
			body:           `{"query":"laptop","candidates":[],"weights":{"name":-1}}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "Malformed JSON",
			body:           `{"query":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_JSON",
		},
		{
			name:           "Empty body",
			body:           ``,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "EMPTY_BODY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/api/v1/search/rank", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response models.RankResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				require.Len(t, response.Results, 2)
				assert.Equal(t, "b", response.Results[0].ID)
			} else {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
			}
		})
	}

	service.AssertNumberOfCalls(t, "Rank", 1)
}

func TestSearchHandler_Suggestions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := new(MockSearchService)
	router := searchRouter(t, NewSearchHandler(service, testLogger()))

	service.On("Suggestions", mock.Anything, "sh").Return(&models.SuggestionsResponse{
		Query: "sh",
		Suggestions: []models.Suggestion{
			{Text: "Trail Shoe", Type: models.SuggestionProduct, Count: 2},
			{Text: "Shoes", Type: models.SuggestionCategory, Count: 3},
		},
	}, nil)
	service.On("Suggestions", mock.Anything, " x ").
		Return(nil, fmt.Errorf("%w: query must be at least 2 characters", recommender.ErrInvalidInput))
	service.On("Suggestions", mock.Anything, "down").
		Return(nil, recommender.Upstream("catalog", errors.New("connection refused")))

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Two characters",
			query:          "?q=sh",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Missing query",
			query:          "",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "One character",
			query:          "?q=s",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "Blank after trimming",
			query:          "?q=%20x%20",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_INPUT",
		},
		{
			name:           "Catalog unavailable",
			query:          "?q=down",
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "UPSTREAM_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/api/v1/search/suggestions"+tt.query, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response models.SuggestionsResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				require.Len(t, response.Suggestions, 2)
				assert.Equal(t, "product", response.Suggestions[0].Type)
			} else {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
			}
		})
	}

	service.AssertNumberOfCalls(t, "Suggestions", 3)
}

func TestSearchHandler_Trending(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("success", func(t *testing.T) {
		service := new(MockSearchService)
		router := searchRouter(t, NewSearchHandler(service, testLogger()))
		service.On("TrendingSearches", mock.Anything).Return(&models.TrendingSearchesResponse{
			Categories: []models.TrendingCategory{{Text: "Shoes", Type: "category", Count: 3, AvgRating: 4.3}},
			Products:   []models.TrendingProduct{{Text: "Road Shoe", Type: "product", Category: "Shoes", Rating: 4, Sales: 300}},
		}, nil)

		req, _ := http.NewRequest("GET", "/api/v1/search/trending", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string][]map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body["categories"], 1)
		assert.Equal(t, 4.3, body["categories"][0]["avg_rating"])
		assert.Equal(t, 300.0, body["products"][0]["sales"])
	})

	t.Run("catalog unavailable", func(t *testing.T) {
		service := new(MockSearchService)
		router := searchRouter(t, NewSearchHandler(service, testLogger()))
		service.On("TrendingSearches", mock.Anything).
			Return(nil, recommender.Upstream("catalog", errors.New("timeout")))

		req, _ := http.NewRequest("GET", "/api/v1/search/trending", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, w))
	})
}
