package models

import "time"

// Product is the API view of a catalog item.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Rating      float64   `json:"rating"`
	Tags        []string  `json:"tags,omitempty"`
	SoldCount   int       `json:"sold_count"`
	ShopID      string    `json:"shop_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recommendation kinds, also used as metric labels.
const (
	KindPersonalized = "personalized"
	KindSimilar      = "similar"
	KindTrending     = "trending"
	KindCategory     = "category"
)

type Recommendation struct {
	Product Product `json:"product"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

type RecommendationRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1"`
}

type TrendingRequest struct {
	Category string `form:"category" validate:"omitempty,max=128"`
	Limit    int    `form:"limit" validate:"omitempty,min=1"`
}

type RecommendationResponse struct {
	Kind            string           `json:"kind"`
	UserID          string           `json:"user_id,omitempty"`
	ProductID       string           `json:"product_id,omitempty"`
	Category        string           `json:"category,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	ModelVersion    uint64           `json:"model_version,omitempty"`
	CacheHit        bool             `json:"cache_hit"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// ModelInfo describes the recommendation model serving requests.
type ModelInfo struct {
	Version      uint64    `json:"version"`
	Users        int       `json:"users"`
	Items        int       `json:"items"`
	ScoredPairs  int       `json:"scored_pairs"`
	BuiltAt      time.Time `json:"built_at"`
	BuildLatency string    `json:"build_latency"`
}

type RetrainResponse struct {
	Status string    `json:"status"`
	Model  ModelInfo `json:"model"`
}
