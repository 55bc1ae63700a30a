package models

type SearchRequest struct {
	Query    string   `form:"query" validate:"max=256"`
	Category string   `form:"category" validate:"max=128"`
	MinPrice *float64 `form:"minPrice" validate:"omitempty,gte=0"`
	MaxPrice *float64 `form:"maxPrice" validate:"omitempty,gte=0"`
	Rating   *float64 `form:"rating" validate:"omitempty,gte=0,lte=5"`
	SortBy   string   `form:"sortBy" validate:"omitempty,oneof=relevance price_asc price_desc rating newest"`
	Page     int      `form:"page" validate:"omitempty,min=1"`
	Limit    int      `form:"limit" validate:"omitempty,min=1"`
}

type SearchResult struct {
	Product
	Score *float64 `json:"score,omitempty"`
}

type SearchResponse struct {
	Products   []SearchResult `json:"products"`
	Pagination Pagination     `json:"pagination"`
	Strategy   string         `json:"strategy"`
}

type IndexResponse struct {
	Status  string `json:"status"`
	Indexed int    `json:"indexed"`
}

type RankCandidate struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type RankWeights struct {
	Name        float64 `json:"name" validate:"gte=0"`
	Description float64 `json:"description" validate:"gte=0"`
	Category    float64 `json:"category" validate:"gte=0"`
}

type RankRequest struct {
	Query      string          `json:"query" validate:"max=256"`
	Candidates []RankCandidate `json:"candidates" validate:"max=1000,dive"`
	Weights    *RankWeights    `json:"weights,omitempty"`
}

type RankedCandidate struct {
	RankCandidate
	Score float64 `json:"score"`
}

type RankResponse struct {
	Query   string            `json:"query"`
	Results []RankedCandidate `json:"results"`
}

type SuggestionsRequest struct {
	Query string `form:"q" validate:"required,min=2,max=100"`
}

// Suggestion types
const (
	SuggestionProduct  = "product"
	SuggestionCategory = "category"
	SuggestionBrand    = "brand"
)

type Suggestion struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type SuggestionsResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
}

type TrendingCategory struct {
	Text      string  `json:"text"`
	Type      string  `json:"type"`
	Count     int     `json:"count"`
	AvgRating float64 `json:"avg_rating"`
}

type TrendingProduct struct {
	Text     string  `json:"text"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	Sales    int     `json:"sales"`
}

type TrendingSearchesResponse struct {
	Categories []TrendingCategory `json:"categories"`
	Products   []TrendingProduct  `json:"products"`
}
