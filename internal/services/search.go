package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/config"
	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/search"
	"github.com/temcen/marketrec/pkg/models"
)

const sortRelevance = "relevance"

// SearchIndex is the full-text accelerator behind the indexed strategy.
// *search.Index implements it.
type SearchIndex interface {
	Search(q search.IndexQuery) ([]search.IndexHit, uint64, error)
	Rebuild(items []recommender.CatalogItem) (int, error)
	Count() (uint64, error)
}

// SearchService answers product searches. It picks a strategy per request:
// the index when one is loaded, otherwise a datastore page re-ranked by
// fuzzy relevance, or the plain page when there is no query text.
type SearchService struct {
	catalog  recommender.CatalogSource
	insights recommender.CatalogInsights
	index    SearchIndex
	ranker   *search.Ranker
	metrics  *Metrics
	config   config.SearchConfig
	logger   *logrus.Logger
}

// NewSearchService creates a search service. index may be nil.
func NewSearchService(
	catalog recommender.CatalogSource,
	insights recommender.CatalogInsights,
	index SearchIndex,
	metrics *Metrics,
	cfg config.SearchConfig,
	logger *logrus.Logger,
) *SearchService {
	return &SearchService{
		catalog:  catalog,
		insights: insights,
		index:    index,
		ranker:   search.NewRanker(),
		metrics:  metrics,
		config:   cfg,
		logger:   logger,
	}
}

type searchPage struct {
	results []models.SearchResult
	total   int64
}

func (s *SearchService) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	page, limit, err := s.resolvePage(req)
	if err != nil {
		return nil, err
	}
	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		return nil, fmt.Errorf("%w: minPrice exceeds maxPrice", recommender.ErrInvalidInput)
	}

	sortBy := req.SortBy
	if sortBy == sortRelevance {
		sortBy = ""
	}
	filter := recommender.CatalogFilter{
		Query:     strings.TrimSpace(req.Query),
		Category:  strings.TrimSpace(req.Category),
		MinPrice:  req.MinPrice,
		MaxPrice:  req.MaxPrice,
		MinRating: req.Rating,
		Sort:      recommender.SortOrder(sortBy),
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	start := time.Now()
	strategy := search.SelectStrategy(s.indexAvailable(), filter.Query)

	var result searchPage
	switch strategy {
	case search.IndexedSearch:
		result, err = s.indexedSearch(ctx, filter)
		if err != nil && fallbackable(err) {
			s.logger.WithError(err).Warn("Index search failed, falling back to fuzzy ranking")
			strategy = search.FuzzyFallback
			result, err = s.fuzzySearch(ctx, filter)
		}
	case search.FuzzyFallback:
		result, err = s.fuzzySearch(ctx, filter)
	default:
		result, err = s.unrankedSearch(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSearch(strategy.String(), start)

	s.logger.WithFields(logrus.Fields{
		"query":    filter.Query,
		"strategy": strategy.String(),
		"results":  len(result.results),
		"total":    result.total,
	}).Debug("Product search completed")

	return &models.SearchResponse{
		Products:   result.results,
		Pagination: models.NewPagination(result.total, page, limit),
		Strategy:   strategy.String(),
	}, nil
}

// IndexProducts reloads the search index from the full catalog.
func (s *SearchService) IndexProducts(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, ErrIndexDisabled
	}

	items, err := s.catalog.FetchCatalogItems(ctx, recommender.CatalogFilter{})
	if err != nil {
		return 0, recommender.Upstream("catalog", err)
	}

	indexed, err := s.index.Rebuild(items)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild search index: %w", err)
	}

	s.logger.WithField("indexed", indexed).Info("Search index rebuilt")
	return indexed, nil
}

// Rank orders caller-supplied candidates by fuzzy relevance to the query.
func (s *SearchService) Rank(req *models.RankRequest) *models.RankResponse {
	ranker := s.ranker
	if req.Weights != nil {
		ranker = &search.Ranker{Weights: search.FieldWeights{
			Name:        req.Weights.Name,
			Description: req.Weights.Description,
			Category:    req.Weights.Category,
		}}
	}

	candidates := make([]search.Candidate, len(req.Candidates))
	for i, c := range req.Candidates {
		candidates[i] = search.Candidate{ID: c.ID, Name: c.Name, Description: c.Description, Category: c.Category}
	}

	// Nothing to score against: candidates keep their submitted order.
	var ranked []search.Ranked
	if strings.TrimSpace(req.Query) == "" {
		ranked = make([]search.Ranked, len(candidates))
		for i, c := range candidates {
			ranked[i] = search.Ranked{Candidate: c}
		}
	} else {
		ranked = ranker.Rank(req.Query, candidates)
	}

	results := make([]models.RankedCandidate, len(ranked))
	for i, r := range ranked {
		results[i] = models.RankedCandidate{
			RankCandidate: models.RankCandidate{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				Category:    r.Category,
			},
			Score: r.Score,
		}
	}

	return &models.RankResponse{Query: req.Query, Results: results}
}

func (s *SearchService) resolvePage(req *models.SearchRequest) (int, int, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if s.config.MaxLimit > 0 && limit > s.config.MaxLimit {
		return 0, 0, fmt.Errorf("%w: limit %d exceeds maximum %d", recommender.ErrInvalidInput, limit, s.config.MaxLimit)
	}
	return page, limit, nil
}

func (s *SearchService) indexAvailable() bool {
	if s.index == nil {
		return false
	}
	n, err := s.index.Count()
	return err == nil && n > 0
}

func (s *SearchService) indexedSearch(ctx context.Context, filter recommender.CatalogFilter) (searchPage, error) {
	hits, total, err := s.index.Search(search.IndexQuery{
		Text:      filter.Query,
		Category:  filter.Category,
		MinPrice:  filter.MinPrice,
		MaxPrice:  filter.MaxPrice,
		MinRating: filter.MinRating,
		Sort:      filter.Sort,
		Size:      filter.Limit,
		From:      filter.Offset,
	})
	if err != nil {
		return searchPage{}, err
	}
	if len(hits) == 0 {
		return searchPage{results: []models.SearchResult{}, total: int64(total)}, nil
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	items, err := s.catalog.FetchCatalogItemsByIDs(ctx, ids)
	if err != nil {
		return searchPage{}, recommender.Upstream("catalog", err)
	}
	byID := make(map[string]recommender.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	// Hits whose product was deleted since the last rebuild are dropped.
	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		item, ok := byID[hit.ID]
		if !ok {
			continue
		}
		score := hit.Score
		results = append(results, models.SearchResult{Product: toProduct(item), Score: &score})
	}
	return searchPage{results: results, total: int64(total)}, nil
}

func (s *SearchService) fuzzySearch(ctx context.Context, filter recommender.CatalogFilter) (searchPage, error) {
	items, total, err := s.catalogPage(ctx, filter)
	if err != nil {
		return searchPage{}, err
	}

	candidates := make([]search.Candidate, len(items))
	byID := make(map[string]recommender.CatalogItem, len(items))
	for i, item := range items {
		candidates[i] = search.Candidate{ID: item.ID, Name: item.Name, Description: item.Description, Category: item.Category}
		byID[item.ID] = item
	}

	// An explicit sort order wins over relevance; scores are still reported.
	var ranked []search.Ranked
	if filter.Sort == recommender.SortNone {
		ranked = s.ranker.Rank(filter.Query, candidates)
	} else {
		ranked = make([]search.Ranked, len(candidates))
		for i, c := range candidates {
			ranked[i] = search.Ranked{Candidate: c, Score: s.ranker.Score(filter.Query, c)}
		}
	}

	results := make([]models.SearchResult, len(ranked))
	for i, r := range ranked {
		score := r.Score
		results[i] = models.SearchResult{Product: toProduct(byID[r.ID]), Score: &score}
	}
	return searchPage{results: results, total: total}, nil
}

func (s *SearchService) unrankedSearch(ctx context.Context, filter recommender.CatalogFilter) (searchPage, error) {
	items, total, err := s.catalogPage(ctx, filter)
	if err != nil {
		return searchPage{}, err
	}

	results := make([]models.SearchResult, len(items))
	for i, item := range items {
		results[i] = models.SearchResult{Product: toProduct(item)}
	}
	return searchPage{results: results, total: total}, nil
}

func (s *SearchService) catalogPage(ctx context.Context, filter recommender.CatalogFilter) ([]recommender.CatalogItem, int64, error) {
	items, err := s.catalog.FetchCatalogItems(ctx, filter)
	if err != nil {
		return nil, 0, recommender.Upstream("catalog", err)
	}
	total, err := s.catalog.CountCatalogItems(ctx, filter)
	if err != nil {
		return nil, 0, recommender.Upstream("catalog", err)
	}
	return items, total, nil
}

// fallbackable reports whether a failed index search may be retried against
// the datastore. Datastore and cancellation failures would just repeat.
func fallbackable(err error) bool {
	return !errors.Is(err, recommender.ErrUpstreamUnavailable) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
