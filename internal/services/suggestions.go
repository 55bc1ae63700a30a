package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/pkg/models"
)

const (
	minSuggestionQuery  = 2
	maxSuggestions      = 10
	productSuggestions  = 5
	categorySuggestions = 3
	brandSuggestions    = 3

	trendingCategories = 8
	trendingProducts   = 10
	// Categories rated below this never trend, however busy they are.
	minTrendingRating = 3.5
)

// Suggestions completes a partial query with matching product names,
// categories and shops, in that order.
func (s *SearchService) Suggestions(ctx context.Context, query string) (*models.SuggestionsResponse, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minSuggestionQuery {
		return nil, fmt.Errorf("%w: query must be at least %d characters", recommender.ErrInvalidInput, minSuggestionQuery)
	}

	var products, categories, brands []recommender.TermCount

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.insights.ProductNameCounts(gctx, query, productSuggestions)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.insights.CategoryCounts(gctx, query, categorySuggestions)
		return err
	})
	g.Go(func() error {
		var err error
		brands, err = s.insights.ShopProductCounts(gctx, query, brandSuggestions)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, recommender.Upstream("catalog", err)
	}

	suggestions := make([]models.Suggestion, 0, maxSuggestions)
	suggestions = appendSuggestions(suggestions, products, models.SuggestionProduct)
	suggestions = appendSuggestions(suggestions, categories, models.SuggestionCategory)
	suggestions = appendSuggestions(suggestions, brands, models.SuggestionBrand)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	s.logger.WithFields(logrus.Fields{
		"query":       query,
		"suggestions": len(suggestions),
	}).Debug("Search suggestions computed")

	return &models.SuggestionsResponse{Query: query, Suggestions: suggestions}, nil
}

func appendSuggestions(dst []models.Suggestion, terms []recommender.TermCount, kind string) []models.Suggestion {
	for _, term := range terms {
		if term.Term == "" {
			continue
		}
		dst = append(dst, models.Suggestion{Text: term.Term, Type: kind, Count: term.Count})
	}
	return dst
}

// TrendingSearches returns the busiest well-rated categories and the
// best-selling products.
func (s *SearchService) TrendingSearches(ctx context.Context) (*models.TrendingSearchesResponse, error) {
	var categories []recommender.TermCount
	var items []recommender.CatalogItem

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.insights.CategoryCounts(gctx, "", 0)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.catalog.FetchCatalogItems(gctx, recommender.CatalogFilter{
			Sort:  recommender.SortTrending,
			Limit: trendingProducts,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, recommender.Upstream("catalog", err)
	}

	resp := &models.TrendingSearchesResponse{
		Categories: make([]models.TrendingCategory, 0, trendingCategories),
		Products:   make([]models.TrendingProduct, 0, len(items)),
	}
	for _, c := range categories {
		if len(resp.Categories) == trendingCategories {
			break
		}
		if c.Term == "" || c.AvgRating < minTrendingRating {
			continue
		}
		resp.Categories = append(resp.Categories, models.TrendingCategory{
			Text:      c.Term,
			Type:      models.SuggestionCategory,
			Count:     c.Count,
			AvgRating: c.AvgRating,
		})
	}
	for _, item := range items {
		resp.Products = append(resp.Products, models.TrendingProduct{
			Text:     item.Name,
			Type:     models.SuggestionProduct,
			Category: item.Category,
			Rating:   item.Rating,
			Sales:    item.SoldCount,
		})
	}

	return resp, nil
}
