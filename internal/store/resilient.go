package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/temcen/marketrec/internal/recommender"
)

// BreakerConfig tunes the circuit breaker guarding one backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
}

// Guard wraps the reads of one backend in a shared circuit breaker and
// reports every failure as an upstream error.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker[any]
}

// NewGuard creates a guard for the backend called name.
func NewGuard(name string, cfg BreakerConfig, logger *logrus.Logger) *Guard {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A caller giving up says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"backend": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Guard{name: name, breaker: gobreaker.NewCircuitBreaker[any](settings)}
}

// State reports the breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

func guarded[T any](g *Guard, fn func() (T, error)) (T, error) {
	res, err := g.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, recommender.Upstream(g.name, err)
	}
	return res.(T), nil
}

// Orders guards an OrderSource.
func (g *Guard) Orders(src recommender.OrderSource) recommender.OrderSource {
	return &guardedOrders{guard: g, src: src}
}

// Catalog guards a CatalogSource.
func (g *Guard) Catalog(src recommender.CatalogSource) recommender.CatalogSource {
	return &guardedCatalog{guard: g, src: src}
}

// History guards a PurchaseHistorySource.
func (g *Guard) History(src recommender.PurchaseHistorySource) recommender.PurchaseHistorySource {
	return &guardedHistory{guard: g, src: src}
}

// Insights guards a CatalogInsights.
func (g *Guard) Insights(src recommender.CatalogInsights) recommender.CatalogInsights {
	return &guardedInsights{guard: g, src: src}
}

type guardedOrders struct {
	guard *Guard
	src   recommender.OrderSource
}

func (o *guardedOrders) FetchFulfilledOrders(ctx context.Context) ([]recommender.FulfilledOrder, error) {
	return guarded(o.guard, func() ([]recommender.FulfilledOrder, error) {
		return o.src.FetchFulfilledOrders(ctx)
	})
}

type guardedCatalog struct {
	guard *Guard
	src   recommender.CatalogSource
}

func (c *guardedCatalog) FetchCatalogItems(ctx context.Context, filter recommender.CatalogFilter) ([]recommender.CatalogItem, error) {
	return guarded(c.guard, func() ([]recommender.CatalogItem, error) {
		return c.src.FetchCatalogItems(ctx, filter)
	})
}

func (c *guardedCatalog) FetchCatalogItemsByIDs(ctx context.Context, ids []string) ([]recommender.CatalogItem, error) {
	return guarded(c.guard, func() ([]recommender.CatalogItem, error) {
		return c.src.FetchCatalogItemsByIDs(ctx, ids)
	})
}

func (c *guardedCatalog) CountCatalogItems(ctx context.Context, filter recommender.CatalogFilter) (int64, error) {
	return guarded(c.guard, func() (int64, error) {
		return c.src.CountCatalogItems(ctx, filter)
	})
}

type guardedHistory struct {
	guard *Guard
	src   recommender.PurchaseHistorySource
}

func (h *guardedHistory) FetchUserPurchasedItems(ctx context.Context, userID string) ([]recommender.CatalogItem, error) {
	return guarded(h.guard, func() ([]recommender.CatalogItem, error) {
		return h.src.FetchUserPurchasedItems(ctx, userID)
	})
}

type guardedInsights struct {
	guard *Guard
	src   recommender.CatalogInsights
}

func (i *guardedInsights) ProductNameCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return guarded(i.guard, func() ([]recommender.TermCount, error) {
		return i.src.ProductNameCounts(ctx, query, limit)
	})
}

func (i *guardedInsights) CategoryCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return guarded(i.guard, func() ([]recommender.TermCount, error) {
		return i.src.CategoryCounts(ctx, query, limit)
	})
}

func (i *guardedInsights) ShopProductCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return guarded(i.guard, func() ([]recommender.TermCount, error) {
		return i.src.ShopProductCounts(ctx, query, limit)
	})
}
