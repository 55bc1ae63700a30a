package store

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/marketrec/internal/recommender"
)

type flakyOrders struct {
	err   error
	calls int
}

func (f *flakyOrders) FetchFulfilledOrders(ctx context.Context) ([]recommender.FulfilledOrder, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []recommender.FulfilledOrder{{OrderID: "o1", UserID: "u1"}}, nil
}

type fixedCatalog struct{}

func (fixedCatalog) FetchCatalogItems(ctx context.Context, filter recommender.CatalogFilter) ([]recommender.CatalogItem, error) {
	return []recommender.CatalogItem{{ID: "p1"}}, nil
}

func (fixedCatalog) FetchCatalogItemsByIDs(ctx context.Context, ids []string) ([]recommender.CatalogItem, error) {
	return nil, nil
}

func (fixedCatalog) CountCatalogItems(ctx context.Context, filter recommender.CatalogFilter) (int64, error) {
	return 7, nil
}

type fixedInsights struct {
	err error
}

func (f fixedInsights) ProductNameCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return []recommender.TermCount{{Term: "Trail Shoe", Count: 2}}, f.err
}

func (f fixedInsights) CategoryCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return []recommender.TermCount{{Term: "Shoes", Count: 4, AvgRating: 4.2}}, f.err
}

func (f fixedInsights) ShopProductCounts(ctx context.Context, query string, limit int) ([]recommender.TermCount, error) {
	return []recommender.TermCount{{Term: "Acme", Count: 9}}, f.err
}

func TestGuard(t *testing.T) {
	t.Run("passes results through", func(t *testing.T) {
		guard := NewGuard("postgres", BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, newTestLogger())

		orders, err := guard.Orders(&flakyOrders{}).FetchFulfilledOrders(context.Background())
		require.NoError(t, err)
		assert.Len(t, orders, 1)

		catalog := guard.Catalog(fixedCatalog{})
		count, err := catalog.CountCatalogItems(context.Background(), recommender.CatalogFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)

		items, err := catalog.FetchCatalogItemsByIDs(context.Background(), []string{"x"})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("failures are upstream errors and open the circuit", func(t *testing.T) {
		guard := NewGuard("postgres", BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, newTestLogger())
		src := &flakyOrders{err: errors.New("connection refused")}
		orders := guard.Orders(src)

		for i := 0; i < 2; i++ {
			_, err := orders.FetchFulfilledOrders(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, recommender.ErrUpstreamUnavailable)

			var ue *recommender.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, "postgres", ue.Source)
		}
		assert.Equal(t, gobreaker.StateOpen, guard.State())

		_, err := orders.FetchFulfilledOrders(context.Background())
		assert.ErrorIs(t, err, recommender.ErrUpstreamUnavailable)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, 2, src.calls)
	})

	t.Run("cancellation does not trip the breaker", func(t *testing.T) {
		guard := NewGuard("mongo", BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, newTestLogger())
		src := &flakyOrders{err: context.Canceled}

		_, err := guard.Orders(src).FetchFulfilledOrders(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, recommender.ErrUpstreamUnavailable)
		assert.Equal(t, gobreaker.StateClosed, guard.State())
	})

	t.Run("shared across sources of one backend", func(t *testing.T) {
		guard := NewGuard("mongo", BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, newTestLogger())

		_, err := guard.Orders(&flakyOrders{err: errors.New("down")}).FetchFulfilledOrders(context.Background())
		require.Error(t, err)

		_, err = guard.Catalog(fixedCatalog{}).FetchCatalogItems(context.Background(), recommender.CatalogFilter{})
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})

	t.Run("guards catalog insights", func(t *testing.T) {
		guard := NewGuard("postgres", BreakerConfig{MaxFailures: 5, OpenTimeout: time.Minute}, newTestLogger())

		terms, err := guard.Insights(fixedInsights{}).CategoryCounts(context.Background(), "", 0)
		require.NoError(t, err)
		assert.Equal(t, []recommender.TermCount{{Term: "Shoes", Count: 4, AvgRating: 4.2}}, terms)

		insights := guard.Insights(fixedInsights{err: errors.New("relation \"shops\" does not exist")})
		_, err = insights.ShopProductCounts(context.Background(), "acme", 3)
		assert.ErrorIs(t, err, recommender.ErrUpstreamUnavailable)
		_, err = insights.ProductNameCounts(context.Background(), "shoe", 5)
		assert.ErrorIs(t, err, recommender.ErrUpstreamUnavailable)
	})
}
