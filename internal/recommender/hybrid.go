package recommender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BlendWeights scale each engine's scores before they are summed per item.
type BlendWeights struct {
	Collaborative float64
	Content       float64
}

// DefaultBlendWeights favours purchase co-occurrence over item features.
var DefaultBlendWeights = BlendWeights{Collaborative: 0.6, Content: 0.4}

// Blend merges both engines' results by weighted sum keyed on item id. An
// item present in only one source keeps its partial score.
func Blend(collaborative, content []Score, weights BlendWeights, limit int) []Score {
	combined := make(map[string]float64, len(collaborative)+len(content))
	for _, s := range collaborative {
		combined[s.ItemID] += s.Score * weights.Collaborative
	}
	for _, s := range content {
		combined[s.ItemID] += s.Score * weights.Content
	}
	return topScores(combined, limit)
}

// HybridConfig tunes a HybridRecommender.
type HybridConfig struct {
	Weights BlendWeights
	// BuildTimeout bounds a model rebuild. Zero means no bound.
	BuildTimeout time.Duration
	// MinCoInteractions is passed to the collaborative engine.
	MinCoInteractions int
}

// ModelStats describes the model currently serving requests.
type ModelStats struct {
	Version      uint64    `json:"version"`
	Users        int       `json:"users"`
	Items        int       `json:"items"`
	ScoredPairs  int       `json:"scored_pairs"`
	BuiltAt      time.Time `json:"built_at"`
	BuildLatency string    `json:"build_latency"`
}

type model struct {
	matrix InteractionMatrix
	index  ItemSimilarityIndex
	stats  ModelStats
}

const buildKey = "model"

// HybridRecommender blends collaborative and content-based recommendations.
// The interaction matrix and similarity index are built lazily on first use
// and replaced wholesale on Retrain; readers always see a complete model.
type HybridRecommender struct {
	orders  OrderSource
	catalog CatalogSource
	history PurchaseHistorySource

	collaborative *CollaborativeEngine
	content       *ContentEngine
	config        HybridConfig
	logger        *logrus.Logger

	mu      sync.RWMutex
	model   *model
	version uint64

	builds singleflight.Group

	// OnBuild, when set, observes every completed rebuild attempt.
	OnBuild func(duration time.Duration, err error)
}

// NewHybridRecommender creates an uninitialized recommender.
func NewHybridRecommender(
	orders OrderSource,
	catalog CatalogSource,
	history PurchaseHistorySource,
	config HybridConfig,
	logger *logrus.Logger,
) *HybridRecommender {
	if config.Weights == (BlendWeights{}) {
		config.Weights = DefaultBlendWeights
	}

	collaborative := NewCollaborativeEngine()
	if config.MinCoInteractions > 0 {
		collaborative.MinCoInteractions = config.MinCoInteractions
	}

	return &HybridRecommender{
		orders:        orders,
		catalog:       catalog,
		history:       history,
		collaborative: collaborative,
		content:       NewContentEngine(),
		config:        config,
		logger:        logger,
	}
}

// Initialized reports whether a model is available.
func (h *HybridRecommender) Initialized() bool {
	return h.current() != nil
}

// Version identifies the serving model; it grows with every successful build
// and is zero before the first one.
func (h *HybridRecommender) Version() uint64 {
	if m := h.current(); m != nil {
		return m.stats.Version
	}
	return 0
}

// Stats describes the serving model, or reports false before initialization.
func (h *HybridRecommender) Stats() (ModelStats, bool) {
	m := h.current()
	if m == nil {
		return ModelStats{}, false
	}
	return m.stats, true
}

// Initialize builds the model unless one is already serving. Concurrent
// callers share a single build.
func (h *HybridRecommender) Initialize(ctx context.Context) error {
	if h.Initialized() {
		return nil
	}
	return h.rebuild(ctx, false)
}

// Retrain rebuilds the model from a fresh order snapshot. The previous model
// keeps serving until the new one is complete, and stays if the build fails.
func (h *HybridRecommender) Retrain(ctx context.Context) error {
	return h.rebuild(ctx, true)
}

// GetRecommendations returns up to limit blended recommendations for userID.
// Each engine is asked for twice as many candidates to give the blend room.
func (h *HybridRecommender) GetRecommendations(ctx context.Context, userID string, limit int) ([]Score, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidInput, limit)
	}

	if err := h.Initialize(ctx); err != nil {
		return nil, err
	}
	m := h.current()
	candidates := limit * 2

	var collaborative, content []Score

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collaborative = h.collaborative.Recommend(m.matrix, m.index, userID, candidates)
		return nil
	})
	g.Go(func() error {
		var err error
		content, err = h.contentRecommendations(gctx, userID, candidates)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := Blend(collaborative, content, h.config.Weights, limit)

	h.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"collaborative": len(collaborative),
		"content":       len(content),
		"results":       len(results),
		"model_version": m.stats.Version,
	}).Debug("Hybrid recommendations generated")

	return results, nil
}

// ItemSimilarity exposes the content engine's pairwise score.
func (h *HybridRecommender) ItemSimilarity(a, b CatalogItem) float64 {
	return h.content.ItemSimilarity(a, b)
}

func (h *HybridRecommender) contentRecommendations(ctx context.Context, userID string, limit int) ([]Score, error) {
	purchases, err := h.history.FetchUserPurchasedItems(ctx, userID)
	if err != nil {
		return nil, Upstream("purchase_history", err)
	}
	if len(purchases) == 0 {
		return []Score{}, nil
	}

	catalog, err := h.catalog.FetchCatalogItems(ctx, CatalogFilter{})
	if err != nil {
		return nil, Upstream("catalog", err)
	}

	return h.content.Recommend(catalog, purchases, limit)
}

func (h *HybridRecommender) current() *model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

func (h *HybridRecommender) rebuild(ctx context.Context, force bool) error {
	ch := h.builds.DoChan(buildKey, func() (interface{}, error) {
		if !force && h.Initialized() {
			return nil, nil
		}

		// The build is shared by every waiting caller, so it must not die
		// with whichever caller happened to start it.
		buildCtx := context.WithoutCancel(ctx)
		if h.config.BuildTimeout > 0 {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithTimeout(buildCtx, h.config.BuildTimeout)
			defer cancel()
		}
		return nil, h.build(buildCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *HybridRecommender) build(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if h.OnBuild != nil {
			h.OnBuild(time.Since(start), err)
		}
	}()

	orders, err := h.orders.FetchFulfilledOrders(ctx)
	if err != nil {
		err = Upstream("orders", err)
		h.logger.WithError(err).Error("Failed to fetch fulfilled orders")
		return err
	}

	orders, anonymous := withUser(orders)
	if anonymous > 0 {
		h.logger.WithField("skipped_orders", anonymous).Warn("Skipping fulfilled orders without a user")
	}

	matrix, err := BuildInteractionMatrix(orders)
	if err != nil {
		// Invalid stored orders are an upstream fault.
		err = Upstream("orders", fmt.Errorf("unusable order data: %s", err.Error()))
		h.logger.WithError(err).Error("Failed to build interaction matrix")
		return err
	}

	index, err := h.collaborative.ComputeItemSimilarity(ctx, matrix)
	if err != nil {
		err = fmt.Errorf("failed to compute item similarity: %w", err)
		h.logger.WithError(err).Error("Model build aborted")
		return err
	}

	pairs := 0
	for _, neighbours := range index {
		pairs += len(neighbours)
	}

	latency := time.Since(start)

	h.mu.Lock()
	h.version++
	h.model = &model{
		matrix: matrix,
		index:  index,
		stats: ModelStats{
			Version:      h.version,
			Users:        len(matrix),
			Items:        len(matrix.Items()),
			ScoredPairs:  pairs / 2,
			BuiltAt:      time.Now(),
			BuildLatency: latency.String(),
		},
	}
	stats := h.model.stats
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"version":      stats.Version,
		"orders":       len(orders),
		"users":        stats.Users,
		"items":        stats.Items,
		"scored_pairs": stats.ScoredPairs,
		"latency":      latency,
	}).Info("Recommendation model built")

	return nil
}

// withUser drops orders that cannot be attributed to a user, such as guest
// checkouts or orders of deleted accounts, and reports how many it dropped.
func withUser(orders []FulfilledOrder) ([]FulfilledOrder, int) {
	kept := make([]FulfilledOrder, 0, len(orders))
	for _, order := range orders {
		if order.UserID != "" {
			kept = append(kept, order)
		}
	}
	return kept, len(orders) - len(kept)
}
