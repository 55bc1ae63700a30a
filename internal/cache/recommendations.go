package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/recommender"
)

// KeyValueStore is the subset of a redis client the cache needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Recommendations caches blended scores per user. Keys carry the model
// version, so a retrain orphans every earlier entry and they age out by TTL.
type Recommendations struct {
	store  KeyValueStore
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRecommendations creates a cache. A nil store disables caching.
func NewRecommendations(store KeyValueStore, ttl time.Duration, logger *logrus.Logger) *Recommendations {
	return &Recommendations{store: store, ttl: ttl, logger: logger}
}

// Key builds the cache key for one request.
func Key(version uint64, userID string, limit int) string {
	return fmt.Sprintf("recs:v%d:%s:%d", version, userID, limit)
}

// Get returns the cached scores and whether they were found. Redis failures
// are logged and reported as a miss.
func (c *Recommendations) Get(ctx context.Context, version uint64, userID string, limit int) ([]recommender.Score, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	key := Key(version, userID, limit)
	data, err := c.store.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Recommendation cache read failed")
		}
		return nil, false
	}

	var scores []recommender.Score
	if err := json.Unmarshal(data, &scores); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Discarding malformed cache entry")
		return nil, false
	}
	return scores, true
}

// Set stores scores for one request. Failures are logged and otherwise ignored.
func (c *Recommendations) Set(ctx context.Context, version uint64, userID string, limit int, scores []recommender.Score) {
	if c == nil || c.store == nil || c.ttl <= 0 {
		return
	}

	data, err := json.Marshal(scores)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode recommendations for cache")
		return
	}

	key := Key(version, userID, limit)
	if err := c.store.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Recommendation cache write failed")
	}
}
