package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/marketrec/internal/recommender"
)

type memoryStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	failGet error
	failSet error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.failGet != nil {
		return redis.NewStringResult("", m.failGet)
	}
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.failSet != nil {
		return redis.NewStatusResult("", m.failSet)
	}
	m.values[key] = string(value.([]byte))
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestKey(t *testing.T) {
	assert.Equal(t, "recs:v3:u1:10", Key(3, "u1", 10))
}

func TestRecommendations(t *testing.T) {
	scores := []recommender.Score{{ItemID: "a", Score: 1.5}, {ItemID: "b", Score: 0.25}}

	t.Run("round trip with ttl", func(t *testing.T) {
		store := newMemoryStore()
		c := NewRecommendations(store, 15*time.Minute, quietLogger())

		_, ok := c.Get(context.Background(), 1, "u1", 10)
		assert.False(t, ok)

		c.Set(context.Background(), 1, "u1", 10, scores)
		got, ok := c.Get(context.Background(), 1, "u1", 10)
		require.True(t, ok)
		assert.Equal(t, scores, got)
		assert.Equal(t, 15*time.Minute, store.ttls["recs:v1:u1:10"])
	})

	t.Run("new model version misses", func(t *testing.T) {
		c := NewRecommendations(newMemoryStore(), time.Minute, quietLogger())
		c.Set(context.Background(), 1, "u1", 10, scores)

		_, ok := c.Get(context.Background(), 2, "u1", 10)
		assert.False(t, ok)
	})

	t.Run("redis errors are misses", func(t *testing.T) {
		store := newMemoryStore()
		store.failGet = errors.New("i/o timeout")
		store.failSet = errors.New("i/o timeout")
		c := NewRecommendations(store, time.Minute, quietLogger())

		c.Set(context.Background(), 1, "u1", 10, scores)
		_, ok := c.Get(context.Background(), 1, "u1", 10)
		assert.False(t, ok)
	})

	t.Run("malformed entry is a miss", func(t *testing.T) {
		store := newMemoryStore()
		store.values[Key(1, "u1", 10)] = "{not json"
		c := NewRecommendations(store, time.Minute, quietLogger())

		_, ok := c.Get(context.Background(), 1, "u1", 10)
		assert.False(t, ok)
	})

	t.Run("disabled cache", func(t *testing.T) {
		var nilCache *Recommendations
		nilCache.Set(context.Background(), 1, "u1", 10, scores)
		_, ok := nilCache.Get(context.Background(), 1, "u1", 10)
		assert.False(t, ok)

		noStore := NewRecommendations(nil, time.Minute, quietLogger())
		_, ok = noStore.Get(context.Background(), 1, "u1", 10)
		assert.False(t, ok)
	})
}
