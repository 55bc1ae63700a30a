package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/marketrec/internal/messaging"
)

type countingRetrainer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRetrainer) Retrain(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestRetrainScheduler_HandleOrderEvent(t *testing.T) {
	s := NewRetrainScheduler(&countingRetrainer{}, 0, testLogger())

	require.NoError(t, s.HandleOrderEvent(context.Background(), messaging.OrderEvent{OrderID: "o1", Status: "Shipping"}))
	assert.False(t, s.Stale())

	require.NoError(t, s.HandleOrderEvent(context.Background(), messaging.OrderEvent{OrderID: "o1", Status: "Delivered"}))
	assert.True(t, s.Stale())
}

func TestRetrainScheduler_StaleTriggersRetrain(t *testing.T) {
	engine := &countingRetrainer{}
	s := NewRetrainScheduler(engine, 0, testLogger())
	s.staleCheckInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Nothing happens while the model is fresh.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), engine.calls.Load())

	s.MarkStale()
	assert.Eventually(t, func() bool { return engine.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !s.Stale() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestRetrainScheduler_Periodic(t *testing.T) {
	engine := &countingRetrainer{}
	s := NewRetrainScheduler(engine, 5*time.Millisecond, testLogger())
	s.staleCheckInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	assert.Eventually(t, func() bool { return engine.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRetrainScheduler_FailedRetrainStaysStale(t *testing.T) {
	engine := &countingRetrainer{err: errors.New("orders unavailable")}
	s := NewRetrainScheduler(engine, 0, testLogger())

	s.MarkStale()
	s.retrain(context.Background(), "stale")

	assert.True(t, s.Stale())
	assert.Equal(t, int64(1), s.Retrains())
}
