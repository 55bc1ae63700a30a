package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/messaging"
)

const defaultStaleCheckInterval = time.Minute

// Retrainer rebuilds the recommendation model.
type Retrainer interface {
	Retrain(ctx context.Context) error
}

// RetrainScheduler keeps the model fresh. It retrains on a fixed interval and,
// between intervals, whenever the model has been marked stale.
type RetrainScheduler struct {
	engine             Retrainer
	interval           time.Duration
	staleCheckInterval time.Duration
	logger             *logrus.Logger

	stale    atomic.Bool
	retrains atomic.Int64
}

// NewRetrainScheduler creates a scheduler. A non-positive interval disables
// periodic retraining; stale-driven retraining stays active.
func NewRetrainScheduler(engine Retrainer, interval time.Duration, logger *logrus.Logger) *RetrainScheduler {
	return &RetrainScheduler{
		engine:             engine,
		interval:           interval,
		staleCheckInterval: defaultStaleCheckInterval,
		logger:             logger,
	}
}

// MarkStale requests a retrain at the next stale check.
func (s *RetrainScheduler) MarkStale() {
	s.stale.Store(true)
}

// Stale reports whether a retrain is pending.
func (s *RetrainScheduler) Stale() bool {
	return s.stale.Load()
}

// Retrains counts completed retrain attempts.
func (s *RetrainScheduler) Retrains() int64 {
	return s.retrains.Load()
}

// HandleOrderEvent marks the model stale when an order is delivered. It is
// the handler the order event consumer runs.
func (s *RetrainScheduler) HandleOrderEvent(ctx context.Context, event messaging.OrderEvent) error {
	if !event.Delivered() {
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"event_id": event.EventID,
	}).Debug("Delivered order marks recommendation model stale")
	s.MarkStale()
	return nil
}

// Run drives retraining until ctx is cancelled.
func (s *RetrainScheduler) Run(ctx context.Context) error {
	var periodic <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		periodic = ticker.C
	}

	staleTicker := time.NewTicker(s.staleCheckInterval)
	defer staleTicker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval":    s.interval,
		"stale_check": s.staleCheckInterval,
	}).Info("Retrain scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retrain scheduler stopped")
			return ctx.Err()
		case <-periodic:
			s.retrain(ctx, "interval")
		case <-staleTicker.C:
			if s.stale.Load() {
				s.retrain(ctx, "stale")
			}
		}
	}
}

func (s *RetrainScheduler) retrain(ctx context.Context, trigger string) {
	// Events arriving during the build mark the next model stale again.
	s.stale.Store(false)
	defer s.retrains.Add(1)

	if err := s.engine.Retrain(ctx); err != nil {
		s.stale.Store(true)
		s.logger.WithError(err).WithField("trigger", trigger).Error("Scheduled retrain failed")
		return
	}
	s.logger.WithField("trigger", trigger).Info("Scheduled retrain completed")
}
