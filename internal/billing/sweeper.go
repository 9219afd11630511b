package billing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
)

// sweepBatch bounds how many rows one sweep pass touches.
const sweepBatch = 500

// Sweeper periodically expires lapsed trials and resets monthly usage
// counters. One instance runs per process; each pass is idempotent so
// overlapping deployments are harmless.
type Sweeper struct {
	store    Store
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
	now      func() time.Time
}

// NewSweeper creates a sweeper with the given pass interval.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the sweep loop. The first pass runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	go s.loop(ctx)
}

// Stop halts the sweep loop. Safe to call more than once.
func (s *Sweeper) Stop() {
	if s.running.CompareAndSwap(true, false) {
		close(s.stop)
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SweepRunsTotal.WithLabelValues("panic").Inc()
			logging.L(ctx).Error("sweep pass panicked", "panic", r)
		}
	}()

	expired := s.ExpireLapsedTrials(ctx)
	reset := s.ResetDueCounters(ctx)
	metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	if expired > 0 || reset > 0 {
		logging.L(ctx).Info("sweep pass complete", "trials_expired", expired, "counters_reset", reset)
	}
}

// ExpireLapsedTrials expires every trial subscription whose window has
// passed. A failure on one row is logged and skipped; the pass
// continues so one bad subscription never blocks the rest.
func (s *Sweeper) ExpireLapsedTrials(ctx context.Context) int {
	now := s.now().UTC()
	subs, err := s.store.ListLapsedTrials(ctx, now, sweepBatch)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Error("failed to list lapsed trials", "error", err)
		return 0
	}

	expired := 0
	for _, sub := range subs {
		if err := s.store.ExpireTrial(ctx, sub.ID); err != nil {
			logging.L(ctx).Error("failed to expire trial",
				"subscription_id", sub.ID,
				"organization_id", sub.OrganizationID,
				"error", err)
			continue
		}
		expired++
		metrics.SubscriptionsExpiredTotal.Inc()
		logging.L(ctx).Info("trial expired",
			"subscription_id", sub.ID,
			"organization_id", sub.OrganizationID)
	}
	return expired
}

// ResetDueCounters zeroes monthly counters whose last reset is more
// than a calendar month old.
func (s *Sweeper) ResetDueCounters(ctx context.Context) int {
	now := s.now().UTC()
	cutoff := now.AddDate(0, -1, 0)
	counters, err := s.store.ListCountersDueReset(ctx, cutoff, sweepBatch)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Error("failed to list counters due reset", "error", err)
		return 0
	}

	reset := 0
	for _, c := range counters {
		if err := s.store.ResetCounter(ctx, c.OrganizationID, c.FeatureKey, now); err != nil {
			logging.L(ctx).Error("failed to reset counter",
				"organization_id", c.OrganizationID,
				"feature", c.FeatureKey,
				"error", err)
			continue
		}
		reset++
	}
	return reset
}
