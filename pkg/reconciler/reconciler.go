package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palletscan/palletscan/pkg/events"
	"github.com/palletscan/palletscan/pkg/health"
	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/metrics"
)

const sweepBatchSize = 500

// Store is the slice of the result store the sweeper needs
type Store interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	DeleteResult(ctx context.Context, taskID string) (bool, error)
}

// Reconciler periodically removes results whose retention window has
// passed and refreshes component health
type Reconciler struct {
	store    Store
	broker   *events.Broker
	interval time.Duration
	checkers []health.Checker
	stopCh   chan struct{}
	logger   zerolog.Logger

	mu         sync.RWMutex
	lastHealth *health.Report
}

// New creates a reconciler sweeping at the given interval. Any
// checkers given are re-run every cycle; status transitions are
// logged.
func New(store Store, broker *events.Broker, interval time.Duration, checkers ...health.Checker) *Reconciler {
	return &Reconciler{
		store:    store,
		broker:   broker,
		interval: interval,
		checkers: checkers,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("reconciler"),
	}
}

// Start begins the sweep loop
func (r *Reconciler) Start() {
	r.logger.Info().Dur("interval", r.interval).Msg("Reconciler started")
	go r.run()
}

// Stop stops the sweep loop
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(context.Background())
			r.refreshHealth(context.Background())
		case <-r.stopCh:
			r.logger.Info().Msg("Reconciler stopped")
			return
		}
	}
}

// sweep removes one batch of expired results. Individual delete
// failures are logged and skipped; the next cycle retries them.
func (r *Reconciler) sweep(ctx context.Context) int {
	ids, err := r.store.ListExpired(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list expired results")
		return 0
	}

	swept := 0
	for _, id := range ids {
		deleted, err := r.store.DeleteResult(ctx, id)
		if err != nil {
			r.logger.Warn().Err(err).Str("task_id", id).Msg("Failed to delete expired result")
			continue
		}
		if !deleted {
			continue
		}
		swept++
		metrics.SweptResultsTotal.Inc()
		if r.broker != nil {
			r.broker.Publish(&events.Event{Type: events.EventTaskSwept, TaskID: id})
		}
	}

	metrics.SweepCyclesTotal.Inc()
	if swept > 0 {
		r.logger.Info().Int("swept", swept).Msg("Expired results removed")
	}
	return swept
}

// refreshHealth re-runs the component probes and logs transitions
func (r *Reconciler) refreshHealth(ctx context.Context) {
	if len(r.checkers) == 0 {
		return
	}
	report := health.Aggregate(ctx, r.checkers...)

	r.mu.Lock()
	previous := r.lastHealth
	r.lastHealth = report
	r.mu.Unlock()

	if previous != nil && previous.Status != report.Status {
		r.logger.Warn().
			Str("from", previous.Status).
			Str("to", report.Status).
			Msg("Component health changed")
	}
}

// LastHealth returns the most recent aggregate report, or nil before
// the first refresh
func (r *Reconciler) LastHealth() *health.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHealth
}
