// Package worker drives the refresh cycle: a poll ticker, a manual
// trigger, and an address-change trigger all funnel into one guarded
// refresh so aggregations never interleave their store writes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/store"
)

// ErrRefreshInFlight is returned when a manual refresh arrives while one
// is still running. The caller should retry after the current one settles.
var ErrRefreshInFlight = errors.New("refresh already in progress")

// Refresher runs one full refresh cycle
type Refresher interface {
	Refresh(ctx context.Context) (*service.RefreshResult, error)
}

// RefreshWorker periodically refreshes the portfolio snapshot. A mutex
// guards the refresh itself: a timer tick or address change arriving
// mid-flight is dropped, a manual trigger is rejected with
// ErrRefreshInFlight.
type RefreshWorker struct {
	refresher    Refresher
	store        store.Store
	pollInterval time.Duration
	logger       *logging.Logger

	refreshMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	triggerCh chan struct{}
	sub       store.Subscription
}

// NewRefreshWorker creates a refresh worker
func NewRefreshWorker(refresher Refresher, st store.Store, pollInterval time.Duration) (*RefreshWorker, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}

	return &RefreshWorker{
		refresher:    refresher,
		store:        st,
		pollInterval: pollInterval,
		logger:       logging.GetGlobalLogger().WithField("component", "refresh_worker"),
		triggerCh:    make(chan struct{}, 1),
	}, nil
}

// Start begins the poll loop and subscribes to address changes. The first
// refresh runs immediately rather than waiting for the first tick.
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is already running")
	}
	w.running = true
	// Fresh channels per run so a stopped worker can be started again
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	w.sub = w.store.Subscribe(func(event store.ChangeEvent) {
		if event.Area != store.AreaSync {
			return
		}
		if _, ok := event.Changes[store.KeyAddress]; !ok {
			return
		}
		// Coalesce: one pending trigger is enough
		select {
		case w.triggerCh <- struct{}{}:
		default:
		}
	})

	w.logger.WithField("poll_interval", w.pollInterval.String()).Info("Starting refresh worker")

	go w.pollLoop(ctx, stopCh, doneCh)
	return nil
}

// Stop gracefully stops the worker
func (w *RefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is not running")
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	if w.sub != nil {
		w.sub.Unsubscribe()
	}
	close(stopCh)

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("Refresh worker stopped")
	return nil
}

// RefreshNow runs a refresh on behalf of a manual trigger. Unlike timer
// ticks it reports a mid-flight collision to the caller instead of
// silently dropping the request.
func (w *RefreshWorker) RefreshNow(ctx context.Context) (*service.RefreshResult, error) {
	if !w.refreshMu.TryLock() {
		return nil, ErrRefreshInFlight
	}
	defer w.refreshMu.Unlock()

	return w.refresher.Refresh(ctx)
}

func (w *RefreshWorker) pollLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	w.tryRefresh(ctx, "startup")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tryRefresh(ctx, "poll")
		case <-w.triggerCh:
			w.tryRefresh(ctx, "address_change")
		}
	}
}

// tryRefresh runs a refresh unless one is already in flight, in which
// case the trigger is dropped.
func (w *RefreshWorker) tryRefresh(ctx context.Context, trigger string) {
	if !w.refreshMu.TryLock() {
		w.logger.WithField("trigger", trigger).Debug("Refresh already in flight, dropping trigger")
		return
	}
	defer w.refreshMu.Unlock()

	if _, err := w.refresher.Refresh(ctx); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"trigger": trigger,
			"error":   err.Error(),
		}).Warn("Refresh cycle failed")
	}
}
