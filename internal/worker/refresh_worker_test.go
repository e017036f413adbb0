package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/store"
)

// fakeRefresher counts refresh calls and can be made to block until released
type fakeRefresher struct {
	calls   atomic.Int64
	started chan struct{}
	release chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*service.RefreshResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return &service.RefreshResult{Success: true}, nil
}

func TestStartRunsInitialRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	st := store.NewStateStore(nil)

	w, err := NewRefreshWorker(refresher, st, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStartTwiceFails(t *testing.T) {
	w, err := NewRefreshWorker(&fakeRefresher{}, store.NewStateStore(nil), time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	assert.Error(t, w.Start(context.Background()))
}

func TestRefreshNow(t *testing.T) {
	refresher := &fakeRefresher{}
	w, err := NewRefreshWorker(refresher, store.NewStateStore(nil), time.Hour)
	require.NoError(t, err)

	result, err := w.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestRefreshNowRejectedMidFlight(t *testing.T) {
	refresher := &fakeRefresher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	w, err := NewRefreshWorker(refresher, store.NewStateStore(nil), time.Hour)
	require.NoError(t, err)

	go func() { _, _ = w.RefreshNow(context.Background()) }()
	<-refresher.started

	_, err = w.RefreshNow(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInFlight)

	close(refresher.release)
}

func TestAddressChangeTriggersRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	st := store.NewStateStore(nil)

	w, err := NewRefreshWorker(refresher, st, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	// Wait past the startup refresh first
	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, st.Set(context.Background(), map[string]interface{}{
		store.KeyAddress: "0x2222222222222222222222222222222222222222",
	}))

	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestUnrelatedChangeDoesNotTrigger(t *testing.T) {
	refresher := &fakeRefresher{}
	st := store.NewStateStore(nil)

	w, err := NewRefreshWorker(refresher, st, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, st.Set(context.Background(), map[string]interface{}{
		store.KeyOpenInPopup: true,
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestPollTicksRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	st := store.NewStateStore(nil)

	w, err := NewRefreshWorker(refresher, st, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return refresher.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestRestartAfterStop(t *testing.T) {
	refresher := &fakeRefresher{}
	st := store.NewStateStore(nil)

	w, err := NewRefreshWorker(refresher, st, time.Hour)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))

	// A stopped worker starts cleanly again
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopWaitsForLoop(t *testing.T) {
	refresher := &fakeRefresher{}
	w, err := NewRefreshWorker(refresher, store.NewStateStore(nil), time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Error(t, w.Stop(ctx), "stopping a stopped worker fails")
}
