package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/badge"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/store"
)

const testWallet = "0x1111111111111111111111111111111111111111"

type stubPositionsFetcher struct {
	raws  []models.RawPosition
	err   error
	calls int
}

func (f *stubPositionsFetcher) FetchPositions(ctx context.Context, wallet string) ([]models.RawPosition, error) {
	f.calls++
	return f.raws, f.err
}

type stubCashFetcher struct {
	value float64
	err   error
	calls int
}

func (f *stubCashFetcher) FetchCashValue(ctx context.Context, wallet string) (float64, error) {
	f.calls++
	return f.value, f.err
}

type stubTradesFetcher struct {
	raws  []models.RawTrade
	err   error
	calls int
}

func (f *stubTradesFetcher) FetchTrades(ctx context.Context, wallet string) ([]models.RawTrade, error) {
	f.calls++
	return f.raws, f.err
}

func rawPositionsFromJSON(t *testing.T, body string) []models.RawPosition {
	t.Helper()
	var raws []models.RawPosition
	require.NoError(t, json.Unmarshal([]byte(body), &raws))
	return raws
}

func newTestService(positions *stubPositionsFetcher, cash *stubCashFetcher, trades *stubTradesFetcher) (*SnapshotService, *store.StateStore) {
	st := store.NewStateStore(nil)
	var tradesFetcher TradesFetcher
	if trades != nil {
		tradesFetcher = trades
	}
	svc := NewSnapshotService(positions, cash, tradesFetcher, st, badge.NewStoreUpdater(st))
	return svc, st
}

func setAddress(t *testing.T, st store.Store, address string) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), map[string]interface{}{
		store.KeyAddress: address,
	}))
}

func storedString(t *testing.T, st store.Store, key string) string {
	t.Helper()
	values, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	raw, ok := values[key]
	require.True(t, ok, "key %s not stored", key)
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func storedRaw(t *testing.T, st store.Store, key string) (json.RawMessage, bool) {
	t.Helper()
	values, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	raw, ok := values[key]
	return raw, ok
}

func TestRefreshEndToEnd(t *testing.T) {
	positions := &stubPositionsFetcher{
		raws: rawPositionsFromJSON(t, `[{"asset":"a1","title":"Will X happen?","currentValue":"100.50","outcome":"Yes"}]`),
	}
	cash := &stubCashFetcher{value: 5.0}
	svc, st := newTestService(positions, cash, nil)
	setAddress(t, st, testWallet)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Empty(t, result.Error)

	require.NotNil(t, result.Snapshot.PositionsValue)
	require.NotNil(t, result.Snapshot.CashValue)
	assert.Equal(t, 100.5, *result.Snapshot.PositionsValue)
	assert.Equal(t, 5.0, *result.Snapshot.CashValue)
	assert.Equal(t, 105.5, result.Snapshot.TotalValue())

	raw, ok := storedRaw(t, st, store.KeyPositionsValue)
	require.True(t, ok)
	assert.JSONEq(t, `100.5`, string(raw))
	raw, ok = storedRaw(t, st, store.KeyCashValue)
	require.True(t, ok)
	assert.JSONEq(t, `5`, string(raw))
	raw, ok = storedRaw(t, st, store.KeyValuesError)
	require.True(t, ok)
	assert.JSONEq(t, `null`, string(raw))

	raw, ok = storedRaw(t, st, store.KeyPositions)
	require.True(t, ok)
	var stored []models.Position
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "a1", stored[0].ID)
	assert.Equal(t, "Will X happen?", stored[0].Title)

	assert.Equal(t, "106", storedString(t, st, store.KeyBadgeText))
	assert.Equal(t, "Portfolio Total: $105.50", storedString(t, st, store.KeyBadgeTitle))
}

func TestRefreshInvalidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		set     bool
	}{
		{name: "missing address", set: false},
		{name: "empty address", address: "", set: true},
		{name: "not hex", address: "definitely-not-an-address", set: true},
		{name: "too short", address: "0x1234", set: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := &stubPositionsFetcher{}
			cash := &stubCashFetcher{value: 5.0}
			svc, st := newTestService(positions, cash, nil)
			if tt.set {
				setAddress(t, st, tt.address)
			}

			result, err := svc.Refresh(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.CategoryInvalidAddress))
			require.False(t, result.Success)
			assert.Equal(t, "No valid 0x address set.", result.Error)

			// No fetcher may run on an invalid address
			assert.Equal(t, 0, positions.calls)
			assert.Equal(t, 0, cash.calls)

			assert.Equal(t, "No valid 0x address set.", storedString(t, st, store.KeyValuesError))

			// A missing address shows the empty glyph, not the error glyph
			assert.Equal(t, badge.EmptyGlyph, storedString(t, st, store.KeyBadgeText))
			assert.Equal(t, "No valid 0x address set.", storedString(t, st, store.KeyBadgeTitle))
		})
	}
}

func TestRefreshCashFailureKeepsPositions(t *testing.T) {
	positions := &stubPositionsFetcher{
		raws: rawPositionsFromJSON(t, `[{"asset":"a1","currentValue":100},{"asset":"a2","currentValue":"23.5"},{"asset":"a3","currentValue":"garbage"}]`),
	}
	cash := &stubCashFetcher{err: errors.NewUpstreamError("Cash balance request", 503)}
	svc, st := newTestService(positions, cash, nil)
	setAddress(t, st, testWallet)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success, "a partial failure still succeeds for display purposes")
	assert.Equal(t, "Cash balance request failed with HTTP 503", result.Error)

	// Malformed currentValue counts as zero in the sum
	require.NotNil(t, result.Snapshot.PositionsValue)
	assert.Equal(t, 123.5, *result.Snapshot.PositionsValue)
	assert.Nil(t, result.Snapshot.CashValue)

	raw, ok := storedRaw(t, st, store.KeyCashValue)
	require.True(t, ok)
	assert.JSONEq(t, `null`, string(raw), "a failed cash fetch stores null, never 0")
	raw, ok = storedRaw(t, st, store.KeyPositionsValue)
	require.True(t, ok)
	assert.JSONEq(t, `123.5`, string(raw))
	assert.Equal(t, "Cash balance request failed with HTTP 503", storedString(t, st, store.KeyValuesError))

	// Badge shows the degraded total
	assert.Equal(t, "124", storedString(t, st, store.KeyBadgeText))
}

func TestRefreshPositionsFailureStillFetchesCash(t *testing.T) {
	positions := &stubPositionsFetcher{err: errors.NewFormatError("Unexpected positions response format")}
	cash := &stubCashFetcher{value: 5.0}
	svc, st := newTestService(positions, cash, nil)
	setAddress(t, st, testWallet)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 1, cash.calls, "cash fetch must still be attempted")
	assert.Equal(t, "Unexpected positions response format", result.Error)

	assert.Nil(t, result.Snapshot.PositionsValue)
	require.NotNil(t, result.Snapshot.CashValue)
	assert.Equal(t, 5.0, *result.Snapshot.CashValue)

	raw, ok := storedRaw(t, st, store.KeyPositionsValue)
	require.True(t, ok)
	assert.JSONEq(t, `null`, string(raw))
	assert.Equal(t, "Unexpected positions response format", storedString(t, st, store.KeyPositionsError))
}

func TestRefreshTotalFailurePreservesStoredValues(t *testing.T) {
	positions := &stubPositionsFetcher{
		raws: rawPositionsFromJSON(t, `[{"asset":"a1","currentValue":100.5}]`),
	}
	cash := &stubCashFetcher{value: 5.0}
	svc, st := newTestService(positions, cash, nil)
	setAddress(t, st, testWallet)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	// Every fetcher fails on the next cycle
	positions.err = errors.NewUpstreamError("Positions request", 502)
	cash.err = errors.NewRPCError("execution reverted", nil)

	result, err = svc.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CategoryTotalFailure))
	require.False(t, result.Success)
	assert.Equal(t, "Positions request failed with HTTP 502; execution reverted", result.Error)

	// The previous good numbers survive a total failure untouched
	raw, ok := storedRaw(t, st, store.KeyPositionsValue)
	require.True(t, ok)
	assert.JSONEq(t, `100.5`, string(raw))
	raw, ok = storedRaw(t, st, store.KeyCashValue)
	require.True(t, ok)
	assert.JSONEq(t, `5`, string(raw))

	assert.Equal(t, "Positions request failed with HTTP 502; execution reverted", storedString(t, st, store.KeyValuesError))
	assert.Equal(t, badge.ErrorGlyph, storedString(t, st, store.KeyBadgeText))
}

func TestRefreshStoresTradeHistory(t *testing.T) {
	positions := &stubPositionsFetcher{}
	cash := &stubCashFetcher{value: 1.0}

	var rawTrades []models.RawTrade
	require.NoError(t, json.Unmarshal([]byte(
		`[{"transactionHash":"0xabc","title":"Will X happen?","slug":"will-x","outcome":"Yes","side":"buy","size":10,"price":0.4,"timestamp":1700000000}]`,
	), &rawTrades))
	trades := &stubTradesFetcher{raws: rawTrades}

	svc, st := newTestService(positions, cash, trades)
	setAddress(t, st, testWallet)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 1, trades.calls)

	raw, ok := storedRaw(t, st, store.KeyTrades)
	require.True(t, ok)
	var stored []models.Trade
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "0xabc", stored[0].ID)
	assert.Equal(t, "BUY", stored[0].Side)
	assert.Equal(t, int64(1700000000000), stored[0].Timestamp)

	raw, ok = storedRaw(t, st, store.KeyTradesError)
	require.True(t, ok)
	assert.JSONEq(t, `null`, string(raw))
}

func TestRefreshTradeFailureDoesNotDegradeSnapshot(t *testing.T) {
	positions := &stubPositionsFetcher{
		raws: rawPositionsFromJSON(t, `[{"asset":"a1","currentValue":100}]`),
	}
	cash := &stubCashFetcher{value: 5.0}
	trades := &stubTradesFetcher{err: errors.NewUpstreamError("Trades request", 500)}

	svc, st := newTestService(positions, cash, trades)
	setAddress(t, st, testWallet)

	result, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Empty(t, result.Error, "a trade history failure is not a snapshot warning")

	assert.Equal(t, "Trades request failed with HTTP 500", storedString(t, st, store.KeyTradesError))
	raw, ok := storedRaw(t, st, store.KeyValuesError)
	require.True(t, ok)
	assert.JSONEq(t, `null`, string(raw))
}
