package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/badge"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/store"
)

// PositionsFetcher retrieves the raw open positions for a wallet
type PositionsFetcher interface {
	FetchPositions(ctx context.Context, wallet string) ([]models.RawPosition, error)
}

// CashFetcher retrieves the wallet's cash balance
type CashFetcher interface {
	FetchCashValue(ctx context.Context, wallet string) (float64, error)
}

// TradesFetcher retrieves the raw trade history for a wallet
type TradesFetcher interface {
	FetchTrades(ctx context.Context, wallet string) ([]models.RawTrade, error)
}

// RefreshResult is the outcome returned to refresh callers. A partial
// failure still counts as success: the available subset was stored and the
// badge shows the degraded total, with Error carrying the warning.
type RefreshResult struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// SnapshotService turns one wallet address into one consistent portfolio
// snapshot per refresh, tolerating the failure of any subset of fetchers,
// and writes the result to the shared state store.
type SnapshotService struct {
	positions PositionsFetcher
	cash      CashFetcher
	trades    TradesFetcher // optional, nil disables trade history
	store     store.Store
	badge     badge.Updater
	logger    *logging.Logger
}

// NewSnapshotService creates a snapshot service. trades may be nil when
// trade history is disabled.
func NewSnapshotService(
	positions PositionsFetcher,
	cash CashFetcher,
	trades TradesFetcher,
	st store.Store,
	updater badge.Updater,
) *SnapshotService {
	return &SnapshotService{
		positions: positions,
		cash:      cash,
		trades:    trades,
		store:     st,
		badge:     updater,
		logger:    logging.GetGlobalLogger().WithField("component", "snapshot_service"),
	}
}

// Refresh runs one full refresh cycle for the stored wallet address. The
// fetchers run concurrently and every outcome is collected before anything
// is written; store writes always happen after the join completes.
func (s *SnapshotService) Refresh(ctx context.Context) (*RefreshResult, error) {
	wallet, err := s.storedAddress(ctx)
	if err != nil {
		return s.fail(ctx, err)
	}

	outcome := s.fetchAll(ctx, wallet)

	if outcome.positionsErr != nil && outcome.cashErr != nil {
		err := errors.NewTotalFailureError([]string{
			reason(outcome.positionsErr),
			reason(outcome.cashErr),
		})
		return s.fail(ctx, err)
	}

	snapshot := s.buildSnapshot(outcome)
	if err := s.writeSnapshot(ctx, snapshot, outcome); err != nil {
		return s.fail(ctx, err)
	}
	s.writeTrades(ctx, outcome)

	total := snapshot.TotalValue()
	if err := s.badge.Update(ctx, badge.Format(&total), fmt.Sprintf("Portfolio Total: $%.2f", total)); err != nil {
		s.logger.WithError(err).Warn("Failed to update badge")
	}

	if snapshot.Error != "" {
		s.logger.WithField("warning", snapshot.Error).Warn("Refresh completed with partial data")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"wallet":    wallet,
			"positions": len(snapshot.Positions),
			"total":     total,
		}).Info("Refresh completed")
	}

	return &RefreshResult{Success: true, Error: snapshot.Error, Snapshot: snapshot}, nil
}

// fetchOutcome collects every fetcher's settlement from one fan-out
type fetchOutcome struct {
	rawPositions []models.RawPosition
	positionsErr error
	cashValue    float64
	cashErr      error
	rawTrades    []models.RawTrade
	tradesErr    error
	tradesRan    bool
}

// fetchAll fans the fetchers out concurrently and joins all of them,
// never failing fast on the first error.
func (s *SnapshotService) fetchAll(ctx context.Context, wallet string) fetchOutcome {
	var (
		outcome fetchOutcome
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		outcome.rawPositions, outcome.positionsErr = s.positions.FetchPositions(ctx, wallet)
	}()
	go func() {
		defer wg.Done()
		outcome.cashValue, outcome.cashErr = s.cash.FetchCashValue(ctx, wallet)
	}()

	if s.trades != nil {
		outcome.tradesRan = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome.rawTrades, outcome.tradesErr = s.trades.FetchTrades(ctx, wallet)
		}()
	}

	wg.Wait()
	return outcome
}

// buildSnapshot normalizes the fan-out's results into one snapshot. A
// failed fetcher leaves its total nil; it is never coerced to zero.
func (s *SnapshotService) buildSnapshot(outcome fetchOutcome) *models.Snapshot {
	snapshot := &models.Snapshot{UpdatedAt: time.Now().UnixMilli()}

	if outcome.positionsErr == nil {
		positions := models.NormalizePositions(outcome.rawPositions)
		models.SortPositions(positions)
		sum := models.SumCurrentValue(positions)
		snapshot.Positions = positions
		snapshot.PositionsValue = &sum
	}
	if outcome.cashErr == nil {
		cash := outcome.cashValue
		snapshot.CashValue = &cash
	}

	var reasons []string
	if outcome.positionsErr != nil {
		reasons = append(reasons, reason(outcome.positionsErr))
	}
	if outcome.cashErr != nil {
		reasons = append(reasons, reason(outcome.cashErr))
	}
	if len(reasons) > 0 {
		snapshot.Error = errors.NewPartialFailureError(reasons).Message
	}

	return snapshot
}

// writeSnapshot persists one snapshot as a single logical batch: scalar
// totals to the durable area, the positions array to the session area. A
// failed fetcher's field is written as an explicit null so readers can
// tell "unknown" from "zero".
func (s *SnapshotService) writeSnapshot(ctx context.Context, snapshot *models.Snapshot, outcome fetchOutcome) error {
	patch := map[string]interface{}{
		store.KeyPositionsValue:     snapshot.PositionsValue,
		store.KeyCashValue:          snapshot.CashValue,
		store.KeyValuesUpdatedAt:    snapshot.UpdatedAt,
		store.KeyPositionsUpdatedAt: snapshot.UpdatedAt,
	}

	if snapshot.Error != "" {
		patch[store.KeyValuesError] = snapshot.Error
	} else {
		patch[store.KeyValuesError] = nil
	}

	if outcome.positionsErr == nil {
		patch[store.KeyPositions] = snapshot.Positions
		patch[store.KeyPositionsError] = nil
	} else {
		patch[store.KeyPositionsError] = reason(outcome.positionsErr)
	}

	return s.store.Set(ctx, patch)
}

// writeTrades persists the trade fetch outcome under its own error key so
// a trade-history failure never degrades the snapshot itself.
func (s *SnapshotService) writeTrades(ctx context.Context, outcome fetchOutcome) {
	if !outcome.tradesRan {
		return
	}

	patch := map[string]interface{}{
		store.KeyTradesUpdatedAt: time.Now().UnixMilli(),
	}
	if outcome.tradesErr == nil {
		patch[store.KeyTrades] = models.NormalizeTrades(outcome.rawTrades)
		patch[store.KeyTradesError] = nil
	} else {
		patch[store.KeyTradesError] = reason(outcome.tradesErr)
	}

	if err := s.store.Set(ctx, patch); err != nil {
		s.logger.WithError(err).Warn("Failed to store trade history")
	}
}

// fail records a refresh failure. Numeric fields keep their previous
// values; only the error and its timestamp are written.
func (s *SnapshotService) fail(ctx context.Context, cause error) (*RefreshResult, error) {
	message := reason(cause)

	patch := map[string]interface{}{
		store.KeyValuesError:     message,
		store.KeyValuesUpdatedAt: time.Now().UnixMilli(),
	}
	if err := s.store.Set(ctx, patch); err != nil {
		s.logger.WithError(err).Error("Failed to store refresh error")
	}

	// A missing address is a prompt state, not a fetch failure
	glyph := badge.ErrorGlyph
	tooltip := "Error fetching data: " + message
	if errors.Is(cause, errors.CategoryInvalidAddress) {
		glyph = badge.EmptyGlyph
		tooltip = message
	}
	if err := s.badge.Update(ctx, glyph, tooltip); err != nil {
		s.logger.WithError(err).Warn("Failed to update badge")
	}

	s.logger.WithError(cause).Error("Refresh failed")
	return &RefreshResult{Success: false, Error: message}, cause
}

// storedAddress reads and validates the configured wallet. An invalid or
// missing address fails before any network call is issued.
func (s *SnapshotService) storedAddress(ctx context.Context) (string, error) {
	values, err := s.store.Get(ctx, store.KeyAddress)
	if err != nil {
		return "", err
	}

	var wallet string
	if raw, ok := values[store.KeyAddress]; ok {
		if err := json.Unmarshal(raw, &wallet); err != nil {
			return "", errors.NewInvalidAddressError(string(raw))
		}
	}

	wallet = models.NormalizeAddress(wallet)
	if !models.IsValidAddress(wallet) {
		return "", errors.NewInvalidAddressError(wallet)
	}
	return wallet, nil
}

// reason extracts the human-readable failure reason for store and warning
// strings, without the error code prefix.
func reason(err error) string {
	if categorized, ok := err.(*errors.CategorizedError); ok {
		return categorized.Message
	}
	return err.Error()
}
