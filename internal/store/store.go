// Package store provides the shared state store that connects the refresh
// pipeline to its display surfaces. The aggregator is the sole writer of
// the data keys; UI surfaces own only the preference flag. Small scalars
// live in the durable area (Redis) and survive restarts; the potentially
// large positions and trades arrays live in the session area (in-memory)
// and are not persisted beyond the process.
package store

import (
	"context"
	"encoding/json"
)

// Area tags a change event with the scope it happened in
type Area string

const (
	// AreaSync is the durable scope for small scalar values
	AreaSync Area = "sync"
	// AreaSession is the ephemeral scope for large per-session payloads
	AreaSession Area = "session"
)

// Durable keys, owned by the aggregator except KeyAddress and KeyOpenInPopup
const (
	KeyAddress         = "address"
	KeyPositionsValue  = "positionsValue"
	KeyCashValue       = "cashValue"
	KeyValuesUpdatedAt = "valuesUpdatedAt"
	KeyValuesError     = "valuesError"
	KeyBadgeText       = "badgeText"
	KeyBadgeTitle      = "badgeTitle"
	KeyOpenInPopup     = "openInPopup"
)

// Session keys, owned by the aggregator
const (
	KeyPositions          = "positions"
	KeyPositionsUpdatedAt = "positionsUpdatedAt"
	KeyPositionsError     = "positionsError"
	KeyTrades             = "trades"
	KeyTradesUpdatedAt    = "tradesUpdatedAt"
	KeyTradesError        = "tradesError"
)

// ValueChange carries the before and after value of one key
type ValueChange struct {
	OldValue json.RawMessage `json:"oldValue"`
	NewValue json.RawMessage `json:"newValue"`
}

// ChangeEvent is delivered to subscribers after a batch of writes. Only
// keys whose encoded value actually changed are included.
type ChangeEvent struct {
	Area    Area                   `json:"area"`
	Changes map[string]ValueChange `json:"changes"`
}

// Subscription detaches a subscriber when its surface goes away
type Subscription interface {
	Unsubscribe()
}

// Store is the key-value contract shared by the aggregator and every
// display surface. Every field is independently absent on first read.
type Store interface {
	// Get returns the stored values for the given keys; absent keys are
	// simply missing from the result. No keys means everything.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set writes a batch of values, routing each key to its area, and
	// notifies subscribers of the keys that changed.
	Set(ctx context.Context, patch map[string]interface{}) error

	// Subscribe registers a change listener. The returned subscription
	// must be released when the listener's surface unmounts.
	Subscribe(fn func(ChangeEvent)) Subscription
}
