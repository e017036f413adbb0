package badge

import (
	"context"

	"github.com/portfolio-tracker/internal/store"
)

// StoreUpdater publishes badge text and tooltip through the shared state
// store so any connected surface can render them.
type StoreUpdater struct {
	store store.Store
}

// NewStoreUpdater creates a store-backed badge updater
func NewStoreUpdater(st store.Store) *StoreUpdater {
	return &StoreUpdater{store: st}
}

// Update implements Updater
func (u *StoreUpdater) Update(ctx context.Context, text string, tooltip string) error {
	return u.store.Set(ctx, map[string]interface{}{
		store.KeyBadgeText:  text,
		store.KeyBadgeTitle: tooltip,
	})
}
