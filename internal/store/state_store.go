package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces durable keys inside the shared Redis instance
const redisKeyPrefix = "portfolio:sync:"

// sessionKeys routes keys to the ephemeral area; everything else is durable
var sessionKeys = map[string]bool{
	KeyPositions:          true,
	KeyPositionsUpdatedAt: true,
	KeyPositionsError:     true,
	KeyTrades:             true,
	KeyTradesUpdatedAt:    true,
	KeyTradesError:        true,
}

// allKeys is the full key universe, used when Get is called without keys
var allKeys = []string{
	KeyAddress, KeyPositionsValue, KeyCashValue, KeyValuesUpdatedAt,
	KeyValuesError, KeyBadgeText, KeyBadgeTitle, KeyOpenInPopup,
	KeyPositions, KeyPositionsUpdatedAt, KeyPositionsError,
	KeyTrades, KeyTradesUpdatedAt, KeyTradesError,
}

// StateStore implements Store over a Redis durable area and an in-memory
// session area. Change notifications are delivered in-process: the
// single-writer-per-field discipline means every write of interest happens
// through this instance.
type StateStore struct {
	redis *redis.Client

	mu      sync.RWMutex
	session map[string]json.RawMessage

	subMu       sync.Mutex
	subscribers map[int]func(ChangeEvent)
	nextSubID   int
}

// NewStateStore creates a state store backed by the given Redis client.
// Pass nil to keep the durable area in memory as well (tests, one-shot runs).
func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{
		redis:       client,
		session:     make(map[string]json.RawMessage),
		subscribers: make(map[int]func(ChangeEvent)),
	}
}

// Get implements Store
func (s *StateStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if len(keys) == 0 {
		keys = allKeys
	}

	result := make(map[string]json.RawMessage, len(keys))

	var durable []string
	s.mu.RLock()
	for _, key := range keys {
		if sessionKeys[key] || s.redis == nil {
			if value, ok := s.session[key]; ok {
				result[key] = value
			}
			continue
		}
		durable = append(durable, key)
	}
	s.mu.RUnlock()

	if len(durable) > 0 {
		prefixed := make([]string, len(durable))
		for i, key := range durable {
			prefixed[i] = redisKeyPrefix + key
		}

		values, err := s.redis.MGet(ctx, prefixed...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read durable state: %w", err)
		}

		for i, value := range values {
			if value == nil {
				continue
			}
			str, ok := value.(string)
			if !ok {
				continue
			}
			result[durable[i]] = json.RawMessage(str)
		}
	}

	return result, nil
}

// Set implements Store. The whole patch is encoded before anything is
// written; a value that fails to encode aborts the batch untouched.
func (s *StateStore) Set(ctx context.Context, patch map[string]interface{}) error {
	encoded := make(map[string]json.RawMessage, len(patch))
	for key, value := range patch {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode value for key %s: %w", key, err)
		}
		encoded[key] = data
	}

	var keys []string
	for key := range encoded {
		keys = append(keys, key)
	}
	previous, err := s.Get(ctx, keys...)
	if err != nil {
		return err
	}

	syncChanges := make(map[string]ValueChange)
	sessionChanges := make(map[string]ValueChange)
	durablePatch := make(map[string]interface{})
	sessionPatch := make(map[string]json.RawMessage)

	for key, newValue := range encoded {
		oldValue := previous[key]
		if bytes.Equal(oldValue, newValue) {
			continue
		}

		change := ValueChange{OldValue: oldValue, NewValue: newValue}
		if sessionKeys[key] || s.redis == nil {
			sessionPatch[key] = newValue
			if sessionKeys[key] {
				sessionChanges[key] = change
			} else {
				syncChanges[key] = change
			}
			continue
		}

		durablePatch[redisKeyPrefix+key] = string(newValue)
		syncChanges[key] = change
	}

	// Durable write first: a Redis failure leaves the session half
	// unapplied and unannounced
	if len(durablePatch) > 0 {
		if err := s.redis.MSet(ctx, durablePatch).Err(); err != nil {
			return fmt.Errorf("failed to write durable state: %w", err)
		}
	}

	if len(sessionPatch) > 0 {
		s.mu.Lock()
		for key, value := range sessionPatch {
			s.session[key] = value
		}
		s.mu.Unlock()
	}

	if len(syncChanges) > 0 {
		s.notify(ChangeEvent{Area: AreaSync, Changes: syncChanges})
	}
	if len(sessionChanges) > 0 {
		s.notify(ChangeEvent{Area: AreaSession, Changes: sessionChanges})
	}

	return nil
}

// Subscribe implements Store
func (s *StateStore) Subscribe(fn func(ChangeEvent)) Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return &subscription{store: s, id: id}
}

// notify fans a change event out to the current subscribers. The
// subscriber list is copied so a callback can unsubscribe itself.
func (s *StateStore) notify(event ChangeEvent) {
	s.subMu.Lock()
	callbacks := make([]func(ChangeEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()

	for _, fn := range callbacks {
		fn(event)
	}
}

type subscription struct {
	store *StateStore
	id    int
	once  sync.Once
}

// Unsubscribe implements Subscription
func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.store.subMu.Lock()
		defer sub.store.subMu.Unlock()
		delete(sub.store.subscribers, sub.id)
	})
}
