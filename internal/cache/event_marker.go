package cache

import (
	"context"
	"fmt"
	"time"
)

const processedEventOp = "payment-event"

// EventMarker remembers reconciled provider event ids for ttl.
type EventMarker struct {
	cache Cache
	ttl   time.Duration
}

func NewEventMarker(cache Cache, ttl time.Duration) *EventMarker {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &EventMarker{cache: cache, ttl: ttl}
}

func (m *EventMarker) Seen(ctx context.Context, eventID string) (bool, error) {
	val, err := m.cache.Get(ctx, m.cache.GenerateKey(processedEventOp, eventID))
	if err != nil {
		return false, fmt.Errorf("cache: failed to read event marker: %w", err)
	}
	return val != "", nil
}

func (m *EventMarker) Mark(ctx context.Context, eventID string) error {
	key := m.cache.GenerateKey(processedEventOp, eventID)
	if err := m.cache.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl); err != nil {
		return fmt.Errorf("cache: failed to write event marker: %w", err)
	}
	return nil
}
