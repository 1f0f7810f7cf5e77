package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventDedupStore implements ports.EventDedupStore using Redis SET NX.
// It is a fast-path filter only: the unique index on webhook_events remains
// the authority, so a flushed cache cannot cause double-processing.
type EventDedupStore struct {
	client *goredis.Client
	prefix string
}

// NewEventDedupStore creates a new Redis-backed dedup store.
func NewEventDedupStore(client *goredis.Client) *EventDedupStore {
	return &EventDedupStore{
		client: client,
		prefix: "webhook:event:",
	}
}

// CheckAndSet atomically records the external id if unseen.
// Returns true if the id is new, false if already delivered.
func (s *EventDedupStore) CheckAndSet(ctx context.Context, externalID string, ttl time.Duration) (bool, error) {
	key := s.prefix + externalID
	result, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — event was already delivered
			return false, nil
		}
		return false, fmt.Errorf("redis event dedup check: %w", err)
	}
	return result == "OK", nil
}
