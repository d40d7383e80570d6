package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store persists the event registry to Redis. Events are stored as JSON values
// under namespaced keys, with a companion set of known IDs for full scans.
// Writes are whole-record upserts with last-writer-wins semantics.
// The store is safe for concurrent use.
type Store struct {
	rdb   *redis.Client
	group string
}

// NewStore creates an event store for the given group namespace.
// Returns an error if group is empty.
func NewStore(redisOpts *redis.Options, group string) (*Store, error) {
	if group == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}

	return &Store{
		rdb:   redis.NewClient(redisOpts),
		group: group,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for startup health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// LoadEvents retrieves the events with the given IDs. IDs with no stored
// record are silently absent from the result, so hydrating from a fresh Redis
// yields an empty map rather than an error.
func (s *Store) LoadEvents(ctx context.Context, ids []string) (map[string]*Event, error) {
	events := make(map[string]*Event, len(ids))
	if len(ids) == 0 {
		return events, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = EventKey(s.group, id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from Redis: %w", err)
	}

	for i, value := range values {
		raw, found := value.(string)
		if !found {
			continue // no record for this ID
		}

		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("failed to deserialize event %s: %w", ids[i], err)
		}
		events[event.ID] = &event
	}

	return events, nil
}

// LoadAllEvents retrieves every event ever stored for this group.
func (s *Store) LoadAllEvents(ctx context.Context) (map[string]*Event, error) {
	ids, err := s.rdb.SMembers(ctx, EventSetKey(s.group)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event ID set from Redis: %w", err)
	}
	return s.LoadEvents(ctx, ids)
}

// SaveEvents upserts the given events in a single pipeline. Each event is
// validated, serialized to JSON, and its ID added to the group's ID set.
func (s *Store) SaveEvents(ctx context.Context, events map[string]*Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	setKey := EventSetKey(s.group)

	for id, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("invalid event %s: %w", id, err)
		}

		raw, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", id, err)
		}

		pipe.Set(ctx, EventKey(s.group, id), raw, 0)
		pipe.SAdd(ctx, setKey, id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write events to Redis: %w", err)
	}

	return nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
