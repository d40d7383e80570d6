package roster

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced by group name so multiple bot instances can safely
// coexist on a single Redis server.
//
// Key pattern: dave:{group}:{entity}:{id}

// EventKey returns the Redis key holding one event's JSON record.
// Pattern: dave:{group}:event:{event_id}
func EventKey(group, eventID string) string {
	return fmt.Sprintf("dave:%s:event:%s", group, eventID)
}

// EventSetKey returns the Redis key of the set of all known event IDs.
// Pattern: dave:{group}:events
func EventSetKey(group string) string {
	return fmt.Sprintf("dave:%s:events", group)
}
