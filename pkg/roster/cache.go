package roster

import "sync"

// Cache is the process-wide KnownState: every event and participant the bot
// has ever observed. The reconciler is the only writer; the command router
// reads concurrently. A single RWMutex guards all access, and every read hands
// out deep copies so callers never alias the reconciler's working state.
type Cache struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewCache creates a cache seeded with the given events, typically the result
// of Store.LoadEvents at startup. A nil map yields an empty cache.
func NewCache(initial map[string]*Event) *Cache {
	events := make(map[string]*Event, len(initial))
	for id, event := range initial {
		events[id] = event.Clone()
	}
	return &Cache{events: events}
}

// Get returns a copy of the event with the given ID.
func (c *Cache) Get(eventID string) (*Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	event, found := c.events[eventID]
	if !found {
		return nil, false
	}
	return event.Clone(), true
}

// Has reports whether an event is already known without copying it.
func (c *Cache) Has(eventID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, found := c.events[eventID]
	return found
}

// Len returns the number of known events.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.events)
}

// SnapshotAll returns a deep copy of the full registry, used for persistence
// flushes and for router queries that walk every event.
func (c *Cache) SnapshotAll() map[string]*Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*Event, len(c.events))
	for id, event := range c.events {
		snapshot[id] = event.Clone()
	}
	return snapshot
}

// EventNames returns the names of all known events, the candidate set for
// fuzzy resolution.
func (c *Cache) EventNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.events))
	for _, event := range c.events {
		names = append(names, event.Name)
	}
	return names
}

// Insert registers a newly observed event. The participant set starts empty
// regardless of what the source row carried. Inserting an already known ID is
// a no-op: the registry is append-only and first observation wins.
func (c *Cache) Insert(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.events[event.ID]; found {
		return
	}
	dup := event.Clone()
	dup.Participants = []Participant{}
	c.events[event.ID] = dup
}

// ApplyDiff atomically updates one event's joined set: newcomers are unioned
// in (skipping members already joined) and cancelled member IDs are removed.
// It also refreshes the capacity fields from the latest source observation.
// Unknown event IDs are ignored.
func (c *Cache) ApplyDiff(eventID string, newcomers []Participant, cancels []int64, rsvpLimit, yesCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	event, found := c.events[eventID]
	if !found {
		return
	}

	for _, p := range newcomers {
		if !event.Joined(p.MemberID) {
			event.Participants = append(event.Participants, p)
		}
	}

	if len(cancels) > 0 {
		cancelled := make(map[int64]bool, len(cancels))
		for _, id := range cancels {
			cancelled[id] = true
		}
		kept := event.Participants[:0]
		for _, p := range event.Participants {
			if !cancelled[p.MemberID] {
				kept = append(kept, p)
			}
		}
		event.Participants = kept
	}

	event.RSVPLimit = rsvpLimit
	event.YesCount = yesCount
}
