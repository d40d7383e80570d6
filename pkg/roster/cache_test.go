package roster

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGet(t *testing.T) {
	event := validEvent()
	cache := NewCache(map[string]*Event{event.ID: event})

	t.Run("returns a copy of a known event", func(t *testing.T) {
		got, found := cache.Get("E1")
		require.True(t, found)
		assert.Equal(t, event, got)

		// Mutating the returned copy must not leak into the cache.
		got.Participants[0].Name = "Mallory"
		again, _ := cache.Get("E1")
		assert.Equal(t, "Ann", again.Participants[0].Name)
	})

	t.Run("reports unknown events", func(t *testing.T) {
		_, found := cache.Get("no-such-event")
		assert.False(t, found)
	})
}

func TestCacheInsert(t *testing.T) {
	cache := NewCache(nil)

	t.Run("starts the participant set empty", func(t *testing.T) {
		cache.Insert(validEvent())
		got, found := cache.Get("E1")
		require.True(t, found)
		assert.Empty(t, got.Participants)
	})

	t.Run("is append-only", func(t *testing.T) {
		cache.ApplyDiff("E1", []Participant{{MemberID: 7, Name: "Ann"}}, nil, 10, 1)

		// Re-inserting the same ID must not reset the joined set.
		cache.Insert(validEvent())
		got, _ := cache.Get("E1")
		assert.Len(t, got.Participants, 1)
	})
}

func TestCacheApplyDiff(t *testing.T) {
	t.Run("unions newcomers and removes cancels", func(t *testing.T) {
		cache := NewCache(nil)
		cache.Insert(validEvent())

		cache.ApplyDiff("E1", []Participant{
			{MemberID: 7, Name: "Ann"},
			{MemberID: 8, Name: "Bob"},
		}, nil, 10, 2)

		cache.ApplyDiff("E1", []Participant{
			{MemberID: 9, Name: "Cat"},
		}, []int64{8}, 10, 2)

		got, _ := cache.Get("E1")
		assert.Equal(t, []string{"Ann", "Cat"}, got.ParticipantNames())
	})

	t.Run("ignores duplicate newcomers", func(t *testing.T) {
		cache := NewCache(nil)
		cache.Insert(validEvent())

		cache.ApplyDiff("E1", []Participant{{MemberID: 7, Name: "Ann"}}, nil, 10, 1)
		cache.ApplyDiff("E1", []Participant{{MemberID: 7, Name: "Ann"}}, nil, 10, 1)

		got, _ := cache.Get("E1")
		assert.Len(t, got.Participants, 1)
	})

	t.Run("refreshes capacity fields", func(t *testing.T) {
		cache := NewCache(nil)
		cache.Insert(validEvent())

		cache.ApplyDiff("E1", nil, nil, 12, 5)
		got, _ := cache.Get("E1")
		assert.Equal(t, 12, got.RSVPLimit)
		assert.Equal(t, 5, got.YesCount)
	})

	t.Run("ignores unknown event IDs", func(t *testing.T) {
		cache := NewCache(nil)
		cache.ApplyDiff("ghost", []Participant{{MemberID: 1, Name: "X"}}, nil, 0, 0)
		assert.Equal(t, 0, cache.Len())
	})
}

func TestCacheSnapshotAll(t *testing.T) {
	first := validEvent()
	second := validEvent()
	second.ID = "E2"
	second.Name = "One-Shot Friday"
	cache := NewCache(map[string]*Event{first.ID: first, second.ID: second})

	snapshot := cache.SnapshotAll()
	require.Len(t, snapshot, 2)

	// Snapshot is detached from the cache.
	snapshot["E1"].Participants[0].Name = "Mallory"
	got, _ := cache.Get("E1")
	assert.Equal(t, "Ann", got.Participants[0].Name)
}

func TestCacheEventNames(t *testing.T) {
	first := validEvent()
	cache := NewCache(map[string]*Event{first.ID: first})
	assert.Equal(t, []string{"Game Night"}, cache.EventNames())
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(nil)
	cache.Insert(validEvent())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			cache.ApplyDiff("E1", []Participant{{MemberID: n, Name: "M"}}, nil, 10, 1)
		}(int64(i + 100))
		go func() {
			defer wg.Done()
			cache.SnapshotAll()
			cache.EventNames()
			cache.Get("E1")
		}()
	}
	wg.Wait()

	got, _ := cache.Get("E1")
	assert.Len(t, got.Participants, 8)
}
