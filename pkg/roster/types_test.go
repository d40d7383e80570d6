package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *Event {
	return &Event{
		ID:        "E1",
		Name:      "Game Night",
		TimeMs:    1700000000000,
		VenueName: "STORG Clubhouse",
		URL:       "https://meetup.example/events/E1",
		RSVPLimit: 10,
		YesCount:  3,
		Participants: []Participant{
			{MemberID: 7, Name: "Ann"},
			{MemberID: 8, Name: "Bob"},
		},
	}
}

func TestEventValidate(t *testing.T) {
	t.Run("accepts valid event", func(t *testing.T) {
		assert.NoError(t, validEvent().Validate())
	})

	t.Run("rejects empty ID", func(t *testing.T) {
		event := validEvent()
		event.ID = ""
		err := event.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ID cannot be empty")
	})

	t.Run("rejects empty name", func(t *testing.T) {
		event := validEvent()
		event.Name = ""
		assert.Error(t, event.Validate())
	})

	t.Run("rejects missing time", func(t *testing.T) {
		event := validEvent()
		event.TimeMs = 0
		assert.Error(t, event.Validate())
	})
}

func TestEventStartTime(t *testing.T) {
	event := validEvent()
	assert.Equal(t, time.UnixMilli(1700000000000), event.StartTime())
}

func TestEventSpotsLeft(t *testing.T) {
	t.Run("computes remaining capacity", func(t *testing.T) {
		event := validEvent()
		spots, ok := event.SpotsLeft()
		require.True(t, ok)
		assert.Equal(t, 7, spots)
	})

	t.Run("reports unknown when no limit declared", func(t *testing.T) {
		event := validEvent()
		event.RSVPLimit = 0
		_, ok := event.SpotsLeft()
		assert.False(t, ok)
	})
}

func TestEventJoined(t *testing.T) {
	event := validEvent()
	assert.True(t, event.Joined(7))
	assert.False(t, event.Joined(99))
}

func TestEventParticipantNames(t *testing.T) {
	event := validEvent()
	assert.Equal(t, []string{"Ann", "Bob"}, event.ParticipantNames())
}

func TestEventClone(t *testing.T) {
	event := validEvent()
	dup := event.Clone()

	require.Equal(t, event, dup)

	// Mutating the clone must not touch the original.
	dup.Participants[0].Name = "Mallory"
	dup.Participants = append(dup.Participants, Participant{MemberID: 9, Name: "Eve"})
	assert.Equal(t, "Ann", event.Participants[0].Name)
	assert.Len(t, event.Participants, 2)
}
