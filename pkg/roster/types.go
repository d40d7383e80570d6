package roster

import (
	"fmt"
	"time"
)

// Event is one entry in the append-only event registry. Once observed during a
// reconciliation pass an event is never removed, even if the source stops
// returning it.
type Event struct {
	ID           string        `json:"id"`             // opaque source identifier, stable across polls
	Name         string        `json:"name"`           // also the name of the event's board
	TimeMs       int64         `json:"time"`           // start time, epoch milliseconds
	VenueName    string        `json:"venue_name"`     // used for channel routing
	URL          string        `json:"event_url"`      // external event page
	RSVPLimit    int           `json:"rsvp_limit"`     // 0 means no declared capacity
	YesCount     int           `json:"yes_rsvp_count"` // affirmative RSVPs as reported by the source
	Participants []Participant `json:"participants"`   // members whose latest response was "yes"
}

// Participant is a member currently joined to an event. Identity is
// (event, member ID); the display name is carried for announcements.
type Participant struct {
	MemberID int64  `json:"member_id"`
	Name     string `json:"name"`
}

// Response is a member's RSVP answer as reported by the event source.
type Response string

const (
	ResponseYes Response = "yes"
	ResponseNo  Response = "no"
)

// RSVP is one row from the event source's RSVP listing.
type RSVP struct {
	MemberID int64    `json:"member_id"`
	Name     string   `json:"member_name"`
	Response Response `json:"response"`
}

// Validate checks that the event carries the fields the reconciler depends on.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event ID cannot be empty")
	}
	if e.Name == "" {
		return fmt.Errorf("event name cannot be empty")
	}
	if e.TimeMs <= 0 {
		return fmt.Errorf("event time must be set")
	}
	return nil
}

// StartTime returns the event start as a time.Time.
func (e *Event) StartTime() time.Time {
	return time.UnixMilli(e.TimeMs)
}

// SpotsLeft returns the remaining capacity. ok is false when the event has no
// declared RSVP limit.
func (e *Event) SpotsLeft() (spots int, ok bool) {
	if e.RSVPLimit == 0 {
		return 0, false
	}
	return e.RSVPLimit - e.YesCount, true
}

// Joined reports whether the member is in the event's joined set.
func (e *Event) Joined(memberID int64) bool {
	for _, p := range e.Participants {
		if p.MemberID == memberID {
			return true
		}
	}
	return false
}

// ParticipantNames returns the display names of joined members in join order.
func (e *Event) ParticipantNames() []string {
	names := make([]string, len(e.Participants))
	for i, p := range e.Participants {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy of the event. The cache hands out clones so
// readers never share slices with the reconciler's working state.
func (e *Event) Clone() *Event {
	dup := *e
	dup.Participants = make([]Participant, len(e.Participants))
	copy(dup.Participants, e.Participants)
	return &dup
}
