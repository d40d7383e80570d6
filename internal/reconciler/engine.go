// Package reconciler keeps the known event state, the chat channel, and the
// board system consistent with the event source. Each pass diffs the source's
// current events and RSVPs against the last known state and drives only
// incremental, idempotent side effects, so retrying a failed pass never
// duplicates announcements or board writes.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/storg/dave/internal/slack"
	"github.com/storg/dave/internal/trello"
	"github.com/storg/dave/pkg/roster"
)

// eventDateLayout renders announcement dates, e.g. "Tuesday November 14 20:13".
const eventDateLayout = "Monday January 02 15:04"

// ErrNoUpcoming is returned by NextEvent when the source's upcoming set is
// empty.
var ErrNoUpcoming = errors.New("no upcoming events")

// EventSource is the read-only view of the remote event API. Implementations
// swallow transport failures into empty results, so an empty list always
// means "nothing changed", never "everything was removed".
type EventSource interface {
	UpcomingEvents(ctx context.Context) ([]roster.Event, error)
	RSVPs(ctx context.Context, eventID string) ([]roster.RSVP, error)
}

// BoardSystem is the subset of board operations the reconciler drives. All of
// them are idempotent or harmless to repeat.
type BoardSystem interface {
	CreateBoard(ctx context.Context, name string) error
	AddCard(ctx context.Context, boardName, memberName string, memberID int64) error
	LabelCard(ctx context.Context, boardName string, memberID int64, label string) error
	UpsertContact(ctx context.Context, name string, memberID int64) error
}

// ChatChannel sends announcements.
type ChatChannel interface {
	SendMessage(ctx context.Context, channel, text string, attachments []slack.Attachment) error
}

// EventPersister flushes the known state after each pass.
type EventPersister interface {
	SaveEvents(ctx context.Context, events map[string]*roster.Event) error
}

// Engine runs reconciliation passes. The known-state cache is the engine's
// single source of truth between passes; the engine is its only writer.
type Engine struct {
	source EventSource
	boards BoardSystem
	chat   ChatChannel
	store  EventPersister
	cache  *roster.Cache
	log    zerolog.Logger

	venueChannels  map[string]string
	defaultChannel string
	opsChannel     string

	// upcoming is the last successfully fetched upcoming set, in source
	// order. NextEvent reads it concurrently with the reconcile loop.
	mu       sync.RWMutex
	upcoming []roster.Event
}

// Options carries the engine's channel routing configuration.
type Options struct {
	// VenueChannels maps venue names to announcement channels. Unmapped
	// venues use DefaultChannel.
	VenueChannels  map[string]string
	DefaultChannel string
	// OpsChannel receives non-fatal failure notices from the run loop.
	// Empty disables them.
	OpsChannel string
}

// NewEngine creates a reconciliation engine over the given collaborators.
func NewEngine(source EventSource, boards BoardSystem, chat ChatChannel, store EventPersister, cache *roster.Cache, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		source:         source,
		boards:         boards,
		chat:           chat,
		store:          store,
		cache:          cache,
		log:            log.With().Str("component", "reconciler").Logger(),
		venueChannels:  opts.VenueChannels,
		defaultChannel: opts.DefaultChannel,
		opsChannel:     opts.OpsChannel,
	}
}

// Run executes a pass immediately and then on every tick until the context is
// cancelled. A failed pass is logged, reported to the operations channel, and
// retried on the next tick; it is never fatal.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	e.log.Info().Dur("interval", interval).Msg("reconciliation loop starting")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
			e.log.Error().Err(err).Msg("reconciliation pass failed")
			e.notifyOps(ctx, err)
		}

		select {
		case <-ctx.Done():
			e.log.Info().Msg("reconciliation loop stopping")
			return
		case <-ticker.C:
		}
	}
}

// Reconcile performs one full pass: fetch, diff, side effects, persist.
// On error the known state keeps whatever progress was applied before the
// failure; operations already sent downstream are idempotent, so the retry on
// the next tick converges.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.log.Info().Msg("checking for event updates")

	events, err := e.source.UpcomingEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch upcoming events: %w", err)
	}
	e.setUpcoming(events)

	for i := range events {
		event := &events[i]
		if err := event.Validate(); err != nil {
			// Malformed source rows are skipped, not fatal.
			e.log.Error().Err(err).Str("event_id", event.ID).Msg("skipping malformed event")
			continue
		}

		if err := e.handleNewEvent(ctx, event); err != nil {
			return err
		}
		if err := e.reconcileRSVPs(ctx, event); err != nil {
			return err
		}
	}

	if err := e.store.SaveEvents(ctx, e.cache.SnapshotAll()); err != nil {
		return fmt.Errorf("failed to persist known state: %w", err)
	}

	e.log.Info().Msg("done checking")
	return nil
}

// handleNewEvent announces and registers an event on first observation.
func (e *Engine) handleNewEvent(ctx context.Context, event *roster.Event) error {
	if e.cache.Has(event.ID) {
		return nil
	}

	e.log.Info().Str("event", event.Name).Msg("new event found")

	date := event.StartTime().Format(eventDateLayout)
	attachments := slack.NewEventAttachment(event.Name, date, event.VenueName, event.URL)
	if err := e.chat.SendMessage(ctx, e.channelForVenue(event.VenueName), "", attachments); err != nil {
		return fmt.Errorf("failed to announce new event %s: %w", event.ID, err)
	}

	if err := e.boards.CreateBoard(ctx, event.Name); err != nil {
		return fmt.Errorf("failed to create board for event %s: %w", event.ID, err)
	}

	e.cache.Insert(event)
	return nil
}

// reconcileRSVPs diffs one event's RSVP list against its joined set and
// applies the resulting newcomer/cancellation batches.
func (e *Engine) reconcileRSVPs(ctx context.Context, event *roster.Event) error {
	known, found := e.cache.Get(event.ID)
	if !found {
		// Should have been inserted above; a miss here is a load/save race.
		e.log.Error().Str("event_id", event.ID).Msg("RSVPs reference unknown event, skipping")
		return nil
	}

	rsvps, err := e.source.RSVPs(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch RSVPs for event %s: %w", event.ID, err)
	}

	var newcomers, cancels []roster.Participant
	for _, rsvp := range rsvps {
		joined := known.Joined(rsvp.MemberID)
		switch {
		case rsvp.Response == roster.ResponseYes && !joined:
			if err := e.boards.AddCard(ctx, event.Name, rsvp.Name, rsvp.MemberID); err != nil {
				return fmt.Errorf("failed to add card for member %d: %w", rsvp.MemberID, err)
			}
			if err := e.boards.UpsertContact(ctx, rsvp.Name, rsvp.MemberID); err != nil {
				return fmt.Errorf("failed to register contact %d: %w", rsvp.MemberID, err)
			}
			newcomers = append(newcomers, roster.Participant{MemberID: rsvp.MemberID, Name: rsvp.Name})

		case rsvp.Response == roster.ResponseNo && joined:
			if err := e.boards.LabelCard(ctx, event.Name, rsvp.MemberID, trello.CancelledLabel); err != nil {
				return fmt.Errorf("failed to label card for member %d: %w", rsvp.MemberID, err)
			}
			cancels = append(cancels, roster.Participant{MemberID: rsvp.MemberID, Name: rsvp.Name})
		}
		// "yes" while already joined and "no" without prior state are no-ops.
	}

	if len(newcomers) == 0 && len(cancels) == 0 {
		e.log.Info().Str("event", event.Name).Msg("no changes")
		return nil
	}

	spots := "Unknown"
	if left, ok := event.SpotsLeft(); ok {
		spots = strconv.Itoa(left)
	}
	channel := e.channelForVenue(event.VenueName)

	if len(newcomers) > 0 {
		names := slack.NaturalJoin(participantNames(newcomers), ", ")
		e.log.Info().Str("event", event.Name).Str("names", names).Msg("newcomers found")
		if err := e.chat.SendMessage(ctx, channel, "", slack.RSVPAttachment(names, "yes", event.Name, spots)); err != nil {
			return fmt.Errorf("failed to announce newcomers for event %s: %w", event.ID, err)
		}
	}
	if len(cancels) > 0 {
		names := slack.NaturalJoin(participantNames(cancels), ", ")
		e.log.Info().Str("event", event.Name).Str("names", names).Msg("cancellations found")
		if err := e.chat.SendMessage(ctx, channel, "", slack.RSVPAttachment(names, "no", event.Name, spots)); err != nil {
			return fmt.Errorf("failed to announce cancellations for event %s: %w", event.ID, err)
		}
	}

	cancelIDs := make([]int64, len(cancels))
	for i, p := range cancels {
		cancelIDs[i] = p.MemberID
	}
	e.cache.ApplyDiff(event.ID, newcomers, cancelIDs, event.RSVPLimit, event.YesCount)
	return nil
}

// NextEvent returns the known event with the soonest start time among the
// source's current upcoming set. Ties keep the source's fetch order.
func (e *Engine) NextEvent() (*roster.Event, error) {
	e.mu.RLock()
	upcoming := e.upcoming
	e.mu.RUnlock()

	var (
		best     *roster.Event
		bestTime int64
	)
	for _, event := range upcoming {
		// Malformed source rows never make it into the known state;
		// skip them here too and fall through to the next soonest.
		known, found := e.cache.Get(event.ID)
		if !found {
			continue
		}
		if best == nil || event.TimeMs < bestTime {
			best, bestTime = known, event.TimeMs
		}
	}
	if best == nil {
		return nil, ErrNoUpcoming
	}
	return best, nil
}

func (e *Engine) setUpcoming(events []roster.Event) {
	e.mu.Lock()
	e.upcoming = events
	e.mu.Unlock()
}

// channelForVenue resolves the announcement channel for a venue, falling back
// to the default channel for unmapped venues.
func (e *Engine) channelForVenue(venue string) string {
	if channel, found := e.venueChannels[venue]; found {
		return channel
	}
	return e.defaultChannel
}

func (e *Engine) notifyOps(ctx context.Context, cause error) {
	if e.opsChannel == "" {
		return
	}
	msg := ":warning: reconciliation pass failed: " + cause.Error()
	if err := e.chat.SendMessage(ctx, e.opsChannel, msg, nil); err != nil {
		e.log.Warn().Err(err).Msg("failed to notify operations channel")
	}
}

func participantNames(participants []roster.Participant) []string {
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = p.Name
	}
	return names
}
