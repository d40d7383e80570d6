// Package bot composes the three long-running tasks of the service: the
// chat listener, the single command worker, and the reconciliation loop.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storg/dave/internal/router"
	"github.com/storg/dave/internal/slack"
	"github.com/storg/dave/pkg/roster"
)

// queueCap bounds the command queue. The listener never blocks on a full
// queue; overflow commands are dropped with a warning.
const queueCap = 64

// Command is one inbound chat command awaiting processing.
type Command struct {
	ID        string
	Text      string
	ChannelID string
	UserID    string
}

// InboundStream delivers messages directed at the bot.
type InboundStream interface {
	Stream(ctx context.Context) <-chan slack.Inbound
}

// Messenger sends replies and operations notices.
type Messenger interface {
	SendMessage(ctx context.Context, channel, text string, attachments []slack.Attachment) error
}

// UserDirectory resolves user IDs to display names for ops notices.
type UserDirectory interface {
	ResolveUser(ctx context.Context, userID string) (string, error)
}

// CommandRouter produces one reply per command.
type CommandRouter interface {
	Route(ctx context.Context, text, channelID, userID string) (router.Reply, error)
}

// Reconciler is the event reconciliation loop.
type Reconciler interface {
	Run(ctx context.Context, interval time.Duration)
}

// Bot wires the listener, worker, and reconciler together.
type Bot struct {
	stream     InboundStream
	chat       Messenger
	users      UserDirectory
	router     CommandRouter
	engine     Reconciler
	queue      chan Command
	interval   time.Duration
	opsChannel string
	log        zerolog.Logger
}

// New creates a bot. interval is the reconciliation poll interval.
func New(stream InboundStream, chat Messenger, users UserDirectory, commandRouter CommandRouter, engine Reconciler, interval time.Duration, opsChannel string, log zerolog.Logger) *Bot {
	return &Bot{
		stream:     stream,
		chat:       chat,
		users:      users,
		router:     commandRouter,
		engine:     engine,
		queue:      make(chan Command, queueCap),
		interval:   interval,
		opsChannel: opsChannel,
		log:        log.With().Str("component", "bot").Logger(),
	}
}

// Run starts the three tasks and blocks until the context is cancelled and
// all of them have stopped.
func (b *Bot) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		b.engine.Run(ctx, b.interval)
	}()
	go func() {
		defer wg.Done()
		b.listen(ctx)
	}()
	go func() {
		defer wg.Done()
		b.work(ctx)
	}()

	wg.Wait()
}

// listen enqueues every inbound message as a command. Enqueue is
// fire-and-forget: a full queue drops the command rather than blocking the
// stream.
func (b *Bot) listen(ctx context.Context) {
	inbound := b.stream.Stream(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			cmd := Command{
				ID:        uuid.NewString(),
				Text:      msg.Text,
				ChannelID: msg.ChannelID,
				UserID:    msg.UserID,
			}
			select {
			case b.queue <- cmd:
				b.log.Debug().Str("command_id", cmd.ID).Str("text", cmd.Text).Msg("command enqueued")
			default:
				b.log.Warn().Str("command_id", cmd.ID).Str("text", cmd.Text).Msg("command queue full, dropping command")
			}
		}
	}
}

// work drains the queue strictly in arrival order, one command at a time, so
// replies go out in the order commands came in.
func (b *Bot) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.queue:
			b.handle(ctx, cmd)
		}
	}
}

// handle routes one command and sends its reply. A failure or panic is
// reported to the operations channel and never stops the worker.
func (b *Bot) handle(ctx context.Context, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("command_id", cmd.ID).Interface("panic", r).Msg("command handler panicked")
			b.notifyOps(ctx, fmt.Sprintf("command %q from %s blew up: %v", cmd.Text, b.userName(ctx, cmd.UserID), r))
		}
	}()

	reply, err := b.router.Route(ctx, cmd.Text, cmd.ChannelID, cmd.UserID)
	if err != nil {
		b.log.Error().Err(err).Str("command_id", cmd.ID).Str("text", cmd.Text).Msg("failed to route command")
		b.notifyOps(ctx, fmt.Sprintf("command %q from %s failed: %v", cmd.Text, b.userName(ctx, cmd.UserID), err))
		return
	}

	if err := b.chat.SendMessage(ctx, cmd.ChannelID, reply.Text, reply.Attachments); err != nil {
		b.log.Error().Err(err).Str("command_id", cmd.ID).Msg("failed to send reply")
	}
}

// userName resolves a user ID to a display name for ops notices, falling
// back to the raw ID when the lookup fails.
func (b *Bot) userName(ctx context.Context, userID string) string {
	if b.users == nil {
		return userID
	}
	name, err := b.users.ResolveUser(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func (b *Bot) notifyOps(ctx context.Context, msg string) {
	if b.opsChannel == "" {
		return
	}
	if err := b.chat.SendMessage(ctx, b.opsChannel, ":warning: "+msg, nil); err != nil {
		b.log.Warn().Err(err).Msg("failed to notify operations channel")
	}
}

// EventSource lists the currently upcoming events.
type EventSource interface {
	UpcomingEvents(ctx context.Context) ([]roster.Event, error)
}

// EventLoader loads persisted events by ID.
type EventLoader interface {
	LoadEvents(ctx context.Context, ids []string) (map[string]*roster.Event, error)
}

// Hydrate builds the known-state cache at startup from whatever the store
// has persisted for the source's current upcoming set. An empty upcoming set
// yields an empty cache, not an error.
func Hydrate(ctx context.Context, source EventSource, store EventLoader, log zerolog.Logger) (*roster.Cache, error) {
	events, err := source.UpcomingEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming events: %w", err)
	}
	if len(events) == 0 {
		log.Info().Msg("no upcoming events, starting with empty state")
		return roster.NewCache(nil), nil
	}

	ids := make([]string, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}

	known, err := store.LoadEvents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load known events: %w", err)
	}
	log.Info().Int("events", len(known)).Msg("known state loaded")
	return roster.NewCache(known), nil
}
