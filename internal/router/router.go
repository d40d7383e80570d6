// Package router turns one line of inbound chat text into exactly one reply.
// Rules are checked in a fixed order and the first satisfied rule wins; no
// rule ever mutates the known event state.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/storg/dave/internal/config"
	"github.com/storg/dave/internal/slack"
	"github.com/storg/dave/internal/trello"
	"github.com/storg/dave/pkg/roster"
)

// replyDateLayout renders event dates in command replies,
// e.g. "Tuesday November 14 at 20:13".
const replyDateLayout = "Monday January 02 at 15:04"

const helpText = `Here's what I can do:
` + "`table status [event]`" + ` - the tables on an event's board
` + "`detailed table status [event]`" + ` - same, with blurbs
` + "`table <n>`" + ` - one table in detail
` + "`next event`" + ` - our next upcoming event
` + "`all events`" + ` - every upcoming event
` + "`who is <handle>`" + ` - look someone up in the address book
` + "`add table <title>: <blurb>, Players: <n>`" + ` - add a table to this channel's board`

const addTableSyntax = "To add a table, tell me `add table <title>: <blurb>, Players: <N>`"

// EventLookup answers "what is next" against the reconciler's upcoming set.
type EventLookup interface {
	NextEvent() (*roster.Event, error)
}

// BoardDirectory is the subset of board operations the router needs.
type BoardDirectory interface {
	ListTables(ctx context.Context, boardName string) ([]trello.Table, []string, error)
	AddTable(ctx context.Context, boardURL, title, blurb string, capacity int) (trello.Table, error)
	FindContactByHandle(ctx context.Context, handle string) (*trello.Contact, error)
}

// ChannelDirectory resolves channel and user metadata from the chat system.
type ChannelDirectory interface {
	ResolveChannelName(ctx context.Context, channelID string) (string, error)
	ResolveChannelTopic(ctx context.Context, channelID string) (string, error)
}

// Reply is the single response produced for one inbound command.
type Reply struct {
	Text        string
	Attachments []slack.Attachment
}

// Router matches inbound text against the intent rules. Stateless per
// request: all context comes from the known-state cache and live board/chat
// lookups.
type Router struct {
	cache      *roster.Cache
	events     EventLookup
	boards     BoardDirectory
	chat       ChannelDirectory
	profile    *config.Profile
	pick       Picker
	opsChannel string
	log        zerolog.Logger
}

// New creates a router. pick may be nil, in which case phrases are chosen
// uniformly at random.
func New(cache *roster.Cache, events EventLookup, boards BoardDirectory, chat ChannelDirectory, profile *config.Profile, opsChannel string, log zerolog.Logger) *Router {
	return &Router{
		cache:      cache,
		events:     events,
		boards:     boards,
		chat:       chat,
		profile:    profile,
		pick:       RandomPicker,
		opsChannel: opsChannel,
		log:        log.With().Str("component", "router").Logger(),
	}
}

// SetPicker replaces the phrase selector. Tests use this to make randomized
// replies deterministic.
func (r *Router) SetPicker(pick Picker) {
	r.pick = pick
}

var (
	tableNumberPattern = regexp.MustCompile(`^table\s+(\d+)\s*(.*)$`)
	addTablePattern    = regexp.MustCompile(`^(.+?)\s*:\s*(.+?)\s*,\s*[Pp]layers:\s*(\d+)\s*$`)
	boardURLPattern    = regexp.MustCompile(`https?://trello\.com/b/[^\s>|]+`)
)

// Route produces the reply for one inbound command. A returned error is a
// transient collaborator failure; replies for user mistakes (unknown contact,
// missing board URL, unparsable syntax) come back as normal replies.
func (r *Router) Route(ctx context.Context, text, channelID, userID string) (Reply, error) {
	command := strings.TrimSpace(text)
	lower := strings.ToLower(command)
	r.log.Debug().Str("command", command).Str("channel", channelID).Str("user", userID).Msg("routing command")

	switch {
	case strings.HasPrefix(lower, "help"):
		return Reply{Text: "Hold on tight! I'm coming."}, nil

	case lower == "are you there?":
		return Reply{Text: "I'm here :relaxed:"}, nil

	case strings.HasPrefix(lower, "detailed table status"):
		return r.tableStatus(ctx, strings.TrimSpace(command[len("detailed table status"):]), channelID, true)

	case strings.HasPrefix(lower, "table status"):
		return r.tableStatus(ctx, strings.TrimSpace(command[len("table status"):]), channelID, false)

	case tableNumberPattern.MatchString(lower):
		m := tableNumberPattern.FindStringSubmatch(lower)
		return r.tableDetail(ctx, m[1], strings.TrimSpace(m[2]), channelID)

	case strings.Contains(lower, "next meetup"),
		strings.Contains(lower, "next event") && !strings.Contains(lower, "events"):
		return r.nextEvent()

	case strings.Contains(lower, "all meetups"), strings.Contains(lower, "all events"),
		strings.Contains(lower, "next events"), strings.Contains(lower, "events"):
		return r.allEvents()

	case strings.HasPrefix(lower, "thanks"), strings.HasPrefix(lower, "thank you"):
		return Reply{Text: r.pick(r.profile.Acknowledgements)}, nil

	case strings.Contains(lower, "who is "):
		return r.whoIs(ctx, command)

	case strings.Contains(lower, "what can you do"), lower == "man":
		return Reply{Text: helpText}, nil

	case strings.Contains(lower, "admin info"):
		return r.adminInfo(), nil

	case lower == "add table":
		return Reply{Text: addTableSyntax}, nil

	case strings.HasPrefix(lower, "add table "):
		return r.addTable(ctx, strings.TrimSpace(command[len("add table "):]), channelID)

	default:
		return r.smallTalk(command), nil
	}
}

// resolveEventName fuzzy-matches a query against the known event names. An
// empty query falls back to the originating channel's name with separators
// turned into spaces.
func (r *Router) resolveEventName(ctx context.Context, query, channelID string) (string, error) {
	candidates := r.cache.EventNames()
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	if query == "" {
		name, err := r.chat.ResolveChannelName(ctx, channelID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve channel name: %w", err)
		}
		query = channelWords(name)
	}
	return BestMatch(query, candidates)
}

// channelWords turns a channel name like "game_night" into "game night".
func channelWords(name string) string {
	return strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(name)
}

func (r *Router) tableStatus(ctx context.Context, query, channelID string, detailed bool) (Reply, error) {
	eventName, err := r.resolveEventName(ctx, query, channelID)
	if err == ErrNoCandidates {
		return Reply{Text: "I don't know about any events yet."}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	tables, intake, err := r.boards.ListTables(ctx, eventName)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to list tables for %q: %w", eventName, err)
	}

	attachments := make([]slack.Attachment, 0, len(tables)+1)
	for _, table := range tables {
		attachments = append(attachments, tableAttachment(table, detailed))
	}
	if len(intake) > 0 {
		attachments = append(attachments, slack.Attachment{
			Title: "Not at a table yet",
			Text:  slack.NaturalJoin(intake, ", "),
		})
	}
	if len(attachments) == 0 {
		return Reply{Text: fmt.Sprintf("*%s* has no tables yet.", eventName)}, nil
	}
	return Reply{Text: fmt.Sprintf("Tables for *%s*", eventName), Attachments: attachments}, nil
}

func (r *Router) tableDetail(ctx context.Context, number, query, channelID string) (Reply, error) {
	eventName, err := r.resolveEventName(ctx, query, channelID)
	if err == ErrNoCandidates {
		return Reply{Text: "I don't know about any events yet."}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	tables, _, err := r.boards.ListTables(ctx, eventName)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to list tables for %q: %w", eventName, err)
	}

	var attachments []slack.Attachment
	for _, table := range tables {
		if strings.HasPrefix(table.ID, number) {
			attachments = append(attachments, tableAttachment(table, true))
		}
	}
	if len(attachments) == 0 {
		return Reply{Text: fmt.Sprintf("I couldn't find table %s on *%s*.", number, eventName)}, nil
	}
	return Reply{Attachments: attachments}, nil
}

// tableAttachment renders one table. Occupancy goes in the title; the blurb
// is only shown in detailed mode.
func tableAttachment(table trello.Table, detailed bool) slack.Attachment {
	var title string
	if table.Capacity > 0 {
		title = fmt.Sprintf("%s. %s (%d/%d)", table.ID, table.Title, len(table.Members), table.Capacity)
	} else {
		title = fmt.Sprintf("%s. %s (%d joined)", table.ID, table.Title, len(table.Members))
	}

	text := slack.NaturalJoin(table.Members, ", ")
	if text == "" {
		text = "No players yet"
	}
	if detailed && table.Blurb != "" {
		text = table.Blurb + "\n" + text
	}
	return slack.Attachment{Title: title, Text: text}
}

func (r *Router) nextEvent() (Reply, error) {
	event, err := r.events.NextEvent()
	if err != nil {
		return Reply{Text: "There are no events coming up."}, nil
	}

	names := event.ParticipantNames()
	text := fmt.Sprintf("Our next event is *%s*, on *%s* and there are *%d* people joining:\n%s",
		event.Name,
		event.StartTime().Format(replyDateLayout),
		len(names),
		slack.NaturalJoin(names, ",\n"))
	return Reply{Text: text}, nil
}

func (r *Router) allEvents() (Reply, error) {
	events := r.cache.SnapshotAll()
	if len(events) == 0 {
		return Reply{Text: "There are no events coming up."}, nil
	}

	sorted := make([]*roster.Event, 0, len(events))
	for _, event := range events {
		sorted = append(sorted, event)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TimeMs != sorted[j].TimeMs {
			return sorted[i].TimeMs < sorted[j].TimeMs
		}
		return sorted[i].Name < sorted[j].Name
	})

	blocks := []string{"Here are our next events."}
	for _, event := range sorted {
		names := event.ParticipantNames()
		blocks = append(blocks, fmt.Sprintf("*%s*, on *%s* with *%d* people joining:\n%s",
			event.Name,
			event.StartTime().Format(replyDateLayout),
			len(names),
			slack.NaturalJoin(names, ",\n")))
	}
	return Reply{Text: strings.Join(blocks, "\n")}, nil
}

func (r *Router) whoIs(ctx context.Context, command string) (Reply, error) {
	lower := strings.ToLower(command)
	idx := strings.Index(lower, "who is ")
	handle := strings.TrimSpace(command[idx+len("who is "):])
	handle = strings.TrimSuffix(handle, "?")
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return Reply{Text: "Who is... who?"}, nil
	}

	contact, err := r.boards.FindContactByHandle(ctx, handle)
	if errors.Is(err, trello.ErrContactNotFound) {
		return Reply{Text: fmt.Sprintf("I don't know who %s is.", handle)}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("failed to look up %q: %w", handle, err)
	}
	if contact.ProfileURL != "" {
		return Reply{Text: fmt.Sprintf("That's *%s* (%s)", contact.Name, contact.ProfileURL)}, nil
	}
	return Reply{Text: fmt.Sprintf("That's *%s*", contact.Name)}, nil
}

func (r *Router) adminInfo() Reply {
	text := "I poll the event source on a fixed interval and keep the boards and announcements in sync."
	if r.opsChannel != "" {
		text += fmt.Sprintf(" Trouble gets reported in %s.", r.opsChannel)
	}
	return Reply{Text: text}
}

func (r *Router) addTable(ctx context.Context, rest, channelID string) (Reply, error) {
	m := addTablePattern.FindStringSubmatch(rest)
	if m == nil {
		return Reply{Text: addTableSyntax}, nil
	}
	title, blurb := m[1], m[2]
	capacity, _ := strconv.Atoi(m[3])

	topic, err := r.chat.ResolveChannelTopic(ctx, channelID)
	if err != nil {
		return Reply{Text: "I can't read this channel's topic, so I don't know which board to use."}, nil
	}
	boardURL := boardURLPattern.FindString(topic)
	if boardURL == "" {
		return Reply{Text: "This channel's topic has no board link, so I don't know which board to use."}, nil
	}

	table, err := r.boards.AddTable(ctx, boardURL, title, blurb, capacity)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to add table %q: %w", title, err)
	}
	return Reply{Text: fmt.Sprintf("Added table *%s. %s* for %d players.", table.ID, table.Title, table.Capacity)}, nil
}

// smallTalk handles anything no rule claimed: greet back if the first word is
// a greeting, otherwise admit confusion.
func (r *Router) smallTalk(command string) Reply {
	words := strings.Fields(strings.ToLower(command))
	if len(words) > 0 {
		if word := strings.TrimRight(words[0], "!"); isGreeting(word, r.profile.GreetingKeywords) {
			return Reply{Text: r.pick(r.profile.GreetingResponses)}
		}
	}
	return Reply{Text: r.pick(r.profile.UnknownReplies)}
}

func isGreeting(word string, keywords []string) bool {
	for _, keyword := range keywords {
		if word == keyword {
			return true
		}
	}
	return false
}
