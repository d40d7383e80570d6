package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storg/dave/internal/config"
	"github.com/storg/dave/internal/trello"
	"github.com/storg/dave/pkg/roster"
)

type fakeEvents struct {
	next *roster.Event
	err  error
}

func (f *fakeEvents) NextEvent() (*roster.Event, error) {
	return f.next, f.err
}

type addTableCall struct {
	BoardURL string
	Title    string
	Blurb    string
	Capacity int
}

type fakeBoards struct {
	tables      map[string][]trello.Table
	intake      map[string][]string
	contacts    map[string]*trello.Contact
	added       []addTableCall
	listedFor   []string
	listErr     error
	addTableErr error
	contactErr  error
}

func (f *fakeBoards) ListTables(ctx context.Context, boardName string) ([]trello.Table, []string, error) {
	f.listedFor = append(f.listedFor, boardName)
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	return f.tables[boardName], f.intake[boardName], nil
}

func (f *fakeBoards) AddTable(ctx context.Context, boardURL, title, blurb string, capacity int) (trello.Table, error) {
	if f.addTableErr != nil {
		return trello.Table{}, f.addTableErr
	}
	f.added = append(f.added, addTableCall{BoardURL: boardURL, Title: title, Blurb: blurb, Capacity: capacity})
	return trello.Table{ID: "3", Title: title, Blurb: blurb, Capacity: capacity}, nil
}

// FindContactByHandle mirrors the concrete client's contract: a miss is
// always an ErrContactNotFound, never (nil, nil).
func (f *fakeBoards) FindContactByHandle(ctx context.Context, handle string) (*trello.Contact, error) {
	if f.contactErr != nil {
		return nil, f.contactErr
	}
	contact, found := f.contacts[handle]
	if !found {
		return nil, fmt.Errorf("%w: %q", trello.ErrContactNotFound, handle)
	}
	return contact, nil
}

type fakeChat struct {
	names  map[string]string
	topics map[string]string
}

func (f *fakeChat) ResolveChannelName(ctx context.Context, channelID string) (string, error) {
	name, found := f.names[channelID]
	if !found {
		return "", fmt.Errorf("no such channel %s", channelID)
	}
	return name, nil
}

func (f *fakeChat) ResolveChannelTopic(ctx context.Context, channelID string) (string, error) {
	topic, found := f.topics[channelID]
	if !found {
		return "", fmt.Errorf("no topic for channel %s", channelID)
	}
	return topic, nil
}

func firstPick(pool []string) string {
	return pool[0]
}

func newTestRouter(t *testing.T) (*Router, *roster.Cache, *fakeEvents, *fakeBoards, *fakeChat) {
	t.Helper()

	cache := roster.NewCache(map[string]*roster.Event{
		"E1": {
			ID:        "E1",
			Name:      "Game Night",
			TimeMs:    1700000000000,
			VenueName: "STORG Clubhouse",
			URL:       "https://meetup.example/E1",
			Participants: []roster.Participant{
				{MemberID: 7, Name: "Ann"},
				{MemberID: 8, Name: "Bob"},
			},
		},
	})
	events := &fakeEvents{}
	boards := &fakeBoards{
		tables: map[string][]trello.Table{
			"Game Night": {
				{ID: "1", Title: "Dungeon Crawl", Blurb: "Deep and dark", Capacity: 6, Members: []string{"Ann", "Bob"}},
				{ID: "2", Title: "Card Games", Members: []string{"Cat"}},
			},
		},
		intake:   map[string][]string{"Game Night": {"Dan"}},
		contacts: map[string]*trello.Contact{},
	}
	chat := &fakeChat{
		names:  map[string]string{"C1": "game_night"},
		topics: map[string]string{},
	}

	r := New(cache, events, boards, chat, config.DefaultProfile(), "#small_council", zerolog.Nop())
	r.SetPicker(firstPick)
	return r, cache, events, boards, chat
}

func route(t *testing.T, r *Router, text string) Reply {
	t.Helper()
	reply, err := r.Route(context.Background(), text, "C1", "U1")
	require.NoError(t, err)
	return reply
}

func TestRouteCannedReplies(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t)

	t.Run("help", func(t *testing.T) {
		assert.Equal(t, "Hold on tight! I'm coming.", route(t, r, "help").Text)
		assert.Equal(t, "Hold on tight! I'm coming.", route(t, r, "help me please").Text)
	})

	t.Run("are you there", func(t *testing.T) {
		assert.Equal(t, "I'm here :relaxed:", route(t, r, "Are you there?").Text)
	})

	t.Run("thanks", func(t *testing.T) {
		profile := config.DefaultProfile()
		assert.Equal(t, profile.Acknowledgements[0], route(t, r, "thanks dave").Text)
		assert.Equal(t, profile.Acknowledgements[0], route(t, r, "Thank you!").Text)
	})

	t.Run("what can you do", func(t *testing.T) {
		assert.Contains(t, route(t, r, "what can you do?").Text, "table status")
		assert.Contains(t, route(t, r, "man").Text, "table status")
	})

	t.Run("admin info", func(t *testing.T) {
		assert.Contains(t, route(t, r, "admin info").Text, "#small_council")
	})
}

func TestRouteTableStatus(t *testing.T) {
	t.Run("resolves the event from the channel name", func(t *testing.T) {
		r, _, _, boards, _ := newTestRouter(t)
		reply := route(t, r, "table status")

		assert.Equal(t, []string{"Game Night"}, boards.listedFor)
		require.Len(t, reply.Attachments, 3)
		assert.Equal(t, "1. Dungeon Crawl (2/6)", reply.Attachments[0].Title)
		assert.Equal(t, "Ann and Bob", reply.Attachments[0].Text)
		assert.Equal(t, "2. Card Games (1 joined)", reply.Attachments[1].Title)
		assert.Equal(t, "Not at a table yet", reply.Attachments[2].Title)
		assert.Equal(t, "Dan", reply.Attachments[2].Text)
	})

	t.Run("resolves the event from trailing text", func(t *testing.T) {
		r, _, _, boards, _ := newTestRouter(t)
		route(t, r, "table status game nite")
		assert.Equal(t, []string{"Game Night"}, boards.listedFor)
	})

	t.Run("detailed includes the blurb", func(t *testing.T) {
		r, _, _, _, _ := newTestRouter(t)
		reply := route(t, r, "detailed table status")
		assert.Equal(t, "Deep and dark\nAnn and Bob", reply.Attachments[0].Text)
	})

	t.Run("plain status leaves the blurb out", func(t *testing.T) {
		r, _, _, _, _ := newTestRouter(t)
		reply := route(t, r, "table status")
		assert.NotContains(t, reply.Attachments[0].Text, "Deep and dark")
	})

	t.Run("no known events is a user-facing reply", func(t *testing.T) {
		r, _, _, _, _ := newTestRouter(t)
		r.cache = roster.NewCache(nil)
		reply := route(t, r, "table status")
		assert.Equal(t, "I don't know about any events yet.", reply.Text)
	})

	t.Run("board failure is a transient error", func(t *testing.T) {
		r, _, _, boards, _ := newTestRouter(t)
		boards.listErr = errors.New("api down")
		_, err := r.Route(context.Background(), "table status", "C1", "U1")
		assert.Error(t, err)
	})
}

func TestRouteTableDetail(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t)

	t.Run("shows one table in detail", func(t *testing.T) {
		reply := route(t, r, "table 1")
		require.Len(t, reply.Attachments, 1)
		assert.Equal(t, "1. Dungeon Crawl (2/6)", reply.Attachments[0].Title)
		assert.Contains(t, reply.Attachments[0].Text, "Deep and dark")
	})

	t.Run("unknown table number", func(t *testing.T) {
		reply := route(t, r, "table 9")
		assert.Equal(t, "I couldn't find table 9 on *Game Night*.", reply.Text)
	})
}

func TestRouteEvents(t *testing.T) {
	r, cache, events, _, _ := newTestRouter(t)
	next, _ := cache.Get("E1")
	events.next = next

	t.Run("next event", func(t *testing.T) {
		reply := route(t, r, "when is the next event?")
		assert.Contains(t, reply.Text, "Our next event is *Game Night*")
		assert.Contains(t, reply.Text, "*2* people joining")
		assert.Contains(t, reply.Text, "Ann and Bob")
	})

	t.Run("next meetup works too", func(t *testing.T) {
		assert.Contains(t, route(t, r, "next meetup").Text, "Game Night")
	})

	t.Run("all events", func(t *testing.T) {
		reply := route(t, r, "all events")
		assert.Contains(t, reply.Text, "Here are our next events.")
		assert.Contains(t, reply.Text, "*Game Night*")
	})

	t.Run("next events lists all, not just the soonest", func(t *testing.T) {
		assert.Contains(t, route(t, r, "next events").Text, "Here are our next events.")
	})

	t.Run("no upcoming events", func(t *testing.T) {
		events.err = errors.New("no upcoming events")
		assert.Equal(t, "There are no events coming up.", route(t, r, "next event").Text)
		events.err = nil
	})
}

func TestRouteWhoIs(t *testing.T) {
	r, _, _, boards, _ := newTestRouter(t)
	boards.contacts["annk"] = &trello.Contact{
		MemberID:   7,
		Name:       "Ann K",
		ChatHandle: "annk",
		ProfileURL: "https://trello.example/c/ann",
	}

	t.Run("known handle", func(t *testing.T) {
		reply := route(t, r, "who is @annk?")
		assert.Equal(t, "That's *Ann K* (https://trello.example/c/ann)", reply.Text)
	})

	t.Run("unknown handle gets a reply, not an error", func(t *testing.T) {
		reply, err := r.Route(context.Background(), "who is mystery", "C1", "U1")
		require.NoError(t, err)
		assert.Equal(t, "I don't know who mystery is.", reply.Text)
	})

	t.Run("lookup failure is a transient error", func(t *testing.T) {
		boards.contactErr = errors.New("api down")
		defer func() { boards.contactErr = nil }()
		_, err := r.Route(context.Background(), "who is @annk", "C1", "U1")
		assert.Error(t, err)
	})
}

func TestRouteAddTable(t *testing.T) {
	t.Run("bare command explains the syntax", func(t *testing.T) {
		r, _, _, _, _ := newTestRouter(t)
		assert.Contains(t, route(t, r, "add table").Text, "add table <title>: <blurb>, Players: <N>")
	})

	t.Run("unparsable input explains the syntax", func(t *testing.T) {
		r, _, _, _, _ := newTestRouter(t)
		assert.Contains(t, route(t, r, "add table just vibes").Text, "add table <title>: <blurb>, Players: <N>")
	})

	t.Run("adds a table to the board from the channel topic", func(t *testing.T) {
		r, _, _, boards, chat := newTestRouter(t)
		chat.topics["C1"] = "Planning in <https://trello.com/b/abc123/game-night>"

		reply := route(t, r, "add table Dungeon Crawl: Deep and dark, Players: 6")
		require.Len(t, boards.added, 1)
		assert.Equal(t, addTableCall{
			BoardURL: "https://trello.com/b/abc123/game-night",
			Title:    "Dungeon Crawl",
			Blurb:    "Deep and dark",
			Capacity: 6,
		}, boards.added[0])
		assert.Contains(t, reply.Text, "Added table *3. Dungeon Crawl*")
	})

	t.Run("topic without a board link is a user-facing reply", func(t *testing.T) {
		r, _, _, boards, chat := newTestRouter(t)
		chat.topics["C1"] = "General chat, no board here"

		reply := route(t, r, "add table Dungeon Crawl: Deep and dark, Players: 6")
		assert.Contains(t, reply.Text, "no board link")
		assert.Empty(t, boards.added)
	})

	t.Run("missing topic is a user-facing reply", func(t *testing.T) {
		r, _, _, _, _ := newTestRouter(t)
		reply := route(t, r, "add table Dungeon Crawl: Deep and dark, Players: 6")
		assert.Contains(t, reply.Text, "topic")
	})
}

func TestRouteSmallTalk(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t)
	profile := config.DefaultProfile()

	t.Run("greeting keyword", func(t *testing.T) {
		assert.Equal(t, profile.GreetingResponses[0], route(t, r, "hello dave").Text)
	})

	t.Run("trailing exclamation marks are stripped", func(t *testing.T) {
		assert.Equal(t, profile.GreetingResponses[0], route(t, r, "yo!!").Text)
	})

	t.Run("anything else gets an unknown reply", func(t *testing.T) {
		assert.Equal(t, profile.UnknownReplies[0], route(t, r, "fancy a pint?").Text)
	})
}
