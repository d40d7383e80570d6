package trello

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AddressBookBoard is the board acting as the contacts registry. Each card is
// one contact: the card name is the member's display name and the description
// carries "id: {member_id}" plus an optional "slack: {handle}" line.
const AddressBookBoard = "Address Book"

// Contact is one entry in the address book.
type Contact struct {
	MemberID   int64
	Name       string
	ChatHandle string
	ProfileURL string
}

// contactIndex holds the three secondary indexes over the address book: by
// member ID, by display name, and by chat handle. The indexes are rebuilt
// together from a full board scan and tolerate a bounded staleness window;
// writes refresh them immediately.
type contactIndex struct {
	mu        sync.Mutex
	byID      map[int64]*Contact
	byName    map[string]*Contact
	byHandle  map[string]*Contact
	refreshed time.Time
}

// contactStaleness bounds how old the indexes may get before a lookup forces
// a rescan.
const contactStaleness = 5 * time.Minute

// FindContactByID looks a contact up by member ID.
func (c *Client) FindContactByID(ctx context.Context, memberID int64) (*Contact, error) {
	if err := c.refreshContacts(ctx, false); err != nil {
		return nil, err
	}
	c.contacts.mu.Lock()
	defer c.contacts.mu.Unlock()

	if contact, found := c.contacts.byID[memberID]; found {
		return contact, nil
	}
	return nil, fmt.Errorf("%w: member %d", ErrContactNotFound, memberID)
}

// FindContactByName looks a contact up by display name, case-insensitively.
func (c *Client) FindContactByName(ctx context.Context, name string) (*Contact, error) {
	if err := c.refreshContacts(ctx, false); err != nil {
		return nil, err
	}
	c.contacts.mu.Lock()
	defer c.contacts.mu.Unlock()

	if contact, found := c.contacts.byName[strings.ToLower(name)]; found {
		return contact, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrContactNotFound, name)
}

// FindContactByHandle looks a contact up by chat handle. A leading "@" on the
// query is ignored.
func (c *Client) FindContactByHandle(ctx context.Context, handle string) (*Contact, error) {
	if err := c.refreshContacts(ctx, false); err != nil {
		return nil, err
	}
	c.contacts.mu.Lock()
	defer c.contacts.mu.Unlock()

	key := strings.ToLower(strings.TrimPrefix(handle, "@"))
	if contact, found := c.contacts.byHandle[key]; found {
		return contact, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrContactNotFound, handle)
}

// UpsertContact registers a member in the address book the first time they
// are seen. Members already present are left untouched, so repeating the call
// across reconciliation passes is harmless.
func (c *Client) UpsertContact(ctx context.Context, name string, memberID int64) error {
	if err := c.refreshContacts(ctx, false); err != nil {
		return err
	}

	c.contacts.mu.Lock()
	_, exists := c.contacts.byID[memberID]
	c.contacts.mu.Unlock()
	if exists {
		return nil
	}

	board, err := c.boardByName(ctx, AddressBookBoard)
	if err != nil {
		return err
	}
	lists, err := c.lists(ctx, board.ID)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		return fmt.Errorf("address book board has no lists")
	}

	params := url.Values{
		"idList": {lists[0].ID},
		"name":   {name},
		"desc":   {fmt.Sprintf("id: %d", memberID)},
	}
	if err := c.do(ctx, http.MethodPost, "/1/cards", params, nil); err != nil {
		return fmt.Errorf("failed to add contact %q: %w", name, err)
	}
	c.log.Info().Str("name", name).Int64("member", memberID).Msg("contact registered")

	// Writes refresh all three indexes together.
	return c.refreshContacts(ctx, true)
}

// refreshContacts rebuilds the indexes from the address book board when they
// are stale or when force is set.
func (c *Client) refreshContacts(ctx context.Context, force bool) error {
	c.contacts.mu.Lock()
	fresh := !force && time.Since(c.contacts.refreshed) < contactStaleness && c.contacts.byID != nil
	c.contacts.mu.Unlock()
	if fresh {
		return nil
	}

	board, err := c.boardByName(ctx, AddressBookBoard)
	if err != nil {
		return err
	}
	lists, err := c.lists(ctx, board.ID)
	if err != nil {
		return err
	}

	byID := make(map[int64]*Contact)
	byName := make(map[string]*Contact)
	byHandle := make(map[string]*Contact)

	for _, list := range lists {
		for _, card := range list.Cards {
			contact := parseContactCard(card)
			if contact == nil {
				continue
			}
			byID[contact.MemberID] = contact
			byName[strings.ToLower(contact.Name)] = contact
			if contact.ChatHandle != "" {
				byHandle[strings.ToLower(contact.ChatHandle)] = contact
			}
		}
	}

	c.contacts.mu.Lock()
	c.contacts.byID = byID
	c.contacts.byName = byName
	c.contacts.byHandle = byHandle
	c.contacts.refreshed = time.Now()
	c.contacts.mu.Unlock()
	return nil
}

// parseContactCard reads a contact from a card. Cards without an "id:" line
// are not contacts and are skipped.
func parseContactCard(card wireCard) *Contact {
	contact := &Contact{Name: card.Name, ProfileURL: card.ShortURL}
	for _, line := range strings.Split(card.Desc, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "id: "):
			id, err := strconv.ParseInt(strings.TrimPrefix(line, "id: "), 10, 64)
			if err != nil {
				return nil
			}
			contact.MemberID = id
		case strings.HasPrefix(line, "slack: "):
			contact.ChatHandle = strings.TrimPrefix(strings.TrimPrefix(line, "slack: "), "@")
		}
	}
	if contact.MemberID == 0 {
		return nil
	}
	return contact
}
