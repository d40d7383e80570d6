// Package trello is a thin client for the board system: one board per event,
// created from a shared template, holding an RSVP intake list plus numbered
// table lists, and a separate address-book board acting as the contacts
// registry. All write operations are idempotent or harmless to repeat, which
// the reconciler depends on when a pass is retried.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.trello.com"

	// TemplateBoardName is the board every event board is copied from.
	TemplateBoardName = "Meetup Template"

	// CancelledLabel marks a member's card after an RSVP cancellation.
	CancelledLabel = "Canceled"
)

var (
	// ErrBoardNotFound is returned when no board matches the given name or URL.
	ErrBoardNotFound = errors.New("board not found")

	// ErrContactNotFound is returned when the contacts registry has no match.
	ErrContactNotFound = errors.New("contact not found")
)

// Client talks to the board system's REST API for one team.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	token      string
	team       string
	log        zerolog.Logger

	contacts contactIndex
}

// NewClient creates a board system client for the given team.
func NewClient(key, token, team string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		baseURL:    defaultBaseURL,
		key:        key,
		token:      token,
		team:       team,
		log:        log.With().Str("component", "trello").Logger(),
	}
}

type wireBoard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	ShortURL string `json:"shortUrl"`
}

type wireCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	ShortURL string `json:"shortUrl"`
}

type wireList struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Cards []wireCard `json:"cards"`
}

type wireLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireOrg struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CreateBoard creates a board for an event from the template. If a board with
// that name already exists it is reused and nothing happens.
func (c *Client) CreateBoard(ctx context.Context, name string) error {
	existing, err := c.boardByName(ctx, name)
	if err == nil && existing != nil {
		c.log.Debug().Str("board", name).Msg("board already exists")
		return nil
	}
	if err != nil && !errors.Is(err, ErrBoardNotFound) {
		return err
	}

	template, err := c.boardByName(ctx, TemplateBoardName)
	if err != nil {
		return fmt.Errorf("failed to locate template board: %w", err)
	}

	params := url.Values{
		"name":          {name},
		"idBoardSource": {template.ID},
	}
	if orgID, err := c.orgID(ctx); err == nil && orgID != "" {
		params.Set("idOrganization", orgID)
	}

	if err := c.do(ctx, http.MethodPost, "/1/boards/", params, nil); err != nil {
		return fmt.Errorf("failed to create board %q: %w", name, err)
	}
	c.log.Info().Str("board", name).Msg("board created")
	return nil
}

// AddCard adds a member card to the board's intake list. The card description
// carries the member ID, which is the card's identity: if any list on the
// board already holds a card for that member this is a no-op.
func (c *Client) AddCard(ctx context.Context, boardName, memberName string, memberID int64) error {
	board, err := c.boardByName(ctx, boardName)
	if err != nil {
		return err
	}

	lists, err := c.lists(ctx, board.ID)
	if err != nil {
		return err
	}

	if card, _ := findMemberCard(lists, memberID); card != nil {
		c.log.Debug().Str("board", boardName).Int64("member", memberID).Msg("card already exists")
		return nil
	}

	intake := intakeList(lists)
	if intake == nil {
		return fmt.Errorf("board %q has no %q list", boardName, IntakeListName)
	}

	params := url.Values{
		"idList": {intake.ID},
		"name":   {memberName},
		"desc":   {strconv.FormatInt(memberID, 10)},
	}
	if err := c.do(ctx, http.MethodPost, "/1/cards", params, nil); err != nil {
		return fmt.Errorf("failed to add card for member %d: %w", memberID, err)
	}
	return nil
}

// LabelCard attaches the named label to a member's card. A missing card or a
// label absent from the board is a no-op.
func (c *Client) LabelCard(ctx context.Context, boardName string, memberID int64, labelName string) error {
	board, err := c.boardByName(ctx, boardName)
	if err != nil {
		return err
	}

	lists, err := c.lists(ctx, board.ID)
	if err != nil {
		return err
	}

	card, _ := findMemberCard(lists, memberID)
	if card == nil {
		c.log.Debug().Str("board", boardName).Int64("member", memberID).Msg("no card to label")
		return nil
	}

	var labels []wireLabel
	if err := c.do(ctx, http.MethodGet, "/1/boards/"+board.ID+"/labels", nil, &labels); err != nil {
		return err
	}
	for _, label := range labels {
		if label.Name == labelName {
			params := url.Values{"value": {label.ID}}
			return c.do(ctx, http.MethodPost, "/1/cards/"+card.ID+"/idLabels", params, nil)
		}
	}

	c.log.Debug().Str("board", boardName).Str("label", labelName).Msg("label not defined on board")
	return nil
}

// ListTables returns the board's tables in list order plus the names of
// members still sitting in the RSVP intake list.
func (c *Client) ListTables(ctx context.Context, boardName string) ([]Table, []string, error) {
	board, err := c.boardByName(ctx, boardName)
	if err != nil {
		return nil, nil, err
	}
	return c.listTablesOn(ctx, board)
}

// ListTablesByURL is ListTables keyed by board URL, used when the target
// board comes from a channel topic.
func (c *Client) ListTablesByURL(ctx context.Context, boardURL string) ([]Table, []string, error) {
	board, err := c.boardByURL(ctx, boardURL)
	if err != nil {
		return nil, nil, err
	}
	return c.listTablesOn(ctx, board)
}

func (c *Client) listTablesOn(ctx context.Context, board *wireBoard) ([]Table, []string, error) {
	lists, err := c.lists(ctx, board.ID)
	if err != nil {
		return nil, nil, err
	}

	var tables []Table
	var intake []string
	for _, list := range lists {
		if list.Name == IntakeListName {
			for _, card := range list.Cards {
				intake = append(intake, card.Name)
			}
			continue
		}

		id, title, capacity, ok := parseTableName(list.Name)
		if !ok {
			continue
		}

		table := Table{ID: id, Title: title, Capacity: capacity}
		for _, card := range list.Cards {
			if card.Name == aboutCardName {
				table.Blurb = card.Desc
				continue
			}
			table.Members = append(table.Members, card.Name)
		}
		tables = append(tables, table)
	}
	return tables, intake, nil
}

// AddTable appends a new table list to the board behind boardURL, assigning
// the next free numeric prefix, and seeds it with the blurb card.
func (c *Client) AddTable(ctx context.Context, boardURL, title, blurb string, capacity int) (Table, error) {
	board, err := c.boardByURL(ctx, boardURL)
	if err != nil {
		return Table{}, err
	}

	lists, err := c.lists(ctx, board.ID)
	if err != nil {
		return Table{}, err
	}

	next := 1
	for _, list := range lists {
		if id, _, _, ok := parseTableName(list.Name); ok {
			if n, err := strconv.Atoi(id); err == nil && n >= next {
				next = n + 1
			}
		}
	}

	name := formatTableName(next, title, capacity)
	params := url.Values{
		"name":    {name},
		"idBoard": {board.ID},
		"pos":     {"bottom"},
	}
	var created wireList
	if err := c.do(ctx, http.MethodPost, "/1/lists", params, &created); err != nil {
		return Table{}, fmt.Errorf("failed to add table %q: %w", name, err)
	}

	if blurb != "" {
		cardParams := url.Values{
			"idList": {created.ID},
			"name":   {aboutCardName},
			"desc":   {blurb},
		}
		if err := c.do(ctx, http.MethodPost, "/1/cards", cardParams, nil); err != nil {
			return Table{}, fmt.Errorf("failed to add blurb card: %w", err)
		}
	}

	return Table{ID: strconv.Itoa(next), Title: title, Blurb: blurb, Capacity: capacity}, nil
}

func (c *Client) boards(ctx context.Context) ([]wireBoard, error) {
	var boards []wireBoard
	if err := c.do(ctx, http.MethodGet, "/1/members/me/boards", nil, &boards); err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return boards, nil
}

func (c *Client) boardByName(ctx context.Context, name string) (*wireBoard, error) {
	boards, err := c.boards(ctx)
	if err != nil {
		return nil, err
	}
	for i := range boards {
		if boards[i].Name == name {
			return &boards[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBoardNotFound, name)
}

func (c *Client) boardByURL(ctx context.Context, boardURL string) (*wireBoard, error) {
	boards, err := c.boards(ctx)
	if err != nil {
		return nil, err
	}
	for i := range boards {
		if boards[i].URL == boardURL || boards[i].ShortURL == boardURL {
			return &boards[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBoardNotFound, boardURL)
}

func (c *Client) orgID(ctx context.Context) (string, error) {
	var orgs []wireOrg
	if err := c.do(ctx, http.MethodGet, "/1/members/me/organizations", nil, &orgs); err != nil {
		return "", err
	}
	for _, org := range orgs {
		if org.Name == c.team || org.DisplayName == c.team {
			return org.ID, nil
		}
	}
	return "", nil
}

// lists fetches a board's lists with their open cards.
func (c *Client) lists(ctx context.Context, boardID string) ([]wireList, error) {
	params := url.Values{
		"cards":       {"open"},
		"card_fields": {"name,desc,shortUrl"},
	}
	var lists []wireList
	if err := c.do(ctx, http.MethodGet, "/1/boards/"+boardID+"/lists", params, &lists); err != nil {
		return nil, fmt.Errorf("failed to list board lists: %w", err)
	}
	return lists, nil
}

// findMemberCard locates a member's card by the ID carried in the card
// description. A member has at most one active card per board.
func findMemberCard(lists []wireList, memberID int64) (*wireCard, *wireList) {
	id := strconv.FormatInt(memberID, 10)
	for i := range lists {
		for j := range lists[i].Cards {
			if strings.TrimSpace(lists[i].Cards[j].Desc) == id ||
				strings.HasPrefix(lists[i].Cards[j].Desc, "id: "+id) {
				return &lists[i].Cards[j], &lists[i]
			}
		}
	}
	return nil, nil
}

func intakeList(lists []wireList) *wireList {
	for i := range lists {
		if lists[i].Name == IntakeListName {
			return &lists[i]
		}
	}
	return nil
}

// do performs one API call with credentials attached and decodes the JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.key)
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
