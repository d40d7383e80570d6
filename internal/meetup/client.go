// Package meetup is a thin read-only client for the event source API. It
// normalizes the loosely structured wire payloads into roster types at the
// boundary and swallows transport failures into empty results, so a flaky
// network reads as "no data" rather than an error upstream.
package meetup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/storg/dave/pkg/roster"
)

const defaultBaseURL = "https://api.meetup.com"

// Client queries upcoming events and their RSVP lists for one group.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	groupID    string
	log        zerolog.Logger
}

// NewClient creates an event source client for the given group.
func NewClient(apiKey, groupID string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		groupID:    groupID,
		log:        log.With().Str("component", "meetup").Logger(),
	}
}

// wireEvent is the event source's event payload. Optional fields stay
// optional here and are normalized into roster.Event before leaving the
// package.
type wireEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Time  int64  `json:"time"`
	Venue struct {
		Name string `json:"name"`
	} `json:"venue"`
	EventURL     string `json:"event_url"`
	RSVPLimit    int    `json:"rsvp_limit"`
	YesRSVPCount int    `json:"yes_rsvp_count"`
}

type wireRSVP struct {
	Response string `json:"response"`
	Member   struct {
		MemberID int64  `json:"member_id"`
		Name     string `json:"name"`
	} `json:"member"`
}

// UpcomingEvents returns the group's upcoming events in the order the source
// lists them. Transport and decode failures return an empty slice: the caller
// must treat "no data" as "nothing changed".
func (c *Client) UpcomingEvents(ctx context.Context) ([]roster.Event, error) {
	params := url.Values{
		"key":      {c.apiKey},
		"group_id": {c.groupID},
		"status":   {"upcoming"},
	}

	var results []wireEvent
	if !c.get(ctx, "/2/events", params, &results) {
		return nil, nil
	}

	events := make([]roster.Event, 0, len(results))
	for _, w := range results {
		events = append(events, roster.Event{
			ID:        w.ID,
			Name:      w.Name,
			TimeMs:    w.Time,
			VenueName: w.Venue.Name,
			URL:       w.EventURL,
			RSVPLimit: w.RSVPLimit,
			YesCount:  w.YesRSVPCount,
		})
	}
	return events, nil
}

// RSVPs returns the RSVP list for one event. Rows with a response other than
// yes/no are dropped at the boundary.
func (c *Client) RSVPs(ctx context.Context, eventID string) ([]roster.RSVP, error) {
	params := url.Values{
		"key":      {c.apiKey},
		"event_id": {eventID},
	}

	var results []wireRSVP
	if !c.get(ctx, "/2/rsvps", params, &results) {
		return nil, nil
	}

	rsvps := make([]roster.RSVP, 0, len(results))
	for _, w := range results {
		response := roster.Response(w.Response)
		if response != roster.ResponseYes && response != roster.ResponseNo {
			continue
		}
		rsvps = append(rsvps, roster.RSVP{
			MemberID: w.Member.MemberID,
			Name:     w.Member.Name,
			Response: response,
		})
	}
	return rsvps, nil
}

// get performs one API call and decodes the "results" list into out.
// Returns false when the call failed for any reason; the failure is logged
// and never propagated.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) bool {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("failed to build request")
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("GET failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("GET failed")
		return false
	}

	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("failed to decode response")
		return false
	}
	if err := json.Unmarshal(envelope.Results, out); err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("failed to decode results")
		return false
	}
	return true
}
