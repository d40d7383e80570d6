// Package slack is a thin client for the chat channel: formatted message and
// attachment sends over the Web API, channel/user resolution, and a live
// inbound stream over the RTM websocket filtered to messages directed at the
// bot.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://slack.com/api"

// reconnectDelay paces RTM reconnect attempts after a dropped connection.
const reconnectDelay = 5 * time.Second

// Client talks to the chat system for one bot identity.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	token      string
	botID      string
	log        zerolog.Logger
}

// NewClient creates a chat client. botID is the bot's own user ID, used to
// recognize mentions and to ignore the bot's own messages.
func NewClient(token, botID string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		dialer:     websocket.DefaultDialer,
		baseURL:    defaultBaseURL,
		token:      token,
		botID:      botID,
		log:        log.With().Str("component", "slack").Logger(),
	}
}

// SendMessage posts a message to a channel. attachments may be nil.
func (c *Client) SendMessage(ctx context.Context, channel, text string, attachments []Attachment) error {
	params := url.Values{
		"channel": {channel},
		"as_user": {"true"},
	}
	if text != "" {
		params.Set("text", text)
	}
	if len(attachments) > 0 {
		raw, err := json.Marshal(attachments)
		if err != nil {
			return fmt.Errorf("failed to serialize attachments: %w", err)
		}
		params.Set("attachments", string(raw))
	}

	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, "chat.postMessage", params, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("chat.postMessage failed: %s", resp.Error)
	}
	return nil
}

// ResolveChannelName returns the channel's name for a channel ID.
func (c *Client) ResolveChannelName(ctx context.Context, channelID string) (string, error) {
	info, err := c.channelInfo(ctx, channelID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// ResolveChannelTopic returns the channel's topic text. An empty topic is an
// error: callers use the topic to locate the channel's board.
func (c *Client) ResolveChannelTopic(ctx context.Context, channelID string) (string, error) {
	info, err := c.channelInfo(ctx, channelID)
	if err != nil {
		return "", err
	}
	if info.Topic.Value == "" {
		return "", fmt.Errorf("channel %s has no topic", channelID)
	}
	return info.Topic.Value, nil
}

// ResolveUser returns a user's display name.
func (c *Client) ResolveUser(ctx context.Context, userID string) (string, error) {
	params := url.Values{"user": {userID}}
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		User  struct {
			Name    string `json:"name"`
			Profile struct {
				DisplayName string `json:"display_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.call(ctx, "users.info", params, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("users.info failed: %s", resp.Error)
	}
	if resp.User.Profile.DisplayName != "" {
		return resp.User.Profile.DisplayName, nil
	}
	return resp.User.Name, nil
}

// Stream connects to the RTM websocket and delivers inbound messages directed
// at the bot on the returned channel. The stream reconnects on failure and
// closes only when the context is cancelled.
//
// Events are delivered on a buffered channel; if the consumer falls behind
// the listener blocks rather than dropping, so the consumer's own queue must
// apply backpressure policy.
func (c *Client) Stream(ctx context.Context) <-chan Inbound {
	inbound := make(chan Inbound, 16)

	go func() {
		defer close(inbound)
		for {
			if err := c.streamOnce(ctx, inbound); err != nil {
				c.log.Warn().Err(err).Msg("event stream dropped, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return inbound
}

// rtmEvent is the subset of stream events the listener cares about.
type rtmEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
	User    string `json:"user"`
}

func (c *Client) streamOnce(ctx context.Context, inbound chan<- Inbound) error {
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		URL   string `json:"url"`
	}
	if err := c.call(ctx, "rtm.connect", nil, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("rtm.connect failed: %s", resp.Error)
	}

	conn, _, err := c.dialer.DialContext(ctx, resp.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial event stream: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c.log.Info().Msg("event stream connected")

	for {
		var event rtmEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read stream event: %w", err)
		}

		command, directed := c.directedAtBot(event)
		if !directed {
			continue
		}

		select {
		case inbound <- Inbound{Text: command, ChannelID: event.Channel, UserID: event.User}:
		case <-ctx.Done():
			return nil
		}
	}
}

// directedAtBot decides whether a stream event is addressed to the bot and
// extracts the command text. Mentions anywhere in the text count; everything
// after the mention is the command. Direct messages count in full, except the
// bot's own.
func (c *Client) directedAtBot(event rtmEvent) (string, bool) {
	if event.Type != "message" || event.User == "" || event.User == c.botID {
		return "", false
	}

	mention := "<@" + c.botID + ">"
	if idx := strings.Index(event.Text, mention); idx >= 0 {
		command := event.Text[idx+len(mention):]
		return strings.TrimSpace(strings.TrimLeft(command, ":, ")), true
	}

	// Direct message channel IDs start with D.
	if strings.HasPrefix(event.Channel, "D") {
		return strings.TrimSpace(event.Text), true
	}

	return "", false
}

type channelInfo struct {
	Name  string `json:"name"`
	Topic struct {
		Value string `json:"value"`
	} `json:"topic"`
}

func (c *Client) channelInfo(ctx context.Context, channelID string) (*channelInfo, error) {
	params := url.Values{"channel": {channelID}}
	var resp struct {
		OK      bool        `json:"ok"`
		Error   string      `json:"error"`
		Channel channelInfo `json:"channel"`
	}
	if err := c.call(ctx, "conversations.info", params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("conversations.info failed: %s", resp.Error)
	}
	return &resp.Channel, nil
}

// call performs one Web API method call with the token attached.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}
