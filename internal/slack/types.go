package slack

// Attachment is one structured block in a chat message.
type Attachment struct {
	Pretext   string `json:"pretext,omitempty"`
	Color     string `json:"color,omitempty"`
	Title     string `json:"title,omitempty"`
	TitleLink string `json:"title_link,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Inbound is one message from the event stream that was directed at the bot,
// either by explicit mention (the mention already stripped from Text) or by
// being a direct message.
type Inbound struct {
	Text      string
	ChannelID string
	UserID    string
}
