package slack

import "strings"

// NewEventAttachment builds the announcement for a newly observed event.
func NewEventAttachment(name, date, venue, url string) []Attachment {
	return []Attachment{{
		Pretext:   "Woohoo! We've got a new event coming up!",
		Color:     "#36a64f",
		Title:     name,
		TitleLink: url,
		Text:      date + "\n" + venue,
	}}
}

// RSVPAttachment builds the announcement for a batch of RSVP changes.
// response is "yes" for newcomers and "no" for cancellations; spots is the
// remaining capacity or "Unknown".
func RSVPAttachment(names, response, event, spots string) []Attachment {
	return []Attachment{{
		Pretext: "New RSVP",
		Text:    names + " replied " + response + " for the " + event + "\n" + spots + " spots left",
	}}
}

// NaturalJoin joins names with sep, using an English "and" before the final
// name.
func NaturalJoin(names []string, sep string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], sep) + " and " + names[len(names)-1]
}
