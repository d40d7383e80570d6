package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the bot's personality and routing table: which chat channel each
// venue announces to, which first words count as greetings, and the phrase
// pools the router draws randomized replies from. Loaded once at startup.
type Profile struct {
	// VenueChannels maps a venue name to the channel its announcements go to.
	// Venues not listed here fall back to the default announcement channel.
	VenueChannels map[string]string `yaml:"venue_channels"`

	GreetingKeywords  []string `yaml:"greeting_keywords"`
	GreetingResponses []string `yaml:"greeting_responses"`
	UnknownReplies    []string `yaml:"unknown_replies"`
	Acknowledgements  []string `yaml:"acknowledgements"`
}

// DefaultProfile returns the built-in profile used when no dave.yml is given.
func DefaultProfile() *Profile {
	return &Profile{
		VenueChannels: map[string]string{
			"STORG Clubhouse":          "#storg-south",
			"STORG Northern Clubhouse": "#storg-north",
		},
		GreetingKeywords:  []string{"hello", "hi", "greetings", "sup", "yo"},
		GreetingResponses: []string{"Hey!", "*nods*", "Oh hi there!", "*waves*", "greetings"},
		UnknownReplies: []string{
			"Huh?",
			"I have no idea what that means.",
			"I'd like to add you to my professional network on LinkedIn",
			"...",
		},
		Acknowledgements: []string{"Anytime :relaxed:", "You're welcome!", ":bow:"},
	}
}

// LoadProfile reads a profile from the given YAML file. An empty path returns
// the built-in defaults. Fields left out of the file keep their defaults.
func LoadProfile(path string) (*Profile, error) {
	profile := DefaultProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	var overlay Profile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if overlay.VenueChannels != nil {
		profile.VenueChannels = overlay.VenueChannels
	}
	if overlay.GreetingKeywords != nil {
		profile.GreetingKeywords = overlay.GreetingKeywords
	}
	if overlay.GreetingResponses != nil {
		profile.GreetingResponses = overlay.GreetingResponses
	}
	if overlay.UnknownReplies != nil {
		profile.UnknownReplies = overlay.UnknownReplies
	}
	if overlay.Acknowledgements != nil {
		profile.Acknowledgements = overlay.Acknowledgements
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return profile, nil
}

// Validate rejects profiles that would leave the router with an empty phrase
// pool to draw from.
func (p *Profile) Validate() error {
	if len(p.GreetingKeywords) == 0 {
		return fmt.Errorf("greeting_keywords cannot be empty")
	}
	if len(p.GreetingResponses) == 0 {
		return fmt.Errorf("greeting_responses cannot be empty")
	}
	if len(p.UnknownReplies) == 0 {
		return fmt.Errorf("unknown_replies cannot be empty")
	}
	if len(p.Acknowledgements) == 0 {
		return fmt.Errorf("acknowledgements cannot be empty")
	}
	return nil
}
