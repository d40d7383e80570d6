// Package config loads the bot's runtime configuration: credentials and
// process settings from environment variables, and the bot profile (channel
// routing and phrase tables) from an optional YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything read from the environment at startup. Missing
// required credentials are the only fatal startup errors in the system.
type Config struct {
	MeetupAPIKey  string `env:"MEETUP_API_KEY"`
	MeetupGroupID string `env:"MEETUP_GROUP_ID,required"`

	SlackToken string `env:"SLACK_API_TOKEN,required"`
	SlackBotID string `env:"BOT_ID"`

	TrelloKey   string `env:"TRELLO_API_KEY,required"`
	TrelloToken string `env:"TRELLO_TOKEN,required"`
	TrelloTeam  string `env:"TRELLO_TEAM,required"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	Group    string `env:"DAVE_GROUP" envDefault:"storg"`

	CheckInterval  time.Duration `env:"CHECK_INTERVAL" envDefault:"10m"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	OpsChannel     string        `env:"OPS_CHANNEL" envDefault:"#small_council"`
	DefaultChannel string        `env:"ANNOUNCE_CHANNEL" envDefault:"#small_council"`

	// ProfilePath points at the optional dave.yml bot profile. Empty means
	// built-in defaults.
	ProfilePath string `env:"DAVE_PROFILE"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate performs the checks the env tags cannot express.
func (c *Config) Validate() error {
	if c.CheckInterval < time.Second {
		return fmt.Errorf("check interval %s is too short (minimum 1s)", c.CheckInterval)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}
	return nil
}
