package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/storg/dave/internal/bot"
	"github.com/storg/dave/internal/config"
	"github.com/storg/dave/internal/meetup"
	"github.com/storg/dave/internal/printer"
	"github.com/storg/dave/internal/reconciler"
	"github.com/storg/dave/internal/router"
	"github.com/storg/dave/internal/slack"
	"github.com/storg/dave/internal/trello"
	"github.com/storg/dave/pkg/roster"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long: `Run the bot: the chat listener, the command worker, and the
reconciliation loop, until SIGINT or SIGTERM.

Configuration comes from the environment (credentials, Redis URL, poll
interval) plus an optional DAVE_PROFILE yaml file with channel routing and
phrase tables.`,
	RunE:          runRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), []string{
			"Check that MEETUP_GROUP_ID, SLACK_API_TOKEN, TRELLO_API_KEY, TRELLO_TOKEN and TRELLO_TEAM are set",
		})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	profile := config.DefaultProfile()
	if cfg.ProfilePath != "" {
		profile, err = config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return printer.Error("Profile error", err.Error(), []string{
				"Fix the file DAVE_PROFILE points at, or unset DAVE_PROFILE to use the built-in profile",
			})
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return printer.Error("Invalid REDIS_URL", err.Error(), nil)
	}
	store, err := roster.NewStore(redisOpts, cfg.Group)
	if err != nil {
		return printer.Error("Store error", err.Error(), nil)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	printer.Step("connecting to Redis\n")
	if err := store.Ping(ctx); err != nil {
		return printer.Error("Redis not accessible", err.Error(), []string{
			"Check that Redis is running and REDIS_URL is correct",
		})
	}
	printer.Success("Redis connected\n")

	source := meetup.NewClient(cfg.MeetupAPIKey, cfg.MeetupGroupID, log)
	chat := slack.NewClient(cfg.SlackToken, cfg.SlackBotID, log)
	boards := trello.NewClient(cfg.TrelloKey, cfg.TrelloToken, cfg.TrelloTeam, log)

	printer.Step("loading known events\n")
	cache, err := bot.Hydrate(ctx, source, store, log)
	if err != nil {
		return printer.Error("Startup error", err.Error(), nil)
	}
	printer.Success("%d known events loaded\n", cache.Len())

	engine := reconciler.NewEngine(source, boards, chat, store, cache, reconciler.Options{
		VenueChannels:  profile.VenueChannels,
		DefaultChannel: cfg.DefaultChannel,
		OpsChannel:     cfg.OpsChannel,
	}, log)
	commandRouter := router.New(cache, engine, boards, chat, profile, cfg.OpsChannel, log)
	dave := bot.New(chat, chat, chat, commandRouter, engine, cfg.CheckInterval, cfg.OpsChannel, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		dave.Run(ctx)
		close(done)
	}()

	printer.Info("dave is up, watching group '%s'\n", cfg.Group)
	log.Info().Str("group", cfg.Group).Dur("interval", cfg.CheckInterval).Msg("dave is up")

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()
	<-done
	printer.Println("shut down cleanly")
	return nil
}
