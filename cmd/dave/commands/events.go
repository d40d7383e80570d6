package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storg/dave/internal/printer"
	"github.com/storg/dave/pkg/roster"
)

var eventsOutputFormat string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the events dave knows about",
	Long: `List the events currently persisted in Redis, with their dates and
participant counts.

Output Formats:
  default - Human-readable table with ID, NAME, WHEN, and JOINED
  json    - Line-delimited JSON, one event per line

Examples:
  # List known events
  dave events

  # Extract participant names for an event
  dave events --output=json | jq -r 'select(.id=="E1") | .participants[].name'`,
	RunE:          runEvents,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	group := os.Getenv("DAVE_GROUP")
	if group == "" {
		group = "storg"
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return printer.Error("Invalid REDIS_URL", err.Error(), nil)
	}
	store, err := roster.NewStore(redisOpts, group)
	if err != nil {
		return printer.Error("Store error", err.Error(), nil)
	}
	defer store.Close()

	ctx := context.Background()
	events, err := store.LoadAllEvents(ctx)
	if err != nil {
		return printer.Error("Failed to load events", err.Error(), []string{
			"Check that Redis is running and REDIS_URL is correct",
		})
	}

	sorted := sortedByStart(events)
	switch eventsOutputFormat {
	case "json":
		return formatEventsJSONL(os.Stdout, sorted)
	case "default":
	default:
		printer.Warning("unknown output format '%s', using default\n", eventsOutputFormat)
	}
	formatEventsTable(os.Stdout, sorted, group)
	return nil
}

// sortedByStart orders events by start time, then name for a stable listing.
func sortedByStart(events map[string]*roster.Event) []*roster.Event {
	sorted := make([]*roster.Event, 0, len(events))
	for _, event := range events {
		sorted = append(sorted, event)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TimeMs != sorted[j].TimeMs {
			return sorted[i].TimeMs < sorted[j].TimeMs
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// formatEventsTable writes events as a fixed-width table.
func formatEventsTable(w io.Writer, events []*roster.Event, group string) {
	if len(events) == 0 {
		fmt.Fprintf(w, "No events found for group '%s'\n", group)
		return
	}

	fmt.Fprintf(w, "Events for group '%s':\n\n", group)
	fmt.Fprintf(w, "%-12s %-30s %-22s %s\n", "ID", "NAME", "WHEN", "JOINED")
	fmt.Fprintf(w, "%-12s %-30s %-22s %s\n", "------------", "------------------------------", "----------------------", "------")

	for _, event := range events {
		joined := strconv.Itoa(len(event.Participants))
		if event.RSVPLimit > 0 {
			joined = fmt.Sprintf("%d/%d", len(event.Participants), event.RSVPLimit)
		}
		fmt.Fprintf(w, "%-12s %-30s %-22s %s\n",
			event.ID,
			truncate(event.Name, 30),
			event.StartTime().Format("2006-01-02 15:04"),
			joined,
		)
	}

	countMsg := "event"
	if len(events) != 1 {
		countMsg = "events"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(events), countMsg)
}

// formatEventsJSONL writes one compact JSON object per line.
func formatEventsJSONL(w io.Writer, events []*roster.Event) error {
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
