package trello

import (
	"fmt"
	"regexp"
	"strconv"
)

// Table is one named, capacity-bounded grouping of members on an event board.
// On the wire a table is a list whose name carries a numeric prefix and an
// optional capacity, e.g. "2. Dungeon Crawl (6)". The blurb lives in the
// description of a marker card named "About"; every other card is a member.
type Table struct {
	ID       string   // numeric prefix, unique within a board
	Title    string
	Blurb    string
	Capacity int // 0 means uncapped
	Members  []string
}

// IntakeListName is the list holding members who RSVPed but have not picked a
// table yet. Boards created from the template start with this list first.
const IntakeListName = "RSVPs"

// aboutCardName marks the card carrying a table's blurb.
const aboutCardName = "About"

var tableNamePattern = regexp.MustCompile(`^(\d+)\.\s*(.+?)(?:\s*\((\d+)\))?$`)

// parseTableName splits a list name into its numeric prefix, title, and
// optional capacity. Returns false for lists that are not tables (for example
// the intake list).
func parseTableName(name string) (id, title string, capacity int, ok bool) {
	m := tableNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", 0, false
	}
	if m[3] != "" {
		capacity, _ = strconv.Atoi(m[3])
	}
	return m[1], m[2], capacity, true
}

// formatTableName renders a table's list name from its parts.
func formatTableName(prefix int, title string, capacity int) string {
	if capacity > 0 {
		return fmt.Sprintf("%d. %s (%d)", prefix, title, capacity)
	}
	return fmt.Sprintf("%d. %s", prefix, title)
}
