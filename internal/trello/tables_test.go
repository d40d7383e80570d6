package trello

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTableName(t *testing.T) {
	t.Run("prefix, title and capacity", func(t *testing.T) {
		id, title, capacity, ok := parseTableName("2. Dungeon Crawl (6)")
		assert.True(t, ok)
		assert.Equal(t, "2", id)
		assert.Equal(t, "Dungeon Crawl", title)
		assert.Equal(t, 6, capacity)
	})

	t.Run("capacity is optional", func(t *testing.T) {
		id, title, capacity, ok := parseTableName("10. Open Gaming")
		assert.True(t, ok)
		assert.Equal(t, "10", id)
		assert.Equal(t, "Open Gaming", title)
		assert.Equal(t, 0, capacity)
	})

	t.Run("non-table lists are rejected", func(t *testing.T) {
		_, _, _, ok := parseTableName(IntakeListName)
		assert.False(t, ok)

		_, _, _, ok = parseTableName("Notes")
		assert.False(t, ok)
	})
}

func TestFormatTableName(t *testing.T) {
	assert.Equal(t, "3. Heist Night (5)", formatTableName(3, "Heist Night", 5))
	assert.Equal(t, "3. Heist Night", formatTableName(3, "Heist Night", 0))
}
