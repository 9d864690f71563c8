package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melba-bot/melba/internal/domain/track"
)

func item(title, artist string) *track.QueueItem {
	return &track.QueueItem{Title: title, Artist: artist, Duration: 3 * time.Minute}
}

func TestChain_FirstRejectionWins(t *testing.T) {
	limit, err := NewDurationLimit(map[string]any{"max_minutes": 10})
	require.NoError(t, err)
	chain := NewChain(NewDuplicateTrack(), limit)

	queued := []*track.QueueItem{item("Song A", "Artist")}

	assert.True(t, chain.Check(item("Song B", "Artist"), queued).Accepted)

	result := chain.Check(item("Song A", "Artist"), queued)
	assert.False(t, result.Accepted)
	assert.Equal(t, "duplicate_track", result.Reason)

	long := item("Song C", "Artist")
	long.Duration = 20 * time.Minute
	result = chain.Check(long, queued)
	assert.False(t, result.Accepted)
	assert.Equal(t, "duration_limit", result.Reason)
}

func TestDuplicateTrack(t *testing.T) {
	f := NewDuplicateTrack()

	withID := item("Song A", "Artist")
	withID.SpotifyID = "sp1"
	queued := []*track.QueueItem{withID}

	t.Run("same catalog id", func(t *testing.T) {
		dup := item("Renamed", "Someone Else")
		dup.SpotifyID = "sp1"
		assert.False(t, f.Check(dup, queued).Accepted)
	})

	t.Run("remaster of a queued track", func(t *testing.T) {
		dup := item("Song A - 2011 Remaster", "Artist")
		assert.False(t, f.Check(dup, queued).Accepted)

		dup = item("Song A (Remastered 2023)", "Artist, Guest")
		assert.False(t, f.Check(dup, queued).Accepted)
	})

	t.Run("cover by another artist is allowed", func(t *testing.T) {
		cover := item("Song A", "Tribute Band")
		assert.True(t, f.Check(cover, queued).Accepted)
	})

	t.Run("different song is allowed", func(t *testing.T) {
		assert.True(t, f.Check(item("Song B", "Artist"), queued).Accepted)
	})
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Song A - 2011 Remaster", "song a"},
		{"Song A (Remastered 2023)", "song a"},
		{"Song A [Remastered]", "song a"},
		{"Song A (Single Version)", "song a"},
		{"Song A - Radio Edit", "song a"},
		{"Song A", "song a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeTitle(tt.in), tt.in)
	}
}

func TestDurationLimit(t *testing.T) {
	t.Run("bounds", func(t *testing.T) {
		f, err := NewDurationLimit(map[string]any{"min_minutes": 1, "max_minutes": 10})
		require.NoError(t, err)

		short := item("Short", "A")
		short.Duration = 30 * time.Second
		assert.False(t, f.Check(short, nil).Accepted)

		long := item("Long", "A")
		long.Duration = 11 * time.Minute
		assert.False(t, f.Check(long, nil).Accepted)

		assert.True(t, f.Check(item("Fine", "A"), nil).Accepted)
	})

	t.Run("zero max means unlimited", func(t *testing.T) {
		f, err := NewDurationLimit(map[string]any{})
		require.NoError(t, err)

		long := item("Long", "A")
		long.Duration = 3 * time.Hour
		assert.True(t, f.Check(long, nil).Accepted)
	})

	t.Run("unknown duration passes", func(t *testing.T) {
		f, err := NewDurationLimit(map[string]any{"min_minutes": 1})
		require.NoError(t, err)

		stream := &track.QueueItem{Title: "Radio", Artist: "A"}
		assert.True(t, f.Check(stream, nil).Accepted)
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, err := NewDurationLimit(map[string]any{"min_minutes": 10, "max_minutes": 5})
		assert.Error(t, err)

		_, err = NewDurationLimit(map[string]any{"max_minutes": -1})
		assert.Error(t, err)
	})
}
