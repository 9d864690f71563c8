package filter

import (
	"regexp"
	"strings"

	"github.com/melba-bot/melba/internal/domain/track"
)

// DuplicateTrack rejects items already present in the queue.
// Detects:
//   - exact catalog ID matches
//   - the same recording under a different release (normalized title
//     plus same main artist)
//
// Covers keep the title but change the artist and are allowed through.
type DuplicateTrack struct{}

// NewDuplicateTrack creates a duplicate filter.
func NewDuplicateTrack() *DuplicateTrack {
	return &DuplicateTrack{}
}

// Name returns the filter name.
func (f *DuplicateTrack) Name() string {
	return "duplicate_track"
}

// Check rejects the item when the queue already holds the same track.
func (f *DuplicateTrack) Check(item *track.QueueItem, queued []*track.QueueItem) Result {
	for _, q := range queued {
		if item.SpotifyID != "" && q.SpotifyID == item.SpotifyID {
			return Reject("duplicate_track")
		}
		if sameRecording(q, item) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

func sameRecording(a, b *track.QueueItem) bool {
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	return strings.EqualFold(mainArtist(a.Artist), mainArtist(b.Artist))
}

var versionNoise = []*regexp.Regexp{
	regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),
	regexp.MustCompile(`\s*[(\[].*?remaster.*?[)\]]`),
	regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`),
	regexp.MustCompile(`\s*[(\[].*?(version|edit)[)\]]`),
	regexp.MustCompile(`\s*-?\s*(radio\s+edit|single\s+version)`),
}

var collapseSpaces = regexp.MustCompile(`\s+`)

// normalizeTitle strips remaster and version decorations so different
// releases of the same recording compare equal.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, pattern := range versionNoise {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	normalized = collapseSpaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(strings.TrimSpace(normalized), " -")
}

// mainArtist returns the first artist of a joined artist string.
func mainArtist(artist string) string {
	if i := strings.Index(artist, ","); i >= 0 {
		return strings.TrimSpace(artist[:i])
	}
	return strings.TrimSpace(artist)
}
