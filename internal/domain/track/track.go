// Package track provides the queue item domain entity.
package track

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrAlreadyResolved is returned when attaching a playable to an item twice.
var ErrAlreadyResolved = errors.New("queue item already has a playable track")

// Playable is the opaque handle the audio node streams from, together
// with the metadata the node reported for it. Distinct from any catalog
// identifier.
type Playable struct {
	Encoded  string // token passed back to the node to start playback
	Title    string
	Author   string
	Duration time.Duration
	URL      string
	Stream   bool // live stream, duration is meaningless
}

// ExternalIDs holds cross-provider identifiers used for exact matching.
type ExternalIDs struct {
	ISRC string // industry recording code
	MBID string // MusicBrainz recording ID
}

// QueueItem is one slot in a guild's playback queue.
//
// An item may be created unresolved (catalog metadata only); the playable
// handle is attached lazily, at most once, right before playback. The
// playable handle and the imperfect flag are guarded by an internal
// mutex, since a background prefetch may resolve an item while the
// owning controller reads it.
type QueueItem struct {
	Title      string
	Artist     string
	Duration   time.Duration // 0 until known
	Requester  string        // opaque user identifier
	SpotifyID  string        // catalog ID, if the item came from Spotify
	URL        string        // provider URL, if any
	ArtworkURL string
	External   ExternalIDs

	// StartTime is set when playback of this item begins.
	StartTime time.Time

	mu        sync.Mutex
	imperfect bool
	playable  *Playable
}

// Resolved reports whether a playable handle has been attached.
func (i *QueueItem) Resolved() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.playable != nil
}

// Imperfect reports whether the attached playable is a best-effort
// fuzzy match rather than an exact catalog hit.
func (i *QueueItem) Imperfect() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.imperfect
}

// MarkImperfect flags the item as a best-effort match.
func (i *QueueItem) MarkImperfect() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.imperfect = true
}

// Playable returns the attached playable handle, if any.
func (i *QueueItem) Playable() (Playable, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.playable == nil {
		return Playable{}, false
	}
	return *i.playable, true
}

// AttachPlayable attaches the playable handle to the item.
// Resolution is a one-way transition; attaching twice is an error.
func (i *QueueItem) AttachPlayable(p Playable) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.playable != nil {
		return ErrAlreadyResolved
	}
	i.playable = &p
	return nil
}

// ResolveOnce attaches the playable produced by fn, unless one is
// already attached. The item's lock is held across fn, so a concurrent
// caller waits for the in-flight attempt and then sees its result
// instead of resolving the same item twice.
func (i *QueueItem) ResolveOnce(fn func() (Playable, bool, error)) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.playable != nil {
		return nil
	}

	p, imperfect, err := fn()
	if err != nil {
		return err
	}
	i.playable = &p
	if imperfect {
		i.imperfect = true
	}
	return nil
}

// EffectiveDuration returns the playable's duration when resolved,
// falling back to the catalog duration.
func (i *QueueItem) EffectiveDuration() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.playable != nil && i.playable.Duration > 0 {
		return i.playable.Duration
	}
	return i.Duration
}

// CanScrobble reports whether enough of the track has played for a
// scrobble: the track is at least 30 seconds long and at least
// min(half the duration, 4 minutes) has elapsed since StartTime.
func (i *QueueItem) CanScrobble(now time.Time) bool {
	duration := i.EffectiveDuration()
	if i.StartTime.IsZero() || duration <= 0 {
		return false
	}
	if duration < 30*time.Second {
		return false
	}

	required := duration / 2
	if required > 4*time.Minute {
		required = 4 * time.Minute
	}
	return now.Sub(i.StartTime) >= required
}
