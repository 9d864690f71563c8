// Package audionode provides a client for a Lavalink v4 audio node.
//
// The node does the actual audio decoding and transport; this client
// only loads tracks, issues player commands over REST and relays the
// node's event stream.
package audionode

import "time"

// TrackInfo is the metadata the node reports for a loadable track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	Author     string `json:"author"`
	Length     int64  `json:"length"` // milliseconds
	IsStream   bool   `json:"isStream"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	SourceName string `json:"sourceName"`
}

// Track is a playable track as returned by the node. Encoded is the
// opaque handle passed back to the node to start playback.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

// Duration returns the track length as a time.Duration.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.Info.Length) * time.Millisecond
}

// LoadResult is the outcome of a loadtracks call.
type LoadResult struct {
	// PlaylistName is set when the identifier resolved to a playlist.
	PlaylistName string
	Tracks       []Track
}

// EndReason is the node's reason for a track ending.
type EndReason string

const (
	EndReasonFinished   EndReason = "finished"
	EndReasonLoadFailed EndReason = "loadFailed"
	EndReasonStopped    EndReason = "stopped"
	EndReasonReplaced   EndReason = "replaced"
	EndReasonCleanup    EndReason = "cleanup"
)

// MayStartNext reports whether the player is expected to advance to the
// next track after this reason.
func (r EndReason) MayStartNext() bool {
	return r == EndReasonFinished || r == EndReasonLoadFailed
}

// EventType identifies an event from the node.
type EventType int

const (
	EventNodeConnected EventType = iota
	EventNodeDisconnected
	EventTrackStart
	EventTrackEnd
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventNodeConnected:
		return "node_connected"
	case EventNodeDisconnected:
		return "node_disconnected"
	case EventTrackStart:
		return "track_start"
	case EventTrackEnd:
		return "track_end"
	default:
		return "unknown"
	}
}

// Event is a single event from the node's websocket stream.
type Event struct {
	Type    EventType
	GuildID string    // empty for node-level events
	Track   *Track    // set for track events
	Reason  EndReason // set for track end events
}
