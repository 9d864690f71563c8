// Package jockey drives per-guild playback: it ties the queue, the
// resolution pipeline, the audio node and the status message together.
package jockey

// State represents the playback lifecycle of one guild.
type State int

const (
	StateIdle            State = iota // Nothing playing
	StateResolving                    // Looking up a playable handle for the current item
	StatePlaying                      // The node is playing the current item
	StateAwaitingAdvance              // Track ended, next one not started yet
	StateDisconnected                 // Voice session torn down
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StateAwaitingAdvance:
		return "awaiting_advance"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
