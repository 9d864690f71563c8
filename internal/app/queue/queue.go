// Package queue provides the per-guild playback queue with shuffle and
// loop support.
//
// The queue distinguishes natural indices (position in insertion-ordered
// storage) from display indices (position as the user sees the queue,
// which reflects the shuffle permutation when shuffling is active).
package queue

import (
	"math/rand"

	"github.com/cockroachdb/errors"

	"github.com/melba-bot/melba/internal/domain/track"
)

// Errors
var (
	ErrQueueEmpty       = errors.New("queue is empty")
	ErrIndexOutOfRange  = errors.New("queue index out of range")
	ErrEndReached       = errors.New("reached the end of the queue")
	ErrBeginningReached = errors.New("reached the beginning of the queue")
)

// IsEndOfQueue reports whether err signals that a traversal ran off
// either end of the queue without wraparound.
func IsEndOfQueue(err error) bool {
	return errors.Is(err, ErrEndReached) || errors.Is(err, ErrBeginningReached)
}

// Manager owns the ordered queue for one guild: the items, the current
// position, the shuffle permutation and the loop flags.
//
// Manager is not safe for concurrent use; the owning controller
// serializes access.
type Manager struct {
	items        []*track.QueueItem
	currentIndex int   // natural index, -1 until playback starts
	shuffleOrder []int // permutation over natural indices, nil when not shuffling

	loopOne bool
	loopAll bool
}

// New creates an empty queue manager.
func New() *Manager {
	return &Manager{currentIndex: -1}
}

// Size returns the number of queued items.
func (m *Manager) Size() int {
	return len(m.items)
}

// IsShuffling reports whether a shuffle permutation is active.
func (m *Manager) IsShuffling() bool {
	return len(m.shuffleOrder) > 0
}

// LoopOne reports whether the current track repeats.
func (m *Manager) LoopOne() bool { return m.loopOne }

// SetLoopOne sets the repeat-one flag.
func (m *Manager) SetLoopOne(v bool) { m.loopOne = v }

// LoopAll reports whether traversal wraps past either end.
func (m *Manager) LoopAll() bool { return m.loopAll }

// SetLoopAll sets the repeat-all flag.
func (m *Manager) SetLoopAll(v bool) { m.loopAll = v }

// CurrentIndex returns the natural index of the current track,
// or -1 if nothing has played yet.
func (m *Manager) CurrentIndex() int {
	return m.currentIndex
}

// SetCurrentIndex moves the current position to the given natural index.
func (m *Manager) SetCurrentIndex(i int) error {
	if i < 0 || i >= len(m.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", i, len(m.items))
	}
	m.currentIndex = i
	return nil
}

// Current returns the current item, or nil if nothing has played yet.
func (m *Manager) Current() *track.QueueItem {
	if m.currentIndex < 0 || m.currentIndex >= len(m.items) {
		return nil
	}
	return m.items[m.currentIndex]
}

// CurrentDisplayIndex returns the 0-based display position of the
// current track, or -1 if nothing has played yet.
func (m *Manager) CurrentDisplayIndex() int {
	if m.currentIndex < 0 {
		return -1
	}
	if !m.IsShuffling() {
		return m.currentIndex
	}
	for pos, natural := range m.shuffleOrder {
		if natural == m.currentIndex {
			return pos
		}
	}
	return -1
}

// NaturalIndex translates a display index into a natural index.
func (m *Manager) NaturalIndex(display int) (int, error) {
	if display < 0 || display >= len(m.items) {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", display, len(m.items))
	}
	if m.IsShuffling() {
		return m.shuffleOrder[display], nil
	}
	return display, nil
}

// ItemAt returns the item at the given natural index.
func (m *Manager) ItemAt(natural int) (*track.QueueItem, error) {
	if natural < 0 || natural >= len(m.items) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", natural, len(m.items))
	}
	return m.items[natural], nil
}

// Items returns the queue in display order.
func (m *Manager) Items() []*track.QueueItem {
	out := make([]*track.QueueItem, 0, len(m.items))
	if m.IsShuffling() {
		for _, natural := range m.shuffleOrder {
			out = append(out, m.items[natural])
		}
		return out
	}
	out = append(out, m.items...)
	return out
}

// Append adds items to the end of the queue. When shuffling, the new
// trailing natural indices are appended to the permutation so new items
// never jump ahead of existing ones in playback order.
func (m *Manager) Append(items ...*track.QueueItem) {
	oldSize := len(m.items)
	m.items = append(m.items, items...)

	if m.IsShuffling() {
		for i := range items {
			m.shuffleOrder = append(m.shuffleOrder, oldSize+i)
		}
	}
}

// Remove deletes the item at the given display index and returns it.
// The permutation and the current position are adjusted so every other
// item keeps its identity at its new index.
func (m *Manager) Remove(display int) (*track.QueueItem, error) {
	natural, err := m.NaturalIndex(display)
	if err != nil {
		return nil, err
	}

	removed := m.items[natural]
	m.items = append(m.items[:natural], m.items[natural+1:]...)

	if m.IsShuffling() {
		m.shuffleOrder = append(m.shuffleOrder[:display], m.shuffleOrder[display+1:]...)
		for i, v := range m.shuffleOrder {
			if v > natural {
				m.shuffleOrder[i] = v - 1
			}
		}
	}

	if m.currentIndex > natural {
		m.currentIndex--
	}

	return removed, nil
}

// Shuffle builds a fresh shuffle permutation: all natural indices except
// the current one in random order, with the current index pinned at
// display position 0.
func (m *Manager) Shuffle() error {
	if len(m.items) == 0 {
		return ErrQueueEmpty
	}

	indices := make([]int, 0, len(m.items))
	for i := range m.items {
		if i != m.currentIndex {
			indices = append(indices, i)
		}
	}
	rand.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	if m.currentIndex >= 0 {
		indices = append([]int{m.currentIndex}, indices...)
	}
	m.shuffleOrder = indices
	return nil
}

// Unshuffle drops the shuffle permutation, restoring insertion order.
// The current track keeps its natural index.
func (m *Manager) Unshuffle() {
	m.shuffleOrder = nil
}

// CalcNextIndex computes the natural index of the next track in the
// given direction without mutating any state.
//
// Traversal works on display positions: step the current display
// position by one, wrap when loop-all is set, otherwise fail with
// ErrEndReached or ErrBeginningReached. Repeat-one is handled a level
// above by the controller, which replays the current natural index
// without calling this at all.
func (m *Manager) CalcNextIndex(forward bool) (int, error) {
	if len(m.items) == 0 {
		return 0, ErrQueueEmpty
	}

	pos := m.CurrentDisplayIndex()
	if forward {
		if pos >= len(m.items)-1 {
			if !m.loopAll {
				return 0, ErrEndReached
			}
			pos = 0
		} else {
			pos++
		}
	} else {
		if pos <= 0 {
			if !m.loopAll {
				return 0, ErrBeginningReached
			}
			pos = len(m.items) - 1
		} else {
			pos--
		}
	}

	return m.NaturalIndex(pos)
}
