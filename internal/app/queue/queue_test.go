package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melba-bot/melba/internal/domain/track"
)

func makeItems(n int) []*track.QueueItem {
	items := make([]*track.QueueItem, n)
	for i := range items {
		items[i] = &track.QueueItem{
			Title:  fmt.Sprintf("Track %d", i),
			Artist: fmt.Sprintf("Artist %d", i),
		}
	}
	return items
}

func TestManager_Append(t *testing.T) {
	m := New()
	assert.Equal(t, 0, m.Size())
	assert.Equal(t, -1, m.CurrentIndex())
	assert.Nil(t, m.Current())

	m.Append(makeItems(3)...)
	assert.Equal(t, 3, m.Size())

	require.NoError(t, m.SetCurrentIndex(0))
	assert.Equal(t, "Track 0", m.Current().Title)
}

func TestManager_AppendWhileShuffling(t *testing.T) {
	m := New()
	m.Append(makeItems(3)...)
	require.NoError(t, m.SetCurrentIndex(1))
	require.NoError(t, m.Shuffle())

	// New items keep their natural order at the tail of the permutation.
	m.Append(makeItems(2)...)
	items := m.Items()
	require.Len(t, items, 5)
	assert.Equal(t, "Track 0", items[3].Title)
	assert.Equal(t, "Track 1", items[4].Title)
}

func TestManager_CalcNextIndex_Forward(t *testing.T) {
	m := New()
	m.Append(makeItems(3)...)
	require.NoError(t, m.SetCurrentIndex(0))

	next, err := m.CalcNextIndex(true)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestManager_CalcNextIndex_EndOfQueue(t *testing.T) {
	m := New()
	m.Append(makeItems(3)...)
	require.NoError(t, m.SetCurrentIndex(2))

	// Advancing from the last index without loop-all fails with the
	// "end" reason and mutates nothing, no matter how often it is tried.
	for i := 0; i < 3; i++ {
		_, err := m.CalcNextIndex(true)
		assert.ErrorIs(t, err, ErrEndReached)
		assert.True(t, IsEndOfQueue(err))
		assert.Equal(t, 2, m.CurrentIndex())
	}
}

func TestManager_CalcNextIndex_BeginningOfQueue(t *testing.T) {
	m := New()
	m.Append(makeItems(3)...)
	require.NoError(t, m.SetCurrentIndex(0))

	_, err := m.CalcNextIndex(false)
	assert.ErrorIs(t, err, ErrBeginningReached)
	assert.True(t, IsEndOfQueue(err))
}

func TestManager_CalcNextIndex_LoopAll(t *testing.T) {
	m := New()
	m.Append(makeItems(3)...)
	m.SetLoopAll(true)

	require.NoError(t, m.SetCurrentIndex(2))
	next, err := m.CalcNextIndex(true)
	require.NoError(t, err)
	assert.Equal(t, 0, next, "forward past the end wraps to display position 0")

	require.NoError(t, m.SetCurrentIndex(0))
	next, err = m.CalcNextIndex(false)
	require.NoError(t, err)
	assert.Equal(t, 2, next, "backward past the beginning wraps to the last display position")
}

func TestManager_CalcNextIndex_EmptyQueue(t *testing.T) {
	m := New()
	_, err := m.CalcNextIndex(true)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestManager_Shuffle(t *testing.T) {
	for size := 1; size <= 8; size++ {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			m := New()
			m.Append(makeItems(size)...)
			current := size / 2
			require.NoError(t, m.SetCurrentIndex(current))

			require.NoError(t, m.Shuffle())
			require.True(t, m.IsShuffling())

			// The current track leads the permutation.
			assert.Equal(t, 0, m.CurrentDisplayIndex())
			natural, err := m.NaturalIndex(0)
			require.NoError(t, err)
			assert.Equal(t, current, natural)

			// The permutation is a bijection over all natural indices.
			seen := make(map[int]bool)
			for display := 0; display < m.Size(); display++ {
				n, err := m.NaturalIndex(display)
				require.NoError(t, err)
				assert.False(t, seen[n])
				seen[n] = true
			}
			assert.Len(t, seen, size)
		})
	}
}

func TestManager_Shuffle_EmptyQueue(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Shuffle(), ErrQueueEmpty)
}

func TestManager_CalcNextIndex_Shuffled(t *testing.T) {
	m := New()
	m.Append(makeItems(3)...)
	require.NoError(t, m.SetCurrentIndex(2))
	m.shuffleOrder = []int{2, 0, 1}

	// Current natural index 2 is at display position 0; stepping forward
	// lands on display position 1, which is natural index 0.
	next, err := m.CalcNextIndex(true)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestManager_Remove(t *testing.T) {
	m := New()
	m.Append(makeItems(4)...)
	require.NoError(t, m.SetCurrentIndex(2))

	removed, err := m.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "Track 1", removed.Title)
	assert.Equal(t, 3, m.Size())

	// The current index shifts down with the removal and still points at
	// the same item.
	assert.Equal(t, 1, m.CurrentIndex())
	assert.Equal(t, "Track 2", m.Current().Title)

	// Remaining items keep their identity at their new display indices.
	items := m.Items()
	assert.Equal(t, []string{"Track 0", "Track 2", "Track 3"},
		[]string{items[0].Title, items[1].Title, items[2].Title})
}

func TestManager_Remove_Shuffled(t *testing.T) {
	m := New()
	m.Append(makeItems(4)...)
	require.NoError(t, m.SetCurrentIndex(3))
	m.shuffleOrder = []int{3, 1, 0, 2}

	// Display index 1 is natural index 1.
	removed, err := m.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "Track 1", removed.Title)

	// Permutation entries past the removed natural index shift down.
	assert.Equal(t, []int{2, 0, 1}, m.shuffleOrder)
	assert.Equal(t, 2, m.CurrentIndex())
	assert.Equal(t, "Track 3", m.Current().Title)
	assert.Equal(t, 0, m.CurrentDisplayIndex())
}

func TestManager_Remove_Invariants(t *testing.T) {
	for removeAt := 0; removeAt < 4; removeAt++ {
		t.Run(fmt.Sprintf("remove %d", removeAt), func(t *testing.T) {
			m := New()
			m.Append(makeItems(4)...)
			require.NoError(t, m.SetCurrentIndex(0))

			before := m.Items()
			var want []string
			for i, it := range before {
				if i != removeAt {
					want = append(want, it.Title+"/"+it.Artist)
				}
			}

			_, err := m.Remove(removeAt)
			require.NoError(t, err)
			require.Equal(t, 3, m.Size())

			var got []string
			for _, it := range m.Items() {
				got = append(got, it.Title+"/"+it.Artist)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestManager_Remove_OutOfRange(t *testing.T) {
	m := New()
	m.Append(makeItems(2)...)

	_, err := m.Remove(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = m.Remove(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestManager_SetCurrentIndex_OutOfRange(t *testing.T) {
	m := New()
	m.Append(makeItems(2)...)

	assert.ErrorIs(t, m.SetCurrentIndex(2), ErrIndexOutOfRange)
	assert.ErrorIs(t, m.SetCurrentIndex(-1), ErrIndexOutOfRange)
}
