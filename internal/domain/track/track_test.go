package track

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueItem_AttachPlayable(t *testing.T) {
	item := &QueueItem{Title: "Song", Artist: "Artist"}

	assert.False(t, item.Resolved())
	_, ok := item.Playable()
	assert.False(t, ok)

	err := item.AttachPlayable(Playable{Encoded: "abc", Duration: 3 * time.Minute})
	require.NoError(t, err)
	assert.True(t, item.Resolved())

	p, ok := item.Playable()
	require.True(t, ok)
	assert.Equal(t, "abc", p.Encoded)

	// Resolution is one-way
	err = item.AttachPlayable(Playable{Encoded: "def"})
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	p, _ = item.Playable()
	assert.Equal(t, "abc", p.Encoded)
}

func TestQueueItem_ResolveOnce(t *testing.T) {
	t.Run("attaches and marks imperfect", func(t *testing.T) {
		item := &QueueItem{Title: "Song"}
		err := item.ResolveOnce(func() (Playable, bool, error) {
			return Playable{Encoded: "abc"}, true, nil
		})
		require.NoError(t, err)
		assert.True(t, item.Resolved())
		assert.True(t, item.Imperfect())
	})

	t.Run("no-op once resolved", func(t *testing.T) {
		item := &QueueItem{Title: "Song"}
		require.NoError(t, item.AttachPlayable(Playable{Encoded: "abc"}))

		err := item.ResolveOnce(func() (Playable, bool, error) {
			t.Fatal("resolution ran twice")
			return Playable{}, false, nil
		})
		require.NoError(t, err)
	})

	t.Run("concurrent callers resolve exactly once", func(t *testing.T) {
		item := &QueueItem{Title: "Song"}
		var calls int32
		start := make(chan struct{})

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				err := item.ResolveOnce(func() (Playable, bool, error) {
					atomic.AddInt32(&calls, 1)
					time.Sleep(10 * time.Millisecond)
					return Playable{Encoded: "abc"}, false, nil
				})
				assert.NoError(t, err)
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), calls)
		assert.True(t, item.Resolved())
	})
}

func TestQueueItem_EffectiveDuration(t *testing.T) {
	item := &QueueItem{Duration: 2 * time.Minute}
	assert.Equal(t, 2*time.Minute, item.EffectiveDuration())

	// Playable duration takes precedence once resolved
	require.NoError(t, item.AttachPlayable(Playable{Encoded: "abc", Duration: 3 * time.Minute}))
	assert.Equal(t, 3*time.Minute, item.EffectiveDuration())
}

func TestQueueItem_CanScrobble(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		duration  time.Duration
		startedAgo time.Duration
		started   bool
		expected  bool
	}{
		{
			name:     "never started",
			duration: 3 * time.Minute,
			started:  false,
			expected: false,
		},
		{
			name:      "track too short",
			duration:  20 * time.Second,
			startedAgo: 20 * time.Second,
			started:   true,
			expected:  false,
		},
		{
			name:      "half duration elapsed",
			duration:  3 * time.Minute,
			startedAgo: 90 * time.Second,
			started:   true,
			expected:  true,
		},
		{
			name:      "not enough time elapsed",
			duration:  3 * time.Minute,
			startedAgo: 60 * time.Second,
			started:   true,
			expected:  false,
		},
		{
			name:      "long track capped at four minutes",
			duration:  20 * time.Minute,
			startedAgo: 4 * time.Minute,
			started:   true,
			expected:  true,
		},
		{
			name:      "long track under four minutes",
			duration:  20 * time.Minute,
			startedAgo: 3 * time.Minute,
			started:   true,
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &QueueItem{Duration: tt.duration}
			if tt.started {
				item.StartTime = now.Add(-tt.startedAgo)
			}
			assert.Equal(t, tt.expected, item.CanScrobble(now))
		})
	}
}
