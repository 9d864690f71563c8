package jockey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melba-bot/melba/internal/domain/track"
	"github.com/melba-bot/melba/internal/infra/audionode"
)

func newTestManager(t *testing.T, resolver *fakeResolver) (*Manager, map[string]*fakePlayer) {
	t.Helper()
	players := map[string]*fakePlayer{}
	m, err := NewManager(ManagerDeps{
		NewPlayer: func(guildID string) NodePlayer {
			p := &fakePlayer{}
			players[guildID] = p
			return p
		},
		Resolver: resolver,
		Reporter: &fakeReporter{},
		Store:    newFakeStore(),
	})
	require.NoError(t, err)
	return m, players
}

func TestManager_GetOrCreate(t *testing.T) {
	m, _ := newTestManager(t, &fakeResolver{})

	c1, err := m.Get("g1")
	require.NoError(t, err)
	c2, err := m.Get("g1")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := m.Get("g2")
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)

	_, ok := m.Lookup("g1")
	assert.True(t, ok)
	_, ok = m.Lookup("g9")
	assert.False(t, ok)
}

func TestManager_Destroy(t *testing.T) {
	m, players := newTestManager(t, &fakeResolver{})

	_, err := m.Get("g1")
	require.NoError(t, err)
	require.NoError(t, m.Destroy(context.Background(), "g1"))
	assert.True(t, players["g1"].destroyed)

	_, ok := m.Lookup("g1")
	assert.False(t, ok)

	assert.ErrorIs(t, m.Destroy(context.Background(), "g1"), ErrUnknownGuild)
}

func TestManager_DispatchEvents_RoutesByGuild(t *testing.T) {
	resolver := &fakeResolver{items: []*track.QueueItem{testItem("A"), testItem("B")}}
	m, _ := newTestManager(t, resolver)
	c, err := m.Get("g1")
	require.NoError(t, err)
	_, err = c.Play(context.Background(), "ab", "user1")
	require.NoError(t, err)

	events := make(chan audionode.Event, 2)
	events <- audionode.Event{
		Type:    audionode.EventTrackEnd,
		GuildID: "g1",
		Reason:  audionode.EndReasonFinished,
	}
	// Events for guilds without a controller are dropped.
	events <- audionode.Event{
		Type:    audionode.EventTrackEnd,
		GuildID: "g9",
		Reason:  audionode.EndReasonFinished,
	}
	close(events)

	m.DispatchEvents(context.Background(), events)
	assert.Equal(t, "B", c.NowPlaying().Title)
}

func TestManager_ReapIdle(t *testing.T) {
	m, players := newTestManager(t, &fakeResolver{})

	c, err := m.Get("g1")
	require.NoError(t, err)

	// Freshly created controllers are idle but not yet stale.
	assert.Equal(t, 0, m.ReapIdle(context.Background(), time.Hour))

	c.mu.Lock()
	c.idleSince = time.Now().Add(-2 * time.Hour)
	c.mu.Unlock()

	assert.Equal(t, 1, m.ReapIdle(context.Background(), time.Hour))
	assert.True(t, players["g1"].destroyed)
	_, ok := m.Lookup("g1")
	assert.False(t, ok)
}

func TestManager_Shutdown(t *testing.T) {
	m, players := newTestManager(t, &fakeResolver{})

	_, err := m.Get("g1")
	require.NoError(t, err)
	_, err = m.Get("g2")
	require.NoError(t, err)

	m.Shutdown(context.Background())
	assert.True(t, players["g1"].destroyed)
	assert.True(t, players["g2"].destroyed)
	_, ok := m.Lookup("g1")
	assert.False(t, ok)
}
