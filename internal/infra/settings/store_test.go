package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Defaults(t *testing.T) {
	store := newTestStore(t)

	gs, err := store.Guild("guild1")
	require.NoError(t, err)
	assert.Equal(t, 100, gs.Volume)
	assert.False(t, gs.LoopOne)
	assert.False(t, gs.LoopAll)
	assert.Empty(t, gs.StatusChannelID)
	assert.Empty(t, gs.NowPlayingMessageID)
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetVolume("guild1", 55))
	require.NoError(t, store.SetLoopOne("guild1", true))
	require.NoError(t, store.SetLoopAll("guild1", true))
	require.NoError(t, store.SetStatusChannel("guild1", "chan9"))
	require.NoError(t, store.SetNowPlayingMessage("guild1", "msg42"))

	gs, err := store.Guild("guild1")
	require.NoError(t, err)
	assert.Equal(t, 55, gs.Volume)
	assert.True(t, gs.LoopOne)
	assert.True(t, gs.LoopAll)
	assert.Equal(t, "chan9", gs.StatusChannelID)
	assert.Equal(t, "msg42", gs.NowPlayingMessageID)

	// Other guilds are unaffected.
	other, err := store.Guild("guild2")
	require.NoError(t, err)
	assert.Equal(t, 100, other.Volume)
	assert.False(t, other.LoopOne)
}

func TestStore_ClearNowPlayingMessage(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetNowPlayingMessage("guild1", "msg42"))
	require.NoError(t, store.SetNowPlayingMessage("guild1", ""))

	gs, err := store.Guild("guild1")
	require.NoError(t, err)
	assert.Empty(t, gs.NowPlayingMessageID)
}
