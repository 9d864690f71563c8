// Package settings provides the persistent per-guild settings store.
package settings

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS guild_settings (
	guild_id           TEXT PRIMARY KEY,
	volume             INTEGER NOT NULL DEFAULT 100,
	loop_one           INTEGER NOT NULL DEFAULT 0,
	loop_all           INTEGER NOT NULL DEFAULT 0,
	status_channel_id  TEXT NOT NULL DEFAULT '',
	now_playing_msg_id TEXT NOT NULL DEFAULT ''
);`

// GuildSettings are the persisted playback preferences for one guild.
type GuildSettings struct {
	Volume              int
	LoopOne             bool
	LoopAll             bool
	StatusChannelID     string
	NowPlayingMessageID string
}

// Store persists guild settings in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (and initializes) the settings database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open settings database")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize settings schema")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Guild returns the settings for a guild, creating the row with
// defaults on first access.
func (s *Store) Guild(guildID string) (GuildSettings, error) {
	if _, err := s.db.Exec(
		`INSERT INTO guild_settings (guild_id) VALUES (?) ON CONFLICT(guild_id) DO NOTHING`,
		guildID,
	); err != nil {
		return GuildSettings{}, errors.Wrap(err, "failed to init guild settings")
	}

	var gs GuildSettings
	err := s.db.QueryRow(
		`SELECT volume, loop_one, loop_all, status_channel_id, now_playing_msg_id
		 FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&gs.Volume, &gs.LoopOne, &gs.LoopAll, &gs.StatusChannelID, &gs.NowPlayingMessageID)
	if err != nil {
		return GuildSettings{}, errors.Wrap(err, "failed to read guild settings")
	}
	return gs, nil
}

// SetVolume persists the playback volume.
func (s *Store) SetVolume(guildID string, volume int) error {
	return s.set(guildID, "volume", volume)
}

// SetLoopOne persists the repeat-one flag.
func (s *Store) SetLoopOne(guildID string, v bool) error {
	return s.set(guildID, "loop_one", v)
}

// SetLoopAll persists the repeat-all flag.
func (s *Store) SetLoopAll(guildID string, v bool) error {
	return s.set(guildID, "loop_all", v)
}

// SetStatusChannel persists the channel playback reports go to.
func (s *Store) SetStatusChannel(guildID, channelID string) error {
	return s.set(guildID, "status_channel_id", channelID)
}

// SetNowPlayingMessage persists the ID of the tracked now-playing
// message, empty when there is none.
func (s *Store) SetNowPlayingMessage(guildID, messageID string) error {
	return s.set(guildID, "now_playing_msg_id", messageID)
}

func (s *Store) set(guildID, column string, value any) error {
	// column is always one of the fixed names above, never user input.
	_, err := s.db.Exec(
		`INSERT INTO guild_settings (guild_id, `+column+`) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET `+column+` = excluded.`+column,
		guildID, value,
	)
	return errors.Wrapf(err, "failed to set %s", column)
}
