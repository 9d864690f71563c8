// Package nowplaying renders and maintains the per-guild now-playing
// status message.
package nowplaying

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/domain/track"
	"github.com/melba-bot/melba/internal/infra/settings"
)

// Payload is a chat-platform-agnostic rendering of the status message.
type Payload struct {
	Title        string
	Artist       string
	URL          string
	ThumbnailURL string
	Requester    string
	DurationText string
	Footer       string
	Warning      string
	WithControls bool
}

// Messenger sends, edits and deletes status messages in a channel.
type Messenger interface {
	Send(ctx context.Context, channelID string, p Payload) (string, error)
	Edit(ctx context.Context, channelID, messageID string, p Payload) error
	Delete(ctx context.Context, channelID, messageID string) error
}

// Tracker persists which message is the tracked now-playing message.
type Tracker interface {
	Guild(guildID string) (settings.GuildSettings, error)
	SetNowPlayingMessage(guildID, messageID string) error
}

// Status carries the queue and player state shown in the footer.
type Status struct {
	Position  int
	Total     int
	Shuffling bool
	LoopOne   bool
	LoopAll   bool
	Volume    int
}

// Reporter renders now-playing payloads and keeps one tracked status
// message per guild up to date.
type Reporter struct {
	messenger Messenger
	tracker   Tracker
}

// New creates a Reporter.
func New(messenger Messenger, tracker Tracker) *Reporter {
	return &Reporter{messenger: messenger, tracker: tracker}
}

// Render builds the status payload for the given item.
func (r *Reporter) Render(item *track.QueueItem, st Status) Payload {
	p := Payload{
		Title:        item.Title,
		Artist:       item.Artist,
		URL:          item.URL,
		ThumbnailURL: item.ArtworkURL,
		Requester:    item.Requester,
		DurationText: HumanDuration(item.EffectiveDuration()),
		Footer:       footer(st),
		WithControls: true,
	}

	// The playable handle wins over stale catalog metadata.
	if playable, ok := item.Playable(); ok {
		if p.URL == "" {
			p.URL = playable.URL
		}
		if playable.Stream {
			p.DurationText = "LIVE"
		}
	}
	if item.Imperfect() {
		p.Warning = "This may not be the track you asked for."
	}
	return p
}

// Upsert edits the tracked status message in place, creating it when
// none exists. A vanished message is replaced rather than reported.
func (r *Reporter) Upsert(ctx context.Context, guildID string, p Payload) error {
	gs, err := r.tracker.Guild(guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load guild settings")
	}
	if gs.StatusChannelID == "" {
		return nil
	}

	if gs.NowPlayingMessageID != "" {
		if err := r.messenger.Edit(ctx, gs.StatusChannelID, gs.NowPlayingMessageID, p); err == nil {
			return nil
		}
		zlog.Debug().Str("guild", guildID).Msg("nowplaying: tracked message gone, sending a new one")
	}

	messageID, err := r.messenger.Send(ctx, gs.StatusChannelID, p)
	if err != nil {
		return errors.Wrap(err, "failed to send status message")
	}
	return r.tracker.SetNowPlayingMessage(guildID, messageID)
}

// Clear deletes the tracked status message, if any.
func (r *Reporter) Clear(ctx context.Context, guildID string) error {
	gs, err := r.tracker.Guild(guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load guild settings")
	}
	if gs.NowPlayingMessageID == "" {
		return nil
	}

	if err := r.messenger.Delete(ctx, gs.StatusChannelID, gs.NowPlayingMessageID); err != nil {
		zlog.Debug().Err(err).Str("guild", guildID).Msg("nowplaying: tracked message already gone")
	}
	return r.tracker.SetNowPlayingMessage(guildID, "")
}

// ReportError posts a one-off failure notice to the status channel. It
// is separate from the tracked now-playing message, which stays in
// place. No-op when the guild has no status channel.
func (r *Reporter) ReportError(ctx context.Context, guildID, text string) error {
	gs, err := r.tracker.Guild(guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load guild settings")
	}
	if gs.StatusChannelID == "" {
		return nil
	}

	if _, err := r.messenger.Send(ctx, gs.StatusChannelID, Payload{Warning: text}); err != nil {
		return errors.Wrap(err, "failed to send error notice")
	}
	return nil
}

// DetachControls re-renders the tracked message without interactive
// controls, so stale buttons cannot act on a track that is changing.
func (r *Reporter) DetachControls(ctx context.Context, guildID string, p Payload) error {
	p.WithControls = false
	return r.edit(ctx, guildID, p)
}

// AttachControls re-renders the tracked message with controls enabled.
func (r *Reporter) AttachControls(ctx context.Context, guildID string, p Payload) error {
	p.WithControls = true
	return r.edit(ctx, guildID, p)
}

func (r *Reporter) edit(ctx context.Context, guildID string, p Payload) error {
	gs, err := r.tracker.Guild(guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load guild settings")
	}
	if gs.StatusChannelID == "" || gs.NowPlayingMessageID == "" {
		return nil
	}
	return r.messenger.Edit(ctx, gs.StatusChannelID, gs.NowPlayingMessageID, p)
}

// footer renders "Track X of N" plus mode glyphs and the volume.
func footer(st Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Track %d of %d", st.Position, st.Total)
	if st.Shuffling {
		sb.WriteString(" \U0001F500")
	}
	if st.LoopOne {
		sb.WriteString(" \U0001F502")
	}
	if st.LoopAll {
		sb.WriteString(" \U0001F501")
	}
	fmt.Fprintf(&sb, " | \U0001F50A %d%%", st.Volume)
	return sb.String()
}

// HumanDuration formats a duration as "1h 2m 3s", dropping leading
// zero units.
func HumanDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
