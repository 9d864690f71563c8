package jockey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/app/filter"
	"github.com/melba-bot/melba/internal/app/nowplaying"
	"github.com/melba-bot/melba/internal/app/queue"
	"github.com/melba-bot/melba/internal/domain/track"
	"github.com/melba-bot/melba/internal/infra/audionode"
	"github.com/melba-bot/melba/internal/infra/settings"
)

// Errors
var (
	ErrNotPlaying       = errors.New("nothing is playing")
	ErrAlreadyPaused    = errors.New("playback is already paused")
	ErrNotPaused        = errors.New("playback is not paused")
	ErrVolumeOutOfRange = errors.New("volume out of range")
)

const maxVolume = 1000

// NodePlayer issues playback commands for one guild on the audio node.
// *audionode.Player satisfies it.
type NodePlayer interface {
	Play(ctx context.Context, encoded string, volume int) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	Paused() bool
	Destroy(ctx context.Context) error
}

// TrackResolver turns queries into queue items and attaches playable
// handles to them.
type TrackResolver interface {
	Resolve(ctx context.Context, query, requester string) ([]*track.QueueItem, error)
	ResolvePlayable(ctx context.Context, item *track.QueueItem) error
}

// Scrobbler records played tracks to an external listening history.
type Scrobbler interface {
	Scrobble(ctx context.Context, item *track.QueueItem) error
}

// StatusReporter maintains the guild's now-playing message.
// *nowplaying.Reporter satisfies it.
type StatusReporter interface {
	Render(item *track.QueueItem, st nowplaying.Status) nowplaying.Payload
	Upsert(ctx context.Context, guildID string, p nowplaying.Payload) error
	Clear(ctx context.Context, guildID string) error
	DetachControls(ctx context.Context, guildID string, p nowplaying.Payload) error
	AttachControls(ctx context.Context, guildID string, p nowplaying.Payload) error
	ReportError(ctx context.Context, guildID, text string) error
}

// Settings persists per-guild playback preferences.
type Settings interface {
	Guild(guildID string) (settings.GuildSettings, error)
	SetVolume(guildID string, volume int) error
	SetLoopOne(guildID string, v bool) error
	SetLoopAll(guildID string, v bool) error
}

// SkipOptions controls how Skip picks the next track.
type SkipOptions struct {
	Forward bool // Direction when Index is negative
	Index   int  // Display index to jump to, or -1 for a relative step
	Auto    bool // True when triggered by the node finishing a track
}

// PlayResult summarizes what a Play call added to the queue.
type PlayResult struct {
	Added   int
	First   *track.QueueItem
	Started bool
}

// Summary renders the user-facing confirmation for the addition: the
// track itself for a single item, a count for collections.
func (r *PlayResult) Summary() string {
	if r.Added == 1 {
		return fmt.Sprintf("**%s**\n%s", r.First.Title, r.First.Artist)
	}
	return fmt.Sprintf("%d item(s)", r.Added)
}

// Controller owns playback for one guild. All public methods are safe
// for concurrent use.
type Controller struct {
	id        string // correlates log lines across one controller's lifetime
	guildID   string
	player    NodePlayer
	resolver  TrackResolver
	reporter  StatusReporter
	store     Settings
	scrobbler Scrobbler
	admission *filter.Chain

	mu        sync.Mutex
	queue     *queue.Manager
	state     State
	volume    int
	idleSince time.Time

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps are the collaborators a Controller needs. Scrobbler and
// Admission are optional.
type Deps struct {
	Player    NodePlayer
	Resolver  TrackResolver
	Reporter  StatusReporter
	Store     Settings
	Scrobbler Scrobbler
	Admission *filter.Chain
}

// New creates a controller for a guild, restoring its persisted
// playback preferences.
func New(guildID string, deps Deps) (*Controller, error) {
	if deps.Player == nil || deps.Resolver == nil || deps.Reporter == nil || deps.Store == nil {
		return nil, errors.New("player, resolver, reporter and store are required")
	}

	gs, err := deps.Store.Guild(guildID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load guild settings")
	}

	q := queue.New()
	q.SetLoopOne(gs.LoopOne)
	q.SetLoopAll(gs.LoopAll)

	bg, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:        uuid.NewString(),
		guildID:   guildID,
		player:    deps.Player,
		resolver:  deps.Resolver,
		reporter:  deps.Reporter,
		store:     deps.Store,
		scrobbler: deps.Scrobbler,
		admission: deps.Admission,
		queue:     q,
		state:     StateIdle,
		volume:    gs.Volume,
		idleSince: time.Now(),
		bg:        bg,
		cancel:    cancel,
	}, nil
}

// GuildID returns the guild this controller belongs to.
func (c *Controller) GuildID() string {
	return c.guildID
}

// ID returns the controller's instance identifier, assigned at creation.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Queue returns the queued items in display order.
func (c *Controller) Queue() []*track.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Items()
}

// NowPlaying returns the current item, or nil when idle.
func (c *Controller) NowPlaying() *track.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Current()
}

// Play resolves a query, appends the results and starts playback if
// nothing is playing yet.
//
// Appended items stay queued even when starting the first of them
// fails; the user can skip past the broken one.
func (c *Controller) Play(ctx context.Context, query, requester string) (*PlayResult, error) {
	items, err := c.resolver.Resolve(ctx, query, requester)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.Newf("nothing found for %q", query)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	items, err = c.admitLocked(items)
	if err != nil {
		return nil, err
	}

	firstNew := c.queue.Size()
	c.queue.Append(items...)
	result := &PlayResult{Added: len(items), First: items[0]}

	if c.state != StateIdle {
		c.updateStatusLocked(ctx)
		return result, nil
	}

	if err := c.queue.SetCurrentIndex(firstNew); err != nil {
		return result, err
	}
	result.Started = true
	if err := c.playCurrentLocked(ctx); err != nil {
		return result, errors.Wrapf(err, "failed to start %q", items[0].Title)
	}
	return result, nil
}

// admitLocked runs the admission chain over new items, dropping the
// rejected ones. An error is returned only when nothing survives.
func (c *Controller) admitLocked(items []*track.QueueItem) ([]*track.QueueItem, error) {
	if c.admission == nil {
		return items, nil
	}

	queued := c.queue.Items()
	admitted := make([]*track.QueueItem, 0, len(items))
	var lastReason string
	for _, item := range items {
		result := c.admission.Check(item, queued)
		if !result.Accepted {
			lastReason = result.Reason
			zlog.Debug().
				Str("guild", c.guildID).
				Str("title", item.Title).
				Str("reason", result.Reason).
				Msg("jockey: item rejected")
			continue
		}
		admitted = append(admitted, item)
		queued = append(queued, item)
	}

	if len(admitted) == 0 {
		return nil, errors.Newf("rejected: %s", lastReason)
	}
	return admitted, nil
}

// Skip moves to another track: the adjacent one in the given direction,
// or the given display index. Auto skips come from the node finishing a
// track and end playback quietly when the queue runs out; explicit
// skips surface the end-of-queue error instead.
func (c *Controller) Skip(ctx context.Context, opts SkipOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipLocked(ctx, opts)
}

func (c *Controller) skipLocked(ctx context.Context, opts SkipOptions) error {
	err := c.advanceLocked(ctx, opts)
	if err != nil {
		// The advance failed with the old message still up; give its
		// controls back so the user is not left with a dead panel.
		if item := c.queue.Current(); item != nil {
			if aerr := c.reporter.AttachControls(ctx, c.guildID, c.renderLocked(item)); aerr != nil {
				zlog.Debug().Err(aerr).Str("guild", c.guildID).Msg("jockey: failed to reattach controls")
			}
		}
	}
	return err
}

func (c *Controller) advanceLocked(ctx context.Context, opts SkipOptions) error {
	current := c.queue.Current()
	if current == nil {
		return queue.ErrQueueEmpty
	}

	// Stale controls must not fire while the track changes.
	if err := c.reporter.DetachControls(ctx, c.guildID, c.renderLocked(current)); err != nil {
		zlog.Debug().Err(err).Str("guild", c.guildID).Msg("jockey: failed to detach controls")
	}

	c.scrobbleLocked(current)

	if opts.Auto && c.queue.LoopOne() {
		return c.playCurrentLocked(ctx)
	}

	if opts.Index >= 0 {
		natural, err := c.queue.NaturalIndex(opts.Index)
		if err != nil {
			return err
		}
		if err := c.queue.SetCurrentIndex(natural); err != nil {
			return err
		}
		return c.playCurrentLocked(ctx)
	}

	// Step past broken tracks instead of stalling on the first one. The
	// attempt bound keeps a fully broken queue from spinning under
	// repeat-all, where CalcNextIndex never reports an end.
	var lastErr error
	for attempts := 0; attempts < c.queue.Size(); attempts++ {
		next, err := c.queue.CalcNextIndex(opts.Forward)
		if err != nil {
			if opts.Auto && queue.IsEndOfQueue(err) {
				return c.finishLocked(ctx)
			}
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if err := c.queue.SetCurrentIndex(next); err != nil {
			return err
		}
		if err := c.playCurrentLocked(ctx); err != nil {
			lastErr = err
			zlog.Warn().Err(err).Str("guild", c.guildID).Msg("jockey: skipping unplayable track")
			continue
		}
		return nil
	}
	return lastErr
}

// IdleFor reports how long the controller has been idle, or zero when
// it is doing anything at all.
func (c *Controller) IdleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle || c.idleSince.IsZero() {
		return 0
	}
	return now.Sub(c.idleSince)
}

// finishLocked ends playback after the last queued track.
func (c *Controller) finishLocked(ctx context.Context) error {
	c.state = StateIdle
	c.idleSince = time.Now()
	if err := c.player.Stop(ctx); err != nil {
		zlog.Warn().Err(err).Str("guild", c.guildID).Msg("jockey: failed to stop player at queue end")
	}
	if err := c.reporter.Clear(ctx, c.guildID); err != nil {
		zlog.Debug().Err(err).Str("guild", c.guildID).Msg("jockey: failed to clear status message")
	}
	zlog.Info().Str("guild", c.guildID).Msg("jockey: queue finished")
	return nil
}

// playCurrentLocked resolves the current item if needed and starts it
// on the node.
func (c *Controller) playCurrentLocked(ctx context.Context) error {
	item := c.queue.Current()
	if item == nil {
		return queue.ErrQueueEmpty
	}

	c.state = StateResolving
	if err := c.resolver.ResolvePlayable(ctx, item); err != nil {
		c.state = StateAwaitingAdvance
		return errors.Wrapf(err, "failed to resolve %q", item.Title)
	}

	playable, ok := item.Playable()
	if !ok {
		c.state = StateAwaitingAdvance
		return errors.Newf("no playable handle for %q", item.Title)
	}

	// The play payload carries paused=false, so a pause issued before
	// this call cannot leave the new track silently parked.
	if err := c.player.Play(ctx, playable.Encoded, c.volume); err != nil {
		c.state = StateAwaitingAdvance
		return errors.Wrapf(err, "failed to play %q", item.Title)
	}

	item.StartTime = time.Now()
	c.state = StatePlaying
	c.idleSince = time.Time{}
	zlog.Info().
		Str("jockey", c.id).
		Str("guild", c.guildID).
		Str("title", item.Title).
		Str("artist", item.Artist).
		Bool("imperfect", item.Imperfect()).
		Msg("jockey: now playing")

	c.updateStatusLocked(ctx)
	c.prefetchNextLocked()
	return nil
}

// Pause pauses the node player.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return ErrNotPlaying
	}
	if c.player.Paused() {
		return ErrAlreadyPaused
	}
	return c.player.Pause(ctx)
}

// Resume unpauses the node player.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return ErrNotPlaying
	}
	if !c.player.Paused() {
		return ErrNotPaused
	}
	return c.player.Resume(ctx)
}

// Stop halts playback and clears the queue.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.player.Stop(ctx); err != nil {
		return errors.Wrap(err, "failed to stop player")
	}
	c.queue = c.freshQueueLocked()
	c.state = StateIdle
	c.idleSince = time.Now()
	if err := c.reporter.Clear(ctx, c.guildID); err != nil {
		zlog.Debug().Err(err).Str("guild", c.guildID).Msg("jockey: failed to clear status message")
	}
	return nil
}

// Remove deletes the item at the given display index and returns it.
// Removing the track that is playing does not interrupt playback; the
// node keeps streaming it and the queue simply closes the gap.
func (c *Controller) Remove(ctx context.Context, display int) (*track.QueueItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed, err := c.queue.Remove(display)
	if err != nil {
		return nil, err
	}
	c.updateStatusLocked(ctx)
	return removed, nil
}

// SetVolume applies and persists the playback volume.
func (c *Controller) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > maxVolume {
		return errors.Wrapf(ErrVolumeOutOfRange, "volume %d", volume)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.player.SetVolume(ctx, volume); err != nil {
		return errors.Wrap(err, "failed to set volume")
	}
	c.volume = volume
	if err := c.store.SetVolume(c.guildID, volume); err != nil {
		return errors.Wrap(err, "failed to persist volume")
	}
	c.updateStatusLocked(ctx)
	return nil
}

// SetLoopOne applies and persists the repeat-one flag.
func (c *Controller) SetLoopOne(ctx context.Context, v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.SetLoopOne(v)
	if err := c.store.SetLoopOne(c.guildID, v); err != nil {
		return errors.Wrap(err, "failed to persist repeat-one flag")
	}
	c.updateStatusLocked(ctx)
	return nil
}

// SetLoopAll applies and persists the repeat-all flag.
func (c *Controller) SetLoopAll(ctx context.Context, v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.SetLoopAll(v)
	if err := c.store.SetLoopAll(c.guildID, v); err != nil {
		return errors.Wrap(err, "failed to persist repeat-all flag")
	}
	c.updateStatusLocked(ctx)
	return nil
}

// ToggleShuffle turns shuffling on or off and reports the new state.
func (c *Controller) ToggleShuffle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.IsShuffling() {
		c.queue.Unshuffle()
		c.updateStatusLocked(ctx)
		return false, nil
	}
	if err := c.queue.Shuffle(); err != nil {
		return false, err
	}
	c.updateStatusLocked(ctx)
	return true, nil
}

// HandleEvent reacts to node events for this guild.
func (c *Controller) HandleEvent(ctx context.Context, ev audionode.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Type == audionode.EventTrackStart {
		// The node confirmed the track; refresh the status message so it
		// reflects what is actually on air.
		c.updateStatusLocked(ctx)
		return
	}
	if ev.Type != audionode.EventTrackEnd {
		return
	}

	switch ev.Reason {
	case audionode.EndReasonFinished:
		c.state = StateAwaitingAdvance
		if err := c.skipLocked(ctx, SkipOptions{Forward: true, Index: -1, Auto: true}); err != nil {
			zlog.Error().Err(err).Str("guild", c.guildID).Msg("jockey: failed to advance after track end")
			c.reportErrorLocked(ctx, fmt.Sprintf("Failed to advance the queue: %v", err))
		}
	case audionode.EndReasonLoadFailed:
		// Do not auto-advance; a broken source could burn through the
		// whole queue.
		c.state = StateAwaitingAdvance
		zlog.Warn().Str("guild", c.guildID).Msg("jockey: node failed to load the current track")
		c.reportErrorLocked(ctx, "The current track could not be loaded. Skip to move on.")
	default:
		// Stopped, replaced and cleanup all follow commands we issued.
		zlog.Debug().
			Str("guild", c.guildID).
			Str("reason", string(ev.Reason)).
			Msg("jockey: track end")
	}
}

// Disconnect tears the guild's playback down: background work is
// drained and the node player is released.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateDisconnected
	if err := c.reporter.Clear(ctx, c.guildID); err != nil {
		zlog.Debug().Err(err).Str("guild", c.guildID).Msg("jockey: failed to clear status message")
	}
	if err := c.player.Destroy(ctx); err != nil {
		return errors.Wrap(err, "failed to destroy node player")
	}
	return nil
}

// scrobbleLocked records the outgoing track in the background when it
// qualifies: played long enough and identified as a known recording.
func (c *Controller) scrobbleLocked(item *track.QueueItem) {
	if c.scrobbler == nil || !item.CanScrobble(time.Now()) {
		return
	}
	if item.External.MBID == "" && item.External.ISRC == "" && item.SpotifyID == "" {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.bg, 10*time.Second)
		defer cancel()
		if err := c.scrobbler.Scrobble(ctx, item); err != nil {
			zlog.Warn().Err(err).Str("title", item.Title).Msg("jockey: scrobble failed")
		}
	}()
}

// prefetchNextLocked resolves the upcoming track in the background so
// the next advance starts without a lookup pause.
func (c *Controller) prefetchNextLocked() {
	if c.queue.LoopOne() {
		return
	}
	next, err := c.queue.CalcNextIndex(true)
	if err != nil {
		return
	}
	item, err := c.queue.ItemAt(next)
	if err != nil || item.Resolved() {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.bg, 30*time.Second)
		defer cancel()
		if err := c.resolver.ResolvePlayable(ctx, item); err != nil {
			zlog.Debug().Err(err).Str("title", item.Title).Msg("jockey: prefetch failed")
		}
	}()
}

func (c *Controller) renderLocked(item *track.QueueItem) nowplaying.Payload {
	return c.reporter.Render(item, nowplaying.Status{
		Position:  c.queue.CurrentDisplayIndex() + 1,
		Total:     c.queue.Size(),
		Shuffling: c.queue.IsShuffling(),
		LoopOne:   c.queue.LoopOne(),
		LoopAll:   c.queue.LoopAll(),
		Volume:    c.volume,
	})
}

// reportErrorLocked posts a failure notice to the status channel.
// Delivery is best-effort; the failure is already logged.
func (c *Controller) reportErrorLocked(ctx context.Context, text string) {
	if err := c.reporter.ReportError(ctx, c.guildID, text); err != nil {
		zlog.Debug().Err(err).Str("guild", c.guildID).Msg("jockey: failed to report error to status channel")
	}
}

func (c *Controller) updateStatusLocked(ctx context.Context) {
	item := c.queue.Current()
	if item == nil {
		return
	}
	if err := c.reporter.Upsert(ctx, c.guildID, c.renderLocked(item)); err != nil {
		zlog.Debug().Err(err).Str("guild", c.guildID).Msg("jockey: failed to update status message")
	}
}

// freshQueueLocked builds an empty queue that keeps the loop flags.
func (c *Controller) freshQueueLocked() *queue.Manager {
	q := queue.New()
	q.SetLoopOne(c.queue.LoopOne())
	q.SetLoopAll(c.queue.LoopAll())
	return q
}
