package jockey

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/app/filter"
	"github.com/melba-bot/melba/internal/infra/audionode"
)

// ErrUnknownGuild is returned for operations on a guild with no
// controller.
var ErrUnknownGuild = errors.New("no playback for this guild")

// PlayerFactory hands out node players per guild.
// audionode.Client.Player wrapped in a closure satisfies it.
type PlayerFactory func(guildID string) NodePlayer

// Manager is the registry of per-guild playback controllers.
type Manager struct {
	newPlayer PlayerFactory
	resolver  TrackResolver
	reporter  StatusReporter
	store     Settings
	scrobbler Scrobbler
	admission *filter.Chain

	mu          sync.Mutex
	controllers map[string]*Controller
}

// ManagerDeps are the shared collaborators controllers are built from.
type ManagerDeps struct {
	NewPlayer PlayerFactory
	Resolver  TrackResolver
	Reporter  StatusReporter
	Store     Settings
	Scrobbler Scrobbler
	Admission *filter.Chain
}

// NewManager creates an empty controller registry.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.NewPlayer == nil || deps.Resolver == nil || deps.Reporter == nil || deps.Store == nil {
		return nil, errors.New("player factory, resolver, reporter and store are required")
	}
	return &Manager{
		newPlayer:   deps.NewPlayer,
		resolver:    deps.Resolver,
		reporter:    deps.Reporter,
		store:       deps.Store,
		scrobbler:   deps.Scrobbler,
		admission:   deps.Admission,
		controllers: map[string]*Controller{},
	}, nil
}

// Get returns the guild's controller, creating one on first use.
func (m *Manager) Get(guildID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.controllers[guildID]; ok {
		return c, nil
	}

	c, err := New(guildID, Deps{
		Player:    m.newPlayer(guildID),
		Resolver:  m.resolver,
		Reporter:  m.reporter,
		Store:     m.store,
		Scrobbler: m.scrobbler,
		Admission: m.admission,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create controller for guild %s", guildID)
	}
	m.controllers[guildID] = c
	zlog.Info().Str("jockey", c.ID()).Str("guild", guildID).Msg("jockey: controller created")
	return c, nil
}

// Lookup returns the guild's controller without creating one.
func (m *Manager) Lookup(guildID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[guildID]
	return c, ok
}

// Destroy disconnects and removes the guild's controller.
func (m *Manager) Destroy(ctx context.Context, guildID string) error {
	m.mu.Lock()
	c, ok := m.controllers[guildID]
	delete(m.controllers, guildID)
	m.mu.Unlock()

	if !ok {
		return errors.Wrap(ErrUnknownGuild, guildID)
	}
	return c.Disconnect(ctx)
}

// DispatchEvents routes node events to the owning controllers until the
// channel closes or the context ends.
func (m *Manager) DispatchEvents(ctx context.Context, events <-chan audionode.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.GuildID == "" {
				zlog.Debug().Str("type", ev.Type.String()).Msg("jockey: node event")
				continue
			}
			if c, ok := m.Lookup(ev.GuildID); ok {
				c.HandleEvent(ctx, ev)
			}
		}
	}
}

// ReapIdle disconnects controllers that have been idle for at least
// maxIdle, returning how many were torn down.
func (m *Manager) ReapIdle(ctx context.Context, maxIdle time.Duration) int {
	m.mu.Lock()
	var idle []string
	now := time.Now()
	for guildID, c := range m.controllers {
		if d := c.IdleFor(now); d >= maxIdle && d > 0 {
			idle = append(idle, guildID)
		}
	}
	m.mu.Unlock()

	reaped := 0
	for _, guildID := range idle {
		if err := m.Destroy(ctx, guildID); err != nil {
			zlog.Warn().Err(err).Str("guild", guildID).Msg("jockey: failed to reap idle controller")
			continue
		}
		zlog.Info().Str("guild", guildID).Msg("jockey: disconnected after inactivity")
		reaped++
	}
	return reaped
}

// Shutdown disconnects every controller.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.controllers = map[string]*Controller{}
	m.mu.Unlock()

	for _, c := range controllers {
		if err := c.Disconnect(ctx); err != nil {
			zlog.Warn().Err(err).Str("guild", c.GuildID()).Msg("jockey: failed to disconnect on shutdown")
		}
	}
}
