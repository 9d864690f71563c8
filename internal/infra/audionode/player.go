package audionode

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Player issues playback commands for one guild's voice session.
//
// Current-track state is fed back from the node's event stream, not
// assumed from issued commands, so Playing reflects what the node last
// reported.
type Player struct {
	client  *Client
	guildID string

	mu      sync.RWMutex
	current *Track
	paused  bool
	volume  int
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() string {
	return p.guildID
}

// Current returns the track the node last reported as playing.
func (p *Player) Current() *Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Playing reports whether the node has a current track and is not paused.
func (p *Player) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current != nil && !p.paused
}

// Paused reports whether the player is paused.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// Connected reports whether the node session is up.
func (p *Player) Connected() bool {
	return p.client.Connected()
}

// Play starts the given encoded track at the given volume.
func (p *Player) Play(ctx context.Context, encoded string, volume int) error {
	body := map[string]any{
		"track":  map[string]any{"encoded": encoded},
		"volume": volume,
		"paused": false,
	}
	if err := p.update(ctx, body); err != nil {
		return err
	}

	p.mu.Lock()
	p.paused = false
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// Resume unpauses the player.
func (p *Player) Resume(ctx context.Context) error {
	if err := p.update(ctx, map[string]any{"paused": false}); err != nil {
		return err
	}
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	return nil
}

// Pause pauses the player.
func (p *Player) Pause(ctx context.Context) error {
	if err := p.update(ctx, map[string]any{"paused": true}); err != nil {
		return err
	}
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	return nil
}

// Stop clears the current track on the node.
func (p *Player) Stop(ctx context.Context) error {
	return p.update(ctx, map[string]any{"track": map[string]any{"encoded": nil}})
}

// SetVolume sets the player volume (0-1000 on the node side).
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if err := p.update(ctx, map[string]any{"volume": volume}); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// Destroy releases the player on the node and forgets it locally.
func (p *Player) Destroy(ctx context.Context) error {
	sessionID, err := p.client.currentSessionID()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, p.guildID)
	if err := p.client.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}

	p.client.mu.Lock()
	delete(p.client.players, p.guildID)
	p.client.mu.Unlock()
	return nil
}

func (p *Player) update(ctx context.Context, body map[string]any) error {
	sessionID, err := p.client.currentSessionID()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=false", sessionID, p.guildID)
	return p.client.do(ctx, http.MethodPatch, path, body, nil)
}

func (p *Player) setCurrent(t *Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = t
	if t != nil {
		p.paused = false
	}
}
