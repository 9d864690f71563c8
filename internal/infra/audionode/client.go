package audionode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrNotConnected = errors.New("audio node is not connected")
	ErrNoMatches    = errors.New("no matches found")
	ErrLoadFailed   = errors.New("audio node failed to load tracks")
)

// Config represents audio node client configuration.
type Config struct {
	Address  string // host:port of the node
	Password string
	UserID   string // bot user ID, sent during the websocket handshake
	Secure   bool
}

// Client talks to one Lavalink v4 node: track loading and player
// commands over REST, node events over a websocket.
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string
	wsURL      string

	mu        sync.RWMutex
	sessionID string
	conn      *websocket.Conn
	connected bool
	players   map[string]*Player

	events chan Event
}

// New creates a new audio node client.
func New(cfg Config) (*Client, error) {
	if cfg.Address == "" || cfg.Password == "" {
		return nil, errors.New("audio node address and password are required")
	}

	httpScheme, wsScheme := "http", "ws"
	if cfg.Secure {
		httpScheme, wsScheme = "https", "wss"
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    fmt.Sprintf("%s://%s", httpScheme, cfg.Address),
		wsURL:      fmt.Sprintf("%s://%s/v4/websocket", wsScheme, cfg.Address),
		players:    make(map[string]*Player),
		events:     make(chan Event, 16),
	}, nil
}

// Events returns the node event stream.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether the websocket session is up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect opens the websocket session and starts relaying node events.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", c.cfg.Password)
	header.Set("User-Id", c.cfg.UserID)
	header.Set("Client-Name", "melba/1.0")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return errors.Wrap(err, "failed to connect to audio node")
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	// The node sends a ready op carrying the session ID before anything
	// else; player REST calls need it.
	var ready struct {
		Op        string `json:"op"`
		SessionID string `json:"sessionId"`
	}
	if err := conn.ReadJSON(&ready); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to read ready op from audio node")
	}
	if ready.Op != "ready" || ready.SessionID == "" {
		_ = conn.Close()
		return errors.Newf("unexpected handshake op %q from audio node", ready.Op)
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionID = ready.SessionID
	c.connected = true
	c.mu.Unlock()

	zlog.Info().Str("session_id", ready.SessionID).Msg("audionode: connected")
	c.emit(Event{Type: EventNodeConnected})

	go c.readLoop(conn)
	return nil
}

// Close tears down the websocket session.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Player returns the player for the given guild, creating it on first
// use. The client owns the player map; callers own playback semantics.
func (c *Client) Player(guildID string) *Player {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.players[guildID]; ok {
		return p
	}
	p := &Player{client: c, guildID: guildID}
	c.players[guildID] = p
	return p
}

// LoadTracks resolves an identifier (URL or search prefix like
// "ytsearch:") into playable tracks.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var payload struct {
		LoadType string          `json:"loadType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v4/loadtracks?identifier="+queryEscape(identifier), nil, &payload); err != nil {
		return nil, err
	}

	switch payload.LoadType {
	case "track":
		var t Track
		if err := json.Unmarshal(payload.Data, &t); err != nil {
			return nil, errors.Wrap(err, "failed to decode track data")
		}
		return &LoadResult{Tracks: []Track{t}}, nil

	case "playlist":
		var pl struct {
			Info struct {
				Name string `json:"name"`
			} `json:"info"`
			Tracks []Track `json:"tracks"`
		}
		if err := json.Unmarshal(payload.Data, &pl); err != nil {
			return nil, errors.Wrap(err, "failed to decode playlist data")
		}
		return &LoadResult{PlaylistName: pl.Info.Name, Tracks: pl.Tracks}, nil

	case "search":
		var tracks []Track
		if err := json.Unmarshal(payload.Data, &tracks); err != nil {
			return nil, errors.Wrap(err, "failed to decode search data")
		}
		if len(tracks) == 0 {
			return nil, errors.Wrapf(ErrNoMatches, "identifier %q", identifier)
		}
		return &LoadResult{Tracks: tracks}, nil

	case "empty":
		return nil, errors.Wrapf(ErrNoMatches, "identifier %q", identifier)

	case "error":
		var exc struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload.Data, &exc)
		return nil, errors.Wrapf(ErrLoadFailed, "identifier %q: %s", identifier, exc.Message)

	default:
		return nil, errors.Newf("unknown load type %q", payload.LoadType)
	}
}

// readLoop relays websocket messages until the connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			zlog.Warn().Err(err).Msg("audionode: websocket closed")
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			c.emit(Event{Type: EventNodeDisconnected})
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg struct {
		Op      string    `json:"op"`
		Type    string    `json:"type"`
		GuildID string    `json:"guildId"`
		Track   *Track    `json:"track"`
		Reason  EndReason `json:"reason"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		zlog.Warn().Err(err).Msg("audionode: undecodable message")
		return
	}

	// playerUpdate and stats ops are not interesting to playback logic.
	if msg.Op != "event" {
		return
	}

	switch msg.Type {
	case "TrackStartEvent":
		if p := c.Player(msg.GuildID); p != nil {
			p.setCurrent(msg.Track)
		}
		c.emit(Event{Type: EventTrackStart, GuildID: msg.GuildID, Track: msg.Track})

	case "TrackEndEvent":
		if p := c.Player(msg.GuildID); p != nil {
			p.setCurrent(nil)
		}
		c.emit(Event{Type: EventTrackEnd, GuildID: msg.GuildID, Track: msg.Track, Reason: msg.Reason})

	default:
		zlog.Debug().Str("type", msg.Type).Msg("audionode: ignoring event")
	}
}

// emit sends an event without blocking the read loop.
func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		zlog.Warn().Str("type", e.Type.String()).Msg("audionode: event channel full, dropping")
	}
}

// do performs an authenticated REST call against the node.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", c.cfg.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "audio node request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("audio node returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "failed to decode response")
		}
	}
	return nil
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

func (c *Client) currentSessionID() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.sessionID == "" {
		return "", ErrNotConnected
	}
	return c.sessionID, nil
}
