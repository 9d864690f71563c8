// Package lastfm provides the scrobble/history side-channel client.
package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/melba-bot/melba/internal/domain/track"
)

// Client is a Last.fm API client used for scrobbling.
type Client struct {
	apiKey       string
	sharedSecret string
	sessionKey   string
	baseURL      string
	httpClient   *http.Client
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey       string
	SharedSecret string
	SessionKey   string
}

// apiError represents an error response from the Last.fm API.
type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.SharedSecret == "" {
		return nil, errors.New("last.fm API key and shared secret are required")
	}

	return &Client{
		apiKey:       cfg.APIKey,
		sharedSecret: cfg.SharedSecret,
		sessionKey:   cfg.SessionKey,
		baseURL:      "https://ws.audioscrobbler.com/2.0/",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Scrobble submits one played track. Callers decide eligibility; this
// just performs the signed track.scrobble call.
// Reference: https://www.last.fm/api/show/track.scrobble
func (c *Client) Scrobble(ctx context.Context, item *track.QueueItem) error {
	if item.Title == "" || item.Artist == "" {
		return errors.New("track title and artist are required")
	}

	timestamp := item.StartTime
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	params := url.Values{}
	params.Set("method", "track.scrobble")
	params.Set("api_key", c.apiKey)
	params.Set("sk", c.sessionKey)
	params.Set("artist", item.Artist)
	params.Set("track", item.Title)
	params.Set("timestamp", fmt.Sprintf("%d", timestamp.Unix()))
	if d := item.EffectiveDuration(); d > 0 {
		params.Set("duration", fmt.Sprintf("%d", int(d.Seconds())))
	}
	if item.External.MBID != "" {
		params.Set("mbid", item.External.MBID)
	}
	params.Set("api_sig", c.sign(params))
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(params.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "scrobble request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return errors.Newf("last.fm error %d: %s", apiErr.Code, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm returned %d", resp.StatusCode)
	}
	return nil
}

// sign computes the Last.fm API signature: the concatenation of all
// key/value pairs sorted by key, plus the shared secret, MD5-hashed.
// The format parameter is excluded from signing.
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "format" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params.Get(k))
	}
	sb.WriteString(c.sharedSecret)

	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
