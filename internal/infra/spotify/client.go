// Package spotify provides the catalog provider client.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Errors
var (
	ErrNoResults = errors.New("no results found on Spotify")
	ErrNotFound  = errors.New("entity does not exist or is private")
)

// CollectionType identifies a multi-track catalog entity.
type CollectionType string

const (
	CollectionAlbum    CollectionType = "album"
	CollectionPlaylist CollectionType = "playlist"
)

// Track is a catalog track: metadata only, no playable handle.
type Track struct {
	ID         string
	Title      string
	Artist     string
	ArtworkURL string
	Duration   time.Duration
	ISRC       string // industry recording code, may be empty
}

// URL returns the public catalog URL for the track.
func (t *Track) URL() string {
	return "https://open.spotify.com/track/" + t.ID
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	// The oauth2 transport refreshes the access token as needed.
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := auth.Client(ctx, token)

	return &Client{
		client:     spotify.New(httpClient),
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves one track by ID, URL or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	id := ExtractID(trackID)

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "track %q", id)
		}
		return nil, errors.Wrap(err, "failed to get track")
	}

	return convertTrack(result), nil
}

// SearchTracks searches the catalog for tracks matching the query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "query %q", query)
	}

	tracks := make([]Track, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		tracks = append(tracks, *convertTrack(&t))
	}
	return tracks, nil
}

// GetCollectionTracks retrieves all tracks of an album or playlist.
func (c *Client) GetCollectionTracks(ctx context.Context, kind CollectionType, id string) (string, []Track, error) {
	switch kind {
	case CollectionAlbum:
		return c.getAlbumTracks(ctx, ExtractID(id))
	case CollectionPlaylist:
		return c.getPlaylistTracks(ctx, ExtractID(id))
	default:
		return "", nil, errors.Newf("unknown collection type %q", kind)
	}
}

func (c *Client) getAlbumTracks(ctx context.Context, id string) (string, []Track, error) {
	var album *spotify.FullAlbum
	err := c.retry(func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil, errors.Wrapf(ErrNotFound, "album %q", id)
		}
		return "", nil, errors.Wrap(err, "failed to get album")
	}

	// Album pages carry simple tracks without ISRCs; fetch the full
	// tracks in batches so lazy resolution can use exact codes later.
	ids := make([]spotify.ID, 0, len(album.Tracks.Tracks))
	for _, t := range album.Tracks.Tracks {
		ids = append(ids, t.ID)
	}

	var tracks []Track
	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}

		var full []*spotify.FullTrack
		err := c.retry(func() error {
			f, err := c.client.GetTracks(ctx, ids[start:end])
			if err != nil {
				return err
			}
			full = f
			return nil
		})
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to get album tracks")
		}
		for _, t := range full {
			if t != nil {
				tracks = append(tracks, *convertTrack(t))
			}
		}
	}

	return album.Name, tracks, nil
}

func (c *Client) getPlaylistTracks(ctx context.Context, id string) (string, []Track, error) {
	var name string
	err := c.retry(func() error {
		pl, err := c.client.GetPlaylist(ctx, spotify.ID(id), spotify.Fields("name"))
		if err != nil {
			return err
		}
		name = pl.Name
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil, errors.Wrapf(ErrNotFound, "playlist %q", id)
		}
		return "", nil, errors.Wrap(err, "failed to get playlist")
	}

	var tracks []Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes have no track payload.
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, *convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return name, tracks, nil
}

// convertTrack converts a Spotify FullTrack to a catalog Track.
func convertTrack(t *spotify.FullTrack) *Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return &Track{
		ID:         string(t.ID),
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		ArtworkURL: albumArt,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		ISRC:       t.ExternalIDs["isrc"],
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "404")
}

// ExtractID extracts the bare entity ID from a Spotify URL or URI of
// any entity type, e.g. "spotify:track:ID" or
// "https://open.spotify.com/track/ID?si=...".
func ExtractID(input string) string {
	input = strings.TrimSpace(input)

	// URI format: spotify:<type>:<id>
	if strings.HasPrefix(input, "spotify:") {
		parts := strings.Split(input, ":")
		return parts[len(parts)-1]
	}

	// URL format: http(s)://open.spotify.com[/intl-xx]/<type>/<id>
	if strings.Contains(input, "open.spotify.com") {
		trimmed := strings.Split(input, "?")[0]
		trimmed = strings.TrimRight(trimmed, "/")
		parts := strings.Split(trimmed, "/")
		return parts[len(parts)-1]
	}

	// Assume it's already an ID.
	return input
}
