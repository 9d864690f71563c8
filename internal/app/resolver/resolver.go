// Package resolver turns free-text queries and URLs into queue items.
//
// URL classification runs first; free text falls back to a catalog
// search ranked by fuzzy similarity, then to a video-platform search
// through the audio node.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/domain/track"
	"github.com/melba-bot/melba/internal/infra/audionode"
	"github.com/melba-bot/melba/internal/infra/spotify"
)

// Errors
var (
	ErrNoResults      = errors.New("no results found")
	ErrUnsupportedURL = errors.New("direct playback from unsupported URLs is deprecated")
	ErrNodeFailure    = errors.New("audio node search failed")
)

// Catalog is the metadata-only provider (Spotify).
type Catalog interface {
	GetTrack(ctx context.Context, id string) (*spotify.Track, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]spotify.Track, error)
	GetCollectionTracks(ctx context.Context, kind spotify.CollectionType, id string) (string, []spotify.Track, error)
}

// Node loads playable tracks through the audio node.
type Node interface {
	LoadTracks(ctx context.Context, identifier string) (*audionode.LoadResult, error)
}

// Config represents resolver configuration.
type Config struct {
	// ConfidenceThreshold is the minimum weighted similarity score
	// (0-100) for a catalog search hit to win over a video search.
	ConfidenceThreshold int
	// DeezerEnabled allows exact ISRC lookups through the node's
	// Deezer source during lazy resolution.
	DeezerEnabled bool
}

// Resolver resolves queries into queue items. It is stateless and
// shared across all guilds.
type Resolver struct {
	catalog   Catalog
	node      Node
	threshold int
	deezer    bool
}

// New creates a new resolver.
func New(catalog Catalog, node Node, cfg Config) *Resolver {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 72
	}
	return &Resolver{
		catalog:   catalog,
		node:      node,
		threshold: threshold,
		deezer:    cfg.DeezerEnabled,
	}
}

// Resolve classifies the query and produces an ordered list of queue
// items. Items from catalog URLs and catalog search hits come back
// unresolved; items loaded through the node carry their handle already.
func (r *Resolver) Resolve(ctx context.Context, query, requester string) ([]*track.QueueItem, error) {
	if kind, ok := ClassifyURL(query); ok {
		switch kind {
		case URLSpotifyTrack:
			return r.resolveSpotifyTrack(ctx, query, requester)
		case URLSpotifyAlbum:
			return r.resolveSpotifyCollection(ctx, spotify.CollectionAlbum, query, requester)
		case URLSpotifyPlaylist:
			return r.resolveSpotifyCollection(ctx, spotify.CollectionPlaylist, query, requester)
		case URLYouTubeVideo, URLYouTubePlaylist, URLSoundCloud:
			return r.resolveDirect(ctx, kind, query, requester)
		default:
			return nil, errors.Wrapf(ErrUnsupportedURL, "url %q", query)
		}
	}

	return r.resolveText(ctx, query, requester)
}

func (r *Resolver) resolveSpotifyTrack(ctx context.Context, query, requester string) ([]*track.QueueItem, error) {
	t, err := r.catalog.GetTrack(ctx, query)
	if err != nil {
		if errors.Is(err, spotify.ErrNotFound) {
			return nil, errors.Wrap(ErrNoResults, "track does not exist or is private")
		}
		return nil, err
	}
	return []*track.QueueItem{catalogItem(t, requester)}, nil
}

func (r *Resolver) resolveSpotifyCollection(ctx context.Context, kind spotify.CollectionType, query, requester string) ([]*track.QueueItem, error) {
	name, tracks, err := r.catalog.GetCollectionTracks(ctx, kind, query)
	if err != nil {
		if errors.Is(err, spotify.ErrNotFound) {
			return nil, errors.Wrapf(ErrNoResults, "the %s does not exist or is private", kind)
		}
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "%s %q is empty", kind, name)
	}

	items := make([]*track.QueueItem, 0, len(tracks))
	for i := range tracks {
		items = append(items, catalogItem(&tracks[i], requester))
	}
	return items, nil
}

func (r *Resolver) resolveDirect(ctx context.Context, kind URLKind, query, requester string) ([]*track.QueueItem, error) {
	identifier := query
	if kind == URLYouTubePlaylist {
		// Normalize to a bare playlist URL so mixed watch URLs load the
		// whole list rather than one entry.
		if listID, ok := youtubeListID(query); ok {
			identifier = "https://www.youtube.com/playlist?list=" + listID
		}
	}

	result, err := r.node.LoadTracks(ctx, identifier)
	if err != nil {
		if errors.Is(err, audionode.ErrNoMatches) {
			return nil, errors.Wrapf(ErrNoResults, "entity %q is private, nonexistent or has no stream URL", query)
		}
		return nil, errors.Mark(err, ErrNodeFailure)
	}

	items := make([]*track.QueueItem, 0, len(result.Tracks))
	for i := range result.Tracks {
		items = append(items, nodeItem(&result.Tracks[i], requester))
	}
	return items, nil
}

// resolveText handles free-text queries: catalog search first, video
// search fallback.
func (r *Resolver) resolveText(ctx context.Context, query, requester string) ([]*track.QueueItem, error) {
	if results, err := r.catalog.SearchTracks(ctx, query, 10); err == nil && len(results) > 0 {
		type scored struct {
			track *spotify.Track
			score int
		}
		ranked := make([]scored, 0, len(results))
		for i := range results {
			candidate := fmt.Sprintf("%s %s", results[i].Title, results[i].Artist)
			ranked = append(ranked, scored{
				track: &results[i],
				score: SimilarityWeighted(query, candidate, 100-i*10),
			})
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

		for _, s := range ranked {
			zlog.Debug().Int("confidence", s.score).
				Str("artist", s.track.Artist).Str("title", s.track.Title).
				Msgf("resolver: catalog candidate for %q", query)
		}

		if ranked[0].score >= r.threshold {
			return []*track.QueueItem{catalogItem(ranked[0].track, requester)}, nil
		}
	} else if err != nil && !errors.Is(err, spotify.ErrNoResults) {
		zlog.Warn().Err(err).Msgf("resolver: catalog search failed for %q", query)
	}

	// Nothing confident on the catalog; search the video platform.
	results, err := r.youtubeMatches(ctx, query, 0, false)
	if err != nil {
		return nil, err
	}

	type scored struct {
		track *audionode.Track
		score int
	}
	ranked := make([]scored, 0, len(results))
	for i := range results {
		candidate := fmt.Sprintf("%s %s", results[i].Info.Title, results[i].Info.Author)
		rank := 100 - int(float64(i)*(100.0/float64(len(results)))+0.5)
		ranked = append(ranked, scored{track: &results[i], score: SimilarityWeighted(query, candidate, rank)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	return []*track.QueueItem{nodeItem(ranked[0].track, requester)}, nil
}

// catalogItem builds an unresolved queue item from a catalog track.
// The playable handle is attached lazily at play time.
func catalogItem(t *spotify.Track, requester string) *track.QueueItem {
	return &track.QueueItem{
		Title:      t.Title,
		Artist:     t.Artist,
		Duration:   t.Duration,
		Requester:  requester,
		SpotifyID:  t.ID,
		URL:        t.URL(),
		ArtworkURL: t.ArtworkURL,
		External:   track.ExternalIDs{ISRC: t.ISRC},
	}
}

// nodeItem builds a queue item with the playable handle attached.
func nodeItem(t *audionode.Track, requester string) *track.QueueItem {
	item := &track.QueueItem{
		Title:      t.Info.Title,
		Artist:     t.Info.Author,
		Duration:   t.Duration(),
		Requester:  requester,
		URL:        t.Info.URI,
		ArtworkURL: t.Info.ArtworkURL,
	}
	// A fresh item cannot be resolved already.
	_ = item.AttachPlayable(playable(t))
	return item
}

func playable(t *audionode.Track) track.Playable {
	return track.Playable{
		Encoded:  t.Encoded,
		Title:    t.Info.Title,
		Author:   t.Info.Author,
		Duration: t.Duration(),
		URL:      t.Info.URI,
		Stream:   t.Info.IsStream,
	}
}
