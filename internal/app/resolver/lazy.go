package resolver

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/domain/track"
	"github.com/melba-bot/melba/internal/infra/audionode"
)

// ResolvePlayable attaches a playable handle to an unresolved item,
// trying the cheapest exact match first:
//
//  1. exact ISRC lookup on the node's Deezer source, if enabled
//  2. quoted-ISRC video search ranked by duration closeness
//  3. free-text "title artist" video search, marking the item imperfect
//
// No-op for items that already carry a handle. Concurrent calls for the
// same item are serialized by the item itself; a late caller joins the
// in-flight resolution instead of repeating it.
func (r *Resolver) ResolvePlayable(ctx context.Context, item *track.QueueItem) error {
	return item.ResolveOnce(func() (track.Playable, bool, error) {
		var match *audionode.Track

		if isrc := item.External.ISRC; isrc != "" {
			if r.deezer {
				result, err := r.node.LoadTracks(ctx, "dzisrc:"+isrc)
				if err == nil && len(result.Tracks) > 0 {
					zlog.Debug().Str("isrc", isrc).Str("title", item.Title).Msg("resolver: matched ISRC on Deezer")
					match = &result.Tracks[0]
				} else {
					zlog.Debug().Str("isrc", isrc).Str("title", item.Title).Msg("resolver: no Deezer match for ISRC")
				}
			}

			if match == nil {
				results, err := r.youtubeMatches(ctx, fmt.Sprintf("%q", isrc), item.Duration, true)
				if err == nil {
					zlog.Debug().Str("isrc", isrc).Str("title", item.Title).Msg("resolver: matched ISRC on YouTube")
					match = &results[0]
				} else {
					zlog.Debug().Str("isrc", isrc).Str("title", item.Title).Msg("resolver: no YouTube match for ISRC")
				}
			}
		}

		if match != nil {
			return playable(match), false, nil
		}

		// Best-effort metadata search; the result may not be the exact
		// recording the catalog promised.
		zlog.Warn().Str("title", item.Title).Msg("resolver: no exact match, falling back to metadata search")

		results, err := r.youtubeMatches(ctx, item.Title+" "+item.Artist, item.Duration, true)
		if err != nil {
			return track.Playable{}, false, errors.Wrapf(err, "failed to find a playable track for %q", item.Title)
		}
		return playable(&results[0]), true, nil
	})
}
