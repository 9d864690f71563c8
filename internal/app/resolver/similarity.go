package resolver

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/melba-bot/melba/internal/infra/audionode"
)

// durationTolerance is how close a search hit's duration must be to the
// desired duration for it to keep its original top spot. Tuned
// empirically; configuration, not law.
const durationTolerance = 3500 * time.Millisecond

// denylist drops quality-degrading variants from automatic searches
// unless the query itself asked for one.
var denylist = []string{
	"karaoke",
	"live",
	"instrumental",
	"piano",
	"cover",
	"minus one",
	"reverb",
	"slowed",
	"remix",
	"mashup",
	"8d",
	"3d",
	"performance",
}

// SimilarityWeighted scores a search candidate against the query with a
// weighted blend of fuzzy matching algorithms plus the candidate's
// provider rank. All components are on a 0-100 scale, as is the result.
// The weights are tuned empirically; treat them as configuration.
func SimilarityWeighted(actual, candidate string, candidateRank int) int {
	naive := fuzzy.Ratio(actual, candidate)
	tokenSet := fuzzy.TokenSetRatio(actual, candidate)
	tokenSort := fuzzy.TokenSortRatio(actual, candidate)
	partialTokenSort := fuzzy.PartialTokenSortRatio(actual, candidate)

	return int(
		float64(naive)*0.70 +
			float64(tokenSet)*0.12 +
			float64(candidateRank)*0.08 +
			float64(tokenSort)*0.06 +
			float64(partialTokenSort)*0.04)
}

// youtubeMatches searches the video platform through the node and
// post-processes the hits: unknown-duration entries are dropped,
// denylisted variants are dropped on automatic searches, and when a
// desired duration is known the hits are ranked by duration closeness.
func (r *Resolver) youtubeMatches(ctx context.Context, query string, desiredDuration time.Duration, automatic bool) ([]audionode.Track, error) {
	result, err := r.node.LoadTracks(ctx, "ytsearch:"+query)
	if err != nil {
		if errors.Is(err, audionode.ErrNoMatches) {
			return nil, errors.Wrapf(ErrNoResults, "query %q", query)
		}
		return nil, errors.Mark(errors.Wrapf(err, "could not search for %q", query), ErrNodeFailure)
	}

	matches := make([]audionode.Track, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		// Can't rank or play a track with no duration.
		if t.Info.Length == 0 && !t.Info.IsStream {
			continue
		}
		if automatic && denylisted(t.Info.Title, query) {
			continue
		}
		matches = append(matches, t)
	}
	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "query %q", query)
	}

	if desiredDuration > 0 {
		distance := func(t *audionode.Track) time.Duration {
			d := t.Duration() - desiredDuration
			if d < 0 {
				d = -d
			}
			return d
		}

		if distance(&matches[0]) < durationTolerance {
			// Top hit is close enough; keep it first and only sort the
			// tail by duration distance.
			tail := matches[1:]
			sort.SliceStable(tail, func(i, j int) bool {
				return distance(&tail[i]) < distance(&tail[j])
			})
		} else {
			sort.SliceStable(matches, func(i, j int) bool {
				return distance(&matches[i]) < distance(&matches[j])
			})
		}
	}

	return matches, nil
}

// denylisted reports whether a candidate title contains a denylisted
// keyword that the query itself did not ask for.
func denylisted(title, query string) bool {
	title = strings.ToLower(title)
	query = strings.ToLower(query)
	for _, word := range denylist {
		if strings.Contains(title, word) && !strings.Contains(query, word) {
			return true
		}
	}
	return false
}
