package resolver

import (
	"net/url"
	"strings"
)

// URLKind classifies a recognized URL.
type URLKind int

const (
	URLUnknown URLKind = iota
	URLSpotifyTrack
	URLSpotifyAlbum
	URLSpotifyPlaylist
	URLYouTubeVideo
	URLYouTubePlaylist
	URLSoundCloud
)

// ClassifyURL reports whether the query is a URL (or Spotify URI) and,
// if so, which provider entity it points at. URLUnknown with ok=true
// means a structurally valid URL that no provider claims.
func ClassifyURL(query string) (URLKind, bool) {
	query = strings.TrimSpace(query)

	// Spotify URIs are not URLs but are accepted everywhere URLs are.
	if strings.HasPrefix(query, "spotify:") {
		parts := strings.Split(query, ":")
		if len(parts) == 3 {
			switch parts[1] {
			case "track":
				return URLSpotifyTrack, true
			case "album":
				return URLSpotifyAlbum, true
			case "playlist":
				return URLSpotifyPlaylist, true
			}
		}
		return URLUnknown, true
	}

	u, err := url.Parse(query)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return URLUnknown, false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "open.spotify.com":
		return classifySpotifyPath(u.Path), true

	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Query().Get("list") != "" && u.Query().Get("v") == "" {
			return URLYouTubePlaylist, true
		}
		if u.Query().Get("v") != "" || strings.HasPrefix(u.Path, "/shorts/") || strings.HasPrefix(u.Path, "/live/") {
			return URLYouTubeVideo, true
		}
		return URLUnknown, true

	case "youtu.be":
		if strings.Trim(u.Path, "/") != "" {
			return URLYouTubeVideo, true
		}
		return URLUnknown, true

	case "soundcloud.com", "on.soundcloud.com":
		return URLSoundCloud, true
	}

	return URLUnknown, true
}

func classifySpotifyPath(path string) URLKind {
	// Paths may carry an intl prefix: /intl-ja/track/<id>.
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "intl-") {
		segments = segments[1:]
	}
	if len(segments) < 2 {
		return URLUnknown
	}

	switch segments[0] {
	case "track":
		return URLSpotifyTrack
	case "album":
		return URLSpotifyAlbum
	case "playlist":
		return URLSpotifyPlaylist
	}
	return URLUnknown
}

// youtubeListID extracts the playlist ID from a YouTube URL.
func youtubeListID(query string) (string, bool) {
	u, err := url.Parse(query)
	if err != nil {
		return "", false
	}
	listID := u.Query().Get("list")
	return listID, listID != ""
}
