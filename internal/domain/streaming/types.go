// Package streaming provides the shared surface of the streaming
// service clients: the common read interface and the error taxonomy
// both implementations report through.
package streaming

import (
	"context"

	"github.com/lbraun/chorale/internal/domain/catalog"
)

// Service is the catalog surface shared by the primary API client and
// the web-player fallback client. Consumers hold whichever
// implementation the active session provides.
type Service interface {
	// GetRecentTracks returns the most recently played tracks.
	GetRecentTracks(ctx context.Context, limit int) ([]catalog.Track, error)

	// GetTrack returns a single track by ID.
	GetTrack(ctx context.Context, trackID string) (catalog.Track, error)

	// SearchTracks searches the catalog for tracks matching query.
	SearchTracks(ctx context.Context, query string, limit int) ([]catalog.Track, error)

	// Search searches across all catalog entity types.
	Search(ctx context.Context, query string, limit int) (catalog.SearchResults, error)

	// GetPlaylists returns the user's playlists.
	GetPlaylists(ctx context.Context) ([]catalog.Playlist, error)

	// GetPlaylist returns a playlist with its tracks.
	GetPlaylist(ctx context.Context, playlistID string) (catalog.Playlist, error)

	// GetStreamingURL resolves the signed stream location for a track.
	// Implementations never cache the result.
	GetStreamingURL(ctx context.Context, trackID string) (string, error)

	// GetCurrentUser returns the authenticated account.
	GetCurrentUser(ctx context.Context) (catalog.User, error)
}
