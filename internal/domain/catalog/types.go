// Package catalog defines the value objects returned by the streaming
// catalog APIs. All types are plain data carriers; identity is the
// server-issued ID and nothing else.
package catalog

// AuthTokens is the credential pair returned by a successful login or
// token refresh against the primary API.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"` // seconds until the access token expires
}

// User is the authenticated account as reported by the backend.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Track is a single playable catalog entry.
type Track struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	Duration     int    `json:"duration"` // seconds
	StreamingURL string `json:"streamingUrl,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
}

// Artist is a catalog artist entry.
type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Album is a catalog album entry.
type Album struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	ImageURL    string `json:"imageUrl,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

// Playlist is a named, ordered collection of tracks.
type Playlist struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Tracks   []Track `json:"tracks"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// SearchResults groups matches across all catalog entity types.
type SearchResults struct {
	Tracks    []Track    `json:"tracks"`
	Artists   []Artist   `json:"artists"`
	Albums    []Album    `json:"albums"`
	Playlists []Playlist `json:"playlists"`
}

// StreamInfo is the short-lived signed location of a track's audio.
// Stream URLs expire server-side and must never be cached.
type StreamInfo struct {
	URL string `json:"url"`
}
