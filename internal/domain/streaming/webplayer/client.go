// Package webplayer implements the client for the web-player backend.
// Unlike the primary catalog API it has no token exchange: the user
// logs in interactively in a browser window and the resulting session
// cookies authenticate every request.
package webplayer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lbraun/chorale/internal/domain/catalog"
	"github.com/lbraun/chorale/internal/domain/streaming"
	"github.com/lbraun/chorale/internal/infra/cache"
)

const (
	// DefaultPollInterval is the delay between login-completion polls.
	DefaultPollInterval = time.Second

	// DefaultMaxPollAttempts bounds the interactive login at five
	// minutes with the default interval.
	DefaultMaxPollAttempts = 300
)

// Session describes the current web-player session.
type Session struct {
	Authenticated bool
	UserID        string
	Username      string
}

// Client talks to the web-player backend using ambient session
// credentials held in its cookie jar.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	cache           *cache.Cache
	window          AuthWindow
	pollInterval    time.Duration
	maxPollAttempts int

	mu      sync.RWMutex
	session Session
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The caller is responsible
// for attaching a cookie jar if session persistence is wanted.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCache sets the response cache instance the client owns.
func WithCache(rc *cache.Cache) Option {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithAuthWindow sets the browsing context used for interactive login.
func WithAuthWindow(w AuthWindow) Option {
	return func(c *Client) {
		c.window = w
	}
}

// WithPollInterval sets the delay between login-completion polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithMaxPollAttempts sets the poll budget for the interactive login.
func WithMaxPollAttempts(n int) Option {
	return func(c *Client) {
		c.maxPollAttempts = n
	}
}

// NewClient creates a web-player client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: 30 * time.Second, Jar: jar},
		cache:           cache.New(),
		window:          BrowserWindow{},
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenAuthWindow opens the login page in the configured window and
// polls the user endpoint until the login completes. Exactly one of
// three terminal outcomes resolves the flow: success, the user closing
// the window (ErrAuthWindowClosed), or the poll budget running out
// (ErrAuthTimeout, which force-closes the window). Transient poll
// errors count toward the budget rather than extending it.
func (c *Client) OpenAuthWindow(ctx context.Context) (Session, error) {
	if err := c.window.Open(c.baseURL + "/login"); err != nil {
		return Session{}, fmt.Errorf("%w: %w", streaming.ErrAuthWindowBlocked, err)
	}

	log.Info().Str("url", c.baseURL+"/login").Msg("Waiting for interactive login")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			c.window.Close()
			return Session{}, ctx.Err()
		case <-ticker.C:
		}

		if user, err := c.fetchUser(ctx); err == nil {
			c.window.Close()
			c.mu.Lock()
			c.session = Session{Authenticated: true, UserID: user.ID, Username: user.Username}
			c.mu.Unlock()
			log.Info().Str("username", user.Username).Msg("Web-player login complete")
			return c.Session(), nil
		}

		if c.window.IsClosed() {
			return Session{}, streaming.ErrAuthWindowClosed
		}
	}

	c.window.Close()
	return Session{}, streaming.ErrAuthTimeout
}

// IsAuthenticated reports whether a session is established.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Authenticated
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Logout invalidates the session server-side on a best-effort basis,
// then unconditionally resets the local session and clears the cache.
func (c *Client) Logout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/logout", nil)
	if err == nil {
		if resp, err := c.httpClient.Do(req); err != nil {
			log.Debug().Err(err).Msg("Web-player logout request failed")
		} else {
			resp.Body.Close()
		}
	}

	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
	c.cache.Clear()
}

// GetRecentTracks returns the most recently played tracks.
func (c *Client) GetRecentTracks(ctx context.Context, limit int) ([]catalog.Track, error) {
	cacheKey := fmt.Sprintf("webplayer_recent_tracks_%d", limit)
	if tracks, ok := cache.GetAs[[]catalog.Track](c.cache, cacheKey); ok {
		return tracks, nil
	}

	var tracks []catalog.Track
	endpoint := fmt.Sprintf("/api/tracks/recent?limit=%d", limit)
	if err := c.getJSON(ctx, endpoint, &tracks); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, tracks, 2*time.Minute)
	return tracks, nil
}

// GetTrack returns a single track by ID.
func (c *Client) GetTrack(ctx context.Context, trackID string) (catalog.Track, error) {
	cacheKey := "webplayer_track_" + trackID
	if track, ok := cache.GetAs[catalog.Track](c.cache, cacheKey); ok {
		return track, nil
	}

	var track catalog.Track
	if err := c.getJSON(ctx, "/api/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return catalog.Track{}, err
	}

	c.cache.Set(cacheKey, track, 30*time.Minute)
	return track, nil
}

// Search searches across all catalog entity types.
func (c *Client) Search(ctx context.Context, query string, limit int) (catalog.SearchResults, error) {
	cacheKey := fmt.Sprintf("webplayer_search_%s_%d", query, limit)
	if results, ok := cache.GetAs[catalog.SearchResults](c.cache, cacheKey); ok {
		return results, nil
	}

	var results catalog.SearchResults
	endpoint := fmt.Sprintf("/api/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.getJSON(ctx, endpoint, &results); err != nil {
		return catalog.SearchResults{}, err
	}

	c.cache.Set(cacheKey, results, 10*time.Minute)
	return results, nil
}

// SearchTracks searches the web-player catalog for tracks.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]catalog.Track, error) {
	cacheKey := fmt.Sprintf("webplayer_search_tracks_%s_%d", query, limit)
	if tracks, ok := cache.GetAs[[]catalog.Track](c.cache, cacheKey); ok {
		return tracks, nil
	}

	var tracks []catalog.Track
	endpoint := fmt.Sprintf("/api/search/tracks?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.getJSON(ctx, endpoint, &tracks); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, tracks, 10*time.Minute)
	return tracks, nil
}

// GetPlaylists returns the user's playlists.
func (c *Client) GetPlaylists(ctx context.Context) ([]catalog.Playlist, error) {
	cacheKey := "webplayer_playlists"
	if playlists, ok := cache.GetAs[[]catalog.Playlist](c.cache, cacheKey); ok {
		return playlists, nil
	}

	var playlists []catalog.Playlist
	if err := c.getJSON(ctx, "/api/playlists", &playlists); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, playlists, 5*time.Minute)
	return playlists, nil
}

// GetPlaylist returns a playlist with its tracks.
func (c *Client) GetPlaylist(ctx context.Context, playlistID string) (catalog.Playlist, error) {
	cacheKey := "webplayer_playlist_" + playlistID
	if playlist, ok := cache.GetAs[catalog.Playlist](c.cache, cacheKey); ok {
		return playlist, nil
	}

	var playlist catalog.Playlist
	if err := c.getJSON(ctx, "/api/playlists/"+url.PathEscape(playlistID), &playlist); err != nil {
		return catalog.Playlist{}, err
	}

	c.cache.Set(cacheKey, playlist, 5*time.Minute)
	return playlist, nil
}

// GetStreamingURL resolves the stream location for a track. Never cached.
func (c *Client) GetStreamingURL(ctx context.Context, trackID string) (string, error) {
	var info catalog.StreamInfo
	if err := c.getJSON(ctx, "/api/tracks/"+url.PathEscape(trackID)+"/stream", &info); err != nil {
		return "", err
	}
	return info.URL, nil
}

// GetCurrentUser returns the logged-in account.
func (c *Client) GetCurrentUser(ctx context.Context) (catalog.User, error) {
	if !c.IsAuthenticated() {
		return catalog.User{}, streaming.ErrAuthenticationRequired
	}
	return c.fetchUser(ctx)
}

// Cache exposes the client's response cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// fetchUser hits the user endpoint without the authentication guard;
// the login poll uses it to detect completion.
func (c *Client) fetchUser(ctx context.Context) (catalog.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user", nil)
	if err != nil {
		return catalog.User{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return catalog.User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return catalog.User{}, &streaming.APIError{StatusCode: resp.StatusCode, Endpoint: "/api/user"}
	}

	var user catalog.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return catalog.User{}, err
	}
	return user, nil
}

// getJSON performs a session-authenticated GET. A 401 or 403 marks the
// session unauthenticated and fails with ErrSessionExpired; this
// backend exposes no refresh, so the only recovery is a new
// interactive login.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if !c.IsAuthenticated() {
		return streaming.ErrAuthenticationRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.mu.Lock()
		c.session.Authenticated = false
		c.mu.Unlock()
		return streaming.ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &streaming.APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
