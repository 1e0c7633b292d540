// Package catalogapi implements the authenticated client for the
// primary catalog API. It layers bearer-token authentication with a
// transparent single-flight token refresh and a per-client response
// cache over plain HTTP/JSON endpoints.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/lbraun/chorale/internal/domain/catalog"
	"github.com/lbraun/chorale/internal/domain/session"
	"github.com/lbraun/chorale/internal/domain/streaming"
	"github.com/lbraun/chorale/internal/infra/cache"
)

const (
	// PingTimeout bounds the unauthenticated reachability probe.
	PingTimeout = 6 * time.Second

	// Endpoint-specific cache lifetimes. Recency lists churn quickly,
	// single tracks are near-immutable.
	recentTracksTTL = 2 * time.Minute
	trackTTL        = 30 * time.Minute
	searchTTL       = 10 * time.Minute
	playlistsTTL    = 5 * time.Minute
	playlistTTL     = 5 * time.Minute
)

// Client talks to the primary catalog API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *session.Store
	cache      *cache.Cache
	deviceID   string

	// refreshGroup guarantees at most one outstanding refresh request
	// per client; concurrent callers share its result.
	refreshGroup singleflight.Group
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
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

// WithDeviceID sets the per-install device identifier sent with every
// request.
func WithDeviceID(id string) Option {
	return func(c *Client) {
		c.deviceID = id
	}
}

// NewClient creates a catalog client for baseURL, persisting credentials
// through creds.
func NewClient(baseURL string, creds *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		cache:      cache.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping probes the API root with a bounded timeout. It reports plain
// reachability: any transport error, timeout, or non-2xx status is false.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Login authenticates with username and password. On success the tokens
// and username are persisted and the response cache is cleared so no
// pre-auth entries leak into the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", streaming.ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w", streaming.ErrAuthenticationFailed,
			&streaming.APIError{StatusCode: resp.StatusCode, Endpoint: "/auth/login"})
	}

	var tokens catalog.AuthTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("%w: %w", streaming.ErrAuthenticationFailed, err)
	}

	if err := c.creds.SetTokens(tokens); err != nil {
		return err
	}
	if err := c.creds.SetUsername(username); err != nil {
		return err
	}
	c.cache.Clear()

	log.Info().Str("username", username).Msg("Logged in to catalog API")
	return nil
}

// RefreshToken exchanges the stored refresh token for a new access
// token. Concurrent callers during an in-flight refresh all receive the
// result of that single request. Failure clears the stored tokens.
func (c *Client) RefreshToken(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		c.clearTokens()
		return fmt.Errorf("%w: no refresh token available", streaming.ErrTokenRefreshFailed)
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.clearTokens()
		return fmt.Errorf("%w: %w", streaming.ErrTokenRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.clearTokens()
		return fmt.Errorf("%w: %w", streaming.ErrTokenRefreshFailed,
			&streaming.APIError{StatusCode: resp.StatusCode, Endpoint: "/auth/refresh"})
	}

	var tokens catalog.AuthTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		c.clearTokens()
		return fmt.Errorf("%w: %w", streaming.ErrTokenRefreshFailed, err)
	}

	// SetTokens leaves the stored refresh token alone unless the
	// response carried a replacement.
	if err := c.creds.SetTokens(tokens); err != nil {
		return err
	}

	log.Debug().Msg("Access token refreshed")
	return nil
}

// Logout invalidates the session server-side on a best-effort basis and
// then unconditionally clears local tokens and the response cache.
func (c *Client) Logout(ctx context.Context) error {
	if token := c.creds.AccessToken(); token != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
			c.setCommonHeaders(req)
			if resp, err := c.httpClient.Do(req); err != nil {
				log.Debug().Err(err).Msg("Server-side logout failed")
			} else {
				resp.Body.Close()
			}
		}
	}

	c.cache.Clear()
	return c.creds.ClearTokens()
}

// GetRecentTracks returns the most recently played tracks.
func (c *Client) GetRecentTracks(ctx context.Context, limit int) ([]catalog.Track, error) {
	cacheKey := fmt.Sprintf("recent_tracks_%d", limit)
	if tracks, ok := cache.GetAs[[]catalog.Track](c.cache, cacheKey); ok {
		return tracks, nil
	}

	var tracks []catalog.Track
	endpoint := fmt.Sprintf("/tracks/recent?limit=%d", limit)
	if err := c.getJSON(ctx, endpoint, &tracks); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, tracks, recentTracksTTL)
	return tracks, nil
}

// GetTrack returns a single track by ID.
func (c *Client) GetTrack(ctx context.Context, trackID string) (catalog.Track, error) {
	cacheKey := "track_" + trackID
	if track, ok := cache.GetAs[catalog.Track](c.cache, cacheKey); ok {
		return track, nil
	}

	var track catalog.Track
	if err := c.getJSON(ctx, "/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return catalog.Track{}, err
	}

	c.cache.Set(cacheKey, track, trackTTL)
	return track, nil
}

// SearchTracks searches the catalog for tracks matching query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]catalog.Track, error) {
	cacheKey := fmt.Sprintf("search_tracks_%s_%d", query, limit)
	if tracks, ok := cache.GetAs[[]catalog.Track](c.cache, cacheKey); ok {
		return tracks, nil
	}

	var tracks []catalog.Track
	endpoint := fmt.Sprintf("/search/tracks?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.getJSON(ctx, endpoint, &tracks); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, tracks, searchTTL)
	return tracks, nil
}

// Search searches across all catalog entity types.
func (c *Client) Search(ctx context.Context, query string, limit int) (catalog.SearchResults, error) {
	cacheKey := fmt.Sprintf("search_%s_%d", query, limit)
	if results, ok := cache.GetAs[catalog.SearchResults](c.cache, cacheKey); ok {
		return results, nil
	}

	var results catalog.SearchResults
	endpoint := fmt.Sprintf("/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.getJSON(ctx, endpoint, &results); err != nil {
		return catalog.SearchResults{}, err
	}

	c.cache.Set(cacheKey, results, searchTTL)
	return results, nil
}

// GetPlaylists returns the user's playlists.
func (c *Client) GetPlaylists(ctx context.Context) ([]catalog.Playlist, error) {
	cacheKey := "playlists"
	if playlists, ok := cache.GetAs[[]catalog.Playlist](c.cache, cacheKey); ok {
		return playlists, nil
	}

	var playlists []catalog.Playlist
	if err := c.getJSON(ctx, "/playlists", &playlists); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, playlists, playlistsTTL)
	return playlists, nil
}

// GetPlaylist returns a playlist with its tracks.
func (c *Client) GetPlaylist(ctx context.Context, playlistID string) (catalog.Playlist, error) {
	cacheKey := "playlist_" + playlistID
	if playlist, ok := cache.GetAs[catalog.Playlist](c.cache, cacheKey); ok {
		return playlist, nil
	}

	var playlist catalog.Playlist
	if err := c.getJSON(ctx, "/playlists/"+url.PathEscape(playlistID), &playlist); err != nil {
		return catalog.Playlist{}, err
	}

	c.cache.Set(cacheKey, playlist, playlistTTL)
	return playlist, nil
}

// GetStreamingURL resolves the signed stream location for a track.
// Stream URLs are short-lived and are never cached.
func (c *Client) GetStreamingURL(ctx context.Context, trackID string) (string, error) {
	var info catalog.StreamInfo
	if err := c.getJSON(ctx, "/tracks/"+url.PathEscape(trackID)+"/stream", &info); err != nil {
		return "", err
	}
	return info.URL, nil
}

// GetCurrentUser returns the authenticated account.
func (c *Client) GetCurrentUser(ctx context.Context) (catalog.User, error) {
	var user catalog.User
	if err := c.getJSON(ctx, "/user", &user); err != nil {
		return catalog.User{}, err
	}
	return user, nil
}

// Cache exposes the client's response cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// getJSON performs an authenticated GET and decodes the JSON response
// into out. An expired access token triggers exactly one refresh before
// the request; a 401 on the response clears the stored tokens without a
// second refresh attempt.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if c.creds.AccessToken() == "" || c.creds.IsTokenExpired() {
		if err := c.RefreshToken(ctx); err != nil {
			return fmt.Errorf("%w: %w", streaming.ErrAuthenticationRequired, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken())
	req.Header.Set("Accept", "application/json")
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearTokens()
		return fmt.Errorf("%w: token rejected", streaming.ErrAuthenticationRequired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &streaming.APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setCommonHeaders(req *http.Request) {
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}
}

func (c *Client) clearTokens() {
	if err := c.creds.ClearTokens(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear stored tokens")
	}
}
