// Package session persists the user's credentials for the primary
// catalog API: access token, refresh token, expiry, and username.
package session

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lbraun/chorale/internal/domain/catalog"
	"github.com/lbraun/chorale/internal/infra/kvstore"
)

// Keys under which credentials are stored.
const (
	keyAccessToken  = "auth_token"
	keyRefreshToken = "refresh_token"
	keyTokenExpiry  = "token_expiry"
	keyUsername     = "username"
)

// Store reads and writes credentials through a durable key-value store.
// It keeps no in-memory state: every call re-reads the backing store, so
// two Store instances over the same database observe the same session.
type Store struct {
	kv  *kvstore.Store
	now func() time.Time
}

// NewStore creates a credential store over kv.
func NewStore(kv *kvstore.Store) *Store {
	return &Store{kv: kv, now: time.Now}
}

// SetTokens persists an access token and, when present, the refresh
// token and expiry. The expiry is recorded as an absolute timestamp in
// milliseconds computed at write time.
func (s *Store) SetTokens(tokens catalog.AuthTokens) error {
	if err := s.kv.Set(keyAccessToken, tokens.AccessToken); err != nil {
		return err
	}
	if tokens.RefreshToken != "" {
		if err := s.kv.Set(keyRefreshToken, tokens.RefreshToken); err != nil {
			return err
		}
	}
	if tokens.ExpiresIn > 0 {
		expiry := s.now().UnixMilli() + int64(tokens.ExpiresIn)*1000
		if err := s.kv.Set(keyTokenExpiry, strconv.FormatInt(expiry, 10)); err != nil {
			return err
		}
	}
	return nil
}

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken() string {
	return s.read(keyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (s *Store) RefreshToken() string {
	return s.read(keyRefreshToken)
}

// TokenExpiry returns the stored expiry in unix milliseconds. ok is
// false when no expiry was recorded.
func (s *Store) TokenExpiry() (expiry int64, ok bool) {
	raw := s.read(keyTokenExpiry)
	if raw == "" {
		return 0, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn().Str("value", raw).Msg("Malformed token expiry in store")
		return 0, false
	}
	return millis, true
}

// IsTokenExpired reports whether the access token should be considered
// expired. An unknown expiry counts as expired.
func (s *Store) IsTokenExpired() bool {
	expiry, ok := s.TokenExpiry()
	if !ok {
		return true
	}
	return s.now().UnixMilli() > expiry
}

// SetUsername persists the username of the logged-in account.
func (s *Store) SetUsername(username string) error {
	return s.kv.Set(keyUsername, username)
}

// Username returns the stored username, or "" when absent.
func (s *Store) Username() string {
	return s.read(keyUsername)
}

// ClearTokens removes every credential entry.
func (s *Store) ClearTokens() error {
	return s.kv.Delete(keyAccessToken, keyRefreshToken, keyTokenExpiry, keyUsername)
}

// HasValidToken reports whether an access token is present and not
// expired.
func (s *Store) HasValidToken() bool {
	return s.AccessToken() != "" && !s.IsTokenExpired()
}

// read returns the value for key, treating storage failures as absent.
func (s *Store) read(key string) string {
	value, ok, err := s.kv.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Credential read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return value
}
