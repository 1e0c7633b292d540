package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lbraun/chorale/internal/domain/catalog"
	"github.com/lbraun/chorale/internal/infra/kvstore"
)

func newTestStore(t *testing.T) (*Store, func(time.Duration)) {
	t.Helper()

	kv := kvstore.NewStore(filepath.Join(t.TempDir(), "session.db"))
	if err := kv.Open(); err != nil {
		t.Fatalf("failed to open kv store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	s := NewStore(kv)
	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }
	return s, func(d time.Duration) { current = current.Add(d) }
}

func TestSetTokensPersistsAll(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.SetTokens(catalog.AuthTokens{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
	})
	if err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	if got := s.AccessToken(); got != "access-1" {
		t.Errorf("AccessToken = %q, want access-1", got)
	}
	if got := s.RefreshToken(); got != "refresh-1" {
		t.Errorf("RefreshToken = %q, want refresh-1", got)
	}

	expiry, ok := s.TokenExpiry()
	if !ok {
		t.Fatal("expected a recorded expiry")
	}
	want := time.Unix(1700000000, 0).UnixMilli() + 3600*1000
	if expiry != want {
		t.Errorf("TokenExpiry = %d, want %d", expiry, want)
	}
}

func TestSetTokensKeepsRefreshTokenWhenOmitted(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetTokens(catalog.AuthTokens{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 3600})
	// A refresh response typically carries only a new access token.
	s.SetTokens(catalog.AuthTokens{AccessToken: "a2", ExpiresIn: 3600})

	if got := s.RefreshToken(); got != "r1" {
		t.Errorf("RefreshToken = %q, want the original r1", got)
	}
	if got := s.AccessToken(); got != "a2" {
		t.Errorf("AccessToken = %q, want a2", got)
	}
}

func TestIsTokenExpired(t *testing.T) {
	s, advance := newTestStore(t)

	s.SetTokens(catalog.AuthTokens{AccessToken: "a", ExpiresIn: 60})

	if s.IsTokenExpired() {
		t.Error("fresh token should not be expired")
	}

	advance(61 * time.Second)
	if !s.IsTokenExpired() {
		t.Error("token should be expired past its lifetime")
	}
}

func TestUnknownExpiryCountsAsExpired(t *testing.T) {
	s, _ := newTestStore(t)

	// Access token present but no expiry recorded.
	s.SetTokens(catalog.AuthTokens{AccessToken: "a"})

	if !s.IsTokenExpired() {
		t.Error("missing expiry should count as expired")
	}
	if s.HasValidToken() {
		t.Error("a token without expiry is not valid")
	}
}

func TestHasValidToken(t *testing.T) {
	s, advance := newTestStore(t)

	if s.HasValidToken() {
		t.Error("empty store should have no valid token")
	}

	s.SetTokens(catalog.AuthTokens{AccessToken: "a", ExpiresIn: 60})
	if !s.HasValidToken() {
		t.Error("fresh token should be valid")
	}

	advance(2 * time.Minute)
	if s.HasValidToken() {
		t.Error("expired token should not be valid")
	}
}

func TestUsernameRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SetUsername("alice"); err != nil {
		t.Fatalf("SetUsername failed: %v", err)
	}
	if got := s.Username(); got != "alice" {
		t.Errorf("Username = %q, want alice", got)
	}
}

func TestClearTokensRemovesEverything(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetTokens(catalog.AuthTokens{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60})
	s.SetUsername("alice")

	if err := s.ClearTokens(); err != nil {
		t.Fatalf("ClearTokens failed: %v", err)
	}

	if s.AccessToken() != "" || s.RefreshToken() != "" || s.Username() != "" {
		t.Error("all credentials should be cleared")
	}
	if _, ok := s.TokenExpiry(); ok {
		t.Error("expiry should be cleared")
	}
}

func TestTwoStoresShareState(t *testing.T) {
	kv := kvstore.NewStore(filepath.Join(t.TempDir(), "session.db"))
	if err := kv.Open(); err != nil {
		t.Fatalf("failed to open kv store: %v", err)
	}
	defer kv.Close()

	s1 := NewStore(kv)
	s2 := NewStore(kv)

	s1.SetTokens(catalog.AuthTokens{AccessToken: "shared", ExpiresIn: 60})

	if got := s2.AccessToken(); got != "shared" {
		t.Errorf("second store sees %q, want shared", got)
	}
}
