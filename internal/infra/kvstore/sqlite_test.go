package kvstore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore(filepath.Join(t.TempDir(), "kv.db"))
	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("auth_token", "abc123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := s.Get("auth_token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "abc123" {
		t.Errorf("Get = (%q, %v), want (abc123, true)", value, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openTestStore(t)

	value, ok, err := s.Get("absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || value != "" {
		t.Errorf("Get = (%q, %v), want empty miss", value, ok)
	}
}

func TestSetOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("key", "first"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("key", "second"); err != nil {
		t.Fatalf("Set (overwrite) failed: %v", err)
	}

	value, _, err := s.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "second" {
		t.Errorf("value = %q, want second", value)
	}
}

func TestDeleteMultipleKeys(t *testing.T) {
	s := openTestStore(t)

	s.Set("a", "1")
	s.Set("b", "2")

	// Deleting a missing key alongside present ones is fine.
	if err := s.Delete("a", "b", "missing"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, key := range []string{"a", "b"} {
		if _, ok, _ := s.Get(key); ok {
			t.Errorf("key %q should be deleted", key)
		}
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	s1 := NewStore(path)
	if err := s1.Open(); err != nil {
		t.Fatalf("Open (1) failed: %v", err)
	}
	s1.Set("username", "alice")
	s1.Close()

	s2 := NewStore(path)
	if err := s2.Open(); err != nil {
		t.Fatalf("Open (2) failed: %v", err)
	}
	defer s2.Close()

	value, ok, err := s2.Get("username")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "alice" {
		t.Errorf("Get after reopen = (%q, %v), want (alice, true)", value, ok)
	}
}

func TestOperationsFailWhenClosed(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "kv.db"))

	if err := s.Set("key", "value"); err == nil {
		t.Error("Set should fail on an unopened store")
	}
	if _, _, err := s.Get("key"); err == nil {
		t.Error("Get should fail on an unopened store")
	}
	if err := s.Delete("key"); err == nil {
		t.Error("Delete should fail on an unopened store")
	}
}
