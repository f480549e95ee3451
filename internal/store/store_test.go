package store

import (
	"path/filepath"
	"testing"
	"time"
)

// newTestStore opens a fresh store on a temp file. The cache TTL is kept
// long so analytics cache behavior is deterministic within a test.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "activity.db")
	s := New(dbPath, "tester", WithCacheTTL(time.Hour))
	if !s.Available() {
		t.Fatalf("store failed to initialize at %s", dbPath)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// forceDegraded flips the store into degraded mode the way an exhausted
// retry loop would.
func forceDegraded(s *SQLiteStore) {
	s.mu.Lock()
	s.unavailable = true
	s.mu.Unlock()
}

func strPtr(v string) *string { return &v }
