package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFreshDatabaseMigratesToLatest(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if got := s.CurrentSchemaVersion(ctx); got != latestSchemaVersion {
		t.Fatalf("schema version = %d, want %d", got, latestSchemaVersion)
	}
	if issues := s.VerifySchema(ctx); len(issues) != 0 {
		t.Fatalf("fresh schema has issues: %v", issues)
	}
}

func TestMigrationIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.mu.Lock()
	err := s.migrateLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	if got := s.CurrentSchemaVersion(ctx); got != latestSchemaVersion {
		t.Fatalf("schema version after re-migration = %d, want %d", got, latestSchemaVersion)
	}
	if issues := s.VerifySchema(ctx); len(issues) != 0 {
		t.Fatalf("re-migrated schema has issues: %v", issues)
	}
}

func TestLegacySchemaGainsUpdatedAt(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	// Build a version-1 database with a pre-existing row, the shape the
	// tool wrote before updated_at existed.
	legacy := &SQLiteStore{path: dbPath, userID: "tester", cacheTTL: time.Hour}
	if err := legacy.connect(ctx); err != nil {
		t.Fatalf("open legacy database: %v", err)
	}
	if err := legacy.migrateToLocked(ctx, 1); err != nil {
		t.Fatalf("create v1 schema: %v", err)
	}
	if _, err := legacy.db.ExecContext(ctx, `
		INSERT INTO message_logs (id, timestamp, user_id, session_id, channel, message_status, created_at)
		VALUES ('old-row', ?, 'tester', 'sess-legacy', 'email', 'sent', ?)`,
		time.Now().Unix(), time.Now().Unix()); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	if err := legacy.Close(); err != nil {
		t.Fatalf("close legacy database: %v", err)
	}

	// Reopening runs the remaining migrations.
	s := New(dbPath, "tester")
	if !s.Available() {
		t.Fatal("store failed to reopen legacy database")
	}
	t.Cleanup(func() { _ = s.Close() })

	if got := s.CurrentSchemaVersion(ctx); got != latestSchemaVersion {
		t.Fatalf("schema version = %d, want %d", got, latestSchemaVersion)
	}
	if issues := s.VerifySchema(ctx); len(issues) != 0 {
		t.Fatalf("migrated legacy schema has issues: %v", issues)
	}

	// The pre-existing row must have been backfilled to a current
	// timestamp, not left at the column default.
	var updatedAt int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM message_logs WHERE id = 'old-row'`).Scan(&updatedAt); err != nil {
		t.Fatalf("read backfilled row: %v", err)
	}
	if updatedAt == 0 {
		t.Fatal("legacy row updated_at was not backfilled")
	}
}

func TestVersionHistoryIsAppendOnly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	var rows int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("count version rows: %v", err)
	}
	if rows != latestSchemaVersion {
		t.Fatalf("expected one version row per step, got %d", rows)
	}
}
