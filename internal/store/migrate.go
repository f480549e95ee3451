package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// latestSchemaVersion is the version a fully migrated database carries.
const latestSchemaVersion = 3

// migrationStep is one idempotent schema upgrade. Steps run inside a
// transaction in strictly increasing version order; a failed step aborts
// the whole migration without advancing the version, so the next startup
// re-attempts it.
type migrationStep struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrationSteps = []migrationStep{
	{version: 1, name: "base schema", apply: migrateBaseSchema},
	{version: 2, name: "updated_at columns and triggers", apply: migrateUpdatedAt},
	{version: 3, name: "response tracking and content preview", apply: migrateResponseTracking},
}

// migrateLocked brings the database up to latestSchemaVersion. Callers
// must hold mu.
func (s *SQLiteStore) migrateLocked(ctx context.Context) error {
	return s.migrateToLocked(ctx, latestSchemaVersion)
}

func (s *SQLiteStore) migrateToLocked(ctx context.Context, target int) error {
	// The version table must exist before the version can be read.
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := s.currentVersionLocked(ctx)
	if err != nil {
		return err
	}

	for _, step := range migrationSteps {
		if step.version <= current || step.version > target {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", step.version, err)
		}

		if err := step.apply(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", step.version, step.name, err)
		}

		// Version history is INSERT-only so applied steps stay auditable;
		// the highest row wins.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			step.version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", step.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", step.version, err)
		}
		slog.Info("Applied schema migration", "version", step.version, "name", step.name)
	}

	return nil
}

// currentVersionLocked returns the highest applied schema version, 0 for a
// fresh file. Callers must hold mu.
func (s *SQLiteStore) currentVersionLocked(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// CurrentSchemaVersion returns the applied schema version, 0 when the
// store is degraded.
func (s *SQLiteStore) CurrentSchemaVersion(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableLocked() {
		return 0
	}
	version, err := s.currentVersionLocked(ctx)
	if err != nil {
		slog.Warn("Failed to read schema version", "error", err)
		return 0
	}
	return version
}

func migrateBaseSchema(ctx context.Context, tx *sql.Tx) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS message_logs (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		template_id TEXT,
		template_name TEXT,
		recipient_email TEXT,
		recipient_name TEXT,
		recipient_phone TEXT,
		recipient_company TEXT,
		message_status TEXT NOT NULL DEFAULT 'pending',
		message_id TEXT,
		delivery_status TEXT,
		error_message TEXT,
		sent_at INTEGER,
		delivered_at INTEGER,
		read_at INTEGER,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_message_logs_timestamp ON message_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_message_logs_user ON message_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_message_logs_session ON message_logs(session_id);
	CREATE INDEX IF NOT EXISTS idx_message_logs_status ON message_logs(message_status);
	CREATE INDEX IF NOT EXISTS idx_message_logs_channel ON message_logs(channel);
	CREATE INDEX IF NOT EXISTS idx_message_logs_recipient ON message_logs(recipient_email);

	CREATE TABLE IF NOT EXISTS session_summaries (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		channel TEXT,
		template_used TEXT,
		total_messages INTEGER NOT NULL DEFAULT 0,
		successful_messages INTEGER NOT NULL DEFAULT 0,
		failed_messages INTEGER NOT NULL DEFAULT 0,
		pending_messages INTEGER NOT NULL DEFAULT 0,
		cancelled_messages INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0,
		channels_used TEXT,
		templates_used TEXT,
		session_metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_summaries_user ON session_summaries(user_id);
	CREATE INDEX IF NOT EXISTS idx_session_summaries_start ON session_summaries(start_time);

	CREATE TABLE IF NOT EXISTS analytics_cache (
		report_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		generated_at INTEGER NOT NULL,
		date_range_start INTEGER NOT NULL,
		date_range_end INTEGER NOT NULL,
		report_data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analytics_cache_user ON analytics_cache(user_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_cache_generated ON analytics_cache(generated_at);

	CREATE TABLE IF NOT EXISTS system_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		level TEXT NOT NULL,
		component TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT,
		user_id TEXT,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_system_logs_timestamp ON system_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_system_logs_level ON system_logs(level);
	CREATE INDEX IF NOT EXISTS idx_system_logs_component ON system_logs(component);
	CREATE INDEX IF NOT EXISTS idx_system_logs_user ON system_logs(user_id);
	`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}
	return nil
}

func migrateUpdatedAt(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"message_logs", "session_summaries"} {
		added, err := addColumnIfMissing(ctx, tx, table, "updated_at", "INTEGER NOT NULL DEFAULT 0")
		if err != nil {
			return err
		}
		if added {
			// Backfill pre-existing rows to the current time.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`UPDATE %s SET updated_at = strftime('%%s','now') WHERE updated_at = 0`, table)); err != nil {
				return fmt.Errorf("backfill %s.updated_at: %w", table, err)
			}
		}
	}

	if err := createTriggerIfMissing(ctx, tx, "trg_message_logs_updated_at", `
		CREATE TRIGGER trg_message_logs_updated_at
		AFTER UPDATE ON message_logs
		FOR EACH ROW
		BEGIN
			UPDATE message_logs SET updated_at = strftime('%s','now') WHERE id = NEW.id;
		END`); err != nil {
		return err
	}

	return createTriggerIfMissing(ctx, tx, "trg_session_summaries_updated_at", `
		CREATE TRIGGER trg_session_summaries_updated_at
		AFTER UPDATE ON session_summaries
		FOR EACH ROW
		BEGIN
			UPDATE session_summaries SET updated_at = strftime('%s','now') WHERE session_id = NEW.session_id;
		END`)
}

func migrateResponseTracking(ctx context.Context, tx *sql.Tx) error {
	if _, err := addColumnIfMissing(ctx, tx, "message_logs", "response_received", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	_, err := addColumnIfMissing(ctx, tx, "message_logs", "content_preview", "TEXT")
	return err
}

// addColumnIfMissing adds a column to a table unless it already exists,
// reporting whether it was added.
func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, decl string) (bool, error) {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return false, fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return true, nil
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// createTriggerIfMissing creates a trigger unless one with the same name
// already exists.
func createTriggerIfMissing(ctx context.Context, tx *sql.Tx, name, ddl string) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?`, name).Scan(&count)
	if err != nil {
		return fmt.Errorf("check trigger %s: %w", name, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create trigger %s: %w", name, err)
	}
	return nil
}

// requiredSchema is what VerifySchema checks, independent of the
// migration steps that are supposed to produce it.
var requiredSchema = struct {
	tables   []string
	columns  map[string][]string
	triggers []string
}{
	tables: []string{"message_logs", "session_summaries", "analytics_cache", "system_logs", "schema_version"},
	columns: map[string][]string{
		"message_logs": {
			"id", "timestamp", "user_id", "session_id", "channel",
			"template_id", "template_name", "recipient_email", "recipient_name",
			"recipient_phone", "recipient_company", "message_status", "message_id",
			"delivery_status", "error_message", "sent_at", "delivered_at", "read_at",
			"response_received", "content_preview", "metadata", "created_at", "updated_at",
		},
		"session_summaries": {
			"session_id", "user_id", "start_time", "end_time", "channel",
			"template_used", "total_messages", "successful_messages", "failed_messages",
			"pending_messages", "cancelled_messages", "success_rate", "channels_used",
			"templates_used", "session_metadata", "created_at", "updated_at",
		},
		"analytics_cache": {"report_id", "user_id", "generated_at", "date_range_start", "date_range_end", "report_data"},
		"system_logs":     {"id", "timestamp", "level", "component", "message", "details", "user_id", "session_id"},
	},
	triggers: []string{"trg_message_logs_updated_at", "trg_session_summaries_updated_at"},
}

// VerifySchema independently re-checks that every required table, column
// and trigger exists. Problems come back as a list of issues rather than
// an error so callers can decide whether to proceed in degraded mode.
func (s *SQLiteStore) VerifySchema(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableLocked() {
		return []string{"database unavailable"}
	}

	var issues []string

	for _, table := range requiredSchema.tables {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
		if err != nil {
			issues = append(issues, fmt.Sprintf("check table %s: %v", table, err))
			continue
		}
		if count == 0 {
			issues = append(issues, fmt.Sprintf("missing table: %s", table))
		}
	}

	for table, columns := range requiredSchema.columns {
		present, err := s.tableColumnsLocked(ctx, table)
		if err != nil {
			issues = append(issues, fmt.Sprintf("read columns of %s: %v", table, err))
			continue
		}
		for _, col := range columns {
			if _, ok := present[col]; !ok {
				issues = append(issues, fmt.Sprintf("missing column: %s.%s", table, col))
			}
		}
	}

	for _, trigger := range requiredSchema.triggers {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?`, trigger).Scan(&count)
		if err != nil {
			issues = append(issues, fmt.Sprintf("check trigger %s: %v", trigger, err))
			continue
		}
		if count == 0 {
			issues = append(issues, fmt.Sprintf("missing trigger: %s", trigger))
		}
	}

	return issues
}

func (s *SQLiteStore) tableColumnsLocked(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = struct{}{}
	}
	return cols, rows.Err()
}
