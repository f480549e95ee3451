package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sendvault/internal/domain"
)

// GetDatabaseHealth returns a read-only diagnostic snapshot. It never
// fails; whatever cannot be collected is reported inside the snapshot.
func (s *SQLiteStore) GetDatabaseHealth(ctx context.Context) *domain.HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.HealthReport{
		Available: s.availableLocked(),
		Path:      s.path,
	}

	if info, err := os.Stat(s.path); err == nil {
		report.SizeBytes = info.Size()
	}

	if !report.Available {
		report.IntegrityIssues = append(report.IntegrityIssues, "database unavailable")
		return report
	}

	if version, err := s.currentVersionLocked(ctx); err == nil {
		report.SchemaVersion = version
	} else {
		report.IntegrityIssues = append(report.IntegrityIssues, fmt.Sprintf("schema version unreadable: %v", err))
	}

	report.TableCounts = make(map[string]int64)
	for _, table := range requiredSchema.tables {
		var count int64
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
			report.IntegrityIssues = append(report.IntegrityIssues, fmt.Sprintf("count %s: %v", table, err))
			continue
		}
		report.TableCounts[table] = count
	}

	indexes, err := s.indexNamesLocked(ctx)
	if err != nil {
		report.IntegrityIssues = append(report.IntegrityIssues, fmt.Sprintf("list indexes: %v", err))
	}
	report.IndexNames = indexes

	report.IntegrityIssues = append(report.IntegrityIssues, s.integrityIssuesLocked(ctx)...)
	return report
}

func (s *SQLiteStore) indexNamesLocked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// integrityIssuesLocked runs PRAGMA integrity_check and returns anything
// other than "ok". Callers must hold mu.
func (s *SQLiteStore) integrityIssuesLocked(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return []string{fmt.Sprintf("integrity check failed to run: %v", err)}
	}
	defer func() { _ = rows.Close() }()

	var issues []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return append(issues, fmt.Sprintf("scan integrity result: %v", err))
		}
		if line != "ok" {
			issues = append(issues, line)
		}
	}
	if err := rows.Err(); err != nil {
		issues = append(issues, fmt.Sprintf("iterate integrity results: %v", err))
	}
	return issues
}

// RepairDatabase re-attempts connection initialization and integrity
// restoration. On success the degraded flag is cleared; on failure the
// store stays degraded and false is returned.
func (s *SQLiteStore) RepairDatabase(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slog.Info("Repairing database", "path", s.path)

	if err := s.connectWithRetry(ctx); err != nil {
		slog.Error("Repair failed to reconnect", "error", err)
		return false
	}
	if err := s.migrateLocked(ctx); err != nil {
		slog.Error("Repair failed to migrate", "error", err)
		return false
	}

	if issues := s.integrityIssuesLocked(ctx); len(issues) > 0 {
		slog.Warn("Integrity check failed, rebuilding indexes", "issues", issues)
		if _, err := s.db.ExecContext(ctx, `REINDEX`); err != nil {
			slog.Error("REINDEX failed", "error", err)
			return false
		}
		if issues := s.integrityIssuesLocked(ctx); len(issues) > 0 {
			slog.Error("Integrity not restored after reindex", "issues", issues)
			return false
		}
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		slog.Warn("Post-repair vacuum failed", "error", err)
	}
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		slog.Warn("Post-repair analyze failed", "error", err)
	}

	s.unavailable = false
	s.lastVacuum = time.Now()
	s.systemLogLocked(ctx, "info", "maintenance", "database_repaired", nil)
	slog.Info("Database repaired")
	return true
}

// BackupDatabase writes a live engine-level copy of the database to path,
// or to a timestamped sibling of the database file when path is empty.
// VACUUM INTO copies through the connection, so in-flight writes cannot
// corrupt the backup the way a raw file copy could.
func (s *SQLiteStore) BackupDatabase(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableLocked() {
		return "", fmt.Errorf("database unavailable")
	}

	if path == "" {
		dir := filepath.Dir(s.path)
		base := filepath.Base(s.path)
		path = filepath.Join(dir, fmt.Sprintf("%s.backup-%s", base, time.Now().Format("20060102-150405")))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}

	s.systemLogLocked(ctx, "info", "maintenance", "backup_created",
		map[string]any{"path": path})
	slog.Info("Database backup written", "path", path)
	return path, nil
}

// DeleteOldData removes log rows, session rows and cached reports strictly
// older than N days for the current user and returns the total rows
// removed. Degraded mode removes nothing.
func (s *SQLiteStore) DeleteOldData(ctx context.Context, days int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableLocked() {
		return 0
	}
	return s.deleteOlderThanLocked(ctx, days, time.Now().AddDate(0, 0, -days).Unix())
}

// deleteOlderThanLocked removes rows strictly older than cutoff; a row
// whose timestamp equals the cutoff survives. Callers must hold mu.
func (s *SQLiteStore) deleteOlderThanLocked(ctx context.Context, days int, cutoff int64) int64 {
	var total int64

	deletes := []struct {
		table string
		query string
	}{
		{"message_logs", `DELETE FROM message_logs WHERE user_id = ? AND timestamp < ?`},
		{"session_summaries", `DELETE FROM session_summaries WHERE user_id = ? AND start_time < ?`},
		{"analytics_cache", `DELETE FROM analytics_cache WHERE user_id = ? AND generated_at < ?`},
	}

	for _, d := range deletes {
		result, err := s.db.ExecContext(ctx, d.query, s.userID, cutoff)
		if err != nil {
			slog.Warn("Retention delete failed", "table", d.table, "error", err)
			continue
		}
		if rows, err := result.RowsAffected(); err == nil {
			total += rows
		}
	}

	if total > 0 {
		s.systemLogLocked(ctx, "info", "maintenance", "retention_cleanup",
			map[string]any{"days": days, "rows_deleted": total})
	}
	return total
}
