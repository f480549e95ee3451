// Package store provides the persistent message-activity log and
// analytics store backed by a local SQLite file.
package store

import (
	"context"

	"sendvault/internal/domain"
)

// Store is the public surface consumed by the GUI/services layer.
//
// Storage faults are contained inside the implementation: when the
// database is unavailable every operation degrades to a no-op returning a
// sentinel value instead of an error, so a logging failure can never take
// a send-in-progress down. The documented exceptions are ExportData with
// an unsupported format (a caller mistake) and the operator-facing
// RepairDatabase/BackupDatabase, which report success or failure
// explicitly.
type Store interface {
	// StartSession begins a new logical batch of sends and returns its id.
	// Starting while another session is active is allowed; the previous
	// session row is left un-finalized and a warning is written to the
	// system log.
	StartSession(ctx context.Context, channel domain.Channel, template string) string

	// EndSession finalizes the active session and returns its summary.
	// Returns nil when no session is active. When the store is degraded a
	// best-effort in-memory summary with zero counts is returned.
	EndSession(ctx context.Context) *domain.SessionSummary

	// LogMessage persists one send attempt and returns its log id. The id
	// is always non-empty, even when storage is unavailable; callers must
	// not depend on it resolving to a real row.
	LogMessage(ctx context.Context, rec domain.MessageRecord, contentPreview string) string

	// UpdateMessageStatus applies a partial update to a logged message.
	// An unknown id is logged as a warning and ignored.
	UpdateMessageStatus(ctx context.Context, logID string, patch domain.StatusPatch)

	// GetMessageHistory returns log entries for the last N days, newest
	// first, optionally filtered by channel and status.
	GetMessageHistory(ctx context.Context, days int, channel domain.Channel, status domain.MessageStatus) ([]domain.MessageLogEntry, error)

	// GetSessionHistory returns session summaries for the last N days,
	// newest first.
	GetSessionHistory(ctx context.Context, days int) ([]domain.SessionSummary, error)

	// GenerateAnalyticsReport aggregates activity over the last N days.
	// Repeated calls on the same day hit the cache unless forceRefresh is
	// set or the cached report has aged past the freshness window.
	GenerateAnalyticsReport(ctx context.Context, days int, forceRefresh bool) (*domain.AnalyticsReport, error)

	// ExportData renders messages and sessions for the last N days as
	// "json" or "csv". An unsupported format is a caller error.
	ExportData(ctx context.Context, format string, days int) ([]byte, error)

	// DeleteOldData removes log rows, session rows and cached reports
	// strictly older than N days for the current user and returns the
	// total number of rows removed.
	DeleteOldData(ctx context.Context, days int) int64

	// GetQuickStats returns today's activity snapshot, zeroed when the
	// store is degraded.
	GetQuickStats(ctx context.Context) *domain.QuickStats

	// GetDatabaseHealth returns a diagnostic snapshot; it never fails,
	// partial information is reported with the issues it hit.
	GetDatabaseHealth(ctx context.Context) *domain.HealthReport

	// RepairDatabase attempts to recover an unavailable store and reports
	// whether integrity was restored.
	RepairDatabase(ctx context.Context) bool

	// BackupDatabase writes a live engine-level copy of the database to
	// path (or a timestamped sibling of the database file when empty) and
	// returns the path written.
	BackupDatabase(ctx context.Context, path string) (string, error)

	// Available reports whether the store is currently out of degraded
	// mode.
	Available() bool

	// Close releases the underlying database.
	Close() error
}
