package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sendvault/internal/domain"
	"github.com/google/uuid"
)

// StartSession begins a new logical batch of sends and returns its id.
func (s *SQLiteStore) StartSession(ctx context.Context, channel domain.Channel, template string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startSessionLocked(ctx, channel, template)
}

func (s *SQLiteStore) startSessionLocked(ctx context.Context, channel domain.Channel, template string) string {
	now := time.Now()
	sessionID := fmt.Sprintf("%s_%s_%s_%s",
		s.userID, channel, now.Format("20060102150405"), uuid.NewString()[:8])

	if s.currentSessionID != "" {
		// Starting over an open session is allowed so callers are never
		// blocked; the previous row stays un-finalized but the event is
		// made visible to operators.
		slog.Warn("Starting session while another is active",
			"previous", s.currentSessionID, "new", sessionID)
		s.systemLogLocked(ctx, "warning", "session", "session_superseded",
			map[string]any{"previous": s.currentSessionID, "new": sessionID})
	}

	if s.availableLocked() {
		channelsJSON, _ := json.Marshal([]string{string(channel)})
		templatesJSON, _ := json.Marshal([]string{template})

		_, err := s.execLocked(ctx, `
			INSERT INTO session_summaries (
				session_id, user_id, start_time, channel, template_used,
				channels_used, templates_used, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, s.userID, now.Unix(), string(channel), template,
			string(channelsJSON), string(templatesJSON), now.Unix(), now.Unix())
		if err != nil {
			s.markUnavailableLocked("start session", err)
		} else {
			s.systemLogLocked(ctx, "info", "session", "session_started",
				map[string]any{"channel": string(channel), "template": template})
		}
	}

	s.currentSessionID = sessionID
	s.sessionStart = now
	s.sessionChannel = channel
	s.sessionTemplate = template
	return sessionID
}

// EndSession finalizes the active session and returns its summary, or nil
// when no session is active.
func (s *SQLiteStore) EndSession(ctx context.Context) *domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSessionID == "" {
		return nil
	}

	sessionID := s.currentSessionID
	now := time.Now()
	s.currentSessionID = ""

	if !s.availableLocked() {
		// Best-effort in-memory summary; the row (if any) stays open.
		end := now
		return &domain.SessionSummary{
			SessionID:    sessionID,
			UserID:       s.userID,
			StartTime:    s.sessionStart,
			EndTime:      &end,
			Channel:      s.sessionChannel,
			TemplateUsed: s.sessionTemplate,
		}
	}

	// Count and finalize in one transaction so a message logged by another
	// thread cannot fall between the recount and the summary write.
	if err := s.finalizeSessionTx(ctx, sessionID, now); err != nil {
		s.markUnavailableLocked("end session", err)
		end := now
		return &domain.SessionSummary{
			SessionID:    sessionID,
			UserID:       s.userID,
			StartTime:    s.sessionStart,
			EndTime:      &end,
			Channel:      s.sessionChannel,
			TemplateUsed: s.sessionTemplate,
		}
	}

	s.systemLogLocked(ctx, "info", "session", "session_ended", nil)

	summary, err := s.getSessionLocked(ctx, sessionID)
	if err != nil {
		slog.Warn("Failed to read finalized session", "session_id", sessionID, "error", err)
		return nil
	}
	return summary
}

func (s *SQLiteStore) finalizeSessionTx(ctx context.Context, sessionID string, end time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := recomputeSessionCounters(ctx, tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE session_summaries SET end_time = ? WHERE session_id = ?`,
		end.Unix(), sessionID); err != nil {
		return fmt.Errorf("set end_time: %w", err)
	}

	return tx.Commit()
}

// recomputeSessionCounters rebuilds a session's counters from its
// persisted log rows. The pending bucket covers both queued and in-flight
// messages so total always equals the sum of the four buckets.
func recomputeSessionCounters(ctx context.Context, tx *sql.Tx, sessionID string) error {
	var total, successful, failed, pending, cancelled int
	err := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(message_status = 'sent'), 0),
			COALESCE(SUM(message_status = 'failed'), 0),
			COALESCE(SUM(message_status IN ('pending', 'sending')), 0),
			COALESCE(SUM(message_status = 'cancelled'), 0)
		FROM message_logs WHERE session_id = ?`, sessionID).
		Scan(&total, &successful, &failed, &pending, &cancelled)
	if err != nil {
		return fmt.Errorf("count session messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE session_summaries SET
			total_messages = ?,
			successful_messages = ?,
			failed_messages = ?,
			pending_messages = ?,
			cancelled_messages = ?,
			success_rate = ?
		WHERE session_id = ?`,
		total, successful, failed, pending, cancelled,
		roundRate(successful, total), sessionID)
	if err != nil {
		return fmt.Errorf("update session counters: %w", err)
	}
	return nil
}

// recomputeSessionLocked runs the counter recomputation in its own
// transaction. Callers must hold mu.
func (s *SQLiteStore) recomputeSessionLocked(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recompute: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := recomputeSessionCounters(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) getSessionLocked(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, start_time, end_time, channel, template_used,
		       total_messages, successful_messages, failed_messages,
		       pending_messages, cancelled_messages, success_rate,
		       channels_used, templates_used, session_metadata,
		       created_at, updated_at
		FROM session_summaries WHERE session_id = ?`, sessionID)

	summary, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return summary, err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*domain.SessionSummary, error) {
	var (
		summary                     domain.SessionSummary
		channel                     sql.NullString
		templateUsed                sql.NullString
		startTime, createdAt        int64
		endTime, updatedAt          sql.NullInt64
		channelsJSON, templatesJSON sql.NullString
		metadataJSON                sql.NullString
	)

	err := row.Scan(
		&summary.SessionID, &summary.UserID, &startTime, &endTime,
		&channel, &templateUsed,
		&summary.TotalMessages, &summary.SuccessfulMessages, &summary.FailedMessages,
		&summary.PendingMessages, &summary.CancelledMessages, &summary.SuccessRate,
		&channelsJSON, &templatesJSON, &metadataJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	summary.StartTime = time.Unix(startTime, 0)
	summary.CreatedAt = time.Unix(createdAt, 0)
	if endTime.Valid {
		t := time.Unix(endTime.Int64, 0)
		summary.EndTime = &t
	}
	if updatedAt.Valid {
		summary.UpdatedAt = time.Unix(updatedAt.Int64, 0)
	}
	summary.Channel = domain.Channel(channel.String)
	summary.TemplateUsed = templateUsed.String

	if channelsJSON.Valid && channelsJSON.String != "" {
		_ = json.Unmarshal([]byte(channelsJSON.String), &summary.ChannelsUsed)
	}
	if templatesJSON.Valid && templatesJSON.String != "" {
		_ = json.Unmarshal([]byte(templatesJSON.String), &summary.TemplatesUsed)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &summary.Metadata)
	}

	return &summary, nil
}

// GetSessionHistory returns session summaries for the last N days, newest
// first.
func (s *SQLiteStore) GetSessionHistory(ctx context.Context, days int) ([]domain.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionHistoryLocked(ctx, days)
}

func (s *SQLiteStore) sessionHistoryLocked(ctx context.Context, days int) ([]domain.SessionSummary, error) {
	if !s.availableLocked() {
		return nil, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, start_time, end_time, channel, template_used,
		       total_messages, successful_messages, failed_messages,
		       pending_messages, cancelled_messages, success_rate,
		       channels_used, templates_used, session_metadata,
		       created_at, updated_at
		FROM session_summaries
		WHERE user_id = ? AND start_time >= ?
		ORDER BY start_time DESC`, s.userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []domain.SessionSummary
	for rows.Next() {
		summary, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session history: %w", err)
	}
	return sessions, nil
}
