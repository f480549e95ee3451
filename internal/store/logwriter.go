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

// LogMessage persists one send attempt and returns its log id. When no
// session is active one is synthesized from the record's channel so the
// entry is never orphaned; the self-healing is surfaced as a warning in
// the system log. The id is always non-empty, even in degraded mode.
func (s *SQLiteStore) LogMessage(ctx context.Context, rec domain.MessageRecord, contentPreview string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSessionID == "" {
		sessionID := s.startSessionLocked(ctx, rec.Channel, "auto")
		slog.Warn("No active session, synthesized one", "session_id", sessionID)
		s.systemLogLocked(ctx, "warning", "logger", "session_autocreated",
			map[string]any{"channel": string(rec.Channel)})
	}

	logID := uuid.NewString()
	if !s.availableLocked() {
		return logID
	}

	status := rec.Status
	if status == "" {
		status = domain.StatusPending
	}

	var metadataJSON any
	if len(rec.Metadata) > 0 {
		if b, err := json.Marshal(rec.Metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	now := time.Now()
	_, err := s.execLocked(ctx, `
		INSERT INTO message_logs (
			id, timestamp, user_id, session_id, channel,
			template_id, template_name,
			recipient_email, recipient_name, recipient_phone, recipient_company,
			message_status, content_preview, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		logID, now.Unix(), s.userID, s.currentSessionID, string(rec.Channel),
		rec.TemplateID, rec.TemplateName,
		rec.RecipientEmail, rec.RecipientName, rec.RecipientPhone, rec.RecipientCompany,
		string(status), contentPreview, metadataJSON,
		now.Unix(), now.Unix())
	if err != nil {
		s.markUnavailableLocked("log message", err)
		s.systemLogLocked(ctx, "error", "logger", "log_write_failed",
			map[string]any{"error": err.Error()})
		return logID
	}
	if s.metrics != nil {
		s.metrics.MessagesLogged.Inc()
	}

	if err := s.recomputeSessionLocked(ctx, s.currentSessionID); err != nil {
		slog.Warn("Session counter recompute failed", "session_id", s.currentSessionID, "error", err)
	}

	s.maybeMaintainLocked(ctx)
	return logID
}

// UpdateMessageStatus applies a partial update to a logged message. Only
// the fields set in the patch are written; status-specific timestamps are
// stamped alongside. A missing id is a warning, not an error, since the
// row may never have been written while the store was degraded.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, logID string, patch domain.StatusPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableLocked() {
		return
	}

	now := time.Now().Unix()
	set := "message_status = ?"
	args := []any{string(patch.Status)}

	if patch.Status == domain.StatusSent {
		set += ", sent_at = ?"
		args = append(args, now)
	}
	if patch.MessageID != nil {
		set += ", message_id = ?"
		args = append(args, *patch.MessageID)
	}
	if patch.DeliveryStatus != nil {
		set += ", delivery_status = ?"
		args = append(args, *patch.DeliveryStatus)
		switch *patch.DeliveryStatus {
		case domain.DeliveryDelivered:
			set += ", delivered_at = ?"
			args = append(args, now)
		case domain.DeliveryRead:
			set += ", read_at = ?"
			args = append(args, now)
		}
	}
	if patch.ErrorMessage != nil {
		set += ", error_message = ?"
		args = append(args, *patch.ErrorMessage)
	}
	args = append(args, logID, s.userID)

	result, err := s.execLocked(ctx,
		`UPDATE message_logs SET `+set+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		s.markUnavailableLocked("update message status", err)
		return
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Warn("Rows affected unavailable", "log_id", logID, "error", err)
		return
	}
	if rows == 0 {
		slog.Warn("Status update for unknown log id", "log_id", logID, "status", patch.Status)
		s.systemLogLocked(ctx, "warning", "logger", "status_update_unknown_id",
			map[string]any{"log_id": logID, "status": string(patch.Status)})
		return
	}
	if s.metrics != nil {
		s.metrics.StatusUpdates.Inc()
	}

	var sessionID string
	err = s.db.QueryRowContext(ctx,
		`SELECT session_id FROM message_logs WHERE id = ?`, logID).Scan(&sessionID)
	if err == nil {
		if err := s.recomputeSessionLocked(ctx, sessionID); err != nil {
			slog.Warn("Session counter recompute failed", "session_id", sessionID, "error", err)
		}
	}

	s.maybeMaintainLocked(ctx)
}

// GetMessageHistory returns log entries for the last N days, newest first.
// Channel and status filters are optional; pass the zero value to skip.
func (s *SQLiteStore) GetMessageHistory(ctx context.Context, days int, channel domain.Channel, status domain.MessageStatus) ([]domain.MessageLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageHistoryLocked(ctx, days, channel, status)
}

func (s *SQLiteStore) messageHistoryLocked(ctx context.Context, days int, channel domain.Channel, status domain.MessageStatus) ([]domain.MessageLogEntry, error) {
	if !s.availableLocked() {
		return nil, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	query := `
		SELECT id, timestamp, user_id, session_id, channel,
		       template_id, template_name,
		       recipient_email, recipient_name, recipient_phone, recipient_company,
		       message_status, message_id, delivery_status, error_message,
		       sent_at, delivered_at, read_at,
		       response_received, content_preview, metadata,
		       created_at, updated_at
		FROM message_logs
		WHERE user_id = ? AND timestamp >= ?`
	args := []any{s.userID, cutoff}

	if channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(channel))
	}
	if status != "" {
		query += ` AND message_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query message history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.MessageLogEntry
	for rows.Next() {
		entry, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message history: %w", err)
	}
	return entries, nil
}

func scanMessageRow(row rowScanner) (*domain.MessageLogEntry, error) {
	var (
		entry                                   domain.MessageLogEntry
		channel                                 string
		templateID, templateName                sql.NullString
		recipientEmail, recipientName           sql.NullString
		recipientPhone, recipientCompany        sql.NullString
		messageID, deliveryStatus, errorMessage sql.NullString
		contentPreview, metadataJSON            sql.NullString
		timestamp, createdAt                    int64
		sentAt, deliveredAt, readAt, updatedAt  sql.NullInt64
		responseReceived                        int
	)

	err := row.Scan(
		&entry.ID, &timestamp, &entry.UserID, &entry.SessionID, &channel,
		&templateID, &templateName,
		&recipientEmail, &recipientName, &recipientPhone, &recipientCompany,
		&entry.Status, &messageID, &deliveryStatus, &errorMessage,
		&sentAt, &deliveredAt, &readAt,
		&responseReceived, &contentPreview, &metadataJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Timestamp = time.Unix(timestamp, 0)
	entry.CreatedAt = time.Unix(createdAt, 0)
	entry.Channel = domain.Channel(channel)
	entry.TemplateID = templateID.String
	entry.TemplateName = templateName.String
	entry.RecipientEmail = recipientEmail.String
	entry.RecipientName = recipientName.String
	entry.RecipientPhone = recipientPhone.String
	entry.RecipientCompany = recipientCompany.String
	entry.MessageID = messageID.String
	entry.DeliveryStatus = deliveryStatus.String
	entry.ErrorMessage = errorMessage.String
	entry.ContentPreview = contentPreview.String
	entry.ResponseReceived = responseReceived != 0

	if sentAt.Valid {
		t := time.Unix(sentAt.Int64, 0)
		entry.SentAt = &t
	}
	if deliveredAt.Valid {
		t := time.Unix(deliveredAt.Int64, 0)
		entry.DeliveredAt = &t
	}
	if readAt.Valid {
		t := time.Unix(readAt.Int64, 0)
		entry.ReadAt = &t
	}
	if updatedAt.Valid {
		entry.UpdatedAt = time.Unix(updatedAt.Int64, 0)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata)
	}

	return &entry, nil
}

// GetQuickStats returns today's activity snapshot. Degraded mode returns
// zeroed counts rather than failing.
func (s *SQLiteStore) GetQuickStats(ctx context.Context) *domain.QuickStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.QuickStats{ActiveSessionID: s.currentSessionID}
	if !s.availableLocked() {
		return stats
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Unix()

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(message_status = 'sent'), 0),
			COALESCE(SUM(message_status = 'failed'), 0)
		FROM message_logs WHERE user_id = ? AND timestamp >= ?`,
		s.userID, midnight).
		Scan(&stats.TotalToday, &stats.SentToday, &stats.FailedToday)
	if err != nil {
		slog.Warn("Quick stats query failed", "error", err)
		return stats
	}

	stats.SuccessRateToday = roundRate(stats.SentToday, stats.TotalToday)

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_logs WHERE user_id = ?`, s.userID).
		Scan(&stats.TotalAllTime); err != nil {
		slog.Warn("All-time count query failed", "error", err)
	}

	return stats
}
