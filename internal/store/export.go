package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sendvault/internal/domain"
)

// exportPayload is the JSON export envelope.
type exportPayload struct {
	ExportDate   time.Time                `json:"export_date"`
	UserID       string                   `json:"user_id"`
	DaysExported int                      `json:"days_exported"`
	Messages     []domain.MessageLogEntry `json:"messages"`
	Sessions     []domain.SessionSummary  `json:"sessions"`
}

// ExportData renders messages and sessions for the last N days as "json"
// or "csv". An unsupported format is the one store error that is a caller
// mistake and therefore propagates.
func (s *SQLiteStore) ExportData(ctx context.Context, format string, days int) ([]byte, error) {
	if format != "json" && format != "csv" {
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		messages []domain.MessageLogEntry
		sessions []domain.SessionSummary
	)
	if s.availableLocked() {
		var err error
		messages, err = s.messageHistoryLocked(ctx, days, "", "")
		if err != nil {
			return nil, fmt.Errorf("export messages: %w", err)
		}
		sessions, err = s.sessionHistoryLocked(ctx, days)
		if err != nil {
			return nil, fmt.Errorf("export sessions: %w", err)
		}
	}

	if format == "json" {
		payload := exportPayload{
			ExportDate:   time.Now(),
			UserID:       s.userID,
			DaysExported: days,
			Messages:     messages,
			Sessions:     sessions,
		}
		if payload.Messages == nil {
			payload.Messages = []domain.MessageLogEntry{}
		}
		if payload.Sessions == nil {
			payload.Sessions = []domain.SessionSummary{}
		}
		return json.MarshalIndent(payload, "", "  ")
	}

	return exportCSV(messages, sessions)
}

var messageCSVHeader = []string{
	"id", "timestamp", "session_id", "channel", "template_name",
	"recipient_email", "recipient_name", "recipient_company",
	"message_status", "delivery_status", "error_message", "content_preview",
}

var sessionCSVHeader = []string{
	"session_id", "start_time", "end_time", "channel", "template_used",
	"total_messages", "successful_messages", "failed_messages",
	"pending_messages", "cancelled_messages", "success_rate",
}

// exportCSV writes the message table, a blank separator row, then the
// session table, each with a fixed header.
func exportCSV(messages []domain.MessageLogEntry, sessions []domain.SessionSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(messageCSVHeader); err != nil {
		return nil, fmt.Errorf("write message header: %w", err)
	}
	for _, m := range messages {
		record := []string{
			m.ID, m.Timestamp.Format(time.RFC3339), m.SessionID, string(m.Channel),
			m.TemplateName, m.RecipientEmail, m.RecipientName, m.RecipientCompany,
			string(m.Status), m.DeliveryStatus, m.ErrorMessage, m.ContentPreview,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write message row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush message rows: %w", err)
	}

	buf.WriteString("\n")

	w = csv.NewWriter(&buf)
	if err := w.Write(sessionCSVHeader); err != nil {
		return nil, fmt.Errorf("write session header: %w", err)
	}
	for _, sess := range sessions {
		endTime := ""
		if sess.EndTime != nil {
			endTime = sess.EndTime.Format(time.RFC3339)
		}
		record := []string{
			sess.SessionID, sess.StartTime.Format(time.RFC3339), endTime,
			string(sess.Channel), sess.TemplateUsed,
			strconv.Itoa(sess.TotalMessages), strconv.Itoa(sess.SuccessfulMessages),
			strconv.Itoa(sess.FailedMessages), strconv.Itoa(sess.PendingMessages),
			strconv.Itoa(sess.CancelledMessages),
			strconv.FormatFloat(sess.SuccessRate, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write session row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush session rows: %w", err)
	}

	return buf.Bytes(), nil
}
