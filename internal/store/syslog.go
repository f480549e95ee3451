package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// systemLogLocked writes an audit event about the store's own operation
// into system_logs. Strictly best-effort: a failure here must never
// propagate, the table is diagnostics only. Callers must hold mu.
func (s *SQLiteStore) systemLogLocked(ctx context.Context, level, component, message string, details map[string]any) {
	if s.db == nil {
		return
	}

	var detailsJSON any
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}

	var sessionID any
	if s.currentSessionID != "" {
		sessionID = s.currentSessionID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_logs (timestamp, level, component, message, details, user_id, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), level, component, message, detailsJSON, s.userID, sessionID)
	if err != nil {
		slog.Debug("System log write failed", "component", component, "error", err)
	}
}
