package domain

import "time"

// SessionSummary is one row per logical batch of sends. Counters are
// recomputed from the associated message rows on every status change and
// frozen when the session ends. The invariant
// TotalMessages == Successful + Failed + Pending + Cancelled holds after
// every recomputation.
type SessionSummary struct {
	SessionID          string         `json:"session_id"`
	UserID             string         `json:"user_id"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            *time.Time     `json:"end_time,omitempty"`
	Channel            Channel        `json:"channel"`
	TemplateUsed       string         `json:"template_used,omitempty"`
	TotalMessages      int            `json:"total_messages"`
	SuccessfulMessages int            `json:"successful_messages"`
	FailedMessages     int            `json:"failed_messages"`
	PendingMessages    int            `json:"pending_messages"`
	CancelledMessages  int            `json:"cancelled_messages"`
	SuccessRate        float64        `json:"success_rate"`
	ChannelsUsed       []string       `json:"channels_used,omitempty"`
	TemplatesUsed      []string       `json:"templates_used,omitempty"`
	Metadata           map[string]any `json:"session_metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
