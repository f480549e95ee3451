// Package domain defines the data model for the message-activity store.
package domain

import "time"

// Channel identifies the delivery channel a message was sent through.
type Channel string

// Supported delivery channels.
const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// MessageStatus tracks a send attempt through its lifecycle.
type MessageStatus string

// Message statuses. A message starts as pending and moves forward as the
// sender reports progress; sending counts toward the pending bucket in
// session summaries.
const (
	StatusPending   MessageStatus = "pending"
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// Delivery statuses reported by the channel after a successful send.
const (
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
)

// MessageRecord is the input produced by the email/WhatsApp senders for
// each send attempt. Everything except Channel is optional.
type MessageRecord struct {
	Channel          Channel
	TemplateID       string
	TemplateName     string
	RecipientEmail   string
	RecipientName    string
	RecipientPhone   string
	RecipientCompany string
	Status           MessageStatus
	Metadata         map[string]any
}

// MessageLogEntry is one persisted row per send attempt.
type MessageLogEntry struct {
	ID               string         `json:"id"`
	Timestamp        time.Time      `json:"timestamp"`
	UserID           string         `json:"user_id"`
	SessionID        string         `json:"session_id"`
	Channel          Channel        `json:"channel"`
	TemplateID       string         `json:"template_id,omitempty"`
	TemplateName     string         `json:"template_name,omitempty"`
	RecipientEmail   string         `json:"recipient_email,omitempty"`
	RecipientName    string         `json:"recipient_name,omitempty"`
	RecipientPhone   string         `json:"recipient_phone,omitempty"`
	RecipientCompany string         `json:"recipient_company,omitempty"`
	Status           MessageStatus  `json:"message_status"`
	MessageID        string         `json:"message_id,omitempty"`
	DeliveryStatus   string         `json:"delivery_status,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	SentAt           *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty"`
	ReadAt           *time.Time     `json:"read_at,omitempty"`
	ResponseReceived bool           `json:"response_received"`
	ContentPreview   string         `json:"content_preview,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// StatusPatch is a typed partial update for a logged message. Only non-nil
// optional fields are written; Status is always applied.
type StatusPatch struct {
	Status         MessageStatus
	MessageID      *string
	DeliveryStatus *string
	ErrorMessage   *string
}
