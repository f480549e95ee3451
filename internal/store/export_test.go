package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"sendvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONExportRoundTrips(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.StartSession(ctx, domain.ChannelEmail, "intro")
	logID := s.LogMessage(ctx, domain.MessageRecord{
		Channel:          domain.ChannelEmail,
		TemplateID:       "tpl-1",
		TemplateName:     "intro",
		RecipientEmail:   "lead@acme.test",
		RecipientName:    "Lead One",
		RecipientCompany: "Acme",
		Metadata:         map[string]any{"campaign": "q3"},
	}, "Hi Lead,")
	s.UpdateMessageStatus(ctx, logID, domain.StatusPatch{
		Status:    domain.StatusSent,
		MessageID: strPtr("ext-42"),
	})
	s.EndSession(ctx)

	data, err := s.ExportData(ctx, "json", 30)
	require.NoError(t, err)

	var payload exportPayload
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "tester", payload.UserID)
	assert.Equal(t, 30, payload.DaysExported)
	require.Len(t, payload.Messages, 1)
	require.Len(t, payload.Sessions, 1)

	msg := payload.Messages[0]
	assert.Equal(t, logID, msg.ID)
	assert.Equal(t, domain.ChannelEmail, msg.Channel)
	assert.Equal(t, "tpl-1", msg.TemplateID)
	assert.Equal(t, "intro", msg.TemplateName)
	assert.Equal(t, "lead@acme.test", msg.RecipientEmail)
	assert.Equal(t, "Lead One", msg.RecipientName)
	assert.Equal(t, "Acme", msg.RecipientCompany)
	assert.Equal(t, domain.StatusSent, msg.Status)
	assert.Equal(t, "ext-42", msg.MessageID)
	assert.Equal(t, "Hi Lead,", msg.ContentPreview)
	assert.Equal(t, "q3", msg.Metadata["campaign"])
	assert.NotNil(t, msg.SentAt)

	sess := payload.Sessions[0]
	assert.Equal(t, 1, sess.TotalMessages)
	assert.Equal(t, 1, sess.SuccessfulMessages)
	assert.NotNil(t, sess.EndTime)
}

func TestCSVExportShape(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.StartSession(ctx, domain.ChannelWhatsApp, "promo")
	s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelWhatsApp, RecipientPhone: "+10000000000"}, "")
	s.EndSession(ctx)

	data, err := s.ExportData(ctx, "csv", 30)
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "id,timestamp,session_id,channel"), "message header first")
	assert.Contains(t, text, "\n\nsession_id,start_time,end_time", "blank row then session header")
	assert.Contains(t, text, "whatsapp")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.ExportData(context.Background(), "xml", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestDegradedExportIsEmptyButValid(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	forceDegraded(s)

	data, err := s.ExportData(context.Background(), "json", 7)
	require.NoError(t, err)

	var payload exportPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Empty(t, payload.Messages)
	assert.Empty(t, payload.Sessions)
}
