package store

import (
	"context"
	"testing"

	"sendvault/internal/domain"
)

func TestSessionCountersMatchLoggedOutcomes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	sessionID := s.StartSession(ctx, domain.ChannelEmail, "intro")
	if sessionID == "" {
		t.Fatal("expected non-empty session id")
	}

	var logIDs []string
	for i := 0; i < 3; i++ {
		id := s.LogMessage(ctx, domain.MessageRecord{
			Channel:        domain.ChannelEmail,
			TemplateName:   "intro",
			RecipientEmail: "someone@example.com",
		}, "Hello there")
		if id == "" {
			t.Fatal("expected non-empty log id")
		}
		logIDs = append(logIDs, id)
	}

	s.UpdateMessageStatus(ctx, logIDs[0], domain.StatusPatch{Status: domain.StatusSent})
	s.UpdateMessageStatus(ctx, logIDs[1], domain.StatusPatch{Status: domain.StatusSent})
	s.UpdateMessageStatus(ctx, logIDs[2], domain.StatusPatch{
		Status:       domain.StatusFailed,
		ErrorMessage: strPtr("smtp timeout"),
	})

	summary := s.EndSession(ctx)
	if summary == nil {
		t.Fatal("expected a session summary")
	}
	if summary.SessionID != sessionID {
		t.Fatalf("summary for wrong session: got %s want %s", summary.SessionID, sessionID)
	}
	if summary.TotalMessages != 3 {
		t.Fatalf("total = %d, want 3", summary.TotalMessages)
	}
	if summary.SuccessfulMessages != 2 {
		t.Fatalf("successful = %d, want 2", summary.SuccessfulMessages)
	}
	if summary.FailedMessages != 1 {
		t.Fatalf("failed = %d, want 1", summary.FailedMessages)
	}
	if summary.SuccessRate != 66.67 {
		t.Fatalf("success_rate = %v, want 66.67", summary.SuccessRate)
	}
	if summary.EndTime == nil {
		t.Fatal("expected end_time to be set")
	}

	sum := summary.SuccessfulMessages + summary.FailedMessages +
		summary.PendingMessages + summary.CancelledMessages
	if summary.TotalMessages != sum {
		t.Fatalf("counter invariant broken: total %d != sum %d", summary.TotalMessages, sum)
	}
}

func TestCounterInvariantHoldsWithMixedStatuses(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.StartSession(ctx, domain.ChannelWhatsApp, "promo")

	statuses := []domain.MessageStatus{
		domain.StatusSent, domain.StatusFailed, domain.StatusCancelled,
		domain.StatusSending, domain.StatusSent, "", // empty = stays pending
	}
	for _, status := range statuses {
		id := s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelWhatsApp}, "")
		if status != "" {
			s.UpdateMessageStatus(ctx, id, domain.StatusPatch{Status: status})
		}
	}

	summary := s.EndSession(ctx)
	if summary == nil {
		t.Fatal("expected a session summary")
	}
	if summary.TotalMessages != len(statuses) {
		t.Fatalf("total = %d, want %d", summary.TotalMessages, len(statuses))
	}
	sum := summary.SuccessfulMessages + summary.FailedMessages +
		summary.PendingMessages + summary.CancelledMessages
	if summary.TotalMessages != sum {
		t.Fatalf("counter invariant broken: total %d != sum %d", summary.TotalMessages, sum)
	}
	// sending counts toward the pending bucket.
	if summary.PendingMessages != 2 {
		t.Fatalf("pending = %d, want 2", summary.PendingMessages)
	}
}

func TestLogMessageSynthesizesSession(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id := s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelEmail}, "preview")
	if id == "" {
		t.Fatal("expected non-empty log id")
	}

	stats := s.GetQuickStats(ctx)
	if stats.ActiveSessionID == "" {
		t.Fatal("expected an auto-created active session")
	}

	summary := s.EndSession(ctx)
	if summary == nil {
		t.Fatal("expected a summary for the synthesized session")
	}
	if summary.TemplateUsed != "auto" {
		t.Fatalf("template = %q, want auto placeholder", summary.TemplateUsed)
	}
	if summary.TotalMessages != 1 {
		t.Fatalf("total = %d, want 1", summary.TotalMessages)
	}
}

func TestUpdateUnknownLogIDIsIgnored(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// Must not panic, error, or create rows.
	s.UpdateMessageStatus(ctx, "no-such-id", domain.StatusPatch{Status: domain.StatusSent})

	entries, err := s.GetMessageHistory(ctx, 1, "", "")
	if err != nil {
		t.Fatalf("GetMessageHistory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestStatusTimestampsAreStamped(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.StartSession(ctx, domain.ChannelEmail, "intro")
	id := s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelEmail}, "")

	s.UpdateMessageStatus(ctx, id, domain.StatusPatch{
		Status:    domain.StatusSent,
		MessageID: strPtr("ext-123"),
	})
	s.UpdateMessageStatus(ctx, id, domain.StatusPatch{
		Status:         domain.StatusSent,
		DeliveryStatus: strPtr(domain.DeliveryDelivered),
	})

	entries, err := s.GetMessageHistory(ctx, 1, "", "")
	if err != nil {
		t.Fatalf("GetMessageHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.SentAt == nil {
		t.Fatal("expected sent_at to be stamped")
	}
	if entry.DeliveredAt == nil {
		t.Fatal("expected delivered_at to be stamped")
	}
	if entry.MessageID != "ext-123" {
		t.Fatalf("message_id = %q, want ext-123", entry.MessageID)
	}
	if entry.DeliveryStatus != domain.DeliveryDelivered {
		t.Fatalf("delivery_status = %q, want delivered", entry.DeliveryStatus)
	}
}

func TestHistoryFilters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	s.StartSession(ctx, domain.ChannelEmail, "intro")
	emailID := s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelEmail}, "")
	s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelWhatsApp}, "")
	s.UpdateMessageStatus(ctx, emailID, domain.StatusPatch{Status: domain.StatusSent})

	byChannel, err := s.GetMessageHistory(ctx, 1, domain.ChannelEmail, "")
	if err != nil {
		t.Fatalf("GetMessageHistory failed: %v", err)
	}
	if len(byChannel) != 1 || byChannel[0].Channel != domain.ChannelEmail {
		t.Fatalf("channel filter returned %d entries", len(byChannel))
	}

	byStatus, err := s.GetMessageHistory(ctx, 1, "", domain.StatusSent)
	if err != nil {
		t.Fatalf("GetMessageHistory failed: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != emailID {
		t.Fatalf("status filter returned %d entries", len(byStatus))
	}
}

func TestDegradedModeIsSilent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	forceDegraded(s)

	id := s.LogMessage(ctx, domain.MessageRecord{Channel: domain.ChannelEmail}, "preview")
	if id == "" {
		t.Fatal("degraded LogMessage must still return an id")
	}

	s.UpdateMessageStatus(ctx, id, domain.StatusPatch{Status: domain.StatusSent})

	stats := s.GetQuickStats(ctx)
	if stats.TotalToday != 0 || stats.SentToday != 0 || stats.TotalAllTime != 0 {
		t.Fatalf("degraded quick stats must be zeroed: %+v", stats)
	}

	summary := s.EndSession(ctx)
	if summary == nil {
		t.Fatal("degraded EndSession must return a best-effort summary")
	}
	if summary.TotalMessages != 0 {
		t.Fatalf("degraded summary counts must be zero, got %d", summary.TotalMessages)
	}

	if deleted := s.DeleteOldData(ctx, 30); deleted != 0 {
		t.Fatalf("degraded DeleteOldData must remove nothing, removed %d", deleted)
	}

	health := s.GetDatabaseHealth(ctx)
	if health.Available {
		t.Fatal("health must report unavailable")
	}
}
