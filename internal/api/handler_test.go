package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"sendvault/internal/domain"
	"sendvault/internal/metrics"
	"sendvault/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Metrics register on the default Prometheus registry, so the test binary
// holds a single shared instance.
var testMetrics = metrics.New()

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()

	s := store.New(filepath.Join(t.TempDir(), "activity.db"), "tester")
	require.True(t, s.Available())
	t.Cleanup(func() { _ = s.Close() })

	r := chi.NewRouter()
	NewHandler(s, testMetrics).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func seedActivity(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	s.StartSession(ctx, domain.ChannelEmail, "intro")
	id := s.LogMessage(ctx, domain.MessageRecord{
		Channel:        domain.ChannelEmail,
		TemplateName:   "intro",
		RecipientEmail: "lead@acme.test",
	}, "Hello")
	s.UpdateMessageStatus(ctx, id, domain.StatusPatch{Status: domain.StatusSent})
	s.EndSession(ctx)
}

func TestHistoryEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	var entries []domain.MessageLogEntry
	resp := getJSON(t, srv.URL+"/api/history?days=7", &entries)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusSent, entries[0].Status)

	// Filters pass through to the store.
	entries = nil
	getJSON(t, srv.URL+"/api/history?days=7&channel=whatsapp", &entries)
	assert.Empty(t, entries)
}

func TestHistoryEndpointReturnsEmptyArray(t *testing.T) {
	srv, _ := newTestServer(t)

	// An empty history must encode as [], not null.
	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestSessionsEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	var sessions []domain.SessionSummary
	resp := getJSON(t, srv.URL+"/api/sessions?days=7", &sessions)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].TotalMessages)
}

func TestReportEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	var report domain.AnalyticsReport
	resp := getJSON(t, srv.URL+"/api/report?days=30", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, report.TotalMessages)
	assert.NotEmpty(t, report.ReportID)
}

func TestExportEndpointCSV(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	resp, err := http.Get(srv.URL + "/api/export?format=csv&days=30")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "activity_export.csv")
}

func TestExportEndpointRejectsUnknownFormat(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/api/export?format=xml", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unsupported export format")
}

func TestStatsEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	var stats domain.QuickStats
	resp := getJSON(t, srv.URL+"/api/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, stats.TotalToday)
	assert.Equal(t, 1, stats.SentToday)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var health domain.HealthReport
	resp := getJSON(t, srv.URL+"/api/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, health.Available)
	assert.NotZero(t, health.SchemaVersion)
}

func TestRepairEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]bool
	resp := postJSON(t, srv.URL+"/api/repair", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body["repaired"])
}

func TestBackupEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	target := filepath.Join(t.TempDir(), "api-backup.db")
	var body map[string]string
	resp := postJSON(t, srv.URL+"/api/backup?path="+target, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, target, body["path"])
}

func TestCleanupEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	seedActivity(t, s)

	var body map[string]int64
	resp := postJSON(t, srv.URL+"/api/cleanup?days=30", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, body["rows_deleted"], "fresh rows are inside the window")
}
