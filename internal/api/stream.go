package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"sendvault/internal/store"
	"github.com/coder/websocket"
)

const statsPushInterval = 2 * time.Second

// StatsStreamHandler pushes quick-stats snapshots over a WebSocket so
// dashboards can watch send progress without polling.
type StatsStreamHandler struct {
	store         store.Store
	allowedOrigin string
}

// NewStatsStreamHandler creates a new stats stream handler.
func NewStatsStreamHandler(st store.Store, allowedOrigin string) *StatsStreamHandler {
	return &StatsStreamHandler{store: st, allowedOrigin: allowedOrigin}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StatsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origins := []string{"*"}
	if h.allowedOrigin != "" && h.allowedOrigin != "*" {
		origins = []string{h.allowedOrigin}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("WebSocket close error", "error", closeErr)
		}
	}()

	slog.Info("Stats stream opened", "ip", r.RemoteAddr)

	// The stream is write-only; CloseRead drains incoming frames so a
	// client-initiated close cancels the context right away instead of
	// surfacing as a failed write on the next tick.
	ctx := ws.CloseRead(r.Context())
	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	// Push an initial snapshot immediately, then on every tick.
	if err := h.pushStats(ctx, ws); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.pushStats(ctx, ws); err != nil {
				slog.Debug("Stats stream write failed, closing", "error", err)
				return
			}
		}
	}
}

func (h *StatsStreamHandler) pushStats(ctx context.Context, ws *websocket.Conn) error {
	stats := h.store.GetQuickStats(ctx)
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, payload)
}
