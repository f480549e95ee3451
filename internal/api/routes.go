package api

import (
	"net/http"

	"sendvault/internal/domain"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the operator API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/history", h.Timed(h.handleHistory))
		r.Get("/sessions", h.Timed(h.handleSessions))
		r.Get("/report", h.Timed(h.handleReport))
		r.Get("/export", h.Timed(h.handleExport))
		r.Get("/stats", h.Timed(h.handleQuickStats))
		r.Get("/health", h.Timed(h.handleHealth))
		r.Post("/repair", h.Timed(h.handleRepair))
		r.Post("/backup", h.Timed(h.handleBackup))
		r.Post("/cleanup", h.Timed(h.handleCleanup))
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	channel := domain.Channel(r.URL.Query().Get("channel"))
	status := domain.MessageStatus(r.URL.Query().Get("status"))

	entries, err := h.store.GetMessageHistory(r.Context(), daysParam(r), channel, status)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read message history")
		return
	}
	if entries == nil {
		entries = []domain.MessageLogEntry{}
	}
	JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.GetSessionHistory(r.Context(), daysParam(r))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read session history")
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	JSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	report, err := h.store.GenerateAnalyticsReport(r.Context(), daysParam(r), forceRefresh)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate report")
		return
	}
	if report == nil {
		Error(w, http.StatusServiceUnavailable, "store is degraded, no report available")
		return
	}
	h.metrics.ReportsServed.Inc()
	JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	data, err := h.store.ExportData(r.Context(), format, daysParam(r))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.metrics.Exports.Inc()

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="activity_export.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleQuickStats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.store.GetQuickStats(r.Context()))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.store.GetDatabaseHealth(r.Context())
	if health.Available {
		h.metrics.Degraded.Set(0)
	} else {
		h.metrics.Degraded.Set(1)
	}
	JSON(w, http.StatusOK, health)
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	h.metrics.RepairAttempts.Inc()
	ok := h.store.RepairDatabase(r.Context())
	JSON(w, http.StatusOK, map[string]bool{"repaired": ok})
}

func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.BackupDatabase(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"path": path})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted := h.store.DeleteOldData(r.Context(), daysParam(r))
	h.metrics.RowsCleaned.Add(float64(deleted))
	JSON(w, http.StatusOK, map[string]int64{"rows_deleted": deleted})
}
