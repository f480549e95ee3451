// Package api provides the operator-facing HTTP surface of the store.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sendvault/internal/metrics"
	"sendvault/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(st store.Store, m *metrics.Metrics) *Handler {
	return &Handler{store: st, metrics: m}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// daysParam parses the ?days query parameter, defaulting to 30.
func daysParam(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		return 30
	}
	return days
}

// Timed wraps a handler with request duration observation.
func (h *Handler) Timed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		h.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}
}
