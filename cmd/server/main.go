// sendvault - message-activity log and analytics store
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sendvault/internal/api"
	"sendvault/internal/config"
	"sendvault/internal/metrics"
	"sendvault/internal/middleware"
	"sendvault/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "db_path", cfg.DBPath, "user_id", cfg.UserID)

	m := metrics.New()

	// The store never fails to construct; it starts degraded when the
	// file cannot be opened and can be repaired through the API.
	st := store.New(cfg.DBPath, cfg.UserID,
		store.WithCacheTTL(cfg.CacheTTL), store.WithMetrics(m))
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if st.Available() {
		if issues := st.VerifySchema(context.Background()); len(issues) > 0 {
			slog.Warn("Schema verification found issues", "issues", issues)
		} else {
			slog.Info("Database ready", "schema_version", st.CurrentSchemaVersion(context.Background()))
		}
	} else {
		slog.Warn("Store is degraded; logging is disabled until repaired")
	}

	if st.Available() {
		m.Degraded.Set(0)
	} else {
		m.Degraded.Set(1)
	}

	handler := api.NewHandler(st, m)
	statsStream := api.NewStatsStreamHandler(st, cfg.AllowedOrigin)

	// Daily retention cleanup and a backup alongside it.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		deleted := st.DeleteOldData(context.Background(), cfg.RetentionDays)
		m.RowsCleaned.Add(float64(deleted))
		slog.Info("Scheduled retention cleanup complete", "rows_deleted", deleted)

		if cfg.BackupDir != "" {
			target := filepath.Join(cfg.BackupDir,
				fmt.Sprintf("%s.backup-%s", filepath.Base(cfg.DBPath), time.Now().Format("20060102-150405")))
			if path, err := st.BackupDatabase(context.Background(), target); err != nil {
				slog.Warn("Scheduled backup failed", "error", err)
			} else {
				slog.Info("Scheduled backup written", "path", path)
			}
		}
	}); err != nil {
		slog.Error("Failed to schedule retention job", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{cfg.AllowedOrigin}))

	handler.RegisterRoutes(r)
	r.Get("/ws/stats", statsStream.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// No WriteTimeout: the stats stream holds its connection open.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
