package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sendvault/internal/domain"
	"sendvault/internal/metrics"
	"sendvault/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	connectAttempts  = 3
	connectBaseDelay = 100 * time.Millisecond

	// Inline maintenance cadence: ANALYZE every analyzeEvery mutations,
	// incremental vacuum at most once per vacuumInterval.
	analyzeEvery   = 1000
	vacuumInterval = 24 * time.Hour
)

// SQLiteStore implements Store on a local SQLite file.
//
// A single mutex serializes every public operation so that session-id
// mutation, counter recomputation and the maintenance operation counter
// stay consistent across threads. WAL mode keeps concurrent readers from
// other connections cheap.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	path     string
	userID   string
	cacheTTL time.Duration
	metrics  *metrics.Metrics

	mu          sync.Mutex
	db          *sql.DB
	unavailable bool

	// Session tracker state, valid only while a session is open.
	currentSessionID string
	sessionStart     time.Time
	sessionChannel   domain.Channel
	sessionTemplate  string

	opCount    int64
	lastVacuum time.Time

	// Number of full analytics recomputations, bypassing the cache.
	reportRebuilds int64
}

// Option tweaks store construction.
type Option func(*SQLiteStore)

// WithCacheTTL overrides the analytics report freshness window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *SQLiteStore) { s.cacheTTL = ttl }
}

// WithMetrics attaches Prometheus counters that the store increments on
// successful writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLiteStore) { s.metrics = m }
}

// New opens (or creates) the activity database at dbPath for userID.
//
// New never fails: when the file cannot be opened or migrated after
// retries the store starts in degraded mode, all operations become safe
// no-ops and RepairDatabase can be used to recover later.
func New(dbPath, userID string, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		path:       dbPath,
		userID:     userID,
		cacheTTL:   time.Hour,
		lastVacuum: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initLocked(context.Background()); err != nil {
		slog.Error("Database unavailable, store starts degraded", "path", dbPath, "error", err)
		s.unavailable = true
	}
	return s
}

// initLocked connects with retry and brings the schema up to date. The
// caller must hold mu (or be the constructor, before the store escapes).
func (s *SQLiteStore) initLocked(ctx context.Context) error {
	if err := s.connectWithRetry(ctx); err != nil {
		return err
	}
	if err := s.migrateLocked(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// connectWithRetry opens the database with exponential backoff on
// transient failures: 100ms, 200ms, 400ms.
func (s *SQLiteStore) connectWithRetry(ctx context.Context) error {
	if err := retryTransient(func() error { return s.connect(ctx) }); err != nil {
		return fmt.Errorf("open database after %d attempts: %w", connectAttempts, err)
	}
	return nil
}

// retryTransient runs fn up to connectAttempts times with exponential
// backoff for as long as the failure looks transient (lock contention,
// momentary I/O). Non-transient errors fail immediately.
func retryTransient(fn func() error) error {
	var err error
	for i := 0; i < connectAttempts; i++ {
		if i > 0 {
			delay := connectBaseDelay * time.Duration(1<<(i-1))
			slog.Debug("Retrying after transient storage error", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
		if err = fn(); err == nil {
			return nil
		}
		if !shared.IsTransientError(err) {
			return err
		}
	}
	return err
}

// execLocked writes with retry on transient faults so a momentary busy or
// I/O hiccup does not degrade the store. Callers must hold mu.
func (s *SQLiteStore) execLocked(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryTransient(func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (s *SQLiteStore) connect(ctx context.Context) error {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	// Durability/performance pragmas applied once per store lifetime;
	// MaxOpenConns(1) keeps them pinned to the single real connection.
	pragmas := `
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -8000;
	PRAGMA temp_store = MEMORY;
	PRAGMA auto_vacuum = INCREMENTAL;
	`
	if _, err := db.ExecContext(ctx, pragmas); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply pragmas: %w", err)
	}

	s.db = db
	return nil
}

// availableLocked reports whether operations may touch the database.
// Callers must hold mu.
func (s *SQLiteStore) availableLocked() bool {
	return !s.unavailable && s.db != nil
}

// markUnavailableLocked flips the store into degraded mode after a write
// exhausted its retries or hit a non-transient storage fault. Callers must
// hold mu.
func (s *SQLiteStore) markUnavailableLocked(op string, err error) {
	if s.unavailable {
		return
	}
	s.unavailable = true
	slog.Error("Storage fault, entering degraded mode", "op", op, "error", err)
}

// maybeMaintainLocked piggy-backs periodic maintenance on regular write
// traffic: ANALYZE every analyzeEvery mutations and an incremental vacuum
// at most once per vacuumInterval. Best-effort; failures are logged only.
func (s *SQLiteStore) maybeMaintainLocked(ctx context.Context) {
	if !s.availableLocked() {
		return
	}

	s.opCount++
	if s.opCount%analyzeEvery == 0 {
		if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
			slog.Warn("Periodic ANALYZE failed", "error", err)
		} else {
			s.systemLogLocked(ctx, "info", "maintenance", "analyze completed", nil)
		}
	}

	if time.Since(s.lastVacuum) >= vacuumInterval {
		s.lastVacuum = time.Now()
		if _, err := s.db.ExecContext(ctx, `PRAGMA incremental_vacuum`); err != nil {
			slog.Warn("Periodic vacuum failed", "error", err)
		} else {
			s.systemLogLocked(ctx, "info", "maintenance", "incremental vacuum completed", nil)
		}
	}
}

// Available reports whether the store is out of degraded mode.
func (s *SQLiteStore) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableLocked()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// roundRate converts successful/total into a percentage with two decimals.
func roundRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(successful) / float64(total) * 100
	return float64(int(rate*100+0.5)) / 100
}
