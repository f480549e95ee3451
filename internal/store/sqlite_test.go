package store

import (
	"errors"
	"testing"
)

func TestRetryTransientRecovers(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryTransient(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery after transient failures, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryTransientFailsFastOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	permanent := errors.New("no such table: message_logs")
	err := retryTransient(func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry for permanent faults)", calls)
	}
}

func TestRetryTransientGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryTransient(func() error {
		calls++
		return errors.New("disk I/O error")
	})
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	if calls != connectAttempts {
		t.Fatalf("calls = %d, want %d", calls, connectAttempts)
	}
}
