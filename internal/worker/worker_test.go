// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

func TestNewDefaults(t *testing.T) {
	w := New(Deps{})

	if w.logger == nil {
		t.Fatal("expected default logger to be set")
	}
	if w.reclaimAfter != 10*time.Minute {
		t.Fatalf("expected default reclaimAfter=10m, got %s", w.reclaimAfter)
	}
	if w.repollAfter != 30*time.Second {
		t.Fatalf("expected default repollAfter=30s, got %s", w.repollAfter)
	}
	if w.maxAttempts != 3 {
		t.Fatalf("expected default maxAttempts=3, got %d", w.maxAttempts)
	}
}

func TestNewCustomValues(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := New(Deps{
		Logger:       logger,
		ReclaimAfter: 30 * time.Second,
		RepollAfter:  5 * time.Second,
		MaxAttempts:  7,
	})

	if w.logger != logger {
		t.Fatal("expected provided logger to be used")
	}
	if w.reclaimAfter != 30*time.Second {
		t.Fatalf("expected reclaimAfter=30s, got %s", w.reclaimAfter)
	}
	if w.repollAfter != 5*time.Second {
		t.Fatalf("expected repollAfter=5s, got %s", w.repollAfter)
	}
	if w.maxAttempts != 7 {
		t.Fatalf("expected maxAttempts=7, got %d", w.maxAttempts)
	}
}

func TestRetryableFailure(t *testing.T) {
	retryable := []domain.FailureKind{
		domain.FailureProvider,
		domain.FailurePersistence,
		domain.FailureInternal,
	}
	for _, kind := range retryable {
		if !retryableFailure(kind) {
			t.Fatalf("expected %s to be retryable", kind)
		}
	}

	terminal := []domain.FailureKind{
		domain.FailureInsufficientData,
		domain.FailureApprovalTimeout,
		domain.FailureApprovalRejected,
		domain.FailureDegradation,
		domain.FailureValidation,
		domain.FailureNone,
	}
	for _, kind := range terminal {
		if retryableFailure(kind) {
			t.Fatalf("expected %s to not be retryable", kind)
		}
	}
}
