// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newProtectedHandler(token string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return OperatorTokenAuth(token, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestOperatorTokenAuthMissingToken(t *testing.T) {
	handler := newProtectedHandler("secret-token")

	req := httptest.NewRequest(http.MethodPost, "/workflows/abc/approve", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestOperatorTokenAuthWrongToken(t *testing.T) {
	handler := newProtectedHandler("secret-token")

	req := httptest.NewRequest(http.MethodPost, "/workflows/abc/approve", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestOperatorTokenAuthValidToken(t *testing.T) {
	handler := newProtectedHandler("secret-token")

	req := httptest.NewRequest(http.MethodPost, "/workflows/abc/approve", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestOperatorTokenAuthUnconfigured(t *testing.T) {
	handler := newProtectedHandler("")

	req := httptest.NewRequest(http.MethodPost, "/workflows/abc/approve", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestCustomerRateLimiterExhaustsAndRefills(t *testing.T) {
	limiter := NewCustomerRateLimiter()
	now := time.Now()

	for i := 0; i < 3; i++ {
		decision := limiter.Allow("acme-prod", 3, now)
		if !decision.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	decision := limiter.Allow("acme-prod", 3, now)
	if decision.Allowed {
		t.Fatal("expected request beyond limit to be denied")
	}
	if decision.RetryAfterSeconds < 1 {
		t.Fatalf("expected retry-after >= 1s got %d", decision.RetryAfterSeconds)
	}

	// Another customer has its own bucket.
	if d := limiter.Allow("other-corp", 3, now); !d.Allowed {
		t.Fatal("expected other customer to be allowed")
	}

	// A full refill window restores the bucket.
	later := now.Add(time.Minute)
	if d := limiter.Allow("acme-prod", 3, later); !d.Allowed {
		t.Fatal("expected refilled bucket to allow")
	}
}
