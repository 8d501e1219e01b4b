// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type delivery struct {
	body      []byte
	signature string
}

type captureServer struct {
	mu         sync.Mutex
	deliveries []delivery
	failFirst  int // respond 500 for the first N requests
}

func (c *captureServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, delivery{
		body:      body,
		signature: r.Header.Get("X-Signature"),
	})
	if len(c.deliveries) <= c.failFirst {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *captureServer) all() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery(nil), c.deliveries...)
}

func TestWebhookDeliversSignedEnvelope(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer server.Close()

	workflowID := uuid.New()
	hook := NewWebhook(server.URL, "hook-secret", testLogger())
	hook.Emit(context.Background(), workflowID, "workflow.succeeded", map[string]any{
		"actual_savings": 312.5,
	})

	deliveries := capture.all()
	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}

	var env webhookEnvelope
	if err := json.Unmarshal(deliveries[0].body, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.WorkflowID != workflowID {
		t.Errorf("workflow_id = %s, want %s", env.WorkflowID, workflowID)
	}
	if env.Type != "workflow.succeeded" {
		t.Errorf("type = %q, want workflow.succeeded", env.Type)
	}
	if env.EmittedAt.IsZero() {
		t.Error("emitted_at not set")
	}

	var payload map[string]float64
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["actual_savings"] != 312.5 {
		t.Errorf("payload = %v", payload)
	}

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(deliveries[0].body)
	want := hex.EncodeToString(mac.Sum(nil))
	if deliveries[0].signature != want {
		t.Errorf("signature = %q, want %q", deliveries[0].signature, want)
	}
}

func TestWebhookWithoutSecretOmitsSignature(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer server.Close()

	hook := NewWebhook(server.URL, "", testLogger())
	hook.Emit(context.Background(), uuid.New(), "workflow.started", nil)

	deliveries := capture.all()
	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}
	if deliveries[0].signature != "" {
		t.Errorf("signature = %q, want none", deliveries[0].signature)
	}
}

func TestWebhookRetriesOnServerError(t *testing.T) {
	capture := &captureServer{failFirst: 2}
	server := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer server.Close()

	hook := NewWebhook(server.URL, "s", testLogger())
	hook.Emit(context.Background(), uuid.New(), "workflow.phase_completed", map[string]int{"percentage": 50})

	if got := len(capture.all()); got != 3 {
		t.Errorf("attempts = %d, want 3 (two failures then success)", got)
	}
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	capture := &captureServer{failFirst: 100}
	server := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer server.Close()

	// Emit swallows exhausted retries; it must return, not panic or hang.
	hook := NewWebhook(server.URL, "s", testLogger())
	hook.Emit(context.Background(), uuid.New(), "workflow.failed", nil)

	if got := len(capture.all()); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWebhookStopsOnCancellation(t *testing.T) {
	capture := &captureServer{failFirst: 100}
	server := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	hook := NewWebhook(server.URL, "s", testLogger())
	hook.Emit(ctx, uuid.New(), "workflow.failed", nil)

	// The backoff after the first failed attempt must observe the
	// canceled context instead of sleeping out the full schedule.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("emit took %s with a canceled context", elapsed)
	}
}

func TestWebhookEmptyURLIsNoop(t *testing.T) {
	hook := NewWebhook("   ", "s", testLogger())
	hook.Emit(context.Background(), uuid.New(), "workflow.started", nil)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func TestMultiFansOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}

	sink := Multi(first, second)
	sink.Emit(context.Background(), uuid.New(), "workflow.started", nil)

	for i, s := range []*recordingSink{first, second} {
		if len(s.events) != 1 || s.events[0] != "workflow.started" {
			t.Errorf("sink %d events = %v", i, s.events)
		}
	}
}
