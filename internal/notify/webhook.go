// SPDX-License-Identifier: Apache-2.0

// Package notify delivers fire-and-forget workflow events to external
// sinks. Delivery is best effort: the engine emits and moves on.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	webhookRetryAttempts = 3
	webhookRetryBase     = 300 * time.Millisecond
	webhookHeaderSig     = "X-Signature"
)

// Sink receives workflow events.
type Sink interface {
	Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any)
}

// Multi fans one event out to several sinks.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any) {
	for _, s := range m {
		s.Emit(ctx, workflowID, eventType, payload)
	}
}

type webhookEnvelope struct {
	WorkflowID uuid.UUID       `json:"workflow_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// Webhook POSTs signed event envelopes to a single URL, retrying with
// exponential backoff on failure.
type Webhook struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhook(url, secret string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:        strings.TrimSpace(url),
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (w *Webhook) Emit(ctx context.Context, workflowID uuid.UUID, eventType string, payload any) {
	if w.url == "" {
		return
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("webhook payload marshal failed",
			"workflow_id", workflowID,
			"event", eventType,
			"error", err,
		)
		return
	}

	body, err := json.Marshal(webhookEnvelope{
		WorkflowID: workflowID,
		Type:       eventType,
		Payload:    rawPayload,
		EmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		w.logger.Error("webhook envelope marshal failed",
			"workflow_id", workflowID,
			"event", eventType,
			"error", err,
		)
		return
	}

	signature := signPayload(w.secret, body)

	var lastErr error
	for attempt := 1; attempt <= webhookRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Error("webhook request build failed",
				"workflow_id", workflowID,
				"event", eventType,
				"error", err,
			)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(webhookHeaderSig, signature)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				return
			}
			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
		}

		w.logger.Warn("webhook delivery failed",
			"workflow_id", workflowID,
			"event", eventType,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < webhookRetryAttempts {
			wait := webhookRetryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}

	w.logger.Error("webhook retries exhausted",
		"workflow_id", workflowID,
		"event", eventType,
		"error", lastErr,
	)
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
