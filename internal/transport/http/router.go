// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudtrim/cloudtrim/internal/checkpoint"
	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/cloudtrim/cloudtrim/internal/metrics"
	"github.com/cloudtrim/cloudtrim/internal/repository"
	"github.com/cloudtrim/cloudtrim/internal/transport/middleware"
)

type decideRequest struct {
	DecidedBy string `json:"decided_by"`
}

type Deps struct {
	Workflows   WorkflowManager
	Events      EventStreamer
	Checkpoints CheckpointReader
	Learning    LearningAdmin
	Weights     WeightsReader
	Health      HealthChecker

	Logger        *slog.Logger
	OperatorToken string
	// SubmitRatePerMin caps workflow submissions per customer; 0 disables
	// the limiter.
	SubmitRatePerMin int

	Version   string
	Commit    string
	BuildDate string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	limiter := middleware.NewCustomerRateLimiter()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- SUBMIT WORKFLOW ----------------

	r.Post("/workflows", func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSubmitRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := domain.ValidateSubmit(req); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				http.Error(w, verr.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if deps.SubmitRatePerMin > 0 {
			decision := limiter.Allow(req.CustomerID, deps.SubmitRatePerMin, time.Now())
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		workflowID, err := deps.Workflows.CreateWorkflow(r.Context(), domain.WorkflowType(req.WorkflowType), req.CustomerID)
		if err != nil {
			logger.Error("create workflow failed", "error", err)
			http.Error(w, "failed to create workflow", http.StatusInternalServerError)
			return
		}

		logger.Info("workflow submitted via API",
			"workflow_id", workflowID,
			"workflow_type", req.WorkflowType,
			"customer_id", req.CustomerID,
		)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"workflow_id": workflowID.String(),
			"status":      string(domain.WorkflowPending),
		})
	})

	// ---------------- LIST WORKFLOWS ----------------

	r.Get("/workflows", func(w http.ResponseWriter, r *http.Request) {
		customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		workflows, err := deps.Workflows.ListWorkflows(r.Context(), customerID, limit)
		if err != nil {
			logger.Error("list workflows failed", "error", err)
			http.Error(w, "failed to list workflows", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"workflows": workflows,
		})
	})

	// ---------------- GET WORKFLOW ----------------

	r.Get("/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := parseWorkflowID(w, r)
		if !ok {
			return
		}

		summary, err := deps.Workflows.GetWorkflow(r.Context(), workflowID)
		if err != nil {
			if errors.Is(err, repository.ErrWorkflowNotFound) {
				http.Error(w, "workflow not found", http.StatusNotFound)
				return
			}
			logger.Error("get workflow failed", "workflow_id", workflowID, "error", err)
			http.Error(w, "failed to get workflow", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, summary)
	})

	// ---------------- GET WORKFLOW STATE ----------------

	r.Get("/workflows/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := parseWorkflowID(w, r)
		if !ok {
			return
		}
		if deps.Checkpoints == nil {
			http.Error(w, "checkpoints not configured", http.StatusInternalServerError)
			return
		}

		state, checkpointVersion, err := deps.Checkpoints.Latest(r.Context(), workflowID)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNotFound) {
				http.Error(w, "workflow state not found", http.StatusNotFound)
				return
			}
			logger.Error("get workflow state failed", "workflow_id", workflowID, "error", err)
			http.Error(w, "failed to get workflow state", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"checkpoint_version": checkpointVersion,
			"state":              state,
		})
	})

	// ---------------- LIST CHECKPOINTS ----------------

	r.Get("/workflows/{id}/checkpoints", func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := parseWorkflowID(w, r)
		if !ok {
			return
		}
		if deps.Checkpoints == nil {
			http.Error(w, "checkpoints not configured", http.StatusInternalServerError)
			return
		}

		versions, err := deps.Checkpoints.Versions(r.Context(), workflowID)
		if err != nil {
			logger.Error("list checkpoints failed", "workflow_id", workflowID, "error", err)
			http.Error(w, "failed to list checkpoints", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"workflow_id": workflowID.String(),
			"versions":    versions,
		})
	})

	r.Get("/workflows/{id}/checkpoints/{version}", func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := parseWorkflowID(w, r)
		if !ok {
			return
		}
		if deps.Checkpoints == nil {
			http.Error(w, "checkpoints not configured", http.StatusInternalServerError)
			return
		}

		version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
		if err != nil || version < 1 {
			http.Error(w, "invalid checkpoint version", http.StatusBadRequest)
			return
		}

		state, err := deps.Checkpoints.At(r.Context(), workflowID, version)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNotFound) {
				http.Error(w, "checkpoint not found", http.StatusNotFound)
				return
			}
			logger.Error("get checkpoint failed",
				"workflow_id", workflowID,
				"version", version,
				"error", err,
			)
			http.Error(w, "failed to get checkpoint", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"version": version,
			"state":   state,
		})
	})

	// ---------------- STREAM EVENTS (SSE) ----------------

	r.Get("/workflows/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := parseWorkflowID(w, r)
		if !ok {
			return
		}

		if _, err := deps.Workflows.GetWorkflow(r.Context(), workflowID); err != nil {
			if errors.Is(err, repository.ErrWorkflowNotFound) {
				http.Error(w, "workflow not found", http.StatusNotFound)
				return
			}
			logger.Error("sse get workflow failed", "workflow_id", workflowID, "error", err)
			http.Error(w, "failed to stream events", http.StatusInternalServerError)
			return
		}

		if deps.Events == nil {
			logger.Error("sse events repository is not configured")
			http.Error(w, "failed to stream events", http.StatusInternalServerError)
			return
		}

		since := strings.TrimSpace(r.URL.Query().Get("since_id"))
		cursor, err := resolveEventsCursor(r.Context(), deps.Events, workflowID, since)
		if err != nil {
			if errors.Is(err, errInvalidSinceID) {
				http.Error(w, "invalid since_id", http.StatusBadRequest)
				return
			}
			logger.Error("resolve events cursor failed",
				"workflow_id", workflowID,
				"since_id", since,
				"error", err,
			)
			http.Error(w, "failed to stream events", http.StatusInternalServerError)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		writeEvents := func() error {
			events, err := deps.Events.ListEventsAfter(r.Context(), workflowID, cursor)
			if err != nil {
				return err
			}

			for _, ev := range events {
				payload, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(w, "event: workflow_update\ndata: %s\n\n", payload); err != nil {
					return err
				}
				flusher.Flush()
				cursor = ev.Seq
			}

			return nil
		}

		if err := writeEvents(); err != nil {
			logger.Error("sse initial write failed", "workflow_id", workflowID, "error", err)
			return
		}

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if err := writeEvents(); err != nil {
					logger.Error("sse write failed", "workflow_id", workflowID, "error", err)
					return
				}
			}
		}
	})

	// ---------------- OPERATOR SURFACE ----------------

	r.Group(func(op chi.Router) {
		op.Use(middleware.OperatorTokenAuth(deps.OperatorToken, logger))

		op.Post("/workflows/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
			decideWorkflow(w, r, deps, logger, true)
		})

		op.Post("/workflows/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
			decideWorkflow(w, r, deps, logger, false)
		})

		op.Post("/workflows/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			workflowID, ok := parseWorkflowID(w, r)
			if !ok {
				return
			}

			if err := deps.Workflows.CancelWorkflow(r.Context(), workflowID); err != nil {
				if errors.Is(err, repository.ErrWorkflowNotFound) {
					http.Error(w, "workflow not found", http.StatusNotFound)
					return
				}
				logger.Error("cancel workflow failed", "workflow_id", workflowID, "error", err)
				http.Error(w, "failed to cancel workflow", http.StatusInternalServerError)
				return
			}

			logger.Info("workflow canceled via API", "workflow_id", workflowID)

			writeJSON(w, http.StatusOK, map[string]string{
				"workflow_id": workflowID.String(),
				"status":      string(domain.WorkflowCanceled),
			})
		})

		op.Post("/learning/cycle", func(w http.ResponseWriter, r *http.Request) {
			if deps.Learning == nil {
				http.Error(w, "learning not configured", http.StatusInternalServerError)
				return
			}

			report, err := deps.Learning.RunCycle(r.Context())
			if err != nil {
				logger.Error("learning cycle failed", "error", err)
				http.Error(w, "learning cycle failed", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, report)
		})

		op.Get("/learning/weights", func(w http.ResponseWriter, r *http.Request) {
			if deps.Weights == nil {
				http.Error(w, "weights not configured", http.StatusInternalServerError)
				return
			}

			current, err := deps.Weights.Current(r.Context())
			if err != nil {
				logger.Error("read current weights failed", "error", err)
				http.Error(w, "failed to read weights", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, current)
		})

		op.Get("/learning/weights/history", func(w http.ResponseWriter, r *http.Request) {
			if deps.Weights == nil {
				http.Error(w, "weights not configured", http.StatusInternalServerError)
				return
			}

			history, err := deps.Weights.History(r.Context())
			if err != nil {
				logger.Error("read weights history failed", "error", err)
				http.Error(w, "failed to read weights history", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"history": history,
			})
		})

		op.Post("/learning/weights/{version}/revert", func(w http.ResponseWriter, r *http.Request) {
			if deps.Weights == nil {
				http.Error(w, "weights not configured", http.StatusInternalServerError)
				return
			}

			version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
			if err != nil || version < 1 {
				http.Error(w, "invalid weights version", http.StatusBadRequest)
				return
			}

			reverted, err := deps.Weights.Revert(r.Context(), version)
			if err != nil {
				logger.Error("revert weights failed", "version", version, "error", err)
				http.Error(w, "failed to revert weights", http.StatusInternalServerError)
				return
			}
			metrics.SetWeightsVersion(reverted.Version)

			logger.Info("weights reverted via API",
				"target_version", version,
				"new_version", reverted.Version,
			)
			writeJSON(w, http.StatusOK, reverted)
		})
	})

	return r
}

func decideWorkflow(w http.ResponseWriter, r *http.Request, deps Deps, logger *slog.Logger, approve bool) {
	workflowID, ok := parseWorkflowID(w, r)
	if !ok {
		return
	}

	var body decideRequest
	if r.Body != nil && r.Body != http.NoBody {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	decidedBy := valueOrDefault(body.DecidedBy, "operator")

	if err := deps.Workflows.Decide(r.Context(), workflowID, approve, decidedBy); err != nil {
		if errors.Is(err, repository.ErrWorkflowNotFound) {
			http.Error(w, "workflow not found", http.StatusNotFound)
			return
		}
		if strings.Contains(err.Error(), "not awaiting approval") {
			http.Error(w, "workflow is not awaiting approval", http.StatusConflict)
			return
		}
		logger.Error("decide workflow failed",
			"workflow_id", workflowID,
			"approve", approve,
			"error", err,
		)
		http.Error(w, "failed to record decision", http.StatusInternalServerError)
		return
	}

	decision := string(domain.ApprovalRejected)
	if approve {
		decision = string(domain.ApprovalApproved)
	}
	metrics.IncApprovalDecision(strings.ToLower(decision))

	logger.Info("workflow decision via API",
		"workflow_id", workflowID,
		"decision", decision,
		"decided_by", decidedBy,
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"workflow_id": workflowID.String(),
		"decision":    decision,
	})
}

func parseWorkflowID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	workflowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid workflow ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return workflowID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeSubmitRequest(r *http.Request) (domain.SubmitRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return domain.SubmitRequest{}, errors.New("empty request body")
	}

	var req domain.SubmitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return domain.SubmitRequest{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.SubmitRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)
	return req, nil
}

var errInvalidSinceID = errors.New("invalid since_id")

func resolveEventsCursor(
	ctx context.Context,
	events EventStreamer,
	workflowID uuid.UUID,
	since string,
) (int64, error) {
	if since == "" {
		return 0, nil
	}

	if seq, err := strconv.ParseInt(since, 10, 64); err == nil {
		if seq < 0 {
			return 0, errInvalidSinceID
		}
		return seq, nil
	}

	eventID, err := uuid.Parse(since)
	if err != nil {
		return 0, errInvalidSinceID
	}

	seq, err := events.ResolveCursorByEventID(ctx, workflowID, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errInvalidSinceID
		}
		return 0, err
	}

	return seq, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
