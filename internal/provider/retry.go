// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
)

const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Retry runs fn, retrying transient provider failures with exponential
// backoff. Non-transient errors return immediately.
func Retry[T any](
	ctx context.Context,
	logger *slog.Logger,
	op string,
	attempts int,
	baseDelay time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}

	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var transient *domain.TransientProviderError
		if !errors.As(err, &transient) {
			return zero, err
		}

		if attempt == attempts {
			break
		}

		wait := baseDelay * time.Duration(1<<(attempt-1))
		logger.Warn("transient provider failure - retrying",
			"op", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"wait", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Error("provider retries exhausted", "op", op, "error", lastErr)
	return zero, lastErr
}
