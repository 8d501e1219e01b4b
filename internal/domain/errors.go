// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for run-terminating conditions. The final state of a
// failed run records which kind caused termination, since safety
// rollbacks, infrastructure failures and input errors need different
// operator responses.
var (
	ErrInsufficientData        = errors.New("insufficient resource or cost data")
	ErrApprovalTimeout         = errors.New("approval not received before deadline")
	ErrLearningStoreUnavailable = errors.New("learning store unavailable")
)

// TransientProviderError marks a retryable collaborator failure, e.g.
// cloud API throttling.
type TransientProviderError struct {
	Op  string
	Err error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider failure during %s: %v", e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// QualityDegradationError is the expected safety trigger: a monitored
// metric worsened past the threshold during a rollout phase.
type QualityDegradationError struct {
	Phase          int
	Metric         string
	DegradationPct float64
}

func (e *QualityDegradationError) Error() string {
	return fmt.Sprintf("quality degradation in phase %d%%: %s worsened %.1f%%", e.Phase, e.Metric, e.DegradationPct*100)
}

// PersistenceError is fatal for a run: the executor must never proceed
// past an unconfirmed checkpoint.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError rejects malformed input before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FailureKind classifies why a run terminated, for the final state record.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureInsufficientData FailureKind = "INSUFFICIENT_DATA"
	FailureProvider         FailureKind = "PROVIDER"
	FailureApprovalTimeout  FailureKind = "APPROVAL_TIMEOUT"
	FailureApprovalRejected FailureKind = "APPROVAL_REJECTED"
	FailureDegradation      FailureKind = "QUALITY_DEGRADATION"
	FailurePersistence      FailureKind = "PERSISTENCE"
	FailureValidation       FailureKind = "VALIDATION"
	FailureInternal         FailureKind = "INTERNAL"
)

// ClassifyFailure maps a terminating error to its FailureKind.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var (
		transient   *TransientProviderError
		degradation *QualityDegradationError
		persistence *PersistenceError
		validation  *ValidationError
	)

	switch {
	case errors.Is(err, ErrInsufficientData):
		return FailureInsufficientData
	case errors.Is(err, ErrApprovalTimeout):
		return FailureApprovalTimeout
	case errors.As(err, &transient):
		return FailureProvider
	case errors.As(err, &degradation):
		return FailureDegradation
	case errors.As(err, &persistence):
		return FailurePersistence
	case errors.As(err, &validation):
		return FailureValidation
	}
	return FailureInternal
}
