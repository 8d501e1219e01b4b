// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// SubmitRequest is the external trigger for a new workflow run. It is
// validated before any state is created.
type SubmitRequest struct {
	WorkflowType string `json:"workflow_type" validate:"required,oneof=COST_OPTIMIZATION SPOT_MIGRATION RESERVED_INSTANCE RIGHT_SIZING"`
	CustomerID   string `json:"customer_id" validate:"required,customer_id"`
	WebhookURL   string `json:"webhook_url,omitempty" validate:"omitempty,http_url"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate

	customerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,62}[a-z0-9]$`)
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("customer_id", func(fl validator.FieldLevel) bool {
			return customerIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateSubmit rejects malformed requests with a ValidationError naming
// the first offending field.
func ValidateSubmit(req SubmitRequest) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}

	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag() + " check"}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}
