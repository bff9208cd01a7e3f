// Package validation provides custom validation rules for the application.
package validation

import (
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/keyfold/keyfold/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// MaxBytes returns a rule validating that a byte slice does not exceed n bytes.
func MaxBytes(n int) validation.Rule {
	return validation.By(func(value interface{}) error {
		b, ok := value.([]byte)
		if !ok {
			return validation.NewError("validation_max_bytes", "must be a byte slice")
		}
		if len(b) > n {
			return validation.NewError("validation_max_bytes", "exceeds maximum size")
		}
		return nil
	})
}
