package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("solution field validation failed")

// ErrorCode classifies a field-level validation failure.
type ErrorCode string

const (
	CodeUnknownCategory ErrorCode = "unknown_category"
	CodeUnknownField    ErrorCode = "unknown_field"
	CodeRequired        ErrorCode = "required"
	CodeInvalidType     ErrorCode = "invalid_type"
	CodeInvalidOption   ErrorCode = "invalid_option"
	CodeEmptyValue      ErrorCode = "empty_value"
	CodeTooLong         ErrorCode = "too_long"
	CodeUnsafeText      ErrorCode = "unsafe_text"
	CodeOutOfRange      ErrorCode = "out_of_range"
)

// FieldError is one rejected field value.
type FieldError struct {
	Field   string    `json:"field"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError rejects a submission. It carries every field error so the
// caller can show them all at once.
type ValidationError struct {
	Category categories.Category
	Errors   []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("invalid %s fields: %s", e.Category, strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldErrors returns the errors for a single field.
func (e *ValidationError) FieldErrors(field string) []FieldError {
	var out []FieldError
	for _, fe := range e.Errors {
		if fe.Field == field {
			out = append(out, fe)
		}
	}
	return out
}
