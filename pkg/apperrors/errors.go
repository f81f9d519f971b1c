package apperrors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransitionConflict means another writer changed the link's display
	// mode between our read and our write. Callers re-read and try again.
	ErrTransitionConflict = errors.New("display mode transition conflict")

	ErrUnknownCategory = errors.New("unknown solution category")
)

// RetryableError wraps err so pkg/retry treats it as transient.
func RetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string     { return e.err.Error() }
func (e *retryableError) Unwrap() error     { return e.err }
func (e *retryableError) IsRetryable() bool { return true }
