package core

import "github.com/pkg/errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTooManyRequests  = errors.New("too many requests")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// kindError is a domain error that belongs to one of the sentinel kinds above.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string        { return e.msg }
func (e *kindError) Is(target error) bool { return target == e.kind }

// NewNotFoundError returns an error matching ErrNotFound with errors.Is.
func NewNotFoundError(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

// NewPermissionError returns an error matching ErrPermissionDenied with errors.Is.
func NewPermissionError(msg string) error { return &kindError{kind: ErrPermissionDenied, msg: msg} }

// NewTooManyRequestsError returns an error matching ErrTooManyRequests with errors.Is.
func NewTooManyRequestsError(msg string) error { return &kindError{kind: ErrTooManyRequests, msg: msg} }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
