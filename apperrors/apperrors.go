package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Match with errors.Is against any error returned from the core.
var (
	ErrValidation        = errors.New("validation error")
	ErrEngineUnavailable = errors.New("search engine unavailable")
	ErrStoreUnavailable  = errors.New("source store unavailable")
	ErrQuery             = errors.New("query error")
	ErrNotFound          = errors.New("not found")
	ErrPartialFailure    = errors.New("partial failure")
	ErrConflict          = errors.New("conflict")
)

type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func New(kind error, op string, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Newf(kind error, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op == "" {
		return msg
	}

	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return nil
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusNotAcceptable
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
