package manager

import (
	"errors"
	"net/http"

	"chatd/internal/budget"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ model string }

func (e tooBusyError) Error() string   { return "too busy: " + e.model }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notReadyError is returned while the session is not ready.
type notReadyError struct{ state State }

func (e notReadyError) Error() string   { return "model is not loaded (state " + string(e.state) + ")" }
func (e notReadyError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrNotReady matches any not-ready error with errors.Is.
var ErrNotReady = notReadyError{}

func (e notReadyError) Is(target error) bool {
	_, ok := target.(notReadyError)
	return ok
}

// IsNotReady reports whether err means the model is not loaded (return 503).
func IsNotReady(err error) bool { return errors.Is(err, ErrNotReady) }

// invalidRequestError describes a malformed generation request.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string   { return e.msg }
func (e invalidRequestError) StatusCode() int { return http.StatusBadRequest }

// ErrInvalidRequest constructs an invalidRequestError.
func ErrInvalidRequest(msg string) error { return invalidRequestError{msg: msg} }

// IsInvalidRequest reports whether err indicates a bad request (return 400).
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}

// budgetError wraps budget.ErrBudgetExhausted with a 400 mapping.
type budgetError struct{ err error }

func (e budgetError) Error() string   { return e.err.Error() }
func (e budgetError) Unwrap() error   { return e.err }
func (e budgetError) StatusCode() int { return http.StatusBadRequest }

// IsBudgetExhausted reports whether the prompt leaves no room to generate.
func IsBudgetExhausted(err error) bool { return errors.Is(err, budget.ErrBudgetExhausted) }

// dependencyUnavailableError signals a backend that is not compiled in or a
// missing runtime library so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string   { return e.msg }
func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// generationError wraps a backend failure during decode.
type generationError struct{ err error }

func (e generationError) Error() string   { return "generation failed: " + e.err.Error() }
func (e generationError) Unwrap() error   { return e.err }
func (e generationError) StatusCode() int { return http.StatusInternalServerError }

// StatusCode maps err onto an HTTP status, 500 when unknown.
func StatusCode(err error) int {
	var he interface{ StatusCode() int }
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
