package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when a completion exceeds its deadline.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("inference timed out after %s", e.After)
}

// Is makes errors.Is(err, context.DeadlineExceeded) hold for timeouts.
func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// IsInferenceTimeout reports whether err is an inference timeout.
func IsInferenceTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// Error signals a malformed or erroring backend response.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference error: %s: %v", e.Reason, e.Err)
	}
	return "inference error: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// IsInferenceError reports whether err is a backend response error.
func IsInferenceError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// NotReadyError is returned without contacting the backend when it is not Ready.
type NotReadyError struct {
	State string
}

func (e *NotReadyError) Error() string { return "backend not ready (state " + e.State + ")" }

// IsBackendNotReady reports whether err indicates the backend was not Ready.
func IsBackendNotReady(err error) bool {
	var e *NotReadyError
	return errors.As(err, &e)
}
