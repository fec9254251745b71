package manager

import (
	"errors"
	"fmt"
	"strings"
)

// BackendUnavailableError signals that the backend could not be started,
// never became ready, or exited/stopped answering while supervised.
type BackendUnavailableError struct {
	Reason string
	// Tail is the last part of the subprocess stderr, when available.
	Tail string
	Err  error
}

func (e *BackendUnavailableError) Error() string {
	var b strings.Builder
	b.WriteString("backend unavailable: ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if t := strings.TrimSpace(e.Tail); t != "" {
		b.WriteString("; stderr tail: ")
		b.WriteString(t)
	}
	return b.String()
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// IsBackendUnavailable reports whether err indicates an unavailable backend.
func IsBackendUnavailable(err error) bool {
	var e *BackendUnavailableError
	return errors.As(err, &e)
}

// ModelProvisionFailedError is returned once every candidate of the fallback
// chain has failed. Errs holds one error per candidate, in chain order.
type ModelProvisionFailedError struct {
	Candidates []string
	Errs       []error
}

func (e *ModelProvisionFailedError) Error() string {
	if len(e.Candidates) == 0 {
		return "model provisioning failed: no candidates configured"
	}
	return fmt.Sprintf("model provisioning failed for %s: %v", strings.Join(e.Candidates, ", "), errors.Join(e.Errs...))
}

func (e *ModelProvisionFailedError) Unwrap() []error { return e.Errs }

// IsModelProvisionFailed reports whether err indicates that no model could be provisioned.
func IsModelProvisionFailed(err error) bool {
	var e *ModelProvisionFailedError
	return errors.As(err, &e)
}

// CrashBudgetExhaustedError is the fatal error returned by Run when the
// backend crashed more times in a row than allowed.
type CrashBudgetExhaustedError struct {
	Crashes int
	Max     int
	Last    error
}

func (e *CrashBudgetExhaustedError) Error() string {
	return fmt.Sprintf("backend crashed %d consecutive times (max %d): %v", e.Crashes, e.Max, e.Last)
}

func (e *CrashBudgetExhaustedError) Unwrap() error { return e.Last }

// IsCrashBudgetExhausted reports whether err is the fatal supervisor error.
func IsCrashBudgetExhausted(err error) bool {
	var e *CrashBudgetExhaustedError
	return errors.As(err, &e)
}
