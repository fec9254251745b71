package fetcher

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when opening or navigating exceeds the fetch timeout.
type TimeoutError struct {
	URL   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out after %s", e.URL, e.After)
}

// IsFetchTimeout reports whether err is a fetch timeout.
func IsFetchTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// NavigationError is returned for invalid URLs and failed page loads.
type NavigationError struct {
	URL    string
	Reason string
	Err    error
}

func (e *NavigationError) Error() string {
	msg := fmt.Sprintf("navigate %s: %s", e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NavigationError) Unwrap() error { return e.Err }

// IsNavigationError reports whether err is a navigation failure.
func IsNavigationError(err error) bool {
	var e *NavigationError
	return errors.As(err, &e)
}
