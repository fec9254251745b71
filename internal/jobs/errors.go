package jobs

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Enqueue after Close, and is the terminal error of
// jobs still queued at shutdown.
var ErrClosed = errors.New("scheduler closed")

// QueueFullError signals admission control rejected a job.
type QueueFullError struct{ Max int }

func (e *QueueFullError) Error() string { return fmt.Sprintf("queue full (%d jobs waiting)", e.Max) }

// IsQueueFull reports whether err is an admission rejection.
func IsQueueFull(err error) bool {
	var e *QueueFullError
	return errors.As(err, &e)
}

// QueueRetryExceededError is the terminal error of a job that kept hitting an
// unready backend after its requeue budget was spent.
type QueueRetryExceededError struct {
	Requeues int
	Last     error
}

func (e *QueueRetryExceededError) Error() string {
	return fmt.Sprintf("gave up after %d requeues: %v", e.Requeues, e.Last)
}

func (e *QueueRetryExceededError) Unwrap() error { return e.Last }

// IsQueueRetryExceeded reports whether err is a requeue exhaustion.
func IsQueueRetryExceeded(err error) bool {
	var e *QueueRetryExceededError
	return errors.As(err, &e)
}

// TransitionError is returned for a status change that is not strictly forward.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}
