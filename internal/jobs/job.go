package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the analysis a job performs.
type Kind string

const (
	KindGeneral Kind = "general-query"
	KindWebsite Kind = "website-analysis"
	KindCode    Kind = "code-analysis"
	KindAPI     Kind = "api-generation"
	KindSearch  Kind = "search-query-generation"
)

// Status is the job lifecycle state. Transitions only move forward.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s.rank() == 2 }

// Payload is what the backend is asked to do.
type Payload struct {
	Prompt string
	System string
	// Deadline bounds the inference once the job starts; zero uses the scheduler default.
	Deadline time.Duration
}

// Job is one user request awaiting or undergoing inference.
type Job struct {
	ID        string
	ChatID    int64
	Kind      Kind
	Payload   Payload
	CreatedAt time.Time

	mu         sync.Mutex
	status     Status
	text       string
	model      string
	err        error
	position   int
	requeues   int
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

// New creates a Queued job.
func New(chatID int64, kind Kind, p Payload) *Job {
	return &Job{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Kind:      kind,
		Payload:   p,
		CreatedAt: time.Now(),
		status:    StatusQueued,
		done:      make(chan struct{}),
	}
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job is terminal or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome is a read-only view of a job's progress or result.
type Outcome struct {
	Status   Status
	Text     string
	Model    string
	Err      error
	Position int
	Requeues int
	// Elapsed runs from creation to completion (or to now while pending).
	Elapsed time.Duration
}

func (j *Job) Outcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	end := j.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return Outcome{
		Status:   j.status,
		Text:     j.text,
		Model:    j.model,
		Err:      j.err,
		Position: j.position,
		Requeues: j.requeues,
		Elapsed:  end.Sub(j.CreatedAt),
	}
}

// Snapshot is the persisted form of a terminal job.
type Snapshot struct {
	ID          string
	ChatID      int64
	Kind        Kind
	Status      Status
	Model       string
	Error       string
	Position    int
	Requeues    int
	ResultChars int
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:          j.ID,
		ChatID:      j.ChatID,
		Kind:        j.Kind,
		Status:      j.status,
		Model:       j.model,
		Position:    j.position,
		Requeues:    j.requeues,
		ResultChars: len([]rune(j.text)),
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.startedAt,
		FinishedAt:  j.finishedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// transition moves the job forward, rejecting same-rank or backward moves.
func (j *Job) transition(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to)
}

func (j *Job) transitionLocked(to Status) error {
	if to.rank() <= j.status.rank() {
		return &TransitionError{From: j.status, To: to}
	}
	j.status = to
	switch {
	case to == StatusRunning:
		j.startedAt = time.Now()
	case to.Terminal():
		j.finishedAt = time.Now()
	}
	return nil
}

// finish records a terminal state and releases waiters. It reports the
// previous status, or an error if the job was already terminal.
func (j *Job) finish(to Status, text, model string, err error) (Status, error) {
	j.mu.Lock()
	prev := j.status
	if terr := j.transitionLocked(to); terr != nil {
		j.mu.Unlock()
		return prev, terr
	}
	j.text, j.model, j.err = text, model, err
	j.mu.Unlock()
	close(j.done)
	return prev, nil
}
