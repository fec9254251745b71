// Package jobs holds the job model and the single-worker FIFO scheduler that
// serializes inference against the shared backend.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/inference"
)

// Completer runs one inference call. *inference.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (inference.Result, error)
}

// Recorder persists terminal job snapshots.
type Recorder interface {
	Record(ctx context.Context, s Snapshot) error
}

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxDepth     = 64
	defaultRequeueDelay = 5 * time.Second
	defaultDeadline     = 3 * time.Minute
)

type Config struct {
	Completer Completer
	// MaxDepth caps Queued jobs; Enqueue beyond it returns QueueFull.
	MaxDepth int
	// MaxRequeues is how many times a job may be sent back on BackendNotReady.
	// Zero fails on the first not-ready answer.
	MaxRequeues     int
	RequeueDelay    time.Duration
	DefaultDeadline time.Duration
	Recorder        Recorder
	Logger          zerolog.Logger
}

// ConfigFrom maps the queue section of the service configuration.
func ConfigFrom(c config.Config, completer Completer, rec Recorder, log zerolog.Logger) Config {
	return Config{
		Completer:       completer,
		MaxDepth:        c.Queue.MaxDepth,
		MaxRequeues:     c.Queue.MaxRequeues,
		RequeueDelay:    c.Queue.RequeueDelay.D(),
		DefaultDeadline: c.Inference.Timeout.D(),
		Recorder:        rec,
		Logger:          log,
	}
}

// Scheduler admits jobs and runs them one at a time in FIFO order.
type Scheduler struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	queue  []*Job
	closed bool
	wake   chan struct{}

	running atomic.Int32
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MaxRequeues < 0 {
		cfg.MaxRequeues = 0
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = defaultRequeueDelay
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = defaultDeadline
	}
	return &Scheduler{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "scheduler").Logger(),
		wake: make(chan struct{}, 1),
	}
}

// Enqueue admits j in Queued state and returns its 1-based queue position.
func (s *Scheduler) Enqueue(j *Job) (int, error) {
	if st := j.Status(); st != StatusQueued {
		return 0, &TransitionError{From: st, To: StatusQueued}
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if len(s.queue) >= s.cfg.MaxDepth {
		s.mu.Unlock()
		return 0, &QueueFullError{Max: s.cfg.MaxDepth}
	}
	s.queue = append(s.queue, j)
	pos := len(s.queue) + int(s.running.Load())
	queueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()

	j.mu.Lock()
	j.position = pos
	j.mu.Unlock()
	s.signal()
	s.log.Debug().Str("job_id", j.ID).Int64("chat_id", j.ChatID).Str("kind", string(j.Kind)).Int("position", pos).Msg("job queued")
	return pos, nil
}

// Depth returns the number of Queued jobs.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Running returns the number of Running jobs: 0 or 1.
func (s *Scheduler) Running() int { return int(s.running.Load()) }

func (s *Scheduler) MaxDepth() int { return s.cfg.MaxDepth }

// Close stops admission and fails every job still queued with ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	queueDepth.Set(0)
	s.mu.Unlock()
	for _, j := range pending {
		s.finish(j, StatusFailed, inference.Result{}, ErrClosed)
	}
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the head of the queue, blocking until a job arrives. It returns
// nil when ctx ends or the scheduler is closed and empty.
func (s *Scheduler) next(ctx context.Context) *Job {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			j := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			queueDepth.Set(float64(len(s.queue)))
			s.mu.Unlock()
			return j
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}
	}
}

// requeue puts j back at the tail. It reports the number of jobs ahead of j,
// or -1 if the scheduler closed meanwhile.
func (s *Scheduler) requeue(j *Job) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1
	}
	s.queue = append(s.queue, j)
	queueDepth.Set(float64(len(s.queue)))
	return len(s.queue) - 1
}

// Run is the single worker. It returns nil once ctx is cancelled; jobs still
// queued then fail with ErrClosed.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.Close()
	// round counts jobs still to be tried before pausing after a not-ready
	// answer. Pausing only at round boundaries keeps requeued jobs in their
	// original relative order.
	round := 0
	for {
		j := s.next(ctx)
		if j == nil {
			return nil
		}
		notReady := s.process(ctx, j)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case notReady < 0:
			round = 0
		case round == 0:
			round = notReady
		default:
			round--
		}
		if notReady >= 0 && round == 0 {
			s.pause(ctx)
		}
	}
}

func (s *Scheduler) pause(ctx context.Context) {
	t := time.NewTimer(s.cfg.RequeueDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type callResult struct {
	res inference.Result
	err error
}

// process runs j to a terminal state or requeues it. For a requeue it
// returns the number of jobs ahead of j in the queue, otherwise -1.
func (s *Scheduler) process(ctx context.Context, j *Job) int {
	deadline := j.Payload.Deadline
	if deadline <= 0 {
		deadline = s.cfg.DefaultDeadline
	}
	log := s.log.With().Str("job_id", j.ID).Int64("chat_id", j.ChatID).Str("kind", string(j.Kind)).Logger()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	resCh := make(chan callResult, 1)
	go func() {
		res, err := s.cfg.Completer.Complete(callCtx, inference.Request{
			Prompt:  j.Payload.Prompt,
			System:  j.Payload.System,
			Timeout: deadline,
			OnAdmit: func() { s.markRunning(j) },
		})
		resCh <- callResult{res: res, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.finish(j, StatusFailed, inference.Result{}, ErrClosed)
		return -1
	case <-timer.C:
		// The call is abandoned; its late result is dropped with resCh.
		log.Warn().Dur("deadline", deadline).Msg("job deadline exceeded")
		s.finish(j, StatusTimedOut, inference.Result{}, &inference.TimeoutError{After: deadline})
		return -1
	case r := <-resCh:
		switch {
		case r.err == nil:
			s.finish(j, StatusSucceeded, r.res, nil)
		case inference.IsBackendNotReady(r.err):
			return s.handleNotReady(j, r.err, log)
		case inference.IsInferenceTimeout(r.err):
			s.finish(j, StatusTimedOut, inference.Result{}, r.err)
		default:
			log.Warn().Err(r.err).Msg("job failed")
			s.finish(j, StatusFailed, inference.Result{}, r.err)
		}
		return -1
	}
}

func (s *Scheduler) handleNotReady(j *Job, cause error, log zerolog.Logger) int {
	j.mu.Lock()
	if j.requeues >= s.cfg.MaxRequeues {
		n := j.requeues
		j.mu.Unlock()
		log.Warn().Int("requeues", n).Msg("requeue budget spent")
		s.finish(j, StatusFailed, inference.Result{}, &QueueRetryExceededError{Requeues: n, Last: cause})
		return -1
	}
	j.requeues++
	n := j.requeues
	j.mu.Unlock()

	ahead := s.requeue(j)
	if ahead < 0 {
		s.finish(j, StatusFailed, inference.Result{}, ErrClosed)
		return -1
	}
	requeuesTotal.Inc()
	log.Info().Int("requeues", n).Msg("backend not ready, job requeued")
	return ahead
}

func (s *Scheduler) markRunning(j *Job) {
	if err := j.transition(StatusRunning); err != nil {
		return
	}
	if n := s.running.Add(1); n > 1 {
		s.log.Error().Int32("running", n).Str("job_id", j.ID).Msg("single inference slot violated")
	}
}

func (s *Scheduler) finish(j *Job, to Status, res inference.Result, err error) {
	prev, terr := j.finish(to, res.Text, res.Model, err)
	if terr != nil {
		return
	}
	if prev == StatusRunning {
		s.running.Add(-1)
	}
	snap := j.Snapshot()
	jobsTotal.WithLabelValues(string(j.Kind), string(to)).Inc()
	jobDuration.WithLabelValues(string(j.Kind)).Observe(snap.FinishedAt.Sub(snap.CreatedAt).Seconds())
	s.log.Info().Str("job_id", j.ID).Str("status", string(to)).Int("requeues", snap.Requeues).Msg("job finished")
	if s.cfg.Recorder != nil {
		// Fresh context: entries are written during shutdown too.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := s.cfg.Recorder.Record(ctx, snap); rerr != nil {
			s.log.Warn().Err(rerr).Str("job_id", j.ID).Msg("record job")
		}
	}
}
