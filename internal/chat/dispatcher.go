// Package chat connects a chat transport to the router and the job queue and
// delivers exactly one reply per job.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"inferd/internal/jobs"
	"inferd/internal/router"
	"inferd/pkg/types"
)

type Router interface {
	Route(ctx context.Context, msg router.Message) (router.Routed, error)
}

type Queue interface {
	Enqueue(j *jobs.Job) (int, error)
	Depth() int
	Running() int
}

// BackendReporter supplies the /status backend line.
type BackendReporter interface {
	Status() types.BackendStatus
}

// History supplies /history.
type History interface {
	Recent(ctx context.Context, chatID int64, limit int) ([]jobs.Snapshot, error)
}

type Config struct {
	Transport Transport
	Router    Router
	Queue     Queue
	// Backend and History are optional.
	Backend BackendReporter
	History History

	ReplyAttempts int
	ReplyBackoff  time.Duration
	ReplyTimeout  time.Duration
	PollBackoff   time.Duration
	HistoryLimit  int
	Logger        zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.ReplyAttempts <= 0 {
		c.ReplyAttempts = 3
	}
	if c.ReplyBackoff <= 0 {
		c.ReplyBackoff = 500 * time.Millisecond
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 30 * time.Second
	}
	if c.PollBackoff <= 0 {
		c.PollBackoff = 5 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
}

// Outcome is how an update was handled.
type Outcome string

const (
	OutcomeQueued   Outcome = "queued"
	OutcomeReplied  Outcome = "replied"
	OutcomeRejected Outcome = "rejected"
)

// Result describes a handled update. For OutcomeQueued the reply follows
// asynchronously once Job finishes.
type Result struct {
	Outcome  Outcome
	Job      *jobs.Job
	Position int
	Err      error
}

type Dispatcher struct {
	cfg Config
	log zerolog.Logger
	wg  sync.WaitGroup

	// mu is held shared by Handle and exclusively by shutdown, so no reply
	// goroutine is added to wg once Run started waiting on it.
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(cfg Config) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{cfg: cfg, log: cfg.Logger.With().Str("component", "dispatcher").Logger()}
}

// Run polls the transport and handles every update in its own goroutine. It
// returns nil after ctx is cancelled and every pending reply was delivered.
// Updates handed to Handle after that are rejected with jobs.ErrClosed.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.wg.Wait()
	}()
	for {
		updates, err := d.cfg.Transport.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			d.log.Warn().Err(err).Dur("retry_in", d.cfg.PollBackoff).Msg("poll failed")
			t := time.NewTimer(d.cfg.PollBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}
		for _, u := range updates {
			d.wg.Add(1)
			go func(u Update) {
				defer d.wg.Done()
				d.Handle(ctx, u)
			}(u)
		}
	}
}

// Wait blocks until every job reply started by Handle has been delivered.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Handle routes one update. Local commands and rejections are answered before
// it returns; queued jobs are answered when they finish.
func (d *Dispatcher) Handle(ctx context.Context, u Update) Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	log := d.log.With().Int64("chat_id", u.ChatID).Logger()
	var res Result
	if d.closed {
		log.Info().Msg("update after shutdown")
		d.reply(ctx, u.ChatID, errorMessage(jobs.ErrClosed))
		res = Result{Outcome: OutcomeRejected, Err: jobs.ErrClosed}
	} else {
		res = d.handle(ctx, u, log)
	}
	updatesTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (d *Dispatcher) handle(ctx context.Context, u Update, log zerolog.Logger) Result {
	if u.DocumentErr != nil {
		log.Warn().Err(u.DocumentErr).Str("document", u.DocumentName).Msg("attachment unavailable")
		d.reply(ctx, u.ChatID, "I could not read the attached file: "+detail(u.DocumentErr))
		return Result{Outcome: OutcomeRejected, Err: u.DocumentErr}
	}
	routed, err := d.cfg.Router.Route(ctx, router.Message{
		ChatID:       u.ChatID,
		Text:         u.Text,
		Document:     u.Document,
		DocumentName: u.DocumentName,
	})
	if err != nil {
		log.Info().Err(err).Msg("request rejected")
		d.reply(ctx, u.ChatID, errorMessage(err))
		return Result{Outcome: OutcomeRejected, Err: err}
	}
	if routed.Local != router.LocalNone {
		d.reply(ctx, u.ChatID, d.localReply(ctx, u.ChatID, routed.Local))
		return Result{Outcome: OutcomeReplied}
	}

	j := routed.Job
	pos, err := d.cfg.Queue.Enqueue(j)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(j.Kind)).Msg("enqueue failed")
		d.reply(ctx, u.ChatID, errorMessage(err))
		return Result{Outcome: OutcomeRejected, Err: err}
	}
	log.Info().Str("job_id", j.ID).Str("kind", string(j.Kind)).Int("position", pos).Msg("job queued")
	if t, ok := d.cfg.Transport.(Typer); ok {
		if err := t.Typing(ctx, u.ChatID); err != nil {
			log.Debug().Err(err).Msg("typing indicator")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// The scheduler drives every job to a terminal state, including on shutdown.
		<-j.Done()
		d.reply(ctx, j.ChatID, jobReply(j.Outcome()))
	}()
	return Result{Outcome: OutcomeQueued, Job: j, Position: pos}
}

func (d *Dispatcher) localReply(ctx context.Context, chatID int64, l router.Local) string {
	switch l {
	case router.LocalStart, router.LocalHelp:
		return router.WelcomeText
	case router.LocalIntroduction:
		return router.IntroductionText
	case router.LocalStatus:
		var b *types.BackendStatus
		if d.cfg.Backend != nil {
			st := d.cfg.Backend.Status()
			b = &st
		}
		return statusText(b, d.cfg.Queue.Depth(), d.cfg.Queue.Running())
	case router.LocalHistory:
		if d.cfg.History == nil {
			return "History is not available on this server."
		}
		snaps, err := d.cfg.History.Recent(ctx, chatID, d.cfg.HistoryLimit)
		if err != nil {
			d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("history lookup")
			return "History is temporarily unavailable."
		}
		return historyText(snaps)
	default:
		return router.HelpText
	}
}

// reply delivers text with bounded exponential retries. Delivery runs on a
// context detached from ctx's cancellation so shutdown replies still go out.
func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	base := context.WithoutCancel(ctx)
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.ReplyBackoff
	policy := backoff.WithMaxRetries(eb, uint64(d.cfg.ReplyAttempts-1))

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		sendCtx, cancel := context.WithTimeout(base, d.cfg.ReplyTimeout)
		defer cancel()
		return d.cfg.Transport.Send(sendCtx, chatID, text)
	}, policy)
	if err != nil {
		repliesTotal.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).Int64("chat_id", chatID).Int("attempts", attempt).Msg("reply delivery failed")
		return
	}
	repliesTotal.WithLabelValues("delivered").Inc()
}
