package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/fetcher"
	"inferd/internal/inference"
	"inferd/internal/jobs"
	"inferd/internal/router"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, url string, opts fetcher.Options) (fetcher.Page, error) {
	return fetcher.Page{URL: url, Title: "Example", Text: "page body for " + url}, nil
}

// echoCompleter answers with the first prompt line and records start order.
type echoCompleter struct {
	mu    sync.Mutex
	order []string
}

func (c *echoCompleter) Complete(ctx context.Context, req inference.Request) (inference.Result, error) {
	if req.OnAdmit != nil {
		req.OnAdmit()
	}
	first, _, _ := strings.Cut(req.Prompt, "\n")
	c.mu.Lock()
	c.order = append(c.order, first)
	c.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	return inference.Result{Text: "done: " + first, Model: "test-model"}, nil
}

func (c *echoCompleter) started() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

type fixture struct {
	lb    *Loopback
	sched *jobs.Scheduler
	comp  *echoCompleter
	d     *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	comp := &echoCompleter{}
	sched := jobs.NewScheduler(jobs.Config{
		Completer:       comp,
		MaxDepth:        10,
		MaxRequeues:     1,
		RequeueDelay:    time.Millisecond,
		DefaultDeadline: 2 * time.Second,
		Logger:          zerolog.Nop(),
	})
	lb := NewLoopback()
	r := router.New(router.Config{Fetcher: stubFetcher{}, MaxDeadline: time.Hour, Logger: zerolog.Nop()})
	d := NewDispatcher(Config{
		Transport:    lb,
		Router:       r,
		Queue:        sched,
		ReplyBackoff: time.Millisecond,
		PollBackoff:  time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	return &fixture{lb: lb, sched: sched, comp: comp, d: d}
}

func (f *fixture) startScheduler(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		f.d.Wait()
	})
}

func waitReplies(t *testing.T, lb *Loopback, n int) []Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := lb.WaitReplies(ctx, n)
	if err != nil {
		t.Fatalf("waiting for %d replies, got %d: %v", n, len(got), err)
	}
	return got
}
