package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/inference"
)

// fakeCompleter mimics the inference client: a not-ready answer skips
// OnAdmit, otherwise OnAdmit runs and work is invoked.
type fakeCompleter struct {
	ready func(call int) bool
	work  func(ctx context.Context, req inference.Request) (inference.Result, error)

	mu       sync.Mutex
	calls    int
	admitted []string

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeCompleter) Complete(ctx context.Context, req inference.Request) (inference.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.ready != nil && !f.ready(n) {
		return inference.Result{}, &inference.NotReadyError{State: "crashed"}
	}
	if req.OnAdmit != nil {
		req.OnAdmit()
	}
	f.mu.Lock()
	f.admitted = append(f.admitted, req.Prompt)
	f.mu.Unlock()

	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if cur <= m || f.maxInflight.CompareAndSwap(m, cur) {
			break
		}
	}
	if f.work != nil {
		return f.work(ctx, req)
	}
	return inference.Result{Text: "answer to " + req.Prompt, Model: "m"}, nil
}

func (f *fakeCompleter) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.admitted...)
}

type memRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *memRecorder) Record(ctx context.Context, s Snapshot) error {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	return nil
}

func (r *memRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

// waitSnaps polls until n snapshots were recorded; recording follows Done.
func (r *memRecorder) waitSnaps(t *testing.T, n int) []Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := r.all(); len(s) >= n {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d recorded snapshots, got %d", n, len(r.all()))
	return nil
}

func newTestScheduler(c Completer) *Scheduler {
	return NewScheduler(Config{
		Completer:       c,
		MaxDepth:        100,
		MaxRequeues:     3,
		RequeueDelay:    time.Millisecond,
		DefaultDeadline: 2 * time.Second,
		Logger:          zerolog.Nop(),
	})
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitJob(t *testing.T, j *Job) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil {
		t.Fatalf("job %s did not finish: %v", j.Payload.Prompt, err)
	}
	return j.Outcome()
}

func job(prompt string) *Job {
	return New(1, KindGeneral, Payload{Prompt: prompt})
}
