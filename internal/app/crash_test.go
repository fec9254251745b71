package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/manager"
	"inferd/pkg/types"
)

// stubProcess stands in for the backend process; exit simulates a crash.
type stubProcess struct {
	pid  int
	done chan struct{}
	once sync.Once
}

func (p *stubProcess) Pid() int                 { return p.pid }
func (p *stubProcess) Done() <-chan struct{}    { return p.done }
func (p *stubProcess) Err() error               { return nil }
func (p *stubProcess) StderrTail() string       { return "" }
func (p *stubProcess) Stop(time.Duration) error { p.exit(); return nil }
func (p *stubProcess) exit()                    { p.once.Do(func() { close(p.done) }) }

type stubLauncher struct {
	mu    sync.Mutex
	procs []*stubProcess
}

func (l *stubLauncher) Launch(ctx context.Context) (manager.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &stubProcess{pid: 2000 + len(l.procs), done: make(chan struct{})}
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *stubLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *stubLauncher) proc(i int) *stubProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

// flakyOllama answers only while up is set and records generate prompts in order.
type flakyOllama struct {
	up        atomic.Bool
	downPings atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (f *flakyOllama) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.up.Load() {
			if r.URL.Path == "/api/tags" {
				f.downPings.Add(1)
			}
			http.Error(w, "backend down", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"tiny:latest"}]}`))
		case "/api/generate":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.prompts = append(f.prompts, string(body))
			f.mu.Unlock()
			w.Write([]byte(`{"model":"tiny:latest","response":"pong","done":true}`))
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *flakyOllama) generated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func TestQueuedJobsSurviveBackendCrash(t *testing.T) {
	backend := &flakyOllama{}
	backend.up.Store(true)
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Backend.HealthInterval = config.Duration(10 * time.Millisecond)
	cfg.Backend.RestartBackoff = config.Duration(20 * time.Millisecond)
	cfg.Backend.ReadyAttempts = 1000
	cfg.Backend.ReadyTimeout = config.Duration(20 * time.Second)
	cfg.Backend.StopGrace = config.Duration(10 * time.Millisecond)
	cfg.Queue.MaxRequeues = 1000
	cfg.Queue.RequeueDelay = config.Duration(5 * time.Millisecond)

	launcher := &stubLauncher{}
	a, err := newApp(cfg, zerolog.Nop(), launcher)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	waitFor(t, "backend ready", a.Ready)

	backend.up.Store(false)
	launcher.proc(0).exit()
	waitFor(t, "relaunch after crash", func() bool { return launcher.launches() == 2 })
	if a.Ready() {
		t.Fatal("ready while the relaunched backend is not answering")
	}

	for i, text := range []string{"/ask first-job-delta", "/ask second-job-echo"} {
		resp, err := a.HandleUpdate(context.Background(), types.UpdateRequest{ChatID: int64(i + 1), Text: text})
		if err != nil || resp.Outcome != "queued" {
			t.Fatalf("%q: resp=%+v err=%v", text, resp, err)
		}
	}
	n := backend.downPings.Load()
	waitFor(t, "readiness polling of the new process", func() bool { return backend.downPings.Load() >= n+5 })
	if got := backend.generated(); len(got) != 0 {
		t.Fatalf("generated while backend down: %v", got)
	}
	if r, _ := a.Replies(0); len(r) != 0 {
		t.Fatalf("replies before recovery: %+v", r)
	}

	backend.up.Store(true)
	waitFor(t, "both replies", func() bool {
		r, _ := a.Replies(0)
		return len(r) == 2
	})

	prompts := backend.generated()
	if len(prompts) != 2 || !strings.Contains(prompts[0], "first-job-delta") || !strings.Contains(prompts[1], "second-job-echo") {
		t.Fatalf("jobs ran out of order: %q", prompts)
	}
	for _, chatID := range []int64{1, 2} {
		r, _ := a.Replies(chatID)
		if len(r) != 1 || !strings.HasPrefix(r[0].Text, "pong") {
			t.Fatalf("chat %d replies=%+v", chatID, r)
		}
	}
	st := a.manager.Status()
	if st.State != string(manager.StateReady) || st.Restarts != 1 || st.PID != 2001 {
		t.Fatalf("backend status=%+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
