package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/ollama"
)

// fakeProcess is an in-memory Process whose exit is triggered by the test.
type fakeProcess struct {
	pid     int
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	tail    string
	stopped bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) StderrTail() string    { return p.tail }

func (p *fakeProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProcess) Stop(time.Duration) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.exit(nil)
	return nil
}

func (p *fakeProcess) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// fakeLauncher hands out fakeProcesses and records every launch.
type fakeLauncher struct {
	mu    sync.Mutex
	err   error
	procs []*fakeProcess
}

func (l *fakeLauncher) Launch(ctx context.Context) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		l.procs = append(l.procs, nil)
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.procs))
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) proc(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.procs) {
		return nil
	}
	return l.procs[i]
}

// fakeBackend scripts ping, inventory and pull results.
type fakeBackend struct {
	mu        sync.Mutex
	pings     int
	pingFn    func(n int) error
	inventory []string
	pullErr   map[string]error
	pulled    []string
}

func (b *fakeBackend) Ping(ctx context.Context) error {
	b.mu.Lock()
	b.pings++
	n := b.pings
	fn := b.pingFn
	b.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(n)
}

func (b *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.inventory...), nil
}

func (b *fakeBackend) PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error {
	b.mu.Lock()
	b.pulled = append(b.pulled, name)
	err := b.pullErr[name]
	b.mu.Unlock()
	if onProgress != nil {
		onProgress(ollama.PullProgress{Status: "pulling manifest"})
	}
	return err
}

func (b *fakeBackend) setPing(fn func(n int) error) {
	b.mu.Lock()
	b.pingFn = fn
	b.mu.Unlock()
}

func (b *fakeBackend) pingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings
}

func (b *fakeBackend) pulls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.pulled...)
}

var errRefused = errors.New("connection refused")

// testConfig returns a fast-ticking Config wired to the given fakes.
func testConfig(l Launcher, b Backend) Config {
	return Config{
		Launcher:              l,
		Backend:               b,
		URL:                   "http://backend.test",
		Models:                config.ModelSpec{Primary: "big", Fallbacks: []string{"mid", "small"}},
		ReadyTimeout:          2 * time.Second,
		ReadyPollInterval:     time.Millisecond,
		ReadyAttempts:         50,
		HealthInterval:        5 * time.Millisecond,
		DegradedThreshold:     3,
		RestartBackoff:        time.Millisecond,
		MaxConsecutiveCrashes: 3,
		StableAfter:           time.Hour,
		PullTimeout:           time.Second,
		StopGrace:             10 * time.Millisecond,
		Logger:                zerolog.Nop(),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// eventLog records published lifecycle events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) Count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Name
	}
	return out
}
