package manager

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWaitUntilReady_KPlusOneChecks(t *testing.T) {
	for _, k := range []int{0, 1, 4} {
		b := &fakeBackend{pingFn: func(n int) error {
			if n <= k {
				return errRefused
			}
			return nil
		}}
		m := New(testConfig(nil, b))
		if err := m.WaitUntilReady(context.Background(), time.Second, time.Millisecond); err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if got := b.pingCount(); got != k+1 {
			t.Fatalf("k=%d: checks=%d want %d", k, got, k+1)
		}
	}
}

func TestWaitUntilReady_AttemptsExhausted(t *testing.T) {
	b := &fakeBackend{pingFn: func(int) error { return errRefused }}
	cfg := testConfig(nil, b)
	cfg.ReadyAttempts = 5
	m := New(cfg)
	err := m.WaitUntilReady(context.Background(), time.Second, time.Millisecond)
	if !IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
	if got := b.pingCount(); got != 5 {
		t.Fatalf("checks=%d want 5", got)
	}
}

func TestWaitUntilReady_Timeout(t *testing.T) {
	b := &fakeBackend{pingFn: func(int) error { return errRefused }}
	cfg := testConfig(nil, b)
	cfg.ReadyAttempts = 100000
	m := New(cfg)
	start := time.Now()
	err := m.WaitUntilReady(context.Background(), 50*time.Millisecond, 5*time.Millisecond)
	if !IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
	if el := time.Since(start); el > time.Second {
		t.Fatalf("wait not bounded by timeout: %s", el)
	}
}

func TestWaitUntilReady_EarlyExitCarriesStderrTail(t *testing.T) {
	l := &fakeLauncher{}
	b := &fakeBackend{pingFn: func(int) error { return errRefused }}
	cfg := testConfig(l, b)
	cfg.ReadyAttempts = 100000
	m := New(cfg)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	p := l.proc(0)
	p.tail = "Error: listen tcp 127.0.0.1:11434: bind: address already in use"
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.exit(errors.New("exit status 1"))
	}()
	start := time.Now()
	err := m.WaitUntilReady(context.Background(), 10*time.Second, 50*time.Millisecond)
	if !IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "address already in use") {
		t.Fatalf("stderr tail missing: %v", err)
	}
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("early exit not detected promptly: %s", el)
	}
}

func TestWaitUntilReady_ParentCancel(t *testing.T) {
	b := &fakeBackend{pingFn: func(int) error { return errRefused }}
	cfg := testConfig(nil, b)
	cfg.ReadyAttempts = 100000
	m := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := m.WaitUntilReady(ctx, 10*time.Second, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
