package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const stderrTailBytes = 4096

// Process is a running backend instance.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Stop terminates the process, escalating to a kill after grace.
	Stop(grace time.Duration) error
	// StderrTail returns the last bytes written to stderr.
	StderrTail() string
}

// Launcher starts backend processes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher runs the backend binary as a child process.
type ExecLauncher struct {
	Bin  string
	Args []string
	Env  []string
}

func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if l.Bin == "" {
		return nil, errors.New("backend binary is empty")
	}
	// Not CommandContext: the supervisor owns termination and wants SIGTERM first.
	cmd := exec.Command(l.Bin, l.Args...)
	cmd.Env = append(os.Environ(), l.Env...)
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Bin, err)
	}
	p := &execProcess{cmd: cmd, tail: tail, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	tail *tailBuffer
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) StderrTail() string    { return p.tail.String() }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stop sends SIGTERM, then kills the process if it has not exited after grace.
func (p *execProcess) Stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
