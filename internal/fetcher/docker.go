package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"inferd/internal/config"
)

const (
	defaultImage       = "chromedp/headless-shell:latest"
	defaultMemoryMB    = 512
	defaultMaxDOMBytes = 2 << 20
	pidsLimit          = 256
	stderrKeepBytes    = 2048
	chromeBinary       = "/headless-shell/headless-shell"
	containerPrefix    = "inferd-fetch-"
	imagePullTimeout   = 10 * time.Minute
)

// DockerConfig configures DockerBrowser.
type DockerConfig struct {
	Image string
	// Runtime selects the OCI runtime ("" for the daemon default, "runsc" for gVisor).
	Runtime     string
	MemoryMB    int
	MaxDOMBytes int
	Logger      zerolog.Logger
}

// DockerConfigFrom maps the fetcher section of the service configuration.
func DockerConfigFrom(c config.FetcherConfig, log zerolog.Logger) DockerConfig {
	return DockerConfig{
		Image:       c.Image,
		Runtime:     c.Runtime,
		MemoryMB:    c.MemoryMB,
		MaxDOMBytes: c.MaxDOMBytes,
		Logger:      log,
	}
}

// DockerBrowser renders pages in short-lived headless Chrome containers,
// one container per session.
type DockerBrowser struct {
	cli client.APIClient
	cfg DockerConfig
	log zerolog.Logger

	// pulls collapses concurrent pulls of the browser image. They run on
	// base, which only Close cancels, never on a fetch deadline.
	pulls  singleflight.Group
	base   context.Context
	cancel context.CancelFunc
}

// NewDockerBrowser connects to the Docker daemon from the environment.
func NewDockerBrowser(cfg DockerConfig) (*DockerBrowser, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newDockerBrowser(cli, cfg), nil
}

func newDockerBrowser(cli client.APIClient, cfg DockerConfig) *DockerBrowser {
	if cfg.Image == "" {
		cfg.Image = defaultImage
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = defaultMemoryMB
	}
	if cfg.MaxDOMBytes <= 0 {
		cfg.MaxDOMBytes = defaultMaxDOMBytes
	}
	base, cancel := context.WithCancel(context.Background())
	return &DockerBrowser{
		cli:    cli,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "docker_browser").Logger(),
		base:   base,
		cancel: cancel,
	}
}

// Ping checks that the daemon is reachable.
func (b *DockerBrowser) Ping(ctx context.Context) error {
	_, err := b.cli.Ping(ctx)
	return err
}

// Close aborts a running image pull and releases the daemon connection.
func (b *DockerBrowser) Close() error {
	b.cancel()
	return b.cli.Close()
}

// Open names the session's container up front, so it can be removed even
// when the create call fails after the daemon acted on it.
func (b *DockerBrowser) Open(ctx context.Context) (Session, error) {
	return &dockerSession{b: b, name: containerPrefix + uuid.NewString()}, nil
}

// EnsureImage pulls the browser image unless the daemon already has it.
func (b *DockerBrowser) EnsureImage(ctx context.Context) error {
	_, err := b.cli.ImageInspect(ctx, b.cfg.Image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", b.cfg.Image, err)
	}
	_, err, _ = b.pulls.Do(b.cfg.Image, func() (any, error) {
		return nil, b.pullImage(ctx)
	})
	return err
}

// pullInBackground starts an image pull detached from any fetch.
func (b *DockerBrowser) pullInBackground() {
	go func() {
		ctx, cancel := context.WithTimeout(b.base, imagePullTimeout)
		defer cancel()
		if err := b.EnsureImage(ctx); err != nil && b.base.Err() == nil {
			b.log.Warn().Err(err).Str("image", b.cfg.Image).Msg("browser image pull failed")
		}
	}()
}

// containerSpec builds the sandboxed container for one page render.
func containerSpec(cfg DockerConfig, pageURL string) (*container.Config, *container.HostConfig) {
	cc := &container.Config{
		Image:      cfg.Image,
		User:       "65534:65534",
		Entrypoint: []string{chromeBinary},
		Cmd: []string{
			"--no-sandbox",
			"--disable-gpu",
			"--disable-dev-shm-usage",
			"--disable-extensions",
			"--hide-scrollbars",
			"--mute-audio",
			"--dump-dom",
			pageURL,
		},
		Env:    []string{"HOME=/tmp"},
		Labels: map[string]string{"inferd.role": "page-fetch"},
	}
	hc := &container.HostConfig{
		Runtime:        cfg.Runtime,
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=128m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:    int64(cfg.MemoryMB) * 1024 * 1024,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}
	return cc, hc
}

type dockerSession struct {
	b    *DockerBrowser
	name string

	mu sync.Mutex
	// created is set before the create call, since a timed out call may
	// still leave a container behind.
	created bool
}

func (s *dockerSession) Navigate(ctx context.Context, pageURL string) (Document, error) {
	cc, hc := containerSpec(s.b.cfg, pageURL)
	s.mu.Lock()
	s.created = true
	s.mu.Unlock()
	resp, err := s.b.cli.ContainerCreate(ctx, cc, hc, nil, nil, s.name)
	if errdefs.IsNotFound(err) {
		s.b.pullInBackground()
		return Document{}, fmt.Errorf("browser image %s is not available yet, pulling it: %w", s.b.cfg.Image, err)
	}
	if err != nil {
		return Document{}, fmt.Errorf("create container %s: %w", s.name, err)
	}

	if err := s.b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Document{}, fmt.Errorf("start container %s: %w", short(resp.ID), err)
	}

	waitCh, errCh := s.b.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exit container.WaitResponse
	select {
	case <-ctx.Done():
		return Document{}, ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			return Document{}, ctx.Err()
		}
		return Document{}, fmt.Errorf("wait container %s: %w", short(resp.ID), err)
	case exit = <-waitCh:
	}

	logs, err := s.b.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Document{}, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()
	stdout := &cappedBuffer{max: s.b.cfg.MaxDOMBytes}
	stderr := &cappedBuffer{max: stderrKeepBytes}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		return Document{}, fmt.Errorf("demultiplex container logs: %w", err)
	}

	if exit.StatusCode != 0 {
		return Document{}, fmt.Errorf("browser exited with status %d: %s", exit.StatusCode, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return Document{}, errors.New("browser returned an empty document")
	}
	if stdout.truncated {
		s.b.log.Debug().Str("url", pageURL).Int("max_bytes", s.b.cfg.MaxDOMBytes).Msg("DOM truncated")
	}
	return Document{URL: pageURL, HTML: stdout.String()}, nil
}

// Close force-removes the container by name. A container that is already
// gone, or was never created, counts as removed.
func (s *dockerSession) Close(ctx context.Context) error {
	s.mu.Lock()
	created := s.created
	s.created = false
	s.mu.Unlock()
	if !created {
		return nil
	}
	err := s.b.cli.ContainerRemove(ctx, s.name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", s.name, err)
	}
	return nil
}

func (b *DockerBrowser) pullImage(ctx context.Context) error {
	b.log.Info().Str("image", b.cfg.Image).Msg("pulling browser image")
	start := time.Now()
	rc, err := b.cli.ImagePull(ctx, b.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", b.cfg.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: %w", b.cfg.Image, err)
	}
	b.log.Info().Str("image", b.cfg.Image).Dur("elapsed", time.Since(start)).Msg("browser image ready")
	return nil
}

// cappedBuffer keeps the first max bytes and silently drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	max       int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.max - c.Buffer.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.Buffer.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.Buffer.Write(p)
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func ptr[T any](v T) *T {
	return &v
}
