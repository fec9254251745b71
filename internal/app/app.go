// Package app assembles the service: backend supervisor, inference client,
// job scheduler, request router, chat dispatcher and the operator HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"inferd/internal/chat"
	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/fetcher"
	"inferd/internal/httpapi"
	"inferd/internal/inference"
	"inferd/internal/jobs"
	"inferd/internal/manager"
	"inferd/internal/ollama"
	"inferd/internal/router"
	"inferd/internal/store"
	"inferd/pkg/types"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

// App owns every long-lived component. It implements httpapi.Service.
type App struct {
	cfg  config.Config
	root zerolog.Logger
	log  zerolog.Logger

	backend    *ollama.Client
	manager    *manager.Manager
	scheduler  *jobs.Scheduler
	dispatcher *chat.Dispatcher
	store      *store.Store
	browser    *fetcher.DockerBrowser
	telegram   *chat.Telegram
	// loopback is set when no external chat transport is configured.
	loopback *chat.Loopback
}

// New builds the component graph from cfg. Nothing is started until Run.
func New(cfg config.Config, log zerolog.Logger) (*App, error) {
	return newApp(cfg, log, nil)
}

// newApp is New with an optional launcher replacing the one cfg selects.
func newApp(cfg config.Config, log zerolog.Logger, launcher manager.Launcher) (*App, error) {
	a := &App{cfg: cfg, root: log, log: log.With().Str("component", "app").Logger()}

	a.backend = ollama.New(cfg.Backend.URL)
	mcfg := manager.ConfigFrom(cfg, a.backend, log)
	if launcher != nil {
		mcfg.Launcher = launcher
	}
	a.manager = manager.New(mcfg)
	infer := inference.New(inference.ConfigFrom(cfg.Inference, a.backend, a.manager, log))

	var rec jobs.Recorder
	var hist chat.History
	if cfg.Store.Path != "" {
		path, err := fsutil.ExpandHome(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("store path: %w", err)
		}
		st, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		a.store = st
		rec, hist = st, st
	}
	a.scheduler = jobs.NewScheduler(jobs.ConfigFrom(cfg, infer, rec, log))

	var pf router.PageFetcher
	if cfg.Fetcher.Enabled {
		b, err := fetcher.NewDockerBrowser(fetcher.DockerConfigFrom(cfg.Fetcher, log))
		if err != nil {
			a.log.Warn().Err(err).Msg("page fetching disabled")
		} else {
			a.browser = b
			pf = fetcher.New(b, cfg.Fetcher.Timeout.D(), log)
		}
	}
	rt := router.New(router.ConfigFrom(cfg, pf, log))

	var transport chat.Transport
	if cfg.Telegram.Token != "" {
		tg, err := chat.NewTelegram(chat.TelegramConfigFrom(cfg.Telegram, log))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.telegram, transport = tg, tg
	} else {
		a.loopback = chat.NewLoopback()
		transport = a.loopback
		a.log.Info().Msg("no telegram token; replies are served on /v1/replies")
	}

	a.dispatcher = chat.NewDispatcher(chat.Config{
		Transport: transport,
		Router:    rt,
		Queue:     a.scheduler,
		Backend:   a.manager,
		History:   hist,
		Logger:    log,
	})
	return a, nil
}

// Handler returns the operator HTTP API.
func (a *App) Handler() http.Handler { return httpapi.NewMux(a) }

// Run starts every component and blocks until ctx is cancelled or one of them
// fails. Queued jobs are failed and answered before Run returns.
func (a *App) Run(ctx context.Context) error {
	httpapi.SetLogger(a.root)
	httpapi.SetAuthToken(a.cfg.HTTP.Token)
	httpapi.SetCORSOptions(a.cfg.HTTP.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	if a.browser != nil {
		if err := a.browser.Ping(ctx); err != nil {
			a.log.Warn().Err(err).Msg("docker daemon unreachable; page fetches will fail")
		}
	}

	if a.telegram != nil {
		ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
		name, err := a.telegram.Identify(ictx)
		cancel()
		if err != nil {
			a.log.Warn().Err(err).Msg("telegram bot identity check failed")
		} else {
			a.log.Info().Str("bot", name).Msg("telegram bot connected")
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.manager.Run(gctx); err != nil {
			return fmt.Errorf("backend supervisor: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.dispatcher.Run(gctx) })
	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})
	if a.store != nil && a.cfg.Store.Retention > 0 {
		g.Go(func() error { return a.pruneLoop(gctx) })
	}
	if a.browser != nil {
		g.Go(func() error {
			if err := a.browser.EnsureImage(gctx); err != nil && gctx.Err() == nil {
				a.log.Warn().Err(err).Msg("browser image unavailable; page fetches will fail until it is pulled")
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *App) pruneLoop(ctx context.Context) error {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		cutoff := time.Now().Add(-a.cfg.Store.Retention.D())
		if n, err := a.store.Prune(ctx, cutoff); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.log.Warn().Err(err).Msg("ledger prune")
		} else if n > 0 {
			a.log.Info().Int64("removed", n).Msg("ledger pruned")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Close releases the ledger and the Docker client.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.browser != nil {
		errs = append(errs, a.browser.Close())
	}
	return errors.Join(errs...)
}

func (a *App) Status(ctx context.Context) types.StatusResponse {
	resp := types.StatusResponse{
		Backend: a.manager.Status(),
		Queue: types.QueueStatus{
			Depth:    a.scheduler.Depth(),
			Running:  a.scheduler.Running(),
			MaxDepth: a.scheduler.MaxDepth(),
		},
		ServerTimeUnix: time.Now().Unix(),
	}
	if a.store != nil {
		counts, err := a.store.Counts(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("ledger counts")
		} else {
			resp.Jobs = counts
		}
	}
	return resp
}

func (a *App) Ready() bool { return a.manager.Ready() }

// Models lists the backend inventory annotated with fallback-chain positions.
func (a *App) Models(ctx context.Context) (types.ModelsResponse, error) {
	names, err := a.backend.ListModels(ctx)
	if err != nil {
		return types.ModelsResponse{}, err
	}
	return types.ModelsResponse{Models: ModelEntries(names, a.cfg.Models.Chain(), a.manager.ActiveModel())}, nil
}

// ModelEntries pairs installed model names with their index in chain
// (-1 when not configured) and marks the active one.
func ModelEntries(installed, chain []string, active string) []types.ModelEntry {
	out := make([]types.ModelEntry, 0, len(installed))
	for _, name := range installed {
		one := []string{name}
		e := types.ModelEntry{Name: name, ChainIndex: -1}
		for i, c := range chain {
			if ollama.HasModel(one, c) {
				e.ChainIndex = i
				break
			}
		}
		e.Active = active != "" && ollama.HasModel(one, active)
		out = append(out, e)
	}
	return out
}

func (a *App) HandleUpdate(ctx context.Context, req types.UpdateRequest) (types.UpdateResponse, error) {
	res := a.dispatcher.Handle(ctx, chat.Update{
		ChatID:       req.ChatID,
		Text:         req.Text,
		Document:     req.Document,
		DocumentName: req.DocumentName,
	})
	resp := types.UpdateResponse{Outcome: string(res.Outcome), Position: res.Position}
	if res.Job != nil {
		resp.JobID = res.Job.ID
	}
	return resp, res.Err
}

func (a *App) Replies(chatID int64) ([]types.Reply, bool) {
	if a.loopback == nil {
		return nil, false
	}
	rs := a.loopback.Replies(chatID)
	out := make([]types.Reply, len(rs))
	for i, r := range rs {
		out[i] = types.Reply{ChatID: r.ChatID, Text: r.Text}
	}
	return out, true
}
