// Package inference wraps the backend completion endpoint. It is stateless:
// one request, one response, no retries.
package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/manager"
	"inferd/internal/ollama"
)

// Generator performs one non-streaming generation. *ollama.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (ollama.GenerateResponse, error)
}

// ModelSource reports backend readiness and the provisioned model.
// *manager.Manager satisfies it.
type ModelSource interface {
	manager.StateSource
	ActiveModel() string
}

// Options are per-request sampling overrides.
type Options = ollama.GenerateOptions

// Request is one completion call.
type Request struct {
	Prompt string
	// System overrides the configured system prompt when non-empty.
	System  string
	Options *Options
	// Timeout overrides the default deadline when positive.
	Timeout time.Duration
	// OnAdmit runs after the readiness check passed, right before the backend call.
	OnAdmit func()
}

// Result is a successful completion.
type Result struct {
	Text     string
	Model    string
	Duration time.Duration
}

// Config configures a Client.
type Config struct {
	Generator Generator
	Models    ModelSource
	Timeout   time.Duration
	System    string
	Options   Options
	Logger    zerolog.Logger
}

// ConfigFrom maps the inference section of the service configuration.
func ConfigFrom(c config.InferenceConfig, gen Generator, models ModelSource, log zerolog.Logger) Config {
	return Config{
		Generator: gen,
		Models:    models,
		Timeout:   c.Timeout.D(),
		System:    c.System,
		Options: Options{
			Temperature:   c.Temperature,
			NumPredict:    c.NumPredict,
			TopP:          c.TopP,
			RepeatPenalty: c.RepeatPenalty,
			NumThread:     c.NumThread,
		},
		Logger: log,
	}
}

// Client sends prompts to the active model.
type Client struct {
	cfg Config
	log zerolog.Logger
}

const defaultTimeout = 10 * time.Minute

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg, log: cfg.Logger.With().Str("component", "inference").Logger()}
}

// DefaultTimeout is the deadline applied to requests that do not set one.
func (c *Client) DefaultTimeout() time.Duration { return c.cfg.Timeout }

// Complete runs one generation against the active model.
func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	if st := c.cfg.Models.State(); st != manager.StateReady {
		return Result{}, &NotReadyError{State: string(st)}
	}
	model := c.cfg.Models.ActiveModel()
	if model == "" {
		return Result{}, &NotReadyError{State: "no model"}
	}

	timeout := c.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	opts := c.cfg.Options
	if req.Options != nil {
		opts = *req.Options
	}
	system := c.cfg.System
	if req.System != "" {
		system = req.System
	}

	if req.OnAdmit != nil {
		req.OnAdmit()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.cfg.Generator.Generate(callCtx, ollama.GenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		System:  system,
		Options: opts,
	})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Result{}, &TimeoutError{After: timeout}
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		var se *ollama.StatusError
		if errors.As(err, &se) {
			return Result{}, &Error{Reason: "backend rejected request", Err: err}
		}
		return Result{}, &Error{Reason: "request failed", Err: err}
	}
	if resp.Error != "" {
		return Result{}, &Error{Reason: resp.Error}
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return Result{}, &Error{Reason: "empty response"}
	}
	c.log.Debug().Str("model", model).Dur("elapsed", elapsed).Int("chars", len(text)).Msg("completion")
	return Result{Text: text, Model: model, Duration: elapsed}, nil
}
