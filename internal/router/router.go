// Package router classifies chat messages and turns them into jobs, fetching
// and embedding any page or document the request refers to.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/fetcher"
	"inferd/internal/jobs"
)

// PageFetcher renders a page and returns its text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts fetcher.Options) (fetcher.Page, error)
}

// Message is one inbound chat message.
type Message struct {
	ChatID int64
	Text   string
	// Document is the text of an attached file, if any.
	Document     string
	DocumentName string
}

// RequestContext is everything known about a request before it is enqueued.
type RequestContext struct {
	Message  Message
	Intent   Intent
	URL      string
	Keyword  string
	Code     string
	Page     *fetcher.Page
	PageText string
}

// Routed is the result of routing: either a local command or a job ready to enqueue.
type Routed struct {
	Local   Local
	Job     *jobs.Job
	Request RequestContext
}

var kindDeadlines = map[jobs.Kind]time.Duration{
	jobs.KindWebsite: 300 * time.Second,
	jobs.KindAPI:     300 * time.Second,
	jobs.KindCode:    240 * time.Second,
	jobs.KindGeneral: 180 * time.Second,
	jobs.KindSearch:  120 * time.Second,
}

const (
	defaultMaxPageChars     = 4000
	defaultMaxDocumentChars = 8000
	knowledgeFiles          = 5
	knowledgeChars          = 500
)

type Config struct {
	// Fetcher is nil when page fetching is disabled.
	Fetcher          PageFetcher
	MaxPageChars     int
	MaxDocumentChars int
	KnowledgeDir     string
	// MaxDeadline caps every per-kind deadline.
	MaxDeadline time.Duration
	Logger      zerolog.Logger
}

// ConfigFrom maps the service configuration. f is ignored when the fetcher is disabled.
func ConfigFrom(c config.Config, f PageFetcher, log zerolog.Logger) Config {
	cfg := Config{
		MaxPageChars:     c.Router.MaxPageChars,
		MaxDocumentChars: c.Router.MaxDocumentChars,
		KnowledgeDir:     c.Router.KnowledgeDir,
		MaxDeadline:      c.Inference.Timeout.D(),
		Logger:           log,
	}
	if c.Fetcher.Enabled {
		cfg.Fetcher = f
	}
	return cfg
}

type Router struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) *Router {
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = defaultMaxPageChars
	}
	if cfg.MaxDocumentChars <= 0 {
		cfg.MaxDocumentChars = defaultMaxDocumentChars
	}
	return &Router{cfg: cfg, log: cfg.Logger.With().Str("component", "router").Logger()}
}

// Deadline returns the inference deadline for kind, capped by the configured maximum.
func (r *Router) Deadline(kind jobs.Kind) time.Duration {
	d := kindDeadlines[kind]
	if d == 0 {
		d = kindDeadlines[jobs.KindGeneral]
	}
	if r.cfg.MaxDeadline > 0 && d > r.cfg.MaxDeadline {
		d = r.cfg.MaxDeadline
	}
	return d
}

// Route classifies msg and builds its job. Website analysis fetches the page
// synchronously; fetch errors are returned unchanged.
func (r *Router) Route(ctx context.Context, msg Message) (Routed, error) {
	var (
		in  Intent
		err error
	)
	if msg.Document != "" {
		// An uploaded file is always reviewed as code; the caption is the request.
		in = Intent{Kind: jobs.KindCode, Command: "code", Args: strings.TrimSpace(msg.Text)}
	} else if in, err = Classify(msg.Text); err != nil {
		return Routed{}, err
	}
	rc := RequestContext{Message: msg, Intent: in, URL: in.URL}
	if in.Local != LocalNone {
		return Routed{Local: in.Local, Request: rc}, nil
	}

	var p jobs.Payload
	switch in.Kind {
	case jobs.KindWebsite:
		p, err = r.website(ctx, &rc)
	case jobs.KindCode:
		p, err = r.code(&rc)
	case jobs.KindAPI:
		p, err = r.api(ctx, &rc)
	case jobs.KindSearch:
		p, err = r.search(&rc)
	default:
		p, err = r.general(&rc)
	}
	if err != nil {
		return Routed{}, err
	}
	p.Deadline = r.Deadline(in.Kind)
	j := jobs.New(msg.ChatID, in.Kind, p)
	r.log.Debug().Str("job_id", j.ID).Int64("chat_id", msg.ChatID).Str("kind", string(in.Kind)).
		Int("prompt_chars", len(p.Prompt)).Msg("routed")
	return Routed{Job: j, Request: rc}, nil
}

func (r *Router) website(ctx context.Context, rc *RequestContext) (jobs.Payload, error) {
	if r.cfg.Fetcher == nil {
		return jobs.Payload{}, &FeatureDisabledError{Feature: "website analysis"}
	}
	if rc.URL == "" {
		return jobs.Payload{}, &MissingArgumentError{Command: commandName(rc.Intent, "site"), Argument: "URL"}
	}
	page, err := r.cfg.Fetcher.Fetch(ctx, rc.URL, fetcher.Options{})
	if err != nil {
		return jobs.Payload{}, err
	}
	rc.Page = &page
	rc.PageText = Truncate(page.Text, r.cfg.MaxPageChars)
	request := strings.TrimSpace(strings.Replace(rc.Intent.Args, rc.URL, "", 1))
	if request == "" {
		request = "Summarize the page and describe how it works."
	}
	return jobs.Payload{
		Prompt: websitePrompt(page.URL, page.Title, rc.PageText, request),
		System: systemWebsite,
	}, nil
}

func (r *Router) code(rc *RequestContext) (jobs.Payload, error) {
	msg := rc.Message
	if msg.Document != "" {
		rc.Code = Truncate(msg.Document, r.cfg.MaxDocumentChars)
		return jobs.Payload{Prompt: codePrompt(msg.DocumentName, rc.Code, rc.Intent.Args), System: systemCode}, nil
	}
	if rc.Intent.Args == "" {
		return jobs.Payload{}, &MissingArgumentError{Command: "/code", Argument: "code snippet or file"}
	}
	rc.Code = Truncate(rc.Intent.Args, r.cfg.MaxDocumentChars)
	return jobs.Payload{Prompt: codePrompt("", rc.Code, ""), System: systemCode}, nil
}

func (r *Router) api(ctx context.Context, rc *RequestContext) (jobs.Payload, error) {
	if rc.Intent.Args == "" {
		return jobs.Payload{}, &MissingArgumentError{Command: "/api", Argument: "description"}
	}
	// A reference page is optional context; fetch failures do not block the job.
	if rc.URL != "" && r.cfg.Fetcher != nil {
		if page, err := r.cfg.Fetcher.Fetch(ctx, rc.URL, fetcher.Options{}); err != nil {
			r.log.Warn().Err(err).Str("url", rc.URL).Msg("reference page fetch failed")
		} else {
			rc.Page = &page
			rc.PageText = Truncate(page.Text, r.cfg.MaxPageChars)
		}
	}
	return jobs.Payload{Prompt: apiPrompt(rc.Intent.Args, rc.URL, rc.PageText), System: systemAPI}, nil
}

func (r *Router) search(rc *RequestContext) (jobs.Payload, error) {
	kw := rc.Intent.Args
	if rc.Intent.Command == "" {
		kw = searchKeyword(kw)
	}
	if kw == "" {
		return jobs.Payload{}, &MissingArgumentError{Command: commandName(rc.Intent, "search"), Argument: "topic"}
	}
	rc.Keyword = kw
	return jobs.Payload{Prompt: searchPrompt(kw), System: systemSearch}, nil
}

func (r *Router) general(rc *RequestContext) (jobs.Payload, error) {
	if rc.Intent.Args == "" {
		return jobs.Payload{}, &MissingArgumentError{Command: commandName(rc.Intent, "ask"), Argument: "question"}
	}
	kb, err := fsutil.ReadKnowledge(r.cfg.KnowledgeDir, knowledgeFiles, knowledgeChars)
	if err != nil {
		r.log.Warn().Err(err).Str("dir", r.cfg.KnowledgeDir).Msg("knowledge base unreadable")
	}
	return jobs.Payload{Prompt: generalPrompt(rc.Intent.Args, kb)}, nil
}

func commandName(in Intent, fallback string) string {
	if in.Command != "" {
		return "/" + in.Command
	}
	return fmt.Sprintf("/%s", fallback)
}
