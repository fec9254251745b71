// Package fetcher retrieves rendered page text through a sandboxed headless
// browser. Every session is torn down on every exit path.
package fetcher

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Document is the rendered DOM returned by a browser session. Headless
// Chrome's --dump-dom reports no HTTP status, so an error page such as a 404
// comes back as an ordinary document with its rendered text.
type Document struct {
	URL  string
	HTML string
}

// Session is one isolated browser instance. Sessions are never shared.
type Session interface {
	Navigate(ctx context.Context, url string) (Document, error)
	Close(ctx context.Context) error
}

// Browser opens sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Options tune a single fetch.
type Options struct {
	// Timeout bounds open plus navigation; zero uses the fetcher default.
	Timeout time.Duration
}

// Page is the extracted result of a fetch.
type Page struct {
	URL   string
	Title string
	Text  string
}

const (
	defaultTimeout  = 30 * time.Second
	teardownTimeout = 15 * time.Second
)

type Fetcher struct {
	browser Browser
	timeout time.Duration
	log     zerolog.Logger
}

func New(b Browser, timeout time.Duration, log zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{browser: b, timeout: timeout, log: log.With().Str("component", "fetcher").Logger()}
}

// Fetch renders rawURL and returns its visible text. It fails with a
// TimeoutError or NavigationError and never retries.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (Page, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return Page{}, err
	}
	timeout := f.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sess, err := f.browser.Open(navCtx)
	if err != nil {
		return Page{}, f.classify(navCtx, u, timeout, "open browser session", err)
	}
	defer func() {
		// Fresh context: teardown must run even after navCtx expired.
		tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer tcancel()
		if cerr := sess.Close(tctx); cerr != nil {
			f.log.Warn().Err(cerr).Str("url", u).Msg("browser session teardown failed")
		}
	}()

	doc, err := sess.Navigate(navCtx, u)
	if err != nil {
		return Page{}, f.classify(navCtx, u, timeout, "load page", err)
	}
	title, text, err := ExtractText(doc.HTML)
	if err != nil {
		return Page{}, &NavigationError{URL: u, Reason: "parse document", Err: err}
	}
	final := doc.URL
	if final == "" {
		final = u
	}
	f.log.Info().Str("url", u).Dur("elapsed", time.Since(start)).Int("chars", len(text)).Msg("page fetched")
	return Page{URL: final, Title: title, Text: text}, nil
}

func (f *Fetcher) classify(ctx context.Context, u string, timeout time.Duration, reason string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{URL: u, After: timeout}
	}
	return &NavigationError{URL: u, Reason: reason, Err: err}
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", &NavigationError{URL: raw, Reason: "invalid URL", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &NavigationError{URL: raw, Reason: "only http and https URLs are supported"}
	}
	if u.Host == "" {
		return "", &NavigationError{URL: raw, Reason: "missing host"}
	}
	return u.String(), nil
}
