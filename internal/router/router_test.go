package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/fetcher"
	"inferd/internal/jobs"
)

type fakeFetcher struct {
	mu   sync.Mutex
	urls []string
	page fetcher.Page
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, opts fetcher.Options) (fetcher.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return fetcher.Page{}, f.err
	}
	p := f.page
	p.URL = url
	return p, nil
}

func newRouter(f PageFetcher, mut ...func(*Config)) *Router {
	cfg := Config{Fetcher: f, MaxDeadline: time.Hour, Logger: zerolog.Nop()}
	for _, m := range mut {
		m(&cfg)
	}
	return New(cfg)
}

func TestRouteWebsiteEmbedsTruncatedPage(t *testing.T) {
	ff := &fakeFetcher{page: fetcher.Page{Title: "Shop", Text: strings.Repeat("é", 50)}}
	r := newRouter(ff, func(c *Config) { c.MaxPageChars = 10 })

	out, err := r.Route(context.Background(), Message{ChatID: 7, Text: "/site https://shop.example.com find the login form"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Job == nil || out.Job.Kind != jobs.KindWebsite || out.Job.ChatID != 7 {
		t.Fatalf("job=%+v", out.Job)
	}
	want := strings.Repeat("é", 10) + TruncationMarker
	if out.Request.PageText != want {
		t.Fatalf("page text=%q", out.Request.PageText)
	}
	p := out.Job.Payload
	if !strings.Contains(p.Prompt, want) || !strings.Contains(p.Prompt, "find the login form") || strings.Contains(p.Prompt, strings.Repeat("é", 11)) {
		t.Fatalf("prompt=%q", p.Prompt)
	}
	if p.Deadline != 300*time.Second || p.System == "" {
		t.Fatalf("payload=%+v", p)
	}
	if len(ff.urls) != 1 || ff.urls[0] != "https://shop.example.com" {
		t.Fatalf("fetched %v", ff.urls)
	}
}

func TestRouteFetchErrorsPropagate(t *testing.T) {
	timeout := &fetcher.TimeoutError{URL: "https://slow.example", After: time.Second}
	r := newRouter(&fakeFetcher{err: timeout})
	_, err := r.Route(context.Background(), Message{Text: "/site https://slow.example"})
	if !errors.Is(err, timeout) || !fetcher.IsFetchTimeout(err) {
		t.Fatalf("expected fetch timeout unchanged, got %v", err)
	}
}

func TestRouteWebsiteErrors(t *testing.T) {
	r := newRouter(&fakeFetcher{})
	if _, err := r.Route(context.Background(), Message{Text: "/site"}); !IsMissingArgument(err) {
		t.Fatalf("expected MissingArgument, got %v", err)
	}
	disabled := newRouter(nil)
	if _, err := disabled.Route(context.Background(), Message{Text: "https://example.com"}); !IsFeatureDisabled(err) {
		t.Fatalf("expected FeatureDisabled, got %v", err)
	}
}

func TestRouteUnknownCommand(t *testing.T) {
	r := newRouter(nil)
	out, err := r.Route(context.Background(), Message{Text: "/nope"})
	if !IsUnrecognizedCommand(err) || out.Job != nil {
		t.Fatalf("out=%+v err=%v", out, err)
	}
}

func TestRouteLocal(t *testing.T) {
	r := newRouter(nil)
	out, err := r.Route(context.Background(), Message{Text: "/status"})
	if err != nil || out.Local != LocalStatus || out.Job != nil {
		t.Fatalf("out=%+v err=%v", out, err)
	}
}

func TestRouteDocumentBecomesCodeJob(t *testing.T) {
	r := newRouter(nil, func(c *Config) { c.MaxDocumentChars = 5 })
	out, err := r.Route(context.Background(), Message{Text: "find the bug", Document: "abcdefghij", DocumentName: "main.go"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Job.Kind != jobs.KindCode || out.Request.Code != "abcde"+TruncationMarker {
		t.Fatalf("job kind=%q code=%q", out.Job.Kind, out.Request.Code)
	}
	if !strings.Contains(out.Job.Payload.Prompt, "main.go") || !strings.Contains(out.Job.Payload.Prompt, "find the bug") {
		t.Fatalf("prompt=%q", out.Job.Payload.Prompt)
	}
}

func TestRouteGeneralEmbedsKnowledge(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"a.py", "b.md", "c.txt", "d.py", "e.md", "f.txt"} {
		body := strings.Repeat(string(rune('a'+i)), 600)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := newRouter(nil, func(c *Config) { c.KnowledgeDir = dir })
	out, err := r.Route(context.Background(), Message{Text: "/ask how do I paginate?"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	prompt := out.Job.Payload.Prompt
	if n := strings.Count(prompt, "Example from "); n != 5 {
		t.Fatalf("examples=%d want 5", n)
	}
	if strings.Contains(prompt, "f.txt") || !strings.Contains(prompt, strings.Repeat("a", 500)) || strings.Contains(prompt, strings.Repeat("a", 501)) {
		t.Fatal("knowledge files not limited to 5 x 500 chars")
	}
	if out.Job.Payload.Deadline != 180*time.Second {
		t.Fatalf("deadline=%s", out.Job.Payload.Deadline)
	}
}

func TestRouteSearchKeyword(t *testing.T) {
	r := newRouter(nil)
	out, err := r.Route(context.Background(), Message{Text: "generate dorks for payment gateway"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Request.Keyword != "payment gateway" || out.Job.Payload.Deadline != 120*time.Second {
		t.Fatalf("keyword=%q deadline=%s", out.Request.Keyword, out.Job.Payload.Deadline)
	}
	if _, err := r.Route(context.Background(), Message{Text: "/search"}); !IsMissingArgument(err) {
		t.Fatalf("expected MissingArgument, got %v", err)
	}
}

func TestDeadlinesCappedByInferenceTimeout(t *testing.T) {
	r := newRouter(nil, func(c *Config) { c.MaxDeadline = 150 * time.Second })
	want := map[jobs.Kind]time.Duration{
		jobs.KindWebsite: 150 * time.Second,
		jobs.KindAPI:     150 * time.Second,
		jobs.KindCode:    150 * time.Second,
		jobs.KindGeneral: 150 * time.Second,
		jobs.KindSearch:  120 * time.Second,
	}
	for k, d := range want {
		if got := r.Deadline(k); got != d {
			t.Errorf("%s: %s want %s", k, got, d)
		}
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("short", 10) != "short" || Truncate("anything", 0) != "anything" {
		t.Fatal("no-op cases changed input")
	}
	if got := Truncate("héllo world", 5); got != "héllo"+TruncationMarker {
		t.Fatalf("got %q", got)
	}
}
