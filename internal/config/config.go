package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds runtime parameters for the service.
// Zero values are replaced by Defaults() before a file is applied on top.
type Config struct {
	Addr      string          `json:"addr" yaml:"addr" toml:"addr"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
	Backend   BackendConfig   `json:"backend" yaml:"backend" toml:"backend"`
	Models    ModelSpec       `json:"models" yaml:"models" toml:"models"`
	Inference InferenceConfig `json:"inference" yaml:"inference" toml:"inference"`
	Queue     QueueConfig     `json:"queue" yaml:"queue" toml:"queue"`
	Router    RouterConfig    `json:"router" yaml:"router" toml:"router"`
	Fetcher   FetcherConfig   `json:"fetcher" yaml:"fetcher" toml:"fetcher"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram" toml:"telegram"`
	Store     StoreConfig     `json:"store" yaml:"store" toml:"store"`
	HTTP      HTTPConfig      `json:"http" yaml:"http" toml:"http"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // console|json
}

// BackendConfig controls how the inference backend process is launched and supervised.
type BackendConfig struct {
	// Spawn launches Bin as a child process. When false the backend is managed
	// externally and only health-checked.
	Spawn                 bool     `json:"spawn" yaml:"spawn" toml:"spawn"`
	Bin                   string   `json:"bin" yaml:"bin" toml:"bin"`
	Args                  []string `json:"args" yaml:"args" toml:"args"`
	Env                   []string `json:"env" yaml:"env" toml:"env"`
	URL                   string   `json:"url" yaml:"url" toml:"url"`
	ReadyTimeout          Duration `json:"ready_timeout" yaml:"ready_timeout" toml:"ready_timeout"`
	ReadyPollInterval     Duration `json:"ready_poll_interval" yaml:"ready_poll_interval" toml:"ready_poll_interval"`
	ReadyAttempts         int      `json:"ready_attempts" yaml:"ready_attempts" toml:"ready_attempts"`
	HealthInterval        Duration `json:"health_interval" yaml:"health_interval" toml:"health_interval"`
	DegradedThreshold     int      `json:"degraded_threshold" yaml:"degraded_threshold" toml:"degraded_threshold"`
	RestartBackoff        Duration `json:"restart_backoff" yaml:"restart_backoff" toml:"restart_backoff"`
	MaxConsecutiveCrashes int      `json:"max_consecutive_crashes" yaml:"max_consecutive_crashes" toml:"max_consecutive_crashes"`
	StableAfter           Duration `json:"stable_after" yaml:"stable_after" toml:"stable_after"`
	PullTimeout           Duration `json:"pull_timeout" yaml:"pull_timeout" toml:"pull_timeout"`
	StopGrace             Duration `json:"stop_grace" yaml:"stop_grace" toml:"stop_grace"`
}

// ModelSpec is the preferred model plus an ordered fallback chain.
type ModelSpec struct {
	Primary   string   `json:"primary" yaml:"primary" toml:"primary"`
	Fallbacks []string `json:"fallbacks" yaml:"fallbacks" toml:"fallbacks"`
}

// Chain returns the primary followed by the fallbacks, in declared order.
// Empty and duplicate entries are dropped.
func (s ModelSpec) Chain() []string {
	seen := make(map[string]bool, len(s.Fallbacks)+1)
	out := make([]string, 0, len(s.Fallbacks)+1)
	for _, m := range append([]string{s.Primary}, s.Fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

type InferenceConfig struct {
	Timeout       Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	System        string   `json:"system" yaml:"system" toml:"system"`
	Temperature   float64  `json:"temperature" yaml:"temperature" toml:"temperature"`
	NumPredict    int      `json:"num_predict" yaml:"num_predict" toml:"num_predict"`
	TopP          float64  `json:"top_p" yaml:"top_p" toml:"top_p"`
	RepeatPenalty float64  `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	NumThread     int      `json:"num_thread" yaml:"num_thread" toml:"num_thread"`
}

type QueueConfig struct {
	MaxDepth     int      `json:"max_depth" yaml:"max_depth" toml:"max_depth"`
	MaxRequeues  int      `json:"max_requeues" yaml:"max_requeues" toml:"max_requeues"`
	RequeueDelay Duration `json:"requeue_delay" yaml:"requeue_delay" toml:"requeue_delay"`
}

type RouterConfig struct {
	MaxPageChars     int    `json:"max_page_chars" yaml:"max_page_chars" toml:"max_page_chars"`
	MaxDocumentChars int    `json:"max_document_chars" yaml:"max_document_chars" toml:"max_document_chars"`
	KnowledgeDir     string `json:"knowledge_dir" yaml:"knowledge_dir" toml:"knowledge_dir"`
}

type FetcherConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Image       string   `json:"image" yaml:"image" toml:"image"`
	Runtime     string   `json:"runtime" yaml:"runtime" toml:"runtime"` // "" = runc, "runsc" = gVisor
	Timeout     Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	MemoryMB    int      `json:"memory_mb" yaml:"memory_mb" toml:"memory_mb"`
	MaxDOMBytes int      `json:"max_dom_bytes" yaml:"max_dom_bytes" toml:"max_dom_bytes"`
}

type TelegramConfig struct {
	Token       string   `json:"token" yaml:"token" toml:"token"`
	APIURL      string   `json:"api_url" yaml:"api_url" toml:"api_url"`
	PollTimeout Duration `json:"poll_timeout" yaml:"poll_timeout" toml:"poll_timeout"`
}

type StoreConfig struct {
	// Path of the SQLite job ledger; empty disables the ledger.
	Path string `json:"path" yaml:"path" toml:"path"`
	// Retention is how long terminal jobs are kept; zero keeps them forever.
	Retention Duration `json:"retention" yaml:"retention" toml:"retention"`
}

type HTTPConfig struct {
	Token       string   `json:"token" yaml:"token" toml:"token"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Defaults returns the baseline configuration. The model tiers mirror the
// 14B/7B/3B split a constrained CPU host can realistically serve.
func Defaults() Config {
	return Config{
		Addr: "127.0.0.1:8089",
		Log:  LogConfig{Level: "info", Format: "console"},
		Backend: BackendConfig{
			Spawn:                 true,
			Bin:                   "ollama",
			Args:                  []string{"serve"},
			URL:                   "http://127.0.0.1:11434",
			ReadyTimeout:          Duration(60 * time.Second),
			ReadyPollInterval:     Duration(2 * time.Second),
			ReadyAttempts:         30,
			HealthInterval:        Duration(15 * time.Second),
			DegradedThreshold:     3,
			RestartBackoff:        Duration(5 * time.Second),
			MaxConsecutiveCrashes: 5,
			StableAfter:           Duration(10 * time.Minute),
			PullTimeout:           Duration(2 * time.Hour),
			StopGrace:             Duration(5 * time.Second),
		},
		Models: ModelSpec{
			Primary:   "qwen2.5-coder:14b",
			Fallbacks: []string{"qwen2.5-coder:7b", "qwen2.5-coder:3b"},
		},
		Inference: InferenceConfig{
			Timeout:       Duration(10 * time.Minute),
			Temperature:   0.7,
			NumPredict:    1024,
			TopP:          0.9,
			RepeatPenalty: 1.1,
		},
		Queue: QueueConfig{
			MaxDepth:     64,
			MaxRequeues:  3,
			RequeueDelay: Duration(5 * time.Second),
		},
		Router: RouterConfig{
			MaxPageChars:     4000,
			MaxDocumentChars: 8000,
		},
		Fetcher: FetcherConfig{
			Enabled:     true,
			Image:       "chromedp/headless-shell:latest",
			Timeout:     Duration(30 * time.Second),
			MemoryMB:    512,
			MaxDOMBytes: 2 << 20,
		},
		Telegram: TelegramConfig{
			APIURL:      "https://api.telegram.org",
			PollTimeout: Duration(30 * time.Second),
		},
		Store: StoreConfig{
			Path:      "~/.local/share/inferd/jobs.db",
			Retention: Duration(30 * 24 * time.Hour),
		},
	}
}

// Validate checks the fields the supervisor and scheduler cannot run without.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Backend.URL) == "" {
		problems = append(problems, "backend.url is empty")
	}
	if c.Backend.Spawn && strings.TrimSpace(c.Backend.Bin) == "" {
		problems = append(problems, "backend.bin is empty while backend.spawn is set")
	}
	if len(c.Models.Chain()) == 0 {
		problems = append(problems, "models.primary is empty")
	}
	if c.Backend.ReadyAttempts <= 0 {
		problems = append(problems, "backend.ready_attempts must be > 0")
	}
	if c.Backend.MaxConsecutiveCrashes < 0 {
		problems = append(problems, "backend.max_consecutive_crashes must be >= 0")
	}
	if c.Queue.MaxRequeues < 0 {
		problems = append(problems, "queue.max_requeues must be >= 0")
	}
	if c.Inference.Timeout.D() <= 0 {
		problems = append(problems, "inference.timeout must be > 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
