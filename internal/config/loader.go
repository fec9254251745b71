package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension and applies it on
// top of Defaults(). Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then the optional
// config file, then a .env file in the working directory, then environment
// overrides. The result is validated.
func Resolve(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays INFERD_* variables (and TELEGRAM_BOT_TOKEN) onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			var out []string
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			*dst = out
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("INFERD_ADDR", &cfg.Addr)
	str("INFERD_LOG_LEVEL", &cfg.Log.Level)
	str("INFERD_LOG_FORMAT", &cfg.Log.Format)
	boolean("INFERD_BACKEND_SPAWN", &cfg.Backend.Spawn)
	str("INFERD_BACKEND_BIN", &cfg.Backend.Bin)
	str("INFERD_BACKEND_URL", &cfg.Backend.URL)
	integer("INFERD_BACKEND_READY_ATTEMPTS", &cfg.Backend.ReadyAttempts)
	integer("INFERD_BACKEND_MAX_CRASHES", &cfg.Backend.MaxConsecutiveCrashes)
	duration("INFERD_BACKEND_RESTART_BACKOFF", &cfg.Backend.RestartBackoff)
	str("INFERD_MODEL_PRIMARY", &cfg.Models.Primary)
	list("INFERD_MODEL_FALLBACKS", &cfg.Models.Fallbacks)
	duration("INFERD_INFERENCE_TIMEOUT", &cfg.Inference.Timeout)
	integer("INFERD_INFERENCE_NUM_THREAD", &cfg.Inference.NumThread)
	integer("INFERD_QUEUE_MAX_REQUEUES", &cfg.Queue.MaxRequeues)
	boolean("INFERD_FETCHER_ENABLED", &cfg.Fetcher.Enabled)
	str("INFERD_FETCHER_IMAGE", &cfg.Fetcher.Image)
	str("INFERD_FETCHER_RUNTIME", &cfg.Fetcher.Runtime)
	str("INFERD_KNOWLEDGE_DIR", &cfg.Router.KnowledgeDir)
	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	str("INFERD_TELEGRAM_TOKEN", &cfg.Telegram.Token)
	str("INFERD_STORE_PATH", &cfg.Store.Path)
	str("INFERD_HTTP_TOKEN", &cfg.HTTP.Token)
	list("INFERD_CORS_ORIGINS", &cfg.HTTP.CORSOrigins)
	return errors.Join(errs...)
}
