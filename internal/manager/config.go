package manager

import (
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultReadyTimeout          = 60 * time.Second
	defaultReadyPollInterval     = 2 * time.Second
	defaultReadyAttempts         = 30
	defaultHealthInterval        = 15 * time.Second
	defaultDegradedThreshold     = 3
	defaultRestartBackoff        = 5 * time.Second
	defaultMaxConsecutiveCrashes = 5
	defaultStableAfter           = 10 * time.Minute
	defaultPullTimeout           = 2 * time.Hour
	defaultStopGrace             = 5 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Launcher starts the backend process. Nil means the backend is managed
	// externally and is only health-checked.
	Launcher Launcher
	Backend  Backend
	URL      string
	Models   config.ModelSpec

	ReadyTimeout          time.Duration
	ReadyPollInterval     time.Duration
	ReadyAttempts         int
	HealthInterval        time.Duration
	DegradedThreshold     int
	RestartBackoff        time.Duration
	MaxConsecutiveCrashes int
	StableAfter           time.Duration
	PullTimeout           time.Duration
	StopGrace             time.Duration

	Publisher EventPublisher
	Logger    zerolog.Logger
}

// ConfigFrom maps the service configuration onto a manager Config. The caller
// supplies the Backend client.
func ConfigFrom(c config.Config, backend Backend, log zerolog.Logger) Config {
	bc := c.Backend
	var l Launcher
	if bc.Spawn {
		l = &ExecLauncher{Bin: bc.Bin, Args: bc.Args, Env: bc.Env}
	}
	return Config{
		Launcher:              l,
		Backend:               backend,
		URL:                   bc.URL,
		Models:                c.Models,
		ReadyTimeout:          bc.ReadyTimeout.D(),
		ReadyPollInterval:     bc.ReadyPollInterval.D(),
		ReadyAttempts:         bc.ReadyAttempts,
		HealthInterval:        bc.HealthInterval.D(),
		DegradedThreshold:     bc.DegradedThreshold,
		RestartBackoff:        bc.RestartBackoff.D(),
		MaxConsecutiveCrashes: bc.MaxConsecutiveCrashes,
		StableAfter:           bc.StableAfter.D(),
		PullTimeout:           bc.PullTimeout.D(),
		StopGrace:             bc.StopGrace.D(),
		Publisher:             NewLogPublisher(log),
		Logger:                log,
	}
}

func (c *Config) applyDefaults() {
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = defaultReadyPollInterval
	}
	if c.ReadyAttempts <= 0 {
		c.ReadyAttempts = defaultReadyAttempts
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = defaultDegradedThreshold
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = defaultRestartBackoff
	}
	if c.MaxConsecutiveCrashes <= 0 {
		c.MaxConsecutiveCrashes = defaultMaxConsecutiveCrashes
	}
	if c.StableAfter <= 0 {
		c.StableAfter = defaultStableAfter
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = defaultPullTimeout
	}
	if c.StopGrace <= 0 {
		c.StopGrace = defaultStopGrace
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
}
