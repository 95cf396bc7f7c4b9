package task

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine tuning. Zero fields take the defaults.
type Config struct {
	WorkerID    string        `yaml:"worker_id"`
	Concurrency int           `yaml:"concurrency"`
	PollIdle    time.Duration `yaml:"poll_idle"`
	PollBusy    time.Duration `yaml:"poll_busy"`
	Lease       time.Duration `yaml:"lease"`

	// GracefulShutdownTimeout bounds Stop: in-flight handlers are
	// awaited this long before the engine lets go.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	MaxAttempts int     `yaml:"max_attempts"`
	Backoff     Backoff `yaml:"backoff"`
}

// DefaultConfig returns sensible engine defaults
func DefaultConfig() Config {
	return Config{
		Concurrency:             4,
		PollIdle:                500 * time.Millisecond,
		PollBusy:                50 * time.Millisecond,
		Lease:                   30 * time.Second,
		GracefulShutdownTimeout: 10 * time.Second,
		MaxAttempts:             3,
		Backoff:                 DefaultBackoff(),
	}
}

// LoadConfig reads engine configuration from a YAML file, filling
// missing fields with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.PollIdle <= 0 {
		c.PollIdle = d.PollIdle
	}
	if c.PollBusy <= 0 {
		c.PollBusy = d.PollBusy
	}
	if c.Lease <= 0 {
		c.Lease = d.Lease
	}
	if c.GracefulShutdownTimeout <= 0 {
		c.GracefulShutdownTimeout = d.GracefulShutdownTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Backoff.Kind == "" {
		c.Backoff = d.Backoff
	}
	return c
}
