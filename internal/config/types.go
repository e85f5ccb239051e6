package config

import (
	"fmt"
	"strings"
	"time"

	logx "viewtrack/pkg/logx"

	"viewtrack/internal/server"
	"viewtrack/internal/stats"
	"viewtrack/internal/storage"
	"viewtrack/internal/tracker"
)

// Config is the daemon's file configuration. All durations are Go
// duration strings (e.g. "500ms", "10s", "1m"). Secrets (api token,
// postgres DSN) are better supplied via environment overrides; the file
// fields exist for single-user setups.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Provider  ProviderConfig  `json:"provider"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Poll      PollConfig      `json:"poll,omitempty"`
	Server    ServerConfig    `json:"server"`
	Janitor   JanitorConfig   `json:"janitor,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./viewtrack.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres only (prefer env)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ProviderConfig points at the stats endpoint the pollers fetch from.
type ProviderConfig struct {
	BaseURL        string  `json:"base_url"`
	Timeout        string  `json:"timeout,omitempty"`
	RequestsPerSec float64 `json:"requests_per_sec,omitempty"`
}

// SchedulerConfig controls the dispatch loop.
type SchedulerConfig struct {
	Workers      int    `json:"workers,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`
	ScanInterval string `json:"scan_interval,omitempty"`
}

// PollConfig bounds retries inside a single poll cycle.
type PollConfig struct {
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	RetryJitter   float64 `json:"retry_jitter,omitempty"`
}

type ServerConfig struct {
	Addr         string `json:"addr"`
	Token        string `json:"token,omitempty"` // prefer VIEWTRACK_API_TOKEN
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// JanitorConfig controls periodic maintenance: WAL checkpoints and event
// log retention.
type JanitorConfig struct {
	CheckpointEvery string `json:"checkpoint_every,omitempty"`
	EventRetention  string `json:"event_retention,omitempty"`
}

// Validate checks field shapes without touching the filesystem or network.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	switch strings.TrimSpace(c.Storage.Driver) {
	case "", "sqlite", "memory", "postgres":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	durations := []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"provider.timeout", c.Provider.Timeout},
		{"scheduler.scan_interval", c.Scheduler.ScanInterval},
		{"poll.retry_base", c.Poll.RetryBase},
		{"poll.retry_max_delay", c.Poll.RetryMaxDelay},
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"janitor.checkpoint_every", c.Janitor.CheckpointEvery},
		{"janitor.event_retention", c.Janitor.EventRetention},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}

// LogxConfig materializes the logging section for pkg/logx.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func (c *Config) StorageConfig() (storage.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(c.Storage.Driver),
		Path:        strings.TrimSpace(c.Storage.Path),
		DSN:         strings.TrimSpace(c.Storage.DSN),
		BusyTimeout: busy,
	}, nil
}

func (c *Config) ProviderConfig() (stats.ClientConfig, error) {
	timeout, err := ParseDurationField("provider.timeout", c.Provider.Timeout)
	if err != nil {
		return stats.ClientConfig{}, err
	}
	return stats.ClientConfig{
		BaseURL:        strings.TrimSpace(c.Provider.BaseURL),
		Timeout:        timeout,
		RequestsPerSec: c.Provider.RequestsPerSec,
	}, nil
}

func (c *Config) SchedulerConfig() (tracker.SchedulerConfig, error) {
	scan, err := ParseDurationField("scheduler.scan_interval", c.Scheduler.ScanInterval)
	if err != nil {
		return tracker.SchedulerConfig{}, err
	}
	return tracker.SchedulerConfig{
		Workers:      c.Scheduler.Workers,
		QueueSize:    c.Scheduler.QueueSize,
		ScanInterval: scan,
	}, nil
}

func (c *Config) RetryConfig() (tracker.RetryConfig, error) {
	base, err := ParseDurationField("poll.retry_base", c.Poll.RetryBase)
	if err != nil {
		return tracker.RetryConfig{}, err
	}
	maxDelay, err := ParseDurationField("poll.retry_max_delay", c.Poll.RetryMaxDelay)
	if err != nil {
		return tracker.RetryConfig{}, err
	}
	return tracker.RetryConfig{
		Attempts: c.Poll.RetryMax,
		Base:     base,
		MaxDelay: maxDelay,
		Jitter:   c.Poll.RetryJitter,
	}, nil
}

func (c *Config) ServerConfig() (server.Config, error) {
	read, err := ParseDurationField("server.read_timeout", c.Server.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	write, err := ParseDurationField("server.write_timeout", c.Server.WriteTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:         strings.TrimSpace(c.Server.Addr),
		Token:        strings.TrimSpace(c.Server.Token),
		ReadTimeout:  read,
		WriteTimeout: write,
	}, nil
}

// JanitorIntervals returns the maintenance cadences with their defaults
// applied: hourly checkpoints, 30-day event retention. A zero retention
// disables pruning.
func (c *Config) JanitorIntervals() (checkpoint, retention time.Duration, err error) {
	checkpoint, err = ParseDurationOrDefault("janitor.checkpoint_every", c.Janitor.CheckpointEvery, time.Hour)
	if err != nil {
		return 0, 0, err
	}
	retention, err = ParseDurationOrDefault("janitor.event_retention", c.Janitor.EventRetention, 30*24*time.Hour)
	if err != nil {
		return 0, 0, err
	}
	return checkpoint, retention, nil
}
