// Package config loads daemon configuration from a TOML file, falling
// back to coded defaults when the file or individual keys are absent.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/marquev/sked/errors"
)

// Duration wraps time.Duration so TOML values can be written as
// "30s" or "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = parsed
	return nil
}

// Config is the daemon configuration.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `toml:"database_path"`

	// PollInterval is how often the scheduler checks for due jobs.
	PollInterval Duration `toml:"poll_interval"`

	// WorkerCount bounds concurrent job execution.
	WorkerCount int `toml:"worker_count"`

	// LockDeadline is the maximum lock lifetime before a claim is
	// presumed abandoned and reclaimed.
	LockDeadline Duration `toml:"lock_deadline"`

	// MaxDispatchesPerMinute rate-limits dispatch. Zero disables.
	MaxDispatchesPerMinute int `toml:"max_dispatches_per_minute"`

	// JSONLogs selects machine-readable log output.
	JSONLogs bool `toml:"json_logs"`
}

// Default returns the coded defaults.
func Default() Config {
	return Config{
		DatabasePath:           defaultDatabasePath(),
		PollInterval:           Duration{1 * time.Second},
		WorkerCount:            4,
		LockDeadline:           Duration{10 * time.Minute},
		MaxDispatchesPerMinute: 0,
		JSONLogs:               false,
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sked.db"
	}
	return filepath.Join(home, ".sked", "sked.db")
}

// Load reads configuration from path, overlaying the file's keys on the
// defaults. A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PollInterval.Duration <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.WorkerCount <= 0 {
		return errors.New("worker_count must be positive")
	}
	if c.LockDeadline.Duration <= 0 {
		return errors.New("lock_deadline must be positive")
	}
	if c.MaxDispatchesPerMinute < 0 {
		return errors.New("max_dispatches_per_minute cannot be negative")
	}
	return nil
}
