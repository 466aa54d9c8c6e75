package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the full on-disk configuration. JSON and YAML are both accepted;
// YAML is coerced to JSON so the strict decoder covers both. Unknown keys
// are rejected.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Activity  ActivityConfig  `json:"activity,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	SMTP      SMTPConfig      `json:"smtp,omitempty"`
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

type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// ActivityConfig controls the activity history sink.
//
// Example:
//
//	"activity": { "driver": "sqlite", "path": "./mailwarden.db" }
type ActivityConfig struct {
	Driver      string `json:"driver,omitempty"` // memory (default), sqlite, none
	Path        string `json:"path,omitempty"`
	MaxEntries  int    `json:"max_entries,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type SchedulerConfig struct {
	// ReconcileEvery is the drift sweep interval. "0s" keeps the default.
	ReconcileEvery string `json:"reconcile_every,omitempty"`
	// StuckAfter is the running-task watchdog threshold.
	StuckAfter string `json:"stuck_after,omitempty"`
}

type SMTPConfig struct {
	Host        string `json:"host,omitempty"` // default: smtp.gmail.com
	Port        int    `json:"port,omitempty"` // default: 465
	DialTimeout string `json:"dial_timeout,omitempty"`
	RatePerMin  int    `json:"rate_per_min,omitempty"`
}

// Validate catches field errors early so a broken file is rejected before
// commit instead of surfacing as odd runtime behavior.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	durations := []struct {
		path string
		raw  string
	}{
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
		{"activity.busy_timeout", c.Activity.BusyTimeout},
		{"scheduler.reconcile_every", c.Scheduler.ReconcileEvery},
		{"scheduler.stuck_after", c.Scheduler.StuckAfter},
		{"smtp.dial_timeout", c.SMTP.DialTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	switch c.Activity.Driver {
	case "", "memory", "sqlite", "none":
	default:
		return fmt.Errorf("activity.driver: unknown driver %q", c.Activity.Driver)
	}
	if c.Activity.Driver == "sqlite" && c.Activity.Path == "" {
		return errors.New("activity.path: required for the sqlite driver")
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port: %d out of range", c.SMTP.Port)
	}
	return nil
}

// ParseDurationField parses a non-negative Go duration string. Empty means
// zero (use the default).
func ParseDurationField(path, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for the
// zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
