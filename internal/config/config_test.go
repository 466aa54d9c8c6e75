package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"http": {"addr": "127.0.0.1:9090"},
		"activity": {"driver": "memory", "max_entries": 500},
		"scheduler": {"reconcile_every": "30s", "stuck_after": "10m"},
		"smtp": {"host": "smtp.gmail.com", "port": 465, "rate_per_min": 5}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9090" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.SMTP.RatePerMin != 5 {
		t.Errorf("smtp.rate_per_min = %d", cfg.SMTP.RatePerMin)
	}
	d, err := ParseDurationOrDefault("scheduler.reconcile_every", cfg.Scheduler.ReconcileEvery, time.Minute)
	if err != nil || d != 30*time.Second {
		t.Errorf("reconcile_every = %v, %v", d, err)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./mailwarden.log
http:
  addr: ":8080"
activity:
  driver: sqlite
  path: ./mailwarden.db
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "./mailwarden.log" {
		t.Errorf("logging.file = %+v", cfg.Logging.File)
	}
	if cfg.Activity.Driver != "sqlite" {
		t.Errorf("activity.driver = %q", cfg.Activity.Driver)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "typo_section": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("Parse accepted an unknown key")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"http": {"addr": ":8080"}} {"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("Parse accepted trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"empty", Config{}, true},
		{"bad duration", Config{Scheduler: SchedulerConfig{StuckAfter: "soon"}}, false},
		{"negative duration", Config{SMTP: SMTPConfig{DialTimeout: "-5s"}}, false},
		{"unknown driver", Config{Activity: ActivityConfig{Driver: "postgres"}}, false},
		{"sqlite without path", Config{Activity: ActivityConfig{Driver: "sqlite"}}, false},
		{"port out of range", Config{SMTP: SMTPConfig{Port: 70000}}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
		})
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"http": {"addr": ":8080"}}`)
	m := NewManager(path)

	if m.Get() != nil {
		t.Fatal("Get returned a config before Load")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{HTTP: HTTPConfig{Addr: ":1"}}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("no config delivered")
	}

	// Full buffer: the stale update is replaced by the newest.
	m.publish(&Config{HTTP: HTTPConfig{Addr: ":2"}})
	latest := &Config{HTTP: HTTPConfig{Addr: ":3"}}
	m.publish(latest)
	if got := <-ch; got != latest {
		t.Fatalf("got addr %q, want newest", got.HTTP.Addr)
	}
}
