// Package activity records per-account task outcomes and scheduling
// lifecycle events.
//
// Appends are fire-and-forget from the caller's point of view: a failing
// sink is logged and never aborts task execution.
package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "mailwarden/pkg/logx"
)

var ErrDisabled = errors.New("activity sink disabled")

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Entry is one activity record. Keep it compact and schema-stable.
type Entry struct {
	ID        string         `json:"id"`
	At        time.Time      `json:"at"`
	OwnerID   string         `json:"owner_id"`
	AccountID string         `json:"account_id,omitempty"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink is the minimal activity API used by the executor, verifier and HTTP
// layer.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Config configures the activity sink.
//
// Driver values:
//   - "memory": bounded in-memory ring (default)
//   - "sqlite": SQLite database file, history survives restarts
//   - "none":   discard everything
type Config struct {
	Driver      string
	Path        string
	MaxEntries  int           // memory only; 0 means default
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured sink.
func Open(cfg Config, log logx.Logger) (Sink, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return newMemSink(cfg.MaxEntries), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "none":
		return nopSink{}, nil
	default:
		return nil, errors.New("unknown activity driver: " + driver)
	}
}

type nopSink struct{}

func (nopSink) Append(context.Context, Entry) error          { return nil }
func (nopSink) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (nopSink) Close() error                                 { return nil }
