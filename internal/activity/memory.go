package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMaxEntries = 1000

// memSink keeps the newest entries in a bounded slice, newest last.
type memSink struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

func newMemSink(max int) *memSink {
	if max <= 0 {
		max = defaultMaxEntries
	}
	return &memSink{max: max}
}

func (s *memSink) Append(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *memSink) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *memSink) Close() error { return nil }
