package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start  time.Time
	count  int
	length time.Duration
}

// Memory is a process-local fixed-window limiter. A restart clears every
// counter and each process enforces its limits independently.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     Clock
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now.
func WithClock(c Clock) MemoryOption {
	return func(m *Memory) { m.now = c }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Admit(_ context.Context, key string, rule Rule) (Decision, error) {
	if !rule.valid() {
		return Decision{}, ErrInvalidRule
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= rule.Window {
		w = &window{start: now, length: rule.Window}
		m.windows[key] = w
	}

	d := Decision{Rule: rule.Name, Limit: rule.Limit}

	if w.count >= rule.Limit {
		d.RetryAfter = w.start.Add(rule.Window).Sub(now)
		return d, nil
	}

	w.count++
	d.Allowed = true
	d.Remaining = rule.Limit - w.count
	return d, nil
}

// Sweep drops every window that has expired and returns how many were
// removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, w := range m.windows {
		if now.Sub(w.start) >= w.length {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live windows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
