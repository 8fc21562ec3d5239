// Package timeline implements the pausable logical clock stamped on control messages.
package timeline

import (
	"sync"
	"time"
)

// Timeline is a logical millisecond clock that can be paused independently of
// wall-clock time. While paused, memory holds the frozen elapsed time; while
// running, it holds the wall-clock instant that corresponds to zero.
// It is safe for concurrent use.
type Timeline struct {
	mu     sync.Mutex
	now    func() time.Time
	memory int64
	paused bool
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

// New returns a timeline reading timestamp milliseconds, paused if requested.
func New(timestamp int64, paused bool, opts ...Option) *Timeline {
	t := &Timeline{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.SetStatus(timestamp, paused)
	return t
}

func (t *Timeline) wall() int64 { return t.now().UnixMilli() }

// Millis returns the elapsed logical time.
func (t *Timeline) Millis() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return t.memory
	}
	return t.wall() - t.memory
}

// SetMillis moves the timeline to timestamp without changing the paused state.
func (t *Timeline) SetMillis(timestamp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(timestamp)
}

func (t *Timeline) set(timestamp int64) {
	if t.paused {
		t.memory = timestamp
	} else {
		t.memory = t.wall() - timestamp
	}
}

// SetStatus sets both position and paused state at once.
func (t *Timeline) SetStatus(timestamp int64, paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = paused
	t.set(timestamp)
}

// Pause freezes the timeline at its current position.
func (t *Timeline) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		t.paused = true
		t.memory = t.wall() - t.memory
	}
}

// Unpause resumes the timeline from its frozen position.
func (t *Timeline) Unpause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.paused = false
		t.memory = t.wall() - t.memory
	}
}

func (t *Timeline) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// State returns position and paused state read atomically.
func (t *Timeline) State() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return t.memory, true
	}
	return t.wall() - t.memory, false
}
