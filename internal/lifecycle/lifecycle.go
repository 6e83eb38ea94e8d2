// Package lifecycle holds process state the health endpoint reports on.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State tracks start time and whether the process is draining.
type State struct {
	started      time.Time
	now          func() time.Time
	shuttingDown atomic.Bool
}

// New returns a State started at now(). A nil now uses time.Now.
func New(now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{started: now(), now: now}
}

// BeginShutdown marks the process as draining. Call when SIGTERM/SIGINT is
// received; /health answers 503 shutting-down from then on.
func (s *State) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// IsShuttingDown reports whether BeginShutdown has been called.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns the time since New, truncated to seconds.
func (s *State) Uptime() time.Duration {
	return s.now().Sub(s.started).Truncate(time.Second)
}
