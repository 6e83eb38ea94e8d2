// Package traffic keeps sliding windows of API request outcomes. The health
// handler reads them to decide between healthy, overloaded and degraded.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how long outcomes are kept regardless of the
// windows callers query.
const DefaultRetention = 5 * time.Minute

// Outcome is the result of one API request as seen by the HTTP layer.
type Outcome int

const (
	Success Outcome = iota
	Error
	Denied
)

// Tracker maintains sliding windows of outcome timestamps. The zero value is
// not usable; construct with NewTracker.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time
	times     [3][]time.Time
}

// NewTracker returns a Tracker keeping outcomes for retention. A nil now
// uses time.Now.
func NewTracker(retention time.Duration, now func() time.Time) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{retention: retention, now: now}
}

// Record stores one outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	if o < Success || o > Denied {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// RecordSuccess records a request that completed without a server-side error.
func (t *Tracker) RecordSuccess() { t.Record(Success) }

// RecordError records a request that failed upstream or internally.
func (t *Tracker) RecordError() { t.Record(Error) }

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() { t.Record(Denied) }

// RequestCount returns every outcome (success, error and denied) within window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, times := range t.times {
		n += countSince(times, cutoff)
	}
	return n
}

// DenialCount returns the rate-limit denials within window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[Denied], t.now().Add(-window))
}

// ErrorRate returns (errors, total) within window. Denials are not part of
// total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.times[Error], cutoff)
	return errors, errors + countSince(t.times[Success], cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = [3][]time.Time{}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops outcomes older than the retention. Caller holds t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
