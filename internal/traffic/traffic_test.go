package traffic

import (
	"sync"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *clock) {
	c := &clock{t: time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)}
	return NewTracker(5*time.Minute, c.now), c
}

func TestRequestCount_Empty(t *testing.T) {
	tr, _ := newTestTracker()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestRequestCount_IncludesAllOutcomes(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	tr.RecordDenied()
	if n := tr.RequestCount(time.Minute); n != 4 {
		t.Errorf("RequestCount() = %d, want 4", n)
	}
	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
}

func TestErrorRate(t *testing.T) {
	tests := []struct {
		name                  string
		success, errs, denied int
		wantErrors, wantTotal int
	}{
		{"empty", 0, 0, 0, 0, 0},
		{"mixed", 2, 1, 0, 1, 3},
		{"denied excluded", 1, 0, 2, 0, 1},
		{"errors only", 0, 4, 0, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker()
			for i := 0; i < tt.success; i++ {
				tr.RecordSuccess()
			}
			for i := 0; i < tt.errs; i++ {
				tr.RecordError()
			}
			for i := 0; i < tt.denied; i++ {
				tr.RecordDenied()
			}
			errs, total := tr.ErrorRate(time.Minute)
			if errs != tt.wantErrors || total != tt.wantTotal {
				t.Errorf("ErrorRate() = (%d, %d), want (%d, %d)", errs, total, tt.wantErrors, tt.wantTotal)
			}
		})
	}
}

func TestWindowSlides(t *testing.T) {
	tr, c := newTestTracker()
	tr.RecordError()
	c.advance(45 * time.Second)
	tr.RecordSuccess()

	if errs, total := tr.ErrorRate(time.Minute); errs != 1 || total != 2 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 2)", errs, total)
	}
	c.advance(30 * time.Second)
	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() after slide = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestPruneDropsOutcomesPastRetention(t *testing.T) {
	tr, c := newTestTracker()
	tr.RecordDenied()
	c.advance(6 * time.Minute)
	tr.RecordSuccess()

	if n := tr.RequestCount(time.Hour); n != 1 {
		t.Errorf("RequestCount() = %d, want 1 after retention prune", n)
	}
}

func TestReset(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordSuccess()
	tr.RecordDenied()
	tr.Reset()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0 after Reset", n)
	}
}

func TestRecord_IgnoresUnknownOutcome(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record(Outcome(7))
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	tr := NewTracker(0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Record(Outcome(i % 3))
		}(i)
	}
	wg.Wait()
	if n := tr.RequestCount(time.Minute); n != 50 {
		t.Errorf("RequestCount() = %d, want 50", n)
	}
}
