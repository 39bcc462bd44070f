// Package progress tracks weighted, monotonic progress for a single upload.
//
// An adapter declares how much of the bar each of its steps is worth
// (Allocations). A Tracker credits those weights as steps finish and pushes
// a Snapshot to a Reporter after every change. Trackers are owned by one
// upload; Reporters may be shared and must be safe for concurrent use.
package progress

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// Allocations maps step names to their share of the total, nominally 100.
type Allocations map[string]float64

// Total returns the sum of all step weights.
func (a Allocations) Total() float64 {
	var sum float64
	for _, w := range a {
		sum += w
	}
	return sum
}

// Check reports whether the weights sum to roughly 100.
func (a Allocations) Check() error {
	if sum := a.Total(); sum < 90 || sum > 110 {
		return fmt.Errorf("progress allocations sum to %.1f, want 90-110", sum)
	}
	return nil
}

// Snapshot is the observable state of one tracker.
type Snapshot struct {
	Platform    string
	Value       float64
	Total       float64
	Description string
	Done        bool
	Failed      bool
}

// Percent returns Value as a fraction of Total in [0, 1].
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return math.Min(1, s.Value/s.Total)
}

// Reporter receives snapshots. Implementations must not block for long.
type Reporter interface {
	Report(Snapshot)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Snapshot)

// Report calls f(s).
func (f ReporterFunc) Report(s Snapshot) { f(s) }

// Nop discards every snapshot.
var Nop Reporter = ReporterFunc(func(Snapshot) {})

// Tracker is the progress indicator of one upload.
type Tracker struct {
	mu       sync.Mutex
	platform string
	alloc    Allocations
	total    float64
	credited map[string]float64
	value    float64
	desc     string
	done     bool
	failed   bool
	reporter Reporter
}

// NewTracker creates a tracker for platform. Allocations that do not sum to
// about 100 are logged but accepted.
func NewTracker(platform string, alloc Allocations, rep Reporter) *Tracker {
	if err := alloc.Check(); err != nil {
		log.Printf("progress: %s: %v", platform, err)
	}
	if rep == nil {
		rep = Nop
	}
	total := alloc.Total()
	if total <= 0 {
		total = 100
	}
	return &Tracker{
		platform: platform,
		alloc:    alloc,
		total:    total,
		credited: make(map[string]float64, len(alloc)),
		desc:     "Waiting",
		reporter: rep,
	}
}

// Update credits the full weight of step and sets the description.
// Crediting a step twice has no further effect.
func (t *Tracker) Update(step, desc string) {
	t.Advance(step, 1, desc)
}

// Advance credits fraction (0-1) of step's weight. Progress never moves
// backwards: a smaller fraction than already credited only updates the text.
func (t *Tracker) Advance(step string, fraction float64, desc string) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}

	weight, ok := t.alloc[step]
	if !ok {
		log.Printf("progress: %s: unknown step %q", t.platform, step)
	}
	fraction = math.Max(0, math.Min(1, fraction))
	if want := weight * fraction; want > t.credited[step] {
		t.value += want - t.credited[step]
		t.credited[step] = want
	}
	t.value = math.Min(t.value, t.total)
	if desc != "" {
		t.desc = desc
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.reporter.Report(snap)
}

// Describe changes the description without moving the bar.
func (t *Tracker) Describe(desc string) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.desc = desc
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.reporter.Report(snap)
}

// Complete closes the tracker. On success the bar jumps to the total; on
// failure it freezes where it is and the description records the cause.
func (t *Tracker) Complete(success bool, cause error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	if success {
		t.value = t.total
		t.desc = "Upload complete"
	} else {
		t.failed = true
		t.desc = "Upload failed"
		if cause != nil {
			t.desc = "Upload failed: " + cause.Error()
		}
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.reporter.Report(snap)
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		Platform:    t.platform,
		Value:       t.value,
		Total:       t.total,
		Description: t.desc,
		Done:        t.done,
		Failed:      t.failed,
	}
}

// LogReporter logs a line whenever a tracker's description changes.
type LogReporter struct {
	mu     sync.Mutex
	logger *log.Logger
	last   map[string]string
}

// NewLogReporter returns a Reporter writing to logger.
func NewLogReporter(logger *log.Logger) *LogReporter {
	return &LogReporter{logger: logger, last: make(map[string]string)}
}

// Report logs s if its description differs from the previous one.
func (r *LogReporter) Report(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last[s.Platform] == s.Description {
		return
	}
	r.last[s.Platform] = s.Description
	r.logger.Printf("[%s] %3.0f%% %s", s.Platform, s.Percent()*100, s.Description)
}
