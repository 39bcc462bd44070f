package platform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"clipcast/internal/progress"
	"clipcast/internal/retry"
)

// maxEstimateShare is the largest fraction of a step an estimate may credit.
// Only a real terminal status completes the step.
const maxEstimateShare = 0.9

// estimateDuration returns max(minSeconds, sizeMB*perMB) as a duration.
func estimateDuration(sizeMB, perMB, minSeconds float64) time.Duration {
	return time.Duration(math.Max(minSeconds, sizeMB*perMB) * float64(time.Second))
}

// estimate credits a step in proportion to elapsed time over an expected
// duration. The bar is labelled as an estimate.
type estimate struct {
	tracker  *progress.Tracker
	step     string
	label    string
	expected time.Duration
}

func (e estimate) advance(elapsed time.Duration) {
	if e.tracker == nil {
		return
	}
	frac := maxEstimateShare
	if e.expected > 0 {
		frac = math.Min(maxEstimateShare, float64(elapsed)/float64(e.expected)*maxEstimateShare)
	}
	e.tracker.Advance(e.step, frac, fmt.Sprintf("%s (estimated, %ds)", e.label, int(elapsed.Seconds())))
}

// run advances the estimate every tick until the returned stop is called.
func (e estimate) run(tick time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	start := time.Now()
	go func() {
		defer wg.Done()
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				e.advance(time.Since(start))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// pollFunc checks a remote status once. It returns done when a successful
// terminal state was observed, and optionally how long to wait before the
// next check. A terminal failure is an error wrapping ErrProcessing.
type pollFunc func(ctx context.Context) (done bool, wait time.Duration, err error)

// poller repeats a status check until it reports done, fails terminally,
// or runs out of time or polls.
type poller struct {
	Interval time.Duration
	Timeout  time.Duration
	// MaxPolls bounds the number of checks; zero means no bound.
	MaxPolls int
	// TolerateErrors keeps polling after a non-terminal check error.
	// The failed check still counts as a poll.
	TolerateErrors bool
	Estimate       estimate
	Logf           func(format string, args ...any)
}

func (p poller) run(ctx context.Context, check pollFunc) error {
	start := time.Now()
	var lastErr error
	for polls := 0; ; polls++ {
		elapsed := time.Since(start)
		if p.MaxPolls > 0 && polls >= p.MaxPolls {
			return p.timeout(fmt.Sprintf("no terminal status after %d checks", polls), lastErr)
		}
		if polls > 0 && elapsed >= p.Timeout {
			return p.timeout(fmt.Sprintf("no terminal status after %v", elapsed.Round(time.Second)), lastErr)
		}

		done, wait, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrProcessing) || !p.TolerateErrors {
				return err
			}
			lastErr = err
			if p.Logf != nil {
				p.Logf("status check failed, will retry: %v", err)
			}
			wait = 0
		}
		if done {
			return nil
		}

		p.Estimate.advance(time.Since(start))
		if wait <= 0 {
			wait = p.Interval
		}
		if remaining := p.Timeout - time.Since(start); wait > remaining {
			wait = max(remaining, 0)
		}
		if err := retry.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p poller) timeout(msg string, last error) error {
	if last != nil {
		return fmt.Errorf("%w: %s (last error: %v)", ErrTimeout, msg, last)
	}
	return fmt.Errorf("%w: %s", ErrTimeout, msg)
}
