// Package orchestrator fans one upload job out to several platform adapters
// and collects their independent results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipcast/internal/metadata"
	"clipcast/internal/progress"
	"clipcast/platform"
)

// ErrNoPlatforms is returned when there is nothing to upload to.
var ErrNoPlatforms = errors.New("orchestrator: no platforms enabled")

// Options configures an Orchestrator.
type Options struct {
	// MaxWorkers bounds concurrent adapter runs. Zero means one worker
	// per adapter.
	MaxWorkers int
	Logger     *log.Logger
	// Reporter receives every adapter's progress snapshots. It must be safe
	// for concurrent use.
	Reporter progress.Reporter
}

// Orchestrator runs a job against a fixed set of adapters.
type Orchestrator struct {
	adapters []platform.Adapter
	opts     Options
	logger   *log.Logger
}

// New creates an orchestrator over adapters. Adapter names must be unique.
func New(adapters []platform.Adapter, opts Options) (*Orchestrator, error) {
	if len(adapters) == 0 {
		return nil, ErrNoPlatforms
	}
	seen := make(map[platform.Name]bool, len(adapters))
	for _, a := range adapters {
		if seen[a.Name()] {
			return nil, fmt.Errorf("orchestrator: duplicate adapter %q", a.Name())
		}
		seen[a.Name()] = true
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		adapters: append([]platform.Adapter(nil), adapters...),
		opts:     opts,
		logger:   logger,
	}, nil
}

// Results maps platform name to the outcome of its upload.
type Results map[string]platform.Result

// Names returns the platform names in sorted order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Succeeded returns the names of platforms that published, sorted.
func (r Results) Succeeded() []string {
	var out []string
	for _, name := range r.Names() {
		if r[name].Success {
			out = append(out, name)
		}
	}
	return out
}

// Failed returns the names of platforms that did not publish, sorted.
func (r Results) Failed() []string {
	var out []string
	for _, name := range r.Names() {
		if !r[name].Success {
			out = append(out, name)
		}
	}
	return out
}

// Run uploads path to every adapter and waits for all of them. A failing
// adapter never affects the others: its error is recorded in its Result and
// Run itself only fails when no adapter is configured.
func (o *Orchestrator) Run(ctx context.Context, path string, common metadata.Common, overrides map[string]string) (Results, error) {
	if o == nil || len(o.adapters) == 0 {
		return nil, ErrNoPlatforms
	}

	job := platform.Job{ID: uuid.NewString(), Path: path}
	start := time.Now()

	workers := o.opts.MaxWorkers
	if workers <= 0 || workers > len(o.adapters) {
		workers = len(o.adapters)
	}
	o.logger.Printf("[JOB %s] uploading %s to %d platform(s) with %d worker(s)", job.ID, path, len(o.adapters), workers)

	var (
		mu      sync.Mutex
		results = make(Results, len(o.adapters))
		wg      sync.WaitGroup
		jobCh   = make(chan platform.Adapter)
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobCh {
				res := o.runOne(ctx, a, job, common, overrides)
				mu.Lock()
				results[res.Platform] = res
				mu.Unlock()
			}
		}()
	}
	for _, a := range o.adapters {
		jobCh <- a
	}
	close(jobCh)
	wg.Wait()

	o.logger.Printf("[JOB %s] finished in %v: %d/%d succeeded", job.ID,
		time.Since(start).Round(time.Millisecond), len(results.Succeeded()), len(results))
	return results, nil
}

// runOne maps metadata for a and runs it. Panics escaping the adapter
// boundary become failed results.
func (o *Orchestrator) runOne(ctx context.Context, a platform.Adapter, job platform.Job, common metadata.Common, overrides map[string]string) (res platform.Result) {
	name := string(a.Name())
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s adapter: %v", name, r)
			o.logger.Printf("[JOB %s] %v", job.ID, err)
			res = platform.Result{Platform: name, State: platform.Failed, Error: err.Error(), Err: err}
		}
	}()

	params, err := metadata.Map(name, common, overrides)
	if err != nil {
		err = fmt.Errorf("%w: %w", platform.ErrConfiguration, err)
		return platform.Result{Platform: name, State: platform.Failed, Error: err.Error(), Err: err}
	}
	return platform.Run(ctx, a, job, params, o.opts.Reporter, o.logger)
}
