package platform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	httpc "clipcast/http"
	"clipcast/internal/config"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
	"clipcast/internal/retry"
)

func writeVideo(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func testRetry() retry.Config {
	return retry.Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func testHTTP() *httpc.Config {
	return &httpc.Config{
		Timeout:   5 * time.Second,
		Retry:     testRetry(),
		UserAgent: "clipcast-test",
		Transport: httpc.DefaultTransportConfig(),
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// recorder collects every snapshot reported.
type recorder struct {
	mu    sync.Mutex
	snaps []progress.Snapshot
}

func (r *recorder) Report(s progress.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) last() progress.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return progress.Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

// monotonic reports whether Value never decreased.
func (r *recorder) monotonic() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.snaps); i++ {
		if r.snaps[i].Value < r.snaps[i-1].Value {
			return false
		}
	}
	return true
}

func mapParams(t *testing.T, name Name, overrides map[string]string) metadata.Params {
	t.Helper()
	p, err := metadata.Map(string(name), metadata.Common{
		Title:       "Launch day",
		Description: "Behind the scenes",
		Tags:        []string{"go", "video"},
	}, overrides)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	return p
}

// fakeAdapter records the steps it runs and fails on demand.
type fakeAdapter struct {
	mu       sync.Mutex
	steps    []string
	failAt   string
	err      error
	panicAt  string
	id       string
	released bool
}

func (f *fakeAdapter) Name() Name { return Name("fake") }

func (f *fakeAdapter) Allocations() progress.Allocations {
	return progress.Allocations{"authenticate": 20, "validate_file": 20, "upload": 20, "process": 20, "publish": 20}
}

func (f *fakeAdapter) step(s *Session, name, alloc string) error {
	f.mu.Lock()
	f.steps = append(f.steps, name)
	f.mu.Unlock()
	if f.panicAt == name {
		panic("boom")
	}
	if f.failAt == name {
		return f.err
	}
	s.Progress.Update(alloc, name)
	return nil
}

func (f *fakeAdapter) Authenticate(ctx context.Context, s *Session) error {
	return f.step(s, "authenticate", "authenticate")
}

func (f *fakeAdapter) Validate(ctx context.Context, s *Session) error {
	return f.step(s, "validate", "validate_file")
}

func (f *fakeAdapter) Upload(ctx context.Context, s *Session) error {
	s.OnRelease(func(context.Context) {
		f.mu.Lock()
		f.released = true
		f.mu.Unlock()
	})
	return f.step(s, "upload", "upload")
}

func (f *fakeAdapter) Process(ctx context.Context, s *Session) error {
	return f.step(s, "process", "process")
}

func (f *fakeAdapter) Publish(ctx context.Context, s *Session) (string, error) {
	if err := f.step(s, "publish", "publish"); err != nil {
		return "", err
	}
	return f.id, nil
}

func TestRunSuccess(t *testing.T) {
	f := &fakeAdapter{id: "remote-1"}
	rec := &recorder{}

	res := Run(context.Background(), f, Job{ID: "job", Path: "x.mp4"}, nil, rec, quietLogger())

	if !res.Success || res.ID != "remote-1" || res.State != Succeeded {
		t.Fatalf("Run() = %+v", res)
	}
	want := []string{"authenticate", "validate", "upload", "process", "publish"}
	if len(f.steps) != len(want) {
		t.Fatalf("steps = %v, want %v", f.steps, want)
	}
	for i := range want {
		if f.steps[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, f.steps[i], want[i])
		}
	}
	if !f.released {
		t.Error("release function did not run")
	}
	last := rec.last()
	if !last.Done || last.Value != 100 {
		t.Errorf("final snapshot = %+v, want done at 100", last)
	}
}

func TestRunStopsAtFirstError(t *testing.T) {
	f := &fakeAdapter{failAt: "upload", err: errors.New("network down")}
	rec := &recorder{}

	res := Run(context.Background(), f, Job{ID: "job"}, nil, rec, quietLogger())

	if res.Success || res.State != Failed {
		t.Fatalf("Run() = %+v, want failure", res)
	}
	if res.Error != "network down" {
		t.Errorf("Error = %q", res.Error)
	}
	if len(f.steps) != 3 {
		t.Errorf("steps = %v, want to stop after upload", f.steps)
	}
	if !f.released {
		t.Error("release function did not run on failure")
	}
	last := rec.last()
	if !last.Failed || last.Value != 40 {
		t.Errorf("final snapshot = %+v, want frozen at 40", last)
	}
}

func TestRunTimedOut(t *testing.T) {
	f := &fakeAdapter{failAt: "process", err: ErrTimeout}
	res := Run(context.Background(), f, Job{ID: "job"}, nil, nil, quietLogger())
	if res.State != TimedOut || res.Success {
		t.Errorf("Run() = %+v, want timed out", res)
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	f := &fakeAdapter{panicAt: "process"}
	res := Run(context.Background(), f, Job{ID: "job"}, nil, nil, quietLogger())
	if res.Success || res.State != Failed || res.Error == "" {
		t.Errorf("Run() = %+v, want failure", res)
	}
	if !f.released {
		t.Error("release function did not run after panic")
	}
}

func TestRunRejectsEmptyID(t *testing.T) {
	f := &fakeAdapter{}
	res := Run(context.Background(), f, Job{ID: "job"}, nil, nil, quietLogger())
	if res.Success || !errors.Is(res.Err, ErrUnexpectedResponse) {
		t.Errorf("Run() = %+v, want unexpected response", res)
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeAdapter{id: "x"}
	res := Run(ctx, f, Job{ID: "job"}, nil, nil, quietLogger())
	if res.Success || len(f.steps) != 0 {
		t.Errorf("Run() = %+v after %v, want no steps", res, f.steps)
	}
}

func TestSessionReleaseOrder(t *testing.T) {
	s := NewSession("fake", Job{}, nil, nil, quietLogger())
	var order []int
	s.OnRelease(func(context.Context) { order = append(order, 1) })
	s.OnRelease(func(context.Context) { order = append(order, 2) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.OnRelease(func(ctx context.Context) {
		if ctx.Err() != nil {
			t.Error("release context inherited cancellation")
		}
	})
	s.Release(ctx)
	s.Release(ctx)

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("release order = %v, want [2 1]", order)
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || TimedOut.String() != "timed_out" {
		t.Errorf("unexpected names %s %s", Idle, TimedOut)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("State(42) = %s", State(42))
	}
	if !Succeeded.Terminal() || Uploading.Terminal() {
		t.Error("Terminal() wrong")
	}
}

func TestAllocationsSumTo100(t *testing.T) {
	adapters := []Adapter{
		&YouTubeAdapter{},
		&InstagramAdapter{},
		&TikTokAdapter{},
		&TwitterAdapter{},
	}
	for _, a := range adapters {
		if got := a.Allocations().Total(); got != 100 {
			t.Errorf("%s allocations sum to %v", a.Name(), got)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	names := Names()
	want := []Name{Instagram, TikTok, Twitter, YouTube}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if _, ok := Lookup("YouTube"); !ok {
		t.Error("Lookup is case sensitive")
	}
}

func TestBuildReportsMissingCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Credentials.TikTok = config.TikTokCredentials{ClientKey: "k", ClientSecret: "s"}

	adapters, errs := Build([]string{"tiktok", "twitter", "myspace"}, Deps{Config: cfg, Logger: quietLogger()})

	if len(adapters) != 1 || adapters[0].Name() != TikTok {
		t.Fatalf("adapters = %v", adapters)
	}
	if !errors.Is(errs[Twitter], ErrCredentials) {
		t.Errorf("twitter error = %v, want ErrCredentials", errs[Twitter])
	}
	var missing *config.MissingError
	if !errors.As(errs[Twitter], &missing) || len(missing.Vars) != 5 {
		t.Errorf("twitter error = %v, want all five variables missing", errs[Twitter])
	}
	if !errors.Is(errs["myspace"], ErrConfiguration) {
		t.Errorf("unknown platform error = %v", errs["myspace"])
	}
}

func TestDisplayName(t *testing.T) {
	if YouTube.DisplayName() != "YouTube" || Name("other").DisplayName() != "other" {
		t.Error("DisplayName wrong")
	}
}
