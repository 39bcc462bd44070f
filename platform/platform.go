// Package platform defines the upload adapter capability shared by every
// destination platform and the state machine that drives one adapter
// through a single upload.
//
// An Adapter is stateless with respect to a job: everything that belongs to
// one upload lives in a Session created by Run. Adapters may cache
// credentials across jobs but must guard that cache themselves.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"clipcast/internal/media"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
)

// Error categories. Every adapter failure wraps exactly one of them.
var (
	ErrValidation         = errors.New("validation failed")
	ErrCredentials        = errors.New("credentials error")
	ErrProcessing         = errors.New("processing failed")
	ErrTimeout            = errors.New("timed out")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrConfiguration      = errors.New("configuration error")
)

// releaseTimeout bounds cleanup of temporary resources after a job ends.
const releaseTimeout = 30 * time.Second

// Name identifies a platform.
type Name string

// Supported platforms.
const (
	YouTube   Name = metadata.YouTube
	Instagram Name = metadata.Instagram
	TikTok    Name = metadata.TikTok
	Twitter   Name = metadata.Twitter
)

// DisplayName returns the human readable platform name.
func (n Name) DisplayName() string {
	switch n {
	case YouTube:
		return "YouTube"
	case Instagram:
		return "Instagram"
	case TikTok:
		return "TikTok"
	case Twitter:
		return "Twitter"
	}
	return string(n)
}

// State is the position of one upload in its state machine.
type State int

// Upload states, in order.
const (
	Idle State = iota
	Authenticating
	Validating
	Uploading
	ServerProcessing
	Publishing
	Succeeded
	Failed
	TimedOut
)

var stateNames = [...]string{
	Idle:             "idle",
	Authenticating:   "authenticating",
	Validating:       "validating",
	Uploading:        "uploading",
	ServerProcessing: "server_processing",
	Publishing:       "publishing",
	Succeeded:        "succeeded",
	Failed:           "failed",
	TimedOut:         "timed_out",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == TimedOut
}

// Adapter is one platform's upload protocol. Run calls the methods in
// declaration order, stopping at the first error.
type Adapter interface {
	Name() Name
	// Allocations are the progress weights of the adapter's steps.
	Allocations() progress.Allocations

	Authenticate(ctx context.Context, s *Session) error
	// Validate checks the file and the mapped parameters and fills s.Media.
	Validate(ctx context.Context, s *Session) error
	// Upload transfers the file and records the platform's handle in s.RemoteID.
	Upload(ctx context.Context, s *Session) error
	// Process waits for asynchronous server-side processing, if any.
	Process(ctx context.Context, s *Session) error
	// Publish makes the upload visible and returns its public identifier.
	Publish(ctx context.Context, s *Session) (string, error)
}

// Job is the immutable input shared by all adapters of one upload.
type Job struct {
	ID   string
	Path string
}

// Session is the per-job state of one adapter.
type Session struct {
	Job      Job
	Params   metadata.Params
	Progress *progress.Tracker
	Media    media.Info
	// RemoteID is the platform's handle for the upload in progress.
	RemoteID string

	name   Name
	logger *log.Logger

	mu       sync.Mutex
	releases []func(context.Context)
}

// NewSession creates a session. Run does this; it is exported for tests and
// callers that drive adapter steps by hand.
func NewSession(name Name, job Job, params metadata.Params, tracker *progress.Tracker, logger *log.Logger) *Session {
	if params == nil {
		params = metadata.Params{}
	}
	if tracker == nil {
		tracker = progress.NewTracker(string(name), progress.Allocations{"upload": 100}, nil)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Session{Job: job, Params: params, Progress: tracker, name: name, logger: logger}
}

// Logf logs a line prefixed with the job and platform.
func (s *Session) Logf(format string, args ...any) {
	s.logger.Printf("[JOB %s] [%s] %s", s.Job.ID, s.name.DisplayName(), fmt.Sprintf(format, args...))
}

// OnRelease registers fn to run once the job ends, whatever the outcome.
// Release functions run in reverse registration order.
func (s *Session) OnRelease(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.releases = append(s.releases, fn)
	s.mu.Unlock()
}

// Release runs the registered release functions. It is safe to call twice.
func (s *Session) Release(ctx context.Context) {
	s.mu.Lock()
	fns := s.releases
	s.releases = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](ctx)
	}
}

// Result is the outcome of one platform upload.
type Result struct {
	Platform string        `json:"platform"`
	Success  bool          `json:"success"`
	ID       string        `json:"id,omitempty"`
	Error    string        `json:"error,omitempty"`
	State    State         `json:"state"`
	Duration time.Duration `json:"duration"`

	// Err is the underlying error for errors.Is and errors.As.
	Err error `json:"-"`
}

// Run drives a through one upload of job. It never panics and never returns
// an error: every failure is reported in the Result. Temporary resources
// registered on the session are released before Run returns.
func Run(ctx context.Context, a Adapter, job Job, params metadata.Params, rep progress.Reporter, logger *log.Logger) (res Result) {
	name := a.Name()
	tracker := progress.NewTracker(string(name), a.Allocations(), rep)
	s := NewSession(name, job, params, tracker, logger)

	start := time.Now()
	state := Idle
	res.Platform = string(name)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic in %s adapter: %v", name.DisplayName(), r)
			state = Failed
		}
		s.Release(ctx)

		res.Duration = time.Since(start)
		res.State = state
		if res.Err != nil {
			res.Success = false
			res.ID = ""
			res.Error = res.Err.Error()
			s.Logf("failed while %s: %v", state, res.Err)
			if errors.Is(res.Err, ErrTimeout) {
				res.State = TimedOut
			} else {
				res.State = Failed
			}
			tracker.Complete(false, res.Err)
			return
		}
		res.Success = true
		res.State = Succeeded
		tracker.Complete(true, nil)
		s.Logf("published %s in %v", res.ID, res.Duration.Round(time.Millisecond))
	}()

	s.Logf("starting upload of %s", job.Path)

	steps := []struct {
		state State
		run   func(context.Context, *Session) error
	}{
		{Authenticating, a.Authenticate},
		{Validating, a.Validate},
		{Uploading, a.Upload},
		{ServerProcessing, a.Process},
	}
	for _, step := range steps {
		state = step.state
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		if err := step.run(ctx, s); err != nil {
			res.Err = err
			return res
		}
	}

	state = Publishing
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	id, err := a.Publish(ctx, s)
	if err != nil {
		res.Err = err
		return res
	}
	if id == "" {
		res.Err = fmt.Errorf("%w: publish returned no identifier", ErrUnexpectedResponse)
		return res
	}
	res.ID = id
	return res
}

// inspect validates the session's file against rules and stores the result.
func inspect(s *Session, rules media.Rules, prober media.Prober) error {
	info, err := media.Inspect(s.Job.Path, rules, prober)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	s.Media = info
	if info.Probe != nil {
		s.Logf("file %s, %s, %.1fs", media.FormatSize(info.Size), info.Probe.FormatName, info.Probe.Duration)
	}
	return nil
}
