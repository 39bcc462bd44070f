package clipcast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"clipcast/internal/auth"
	"clipcast/internal/config"
	"clipcast/internal/media"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
	"clipcast/orchestrator"
	"clipcast/platform"
)

// Metadata is the platform-independent description of a video.
type Metadata = metadata.Common

// Results maps platform name to upload outcome.
type Results = orchestrator.Results

// Result is the outcome of one platform upload.
type Result = platform.Result

// Option customizes Publish.
type Option func(*options)

type options struct {
	cfg          *config.Config
	platforms    []string
	bootstrapper auth.Bootstrapper
	notifier     auth.TokenNotifier
	reporter     progress.Reporter
	logger       *log.Logger
}

// WithConfig uses cfg instead of loading configuration from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithPlatforms restricts publishing to the named platforms.
func WithPlatforms(names ...string) Option {
	return func(o *options) { o.platforms = names }
}

// WithBootstrapper enables interactive authorization for platforms whose
// stored token is missing or rejected.
func WithBootstrapper(b auth.Bootstrapper) Option {
	return func(o *options) { o.bootstrapper = b }
}

// WithNotifier receives long-lived tokens minted during the run.
func WithNotifier(n auth.TokenNotifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithReporter receives progress snapshots from every platform.
func WithReporter(r progress.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithLogger sets the logger for job and platform lines.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Publish uploads path to every enabled platform concurrently. Overrides use
// "{platform}_{field}" keys. Platforms that cannot be set up are skipped and
// logged; an error is returned only when none remain.
func Publish(ctx context.Context, path string, md Metadata, overrides map[string]string, opts ...Option) (Results, error) {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		o.cfg = cfg
	}
	if len(o.platforms) == 0 {
		o.platforms = o.cfg.Platforms
	}

	adapters, err := Adapters(o.cfg, o.platforms, platform.Deps{
		Bootstrapper: o.bootstrapper,
		Notifier:     o.notifier,
		Logger:       o.logger,
	})
	if len(adapters) == 0 {
		return nil, err
	}
	if err != nil {
		o.logger.Printf("clipcast: %v", err)
	}

	orc, err := orchestrator.New(adapters, orchestrator.Options{
		MaxWorkers: o.cfg.MaxWorkers,
		Logger:     o.logger,
		Reporter:   o.reporter,
	})
	if err != nil {
		return nil, err
	}
	return orc.Run(ctx, path, md, overrides)
}

// Adapters builds the adapters for names (all platforms when empty) from
// cfg. Platforms that could not be built are reported in the returned
// error; when no adapter could be built the error also wraps ErrNoPlatforms.
func Adapters(cfg *config.Config, names []string, deps platform.Deps) ([]platform.Adapter, error) {
	deps.Config = cfg
	if deps.Prober == nil && cfg.ProbeMedia {
		if p := media.NewFFProbe(); p.Available() {
			deps.Prober = p
		}
	}

	adapters, errs := platform.Build(names, deps)

	skipped := make([]string, 0, len(errs))
	for name := range errs {
		skipped = append(skipped, string(name))
	}
	sort.Strings(skipped)
	var all []error
	for _, name := range skipped {
		all = append(all, fmt.Errorf("%s skipped: %w", name, errs[platform.Name(name)]))
	}
	if len(adapters) == 0 {
		all = append([]error{ErrNoPlatforms}, all...)
	}
	return adapters, errors.Join(all...)
}
