package platform

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	httpc "clipcast/http"
	"clipcast/internal/auth"
	"clipcast/internal/config"
	"clipcast/internal/media"
	"clipcast/internal/objectstore"
	"clipcast/internal/retry"
)

// Deps are the collaborators a Factory wires into an adapter.
type Deps struct {
	Config *config.Config
	// Bootstrapper obtains consent when a platform has no usable token.
	Bootstrapper auth.Bootstrapper
	// Notifier is told about long-lived tokens minted during a run.
	Notifier auth.TokenNotifier
	// Prober checks containers during validation; nil skips the check.
	Prober media.Prober
	// Store hosts files for platforms that fetch by URL. When nil, the
	// Instagram factory connects to the configured bucket.
	Store  objectstore.Store
	Logger *log.Logger
}

func (d Deps) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Factory builds an adapter. It returns an error wrapping ErrCredentials
// when required credentials are missing.
type Factory func(Deps) (Adapter, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[Name]Factory)
)

// Register makes a factory available by name. It panics on duplicates.
func Register(name Name, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := factories[name]; dup {
		panic("platform: Register called twice for " + string(name))
	}
	factories[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name Name) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[Name(strings.ToLower(string(name)))]
	return f, ok
}

// Names returns the registered platform names, sorted.
func Names() []Name {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]Name, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Build constructs the adapters for names, or for every registered platform
// when names is empty. Platforms that cannot be built are left out and
// reported in the error map; one failure never prevents the others.
func Build(names []string, deps Deps) ([]Adapter, map[Name]error) {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}

	want := make([]Name, 0, len(names))
	for _, n := range names {
		want = append(want, Name(strings.ToLower(strings.TrimSpace(n))))
	}
	if len(want) == 0 {
		want = Names()
	}

	var adapters []Adapter
	errs := make(map[Name]error)
	seen := make(map[Name]bool)
	for _, name := range want {
		if seen[name] {
			continue
		}
		seen[name] = true

		f, ok := Lookup(name)
		if !ok {
			errs[name] = fmt.Errorf("%w: unknown platform %q", ErrConfiguration, name)
			continue
		}
		a, err := f(deps)
		if err != nil {
			errs[name] = err
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters, errs
}

// retryConfig converts the configured retry policy.
func retryConfig(c *config.Config) retry.Config {
	return retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Multiplier:     c.BackoffMultiplier,
		MaxJitter:      c.MaxJitter,
	}
}

// httpConfig builds the HTTP client configuration shared by the adapters.
func httpConfig(c *config.Config) *httpc.Config {
	hc := httpc.DefaultConfig()
	hc.Timeout = c.RequestTimeout
	hc.Retry = retryConfig(c)
	return hc
}

func missingCredentials(err error) error {
	return fmt.Errorf("%w: %w", ErrCredentials, err)
}
