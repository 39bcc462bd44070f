package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string   { return "status" }
func (s statusErr) Retryable() bool { return s >= 500 }

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_RetryThenSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return statusErr(503)
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("Do() made %d attempts, want 3", attempts)
	}
}

func TestDo_ExhaustedMakesMaxRetriesPlusOneAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		return statusErr(503)
	})

	if attempts != 4 {
		t.Errorf("Do() made %d attempts, want 4", attempts)
	}

	var re *RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("Do() error = %v, want *RetryableError", err)
	}
	if re.Retries != 3 {
		t.Errorf("RetryableError.Retries = %d, want 3", re.Retries)
	}
	var se statusErr
	if !errors.As(err, &se) || se != 503 {
		t.Errorf("Do() error does not unwrap to the last cause: %v", err)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		return statusErr(404)
	})

	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
	var re *RetryableError
	if errors.As(err, &re) {
		t.Errorf("Do() wrapped a permanent error in RetryableError: %v", err)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.InitialBackoff = 50 * time.Millisecond

	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())

	err := Do(ctx, cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			cancel()
		}
		return statusErr(500)
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
}

func TestDoValue_ReturnsValue(t *testing.T) {
	attempts := 0
	v, err := DoValue(context.Background(), fastConfig(), nil, func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", syscall.ECONNRESET
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("DoValue() error = %v", err)
	}
	if v != "ok" {
		t.Errorf("DoValue() = %q, want %q", v, "ok")
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: time.Second, Multiplier: 2, MaxBackoff: time.Minute}

	for attempt, want := range []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		if got := Backoff(cfg, attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}

	cfg.MaxBackoff = 3 * time.Second
	if got := Backoff(cfg, 5); got != 3*time.Second {
		t.Errorf("Backoff(5) capped = %v, want 3s", got)
	}
}

func TestBackoff_JitterWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	for i := 0; i < 200; i++ {
		got := Backoff(cfg, 2)
		if got < 4*time.Second || got >= 5*time.Second {
			t.Fatalf("Backoff(2) = %v, want in [4s, 5s)", got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"connection reset", syscall.ECONNRESET, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"server error", statusErr(502), true},
		{"client error", statusErr(400), false},
		{"permanent", Permanent(statusErr(503)), false},
		{"generic error", errors.New("generic"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("DefaultConfig().MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 1*time.Second {
		t.Errorf("DefaultConfig().InitialBackoff = %v, want 1s", cfg.InitialBackoff)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("DefaultConfig().Multiplier = %f, want 2.0", cfg.Multiplier)
	}
	if cfg.MaxJitter != 1*time.Second {
		t.Errorf("DefaultConfig().MaxJitter = %v, want 1s", cfg.MaxJitter)
	}
}
