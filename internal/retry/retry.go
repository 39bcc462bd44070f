// Package retry provides exponential backoff retry logic with jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after the first call.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential part of the delay.
	MaxBackoff time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// MaxJitter is the upper bound of the uniform random delay added to every backoff.
	MaxJitter time.Duration
}

// DefaultConfig returns the upload defaults: attempt n sleeps 2^n seconds
// plus up to one second of jitter, three retries at most.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		MaxJitter:      1 * time.Second,
	}
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// retryable is implemented by errors that know whether they are transient,
// such as HTTP errors carrying a status code.
type retryable interface {
	Retryable() bool
}

// IsRetryable is the default classifier. Only transient transport failures
// and errors that declare themselves retryable are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Do executes fn with retry logic, using the provided classifier to determine
// if errors are retryable.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	_, err := DoValue(ctx, cfg, classifier, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value, such as an HTTP response.
// On exhaustion the last error is returned wrapped in a RetryableError.
func DoValue[T any](ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) (T, error)) (T, error) {
	if classifier == nil {
		classifier = IsRetryable
	}

	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !classifier(err) {
			// Permanent error, don't retry
			return zero, err
		}

		// Last attempt, don't sleep
		if attempt == cfg.MaxRetries {
			break
		}

		if err := Sleep(ctx, Backoff(cfg, attempt)); err != nil {
			return zero, err
		}
	}

	return zero, &RetryableError{Err: lastErr, Retries: cfg.MaxRetries}
}

// Backoff returns the delay before retry number attempt (0-indexed):
// InitialBackoff * Multiplier^attempt, capped at MaxBackoff, plus a uniform
// random jitter in [0, MaxJitter).
func Backoff(cfg Config, attempt int) time.Duration {
	base := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxBackoff > 0 && base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}
	return time.Duration(base) + jitter(cfg.MaxJitter)
}

// jitter returns a random duration in range [0, max).
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableError wraps the last error seen once retries are exhausted.
type RetryableError struct {
	Err     error
	Retries int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Retries, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error that must never be retried, whatever its cause.
type PermanentError struct {
	Err error
}

// Permanent wraps err so the default classifier refuses to retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}
