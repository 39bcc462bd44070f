package clipcast

import (
	httpc "clipcast/http"
	"clipcast/internal/auth"
	"clipcast/internal/config"
	"clipcast/internal/retry"
	"clipcast/orchestrator"
	"clipcast/platform"
)

// Error handling types exported for library users.
//
// Using errors.Is() for categories:
//
//	if errors.Is(result.Err, clipcast.ErrCredentials) {
//		fmt.Println("run `clipcast auth` for this platform")
//	}
//
// Using errors.As() for details:
//
//	var httpErr *clipcast.HTTPError
//	if errors.As(result.Err, &httpErr) {
//		fmt.Printf("status %d: %s\n", httpErr.StatusCode, httpErr.Message())
//	}

// Type aliases for convenient error handling.
type (
	// HTTPError is a non-2xx platform API response.
	HTTPError = httpc.HTTPError
	// RateLimitError is a 429 response.
	RateLimitError = httpc.RateLimitError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// MissingCredentialsError lists the environment variables a platform needs.
	MissingCredentialsError = config.MissingError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrValidation indicates the file or parameters were rejected before upload.
	ErrValidation = platform.ErrValidation
	// ErrCredentials indicates missing or unusable credentials.
	ErrCredentials = platform.ErrCredentials
	// ErrProcessing indicates the platform rejected the video after upload.
	ErrProcessing = platform.ErrProcessing
	// ErrTimeout indicates server-side processing did not finish in time.
	ErrTimeout = platform.ErrTimeout
	// ErrUnexpectedResponse indicates a response missing a required field.
	ErrUnexpectedResponse = platform.ErrUnexpectedResponse
	// ErrConfiguration indicates an invalid setup, such as an unknown platform.
	ErrConfiguration = platform.ErrConfiguration
	// ErrNoPlatforms indicates no platform could be enabled.
	ErrNoPlatforms = orchestrator.ErrNoPlatforms
	// ErrNoBootstrapper indicates interactive consent was needed but unavailable.
	ErrNoBootstrapper = auth.ErrNoBootstrapper
)

// IsRetryable determines if an error should be retried.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
