// Package auth holds the interactive pieces of credential bootstrapping:
// handing an authorization URL to a human, receiving the code back, and
// surfacing newly minted long-lived tokens to the operator.
//
// Tokens are never written to disk. The operator decides where they go.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoBootstrapper is returned when a platform needs interactive consent
// but the caller provided no way to obtain it.
var ErrNoBootstrapper = errors.New("interactive authorization required but no bootstrapper configured")

// ErrStateMismatch is returned when a redirect carries an unexpected state value.
var ErrStateMismatch = errors.New("authorization state mismatch")

// Request describes one authorization prompt.
type Request struct {
	// Platform is the display name shown to the operator.
	Platform string
	// URL is the consent page to open.
	URL string
	// RedirectURI is where the platform sends the browser afterwards.
	RedirectURI string
	// State is the anti-forgery value expected back in the redirect.
	State string
}

// Bootstrapper obtains an authorization code for a Request, typically by
// asking a human to open the URL and paste back the redirect.
type Bootstrapper interface {
	Authorize(ctx context.Context, req Request) (code string, err error)
}

// BootstrapperFunc adapts a function to the Bootstrapper interface.
type BootstrapperFunc func(ctx context.Context, req Request) (string, error)

// Authorize calls f.
func (f BootstrapperFunc) Authorize(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// TokenNotifier is told about every long-lived token minted during a run,
// together with the environment variable it belongs in.
type TokenNotifier interface {
	TokenIssued(platform, envVar, value string)
}

// NotifierFunc adapts a function to the TokenNotifier interface.
type NotifierFunc func(platform, envVar, value string)

// TokenIssued calls f.
func (f NotifierFunc) TokenIssued(platform, envVar, value string) { f(platform, envVar, value) }

// Notify calls n if it is non-nil.
func Notify(n TokenNotifier, platform, envVar, value string) {
	if n != nil && value != "" {
		n.TokenIssued(platform, envVar, value)
	}
}

// PKCE holds a proof key pair for the S256 method.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a verifier with oauth2.GenerateVerifier and derives a
// hex-encoded SHA-256 challenge, the encoding desktop TikTok clients use.
func NewPKCE() PKCE {
	v := oauth2.GenerateVerifier()
	return PKCE{Verifier: v, Challenge: HexChallenge(v)}
}

// HexChallenge returns hex(sha256(verifier)).
func HexChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

// ParseCode extracts the authorization code from what the operator pasted:
// either the full redirect URL or the bare code. When state is non-empty
// and the URL carries one, they must match.
func ParseCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("no authorization code provided")
	}
	if !strings.Contains(input, "://") && !strings.HasPrefix(input, "?") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		if d := q.Get("error_description"); d != "" {
			return "", fmt.Errorf("authorization denied: %s: %s", e, d)
		}
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if state != "" && q.Has("state") && q.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code parameter")
	}
	return code, nil
}

// IsLoopback reports whether redirectURI points at this machine over plain
// HTTP, so a LoopbackReceiver can capture the redirect.
func IsLoopback(redirectURI string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "http" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
