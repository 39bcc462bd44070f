package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"clipcast/internal/auth"
)

// consentTimeout bounds how long a consent prompt waits for the operator.
const consentTimeout = 5 * time.Minute

// terminalBootstrapper asks the operator to open the consent page. A
// loopback redirect URI is captured by a local listener; any other one is
// pasted back on stdin. Prompts are serialized across platforms.
type terminalBootstrapper struct {
	in  *bufio.Reader
	out io.Writer

	mu            sync.Mutex
	before, after func()

	// Stdin is read by a single goroutine started on the first paste. A
	// line typed after a prompt timed out answers the next prompt.
	readOnce sync.Once
	lines    chan line
}

type line struct {
	s   string
	err error
}

var _ auth.Bootstrapper = (*terminalBootstrapper)(nil)

func (b *terminalBootstrapper) setHooks(before, after func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.before, b.after = before, after
}

func (b *terminalBootstrapper) Authorize(ctx context.Context, req auth.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.before != nil {
		b.before()
	}
	if b.after != nil {
		defer b.after()
	}

	ctx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()

	fmt.Fprintln(b.out)
	fmt.Fprintln(b.out, titleStyle.Render(req.Platform+" authorization required"))
	fmt.Fprintf(b.out, "Open this URL in your browser and approve access:\n\n  %s\n\n", req.URL)

	if auth.IsLoopback(req.RedirectURI) {
		rcv, err := auth.Listen(req.RedirectURI, req.State, io.Discard)
		if err == nil {
			fmt.Fprintf(b.out, "Waiting for the redirect on %s ...\n", rcv.URL())
			return rcv.Wait(ctx)
		}
		fmt.Fprintln(b.out, mutedStyle.Render("Could not listen for the redirect ("+err.Error()+"), falling back to paste."))
	}
	return b.paste(ctx, req.State)
}

// paste reads the redirect URL (or bare code) from the operator.
func (b *terminalBootstrapper) paste(ctx context.Context, state string) (string, error) {
	fmt.Fprint(b.out, "After approving, paste the full URL you were redirected to: ")

	select {
	case l, ok := <-b.readLines():
		if !ok {
			l.err = io.EOF
		}
		if l.err != nil {
			return "", fmt.Errorf("read authorization response: %w", l.err)
		}
		return auth.ParseCode(l.s, state)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLines starts the stdin reader. The channel closes after the first
// read error has been delivered.
func (b *terminalBootstrapper) readLines() <-chan line {
	b.readOnce.Do(func() {
		b.lines = make(chan line)
		go func() {
			defer close(b.lines)
			for {
				s, err := b.in.ReadString('\n')
				if err == io.EOF && strings.TrimSpace(s) != "" {
					err = nil
				}
				b.lines <- line{s, err}
				if err != nil {
					return
				}
			}
		}()
	})
	return b.lines
}
