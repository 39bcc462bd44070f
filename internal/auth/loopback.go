package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const callbackPage = `<html><body><h3>Authorization received.</h3><p>You can close this window and return to the terminal.</p></body></html>`

// LoopbackReceiver is a one-shot HTTP server that captures an OAuth redirect
// on a local address.
type LoopbackReceiver struct {
	listener net.Listener
	server   *http.Server
	path     string
	state    string
	result   chan callbackResult
}

type callbackResult struct {
	code string
	err  error
}

// Listen starts a receiver for redirectURI. The host and port come from the
// URI; state, if non-empty, must come back unchanged. Access logs go to logOut.
func Listen(redirectURI, state string, logOut io.Writer) (*LoopbackReceiver, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect URI: %w", err)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return listenAddr(addr, path, state, logOut)
}

func listenAddr(addr, path, state string, logOut io.Writer) (*LoopbackReceiver, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	rcv := &LoopbackReceiver{
		listener: ln,
		path:     path,
		state:    state,
		result:   make(chan callbackResult, 1),
	}

	r := mux.NewRouter()
	r.HandleFunc(path, rcv.handleCallback).Methods(http.MethodGet)

	var h http.Handler = r
	if logOut != nil {
		h = handlers.LoggingHandler(logOut, r)
	}
	rcv.server = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := rcv.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rcv.deliver(callbackResult{err: err})
		}
	}()
	return rcv, nil
}

// URL returns the address the receiver actually listens on.
func (r *LoopbackReceiver) URL() string {
	return "http://" + r.listener.Addr().String() + r.path
}

func (r *LoopbackReceiver) handleCallback(w http.ResponseWriter, req *http.Request) {
	code, err := ParseCode("http://loopback"+req.URL.RequestURI(), r.state)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, callbackPage)
	}
	r.deliver(callbackResult{code: code, err: err})
}

func (r *LoopbackReceiver) deliver(res callbackResult) {
	select {
	case r.result <- res:
	default:
	}
}

// Wait blocks until a redirect arrives or ctx ends, then shuts the server down.
func (r *LoopbackReceiver) Wait(ctx context.Context) (string, error) {
	defer r.Close()
	select {
	case res := <-r.result:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the server.
func (r *LoopbackReceiver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.server.Shutdown(ctx)
}
