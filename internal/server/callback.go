package server

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// CallbackPath is the path Google redirects back to after consent.
	CallbackPath = "/oauth/callback"

	// DefaultCallbackAddr is the default loopback address for the callback server.
	DefaultCallbackAddr = "127.0.0.1:8765"

	// DefaultCallbackReadTimeout is the read header timeout for the callback server.
	DefaultCallbackReadTimeout = 10 * time.Second

	// DefaultCallbackWriteTimeout is the write timeout for the callback server.
	DefaultCallbackWriteTimeout = 10 * time.Second
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>Gmail connected</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Gmail connected</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`

const errorPage = `<!DOCTYPE html>
<html>
<head><title>Connection failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Connection failed</h1>
<p>%s</p>
<p>Return to the terminal to retry.</p>
</body>
</html>`

// RedirectConsumer receives the raw query string of an OAuth redirect.
// It returns an error when the redirect could not be accepted, which is
// reflected back to the browser.
type RedirectConsumer func(ctx context.Context, rawQuery string) error

// CallbackServer is a loopback HTTP listener that captures the OAuth
// redirect from Google's consent screen. It binds before the authorization
// URL is opened so the redirect URI is valid for the whole handshake.
type CallbackServer struct {
	consumer   RedirectConsumer
	logger     *slog.Logger
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// CallbackOption configures a CallbackServer.
type CallbackOption func(*CallbackServer)

// WithCallbackLogger sets the logger for the callback server.
func WithCallbackLogger(logger *slog.Logger) CallbackOption {
	return func(s *CallbackServer) {
		s.logger = logger
	}
}

// NewCallbackServer creates a callback server that forwards redirect queries
// to the given consumer.
func NewCallbackServer(consumer RedirectConsumer, opts ...CallbackOption) (*CallbackServer, error) {
	if consumer == nil {
		return nil, fmt.Errorf("redirect consumer is required")
	}

	s := &CallbackServer{
		consumer: consumer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Listen binds the server to addr. Passing an address with port 0 picks a
// free port; use RedirectURI afterwards to learn the bound address.
func (s *CallbackServer) Listen(addr string) error {
	if addr == "" {
		addr = DefaultCallbackAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind callback listener on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	return nil
}

// RedirectURI returns the full redirect URI for the bound listener.
// Listen must have been called first.
func (s *CallbackServer) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://%s%s", s.listener.Addr().String(), CallbackPath)
}

// Serve starts handling requests on the bound listener. It blocks until
// Shutdown is called or the listener fails.
func (s *CallbackServer) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return fmt.Errorf("callback server is not listening, call Listen first")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: DefaultCallbackReadTimeout,
		WriteTimeout:      DefaultCallbackWriteTimeout,
	}

	s.logger.Info("callback server listening", "addr", listener.Addr().String())

	err := s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleCallback hands the redirect query to the consumer and renders a
// result page for the browser.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := s.consumer(r.Context(), r.URL.RawQuery); err != nil {
		s.logger.Warn("oauth redirect rejected", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, errorPage, html.EscapeString(err.Error()))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(successPage))
}

// Shutdown gracefully stops the callback server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.logger.Info("shutting down callback server")
		return s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
