package auth

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// CallbackResult represents the parsed OAuth redirect.
type CallbackResult struct {
	// Code is the authorization code from the provider.
	Code string

	// State is the state parameter to verify against the original request.
	State string

	// Error is the error code if the authorization failed.
	Error string

	// ErrorDescription is a human-readable error description.
	ErrorDescription string
}

// IsError returns true if the callback result represents a provider denial.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a short-lived local HTTP server that captures the OAuth
// redirect. It binds the exact host:port:path of the registered redirect URI
// (the provider rejects any mismatch), handles a single real callback, then
// shuts down so the next login attempt can bind the same port.
type CallbackServer struct {
	addr     string
	path     string
	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errorCh  chan error
	once     sync.Once
}

// NewCallbackServer creates a callback server for the given redirect URI.
// The URI must be a loopback http URL such as http://127.0.0.1:8888/callback.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	if u.Host == "" || u.Path == "" {
		return nil, fmt.Errorf("redirect URI %q must include host and path", redirectURI)
	}

	return &CallbackServer{
		addr:     u.Host,
		path:     u.Path,
		resultCh: make(chan *CallbackResult, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// Start binds the listener and begins serving. It must be called before the
// browser is pointed at the authorization URL; a fast user must never be
// able to hit the redirect before the listener is ready.
//
// A bind failure returns ErrBindFailed so the caller can distinguish "a
// previous login is still holding the port" from generic I/O errors.
func (s *CallbackServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBindFailed, s.addr)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	// Release the port if the host process tears down mid-login.
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// WaitForCallback blocks until the redirect arrives, the timeout elapses, or
// the context is cancelled. The timeout maps to ErrLoginTimeout; the
// listener is released in every case.
func (s *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	defer s.Stop()

	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-timer.C:
		return nil, ErrLoginTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLoginTimeout
		}
		return nil, ctx.Err()
	}
}

// handleCallback handles the OAuth redirect request. Only the first request
// is processed; browsers re-requesting the page (favicon, refresh) get a 400.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback parses the redirect, answers the browser, and delivers the
// result. Called exactly once via sync.Once.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'; script-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	var tmpl *template.Template
	var data interface{}

	if result.IsError() {
		tmpl = template.Must(template.New("error").Parse(callbackErrorHTML))
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	} else {
		tmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Give the response time to flush before unbinding.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop gracefully shuts down the server and releases the port. Safe to call
// multiple times.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Addr returns the host:port the server binds.
func (s *CallbackServer) Addr() string {
	return s.addr
}
