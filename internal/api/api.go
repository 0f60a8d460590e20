// Package api provides the HTTP JSON API for FormPilot.
//
// It exposes RESTful endpoints for starting dialogues, advancing them turn by
// turn, uploading prefill documents, and retrieving the export payload of a
// completed dialogue.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CivicForms/FormPilot/internal/dialogue"
	"github.com/CivicForms/FormPilot/internal/schema"
)

// Default server configuration
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds how long reading a request may take.
	DefaultReadTimeout = 30 * time.Second
	// DefaultWriteTimeout bounds how long writing a response may take.
	DefaultWriteTimeout = 60 * time.Second
	// MaxDocumentBytes caps uploaded document size.
	MaxDocumentBytes = 10 << 20
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Webhooks map[string]http.HandlerFunc
}

// Option defines a functional option for server configuration.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhook mounts an additional handler on the API mux. Channel services
// that receive messages over HTTP (Twilio) register their inbound webhook
// this way.
func WithWebhook(pattern string, handler http.HandlerFunc) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.HandlerFunc)
		}
		o.Webhooks[pattern] = handler
	}
}

// Server handles the HTTP surface of FormPilot.
type Server struct {
	addr     string
	sessions *dialogue.SessionManager
	forms    *schema.Registry
	webhooks map[string]http.HandlerFunc
	httpSrv  *http.Server
}

// NewServer creates an API server around the session manager and form
// registry.
func NewServer(sessions *dialogue.SessionManager, forms *schema.Registry, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{addr: cfg.Addr, sessions: sessions, forms: forms, webhooks: cfg.Webhooks}
}

// Handler builds the route table. Split from Start so tests can drive the
// mux through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /forms", s.formsHandler)
	mux.HandleFunc("POST /dialogues", s.createDialogueHandler)
	mux.HandleFunc("GET /dialogues/{id}", s.getDialogueHandler)
	mux.HandleFunc("POST /dialogues/{id}/advance", s.advanceHandler)
	mux.HandleFunc("POST /dialogues/{id}/documents", s.documentHandler)
	mux.HandleFunc("GET /dialogues/{id}/export", s.exportHandler)
	for pattern, handler := range s.webhooks {
		mux.HandleFunc(pattern, handler)
	}
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: API server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("Server.Start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("Server.Start: shutdown: %w", err)
		}
		slog.Info("Server.Start: API server stopped")
		return nil
	}
}
