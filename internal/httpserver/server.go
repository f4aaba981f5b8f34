// Package httpserver exposes the HTTP ingest endpoint for log events.
package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/al-bashkir/securelog/internal/config"
	"github.com/al-bashkir/securelog/internal/formatter"
)

// EventsHandler receives decoded events and reports how many were accepted
type EventsHandler func(ctx context.Context, events []formatter.LogEvent) (int, error)

// Server is the HTTP server for event ingest and health checks
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	mux        *http.ServeMux
	handler    EventsHandler
	auth       Authenticator
	limiter    *IPRateLimiter
}

// NewServer creates a new HTTP server. A nil auth accepts every request.
func NewServer(cfg *config.Config, handler EventsHandler, auth Authenticator) (*Server, error) {
	if handler == nil {
		return nil, errors.New("events handler is required")
	}
	if auth == nil {
		auth = NoAuth{}
	}

	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		handler: handler,
		auth:    auth,
		limiter: newIPRateLimiter(cfg.Ingest.RateLimit, cfg.Ingest.Burst),
	}

	s.mux.HandleFunc("/v1/events", s.handleEvents)
	s.mux.HandleFunc("/health", s.handleHealth)

	// Wrap with middleware
	handlerChain := loggingMiddleware(s.mux)
	handlerChain = recoveryMiddleware(handlerChain)
	handlerChain = rateLimitMiddleware(s.limiter, handlerChain)
	handlerChain = requestIDMiddleware(handlerChain)
	handlerChain = securityHeadersMiddleware(handlerChain)

	s.httpServer = &http.Server{
		Addr:              cfg.Listen.HTTP,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.TLS.Enabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	return s, nil
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen.HTTP)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("starting HTTP server",
		"addr", ln.Addr().String(),
		"tls", s.cfg.TLS.Enabled,
		"auth", s.auth.Name(),
	)

	if s.cfg.TLS.Enabled {
		return s.httpServer.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
