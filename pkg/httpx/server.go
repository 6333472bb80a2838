// Package httpx holds the HTTP plumbing of the decider's serve mode and of
// its outbound HTTP calls: a server with graceful shutdown, JSON responses,
// request middleware and a TLS-aware client.
package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is an http.Server that serves plain HTTP or mutual TLS and shuts
// down gracefully.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
	// certFile and keyFile are set by UseTLS.
	certFile, keyFile string
}

// NewServer creates a server for h on addr.
func NewServer(addr string, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Decisions publish to the bus inside the request.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  2 * time.Minute,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger: logger,
	}
}

// UseTLS makes Start serve TLS with cfg and the given key pair.
func (s *Server) UseTLS(cfg *tls.Config, certFile, keyFile string) {
	s.srv.TLSConfig = cfg
	s.certFile, s.keyFile = certFile, keyFile
}

// Start listens and serves until Stop. It returns nil after a graceful stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln, which Stop closes.
func (s *Server) Serve(ln net.Listener) error {
	tlsOn := s.srv.TLSConfig != nil
	s.logger.Info("serving HTTP", "addr", ln.Addr().String(), "tls", tlsOn)

	var err error
	if tlsOn {
		err = s.srv.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		err = s.srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Stop waits up to timeout for in-flight requests, then closes the server.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("stopping HTTP server", "timeout", timeout)
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
