package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server hosts the transport adapter behind the standard middleware
// chain. Every path is routed into the pipeline; routing decisions
// belong to the registered services, not to the mux.
type Server struct {
	Router *chi.Mux
	Port   int

	logger   *slog.Logger
	listener net.Listener
	http     *http.Server
}

// New builds the chi router and mounts the adapter at every path.
func New(port int, timeout time.Duration, logger *slog.Logger, adapter *Adapter) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "relay")
	})

	r.Handle("/*", adapter)

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// Listen binds the TCP listener. Binding is split from serving so the
// caller learns bind failures synchronously; port 0 picks an ephemeral
// port, reported by Addr.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return err
	}
	s.listener = ln
	s.http = &http.Server{Handler: s.Router}
	return nil
}

// Addr reports the bound listener address. Empty before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks serving HTTP on the bound listener until Shutdown or a
// listener error.
func (s *Server) Serve() error {
	s.logger.Info("starting server", slog.String("addr", s.Addr()))
	if err := s.http.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Start binds the listener and serves in one call.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	err := s.http.Shutdown(ctx)
	if s.listener != nil {
		// Covers the window between Listen and Serve, where the http
		// server does not track the listener yet.
		s.listener.Close()
	}
	return err
}
