package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"ticketbridge/internal/config"
)

const shutdownGrace = 10 * time.Second

// Server is the operator API. It lives for one bridge run and stops with it.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

func New(addr string, handler http.Handler, diag config.DiagnosticsConfig, logger *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      WriteTimeout(diag),
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// WriteTimeout leaves room for an ad-hoc diagnostics request, whose probes run
// one after another under their own timeouts.
func WriteTimeout(d config.DiagnosticsConfig) time.Duration {
	budget := d.PingTimeout + d.TraceTimeout + d.PortTimeout
	return max(budget+15*time.Second, 30*time.Second)
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("operator API listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve answers on ln until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("operator API listening", "addr", ln.Addr().String(), "write_timeout", s.server.WriteTimeout)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("operator API: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("operator API shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("operator API shutdown: %w", err)
	}
	return nil
}
