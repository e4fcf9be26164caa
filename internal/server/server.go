// Package server exposes the rule table over HTTP: a redirect endpoint for
// reverse proxies and bookmarklets, plus health, metrics and the exported
// declarativeNetRequest rules.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"asinshort/internal/ruleset"
)

const (
	RedirectPath = "/redirect"
	HealthPath   = "/healthz"
	MetricsPath  = "/metrics"
	RulesPath    = "/rules.json"
)

type Server struct {
	listen     string
	httpServer *http.Server
	handler    *Handler
	log        *zap.Logger
}

func NewServer(listen string, engine *ruleset.Engine, log *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server requires a rule engine")
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	handler := NewHandler(engine, log)

	mux := http.NewServeMux()
	mux.HandleFunc(RedirectPath, handler.HandleRedirect)
	mux.HandleFunc(HealthPath, handler.HandleHealth)
	mux.HandleFunc(MetricsPath, handler.HandleMetrics)
	mux.HandleFunc(RulesPath, handler.HandleRules)

	return &Server{
		listen: listen,
		httpServer: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handler: handler,
		log:     log,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Metrics() *Metrics {
	return s.handler.Metrics()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("unable to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("Starting server", zap.String("listen", ln.Addr().String()),
		zap.Strings("endpoints", []string{RedirectPath, HealthPath, MetricsPath, RulesPath}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to stop server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
