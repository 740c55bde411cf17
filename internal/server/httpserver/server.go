// Package httpserver provides the admin HTTP server of vos-server.
//
// It uses the Go standard library net/http and serves the pool and
// container inspection endpoints, discard control and /metrics.
package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/vos-go/internal/infra/tlsroots"
)

// Config configures the listener.
type Config struct {
	Addr        string
	TLSCertFile string
	TLSKeyFile  string
	Logger      *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *slog.Logger

	listener net.Listener
	certs    *tlsroots.Reloader
}

// New creates a new HTTP server.
func New(cfg Config, handler http.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
		logger: cfg.Logger,
	}
}

// Listen binds the address. Serve must follow. With a key pair
// configured the listener speaks TLS and the pair is reloaded when its
// files change.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	if s.cfg.TLSCertFile != "" {
		certs, err := tlsroots.NewReloader(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, tlsroots.WithLogger(s.logger))
		if err != nil {
			ln.Close()
			return err
		}
		if err := certs.Start(); err != nil {
			s.logger.Warn("certificate reload disabled", "error", err)
		}
		s.certs = certs
		ln = tls.NewListener(ln, certs.ServerConfig())
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Serve accepts connections until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("http server listening", "addr", s.Addr(), "tls", s.cfg.TLSCertFile != "")

	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.certs != nil {
		err = errors.Join(err, s.certs.Stop())
	}
	return err
}
