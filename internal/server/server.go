package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"example.com/listingfs/internal/config"
	"example.com/listingfs/internal/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Server manages the HTTP server lifecycle: listening, HTTP/2 negotiation and
// graceful shutdown. Requests pass through the chi middleware stack before
// reaching the router.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	router    http.Handler
	tlsConfig *tls.Config

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a new Server instance. tlsCfg may be nil for plain HTTP
// (with h2c unless disabled in the configuration).
func NewServer(cfg *config.Config, lg *logger.Logger, router http.Handler, tlsCfg *tls.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Server == nil || cfg.Server.Address == nil || *cfg.Server.Address == "" {
		return nil, fmt.Errorf("server listen address (server.address) is not configured")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	return &Server{cfg: cfg, log: lg, router: router, tlsConfig: tlsCfg}, nil
}

// Handler returns the full request pipeline: middleware, router and, for
// cleartext servers with h2c enabled, the h2c upgrade wrapper.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(s.log.AccessMiddleware())
	mux.Use(middleware.Recoverer)
	mux.Handle("/*", s.router)

	if s.tlsConfig == nil && s.h2cEnabled() {
		return h2c.NewHandler(mux, &http2.Server{})
	}
	return mux
}

func (s *Server) h2cEnabled() bool {
	return s.cfg.Server.EnableH2C == nil || *s.cfg.Server.EnableH2C
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.GracefulShutdownTimeout == nil {
		return defaultShutdownTimeout
	}
	d, err := time.ParseDuration(*s.cfg.Server.GracefulShutdownTimeout)
	if err != nil || d <= 0 {
		return defaultShutdownTimeout
	}
	return d
}

// Listen opens the listening socket. It is called by Start; tests call it
// directly to learn the bound address before serving.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	addr := *s.cfg.Server.Address
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(s.log.Zerolog(), "", 0),
	}
	if s.tlsConfig != nil {
		srv.TLSConfig = s.tlsConfig.Clone()
		if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
			ln.Close()
			return fmt.Errorf("failed to configure HTTP/2: %w", err)
		}
		ln = tls.NewListener(ln, srv.TLSConfig)
	}

	s.listener = ln
	s.httpServer = srv
	s.log.Info("Listening", logger.LogFields{
		"address": ln.Addr().String(),
		"tls":     s.tlsConfig != nil,
		"h2c":     s.tlsConfig == nil && s.h2cEnabled(),
	})
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens (if needed) and serves until ctx is cancelled, then shuts
// down gracefully within graceful_shutdown_timeout.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.shutdownTimeout()
	s.log.Info("Shutting down", logger.LogFields{"timeout": timeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Graceful shutdown did not complete", logger.LogFields{"error": err.Error()})
		srv.Close()
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("Server stopped", nil)
	return nil
}

// LoadTLSConfig loads a PEM certificate/key pair for serving HTTPS.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair (%s, %s): %w", certFile, keyFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
