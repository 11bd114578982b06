// Package app wires a loaded configuration into a running listing file server:
// logger, handler registry, router and HTTP server.
package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"example.com/listingfs/internal/config"
	"example.com/listingfs/internal/handlers/listingfileserver"
	"example.com/listingfs/internal/logger"
	"example.com/listingfs/internal/router"
	"example.com/listingfs/internal/server"
)

// App owns the components built from one configuration.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	router *router.Router
	server *server.Server
}

// NewRegistry returns a registry with every built-in handler type registered.
// configPath anchors relative paths inside handler configs; it may be empty.
func NewRegistry(configPath string) *server.HandlerRegistry {
	registry := server.NewHandlerRegistry()
	if err := registry.Register(listingfileserver.HandlerType, listingfileserver.Factory(configPath)); err != nil {
		panic(err)
	}
	return registry
}

// New builds the application from a defaulted and validated configuration.
// The logger is closed again if a later step fails.
func New(cfg *config.Config, configPath string) (*App, error) {
	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a, err := build(cfg, configPath, lg)
	if err != nil {
		lg.Error("Startup failed", logger.LogFields{"error": err.Error()})
		lg.CloseLogFiles()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, configPath string, lg *logger.Logger) (*App, error) {
	rt, err := router.NewRouter(cfg.Routing.Routes, NewRegistry(configPath), lg)
	if err != nil {
		return nil, err
	}

	var tlsCfg *tls.Config
	if t := cfg.Server.TLS; t != nil {
		if tlsCfg, err = server.LoadTLSConfig(t.CertFile, t.KeyFile); err != nil {
			return nil, err
		}
	}

	srv, err := server.NewServer(cfg, lg, rt, tlsCfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, log: lg, router: rt, server: srv}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *logger.Logger { return a.log }

// Listen binds the configured address without serving yet.
func (a *App) Listen() error { return a.server.Listen() }

// Addr is the bound listener address, nil before Listen.
func (a *App) Addr() net.Addr { return a.server.Addr() }

// Run serves until ctx is done, then shuts down gracefully and closes log files.
// SIGHUP reopens file log targets while running.
func (a *App) Run(ctx context.Context) error {
	defer a.log.CloseLogFiles()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.reopenLogsOnHUP(runCtx)

	a.log.Info("Starting server", logger.LogFields{
		"address": *a.cfg.Server.Address,
		"routes":  len(a.cfg.Routing.Routes),
		"tls":     a.cfg.Server.TLS != nil,
	})
	return a.server.Start(runCtx)
}

func (a *App) reopenLogsOnHUP(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.log.ReopenLogFiles(); err != nil {
				a.log.Error("Failed to reopen log files", logger.LogFields{"error": err.Error()})
				continue
			}
			a.log.Info("Log files reopened", nil)
		}
	}
}
