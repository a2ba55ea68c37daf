package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/haeingest/internal/config"
	"github.com/claude/haeingest/internal/ingest/hae"
	"github.com/claude/haeingest/internal/mcp"
	"github.com/claude/haeingest/internal/server"
	"github.com/claude/haeingest/internal/storage"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (optional; environment alone is enough)")
	envPath := flag.String("env", ".env", "path to a .env file loaded before the environment overrides")
	migrateOnly := flag.Bool("migrate-only", false, "run timescale migrations and exit")
	flag.Parse()

	boot := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := config.LoadDotEnv(*envPath, false); err != nil {
		boot.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := cfg.Log.NewLogger(os.Stdout)
	log.Info("haeingest starting", "version", Version, "backend", cfg.Storage.Backend)

	ctx := context.Background()
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		// The health endpoint keeps reporting until storage comes back.
		log.Warn("storage not reachable at startup", "error", err)
	} else {
		log.Info("storage connected")
	}
	cancelPing()

	haeProvider := hae.NewProvider(store, log)

	srv := server.New(store, haeProvider, server.Options{
		APIKey:       cfg.Auth.APIKey,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Version:      Version,
	}, log)
	srv.SetMCP(mcp.Handler(mcp.New(haeProvider, Version, log)))

	if cfg.Auth.APIKey == "" {
		log.Warn("no API key configured; ingest endpoints are unauthenticated")
	}

	// Start server over tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr)
	}

	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// openStorage builds the configured writer. The timescale backend applies
// migrations before connecting.
func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Writer, error) {
	switch cfg.Storage.Backend {
	case config.BackendInflux:
		log.Info("using influxdb", "url", cfg.Influx.URL, "org", cfg.Influx.Org, "bucket", cfg.Influx.Bucket)
		return storage.NewInflux(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket), nil
	case config.BackendTimescale:
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied")
		return storage.NewTimescale(ctx, dsn)
	case config.BackendSQLite:
		log.Info("using sqlite", "path", cfg.SQLite.Path)
		return storage.OpenSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
