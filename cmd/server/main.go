/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the footprint ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment, then apply flags
  2. Initialize the store (SQLite or in-memory)
  3. Build the ledger with metrics and seed the admin
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides FOOTPRINT_HTTP_ADDRESS)
  -db      SQLite database path (overrides FOOTPRINT_SQLITE_PATH)
           Use ":memory:" for an in-memory SQLite database

ENVIRONMENT:
  See config/config.go. Every variable is prefixed FOOTPRINT_.
  FOOTPRINT_JWT_SECRET is required; the server refuses to start without it.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/footprint.db"

  # Run fully in memory
  FOOTPRINT_JWT_SECRET=... FOOTPRINT_STORE=memory ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/footprint-ledger/api"
	"github.com/warp/footprint-ledger/config"
	"github.com/warp/footprint-ledger/ledger"
	"github.com/warp/footprint-ledger/ledger/store"
	"github.com/warp/footprint-ledger/observability"
	"github.com/warp/footprint-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override the environment
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()
	if *port != 0 {
		cfg.HTTPAddress = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Initialize store
	var st ledger.Store
	switch cfg.Store {
	case "memory":
		st = store.NewMemory()
	default:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()
		st = db
	}

	recorder := observability.NewRecorder(prometheus.DefaultRegisterer)
	l := ledger.New(st, cfg.Limits(), ledger.WithLogger(logger), ledger.WithObserver(recorder))
	if err := l.Bootstrap(context.Background(), ledger.Identity(cfg.Admin)); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	clock := ledger.NewWallClock(cfg.Epoch, cfg.TickDuration)
	handler := api.NewHandler(l, clock, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		Auth:        api.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     promhttp.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddress, "store", cfg.Store, "tick", clock.Now())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
