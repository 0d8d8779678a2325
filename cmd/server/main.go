/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the online banking ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags and environment
  2. Load the ledger policy
  3. Open the store (SQLite, PostgreSQL or in-memory)
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (environment fallback in parentheses):
  -port          HTTP server port, default 8080 (PORT)
  -store         sqlite, postgres or memory, default sqlite (LEDGER_STORE)
  -db            SQLite database path, default ledger.db (DB_PATH)
                 Use ":memory:" for in-memory database
  -database-url  PostgreSQL DSN (DATABASE_URL)
  -policy        "strict", "lenient" or a JSON file (LEDGER_POLICY)
  -log-level     debug, info, warn, error (LOG_LEVEL)
  -log-format    text or json (LOG_FORMAT)
  -cors-origins  comma-separated origins (CORS_ORIGINS)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run against PostgreSQL with the lenient rules
  DATABASE_URL=postgres://localhost/ledger ./server -store=postgres -policy=lenient

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/conta-online/api"
	"github.com/warp/conta-online/factory"
	"github.com/warp/conta-online/ledger/store"
	"github.com/warp/conta-online/store/postgres"
	"github.com/warp/conta-online/store/sqlite"
)

// closableStore is a store the server owns and closes on shutdown.
type closableStore interface {
	api.Store
	Close() error
}

// memoryStore adapts the in-memory store, which holds no resources.
type memoryStore struct{ *store.Memory }

func (memoryStore) Close() error { return nil }

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(ctx context.Context, cfg config) (closableStore, error) {
	switch cfg.Backend {
	case backendPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case backendMemory:
		return memoryStore{store.NewMemory()}, nil
	default:
		return sqlite.New(cfg.DBPath)
	}
}

func run(cfg config, logger *slog.Logger) error {
	policy, err := factory.NewPolicyFactory().Load(cfg.Policy)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing %s store: %w", cfg.Backend, err)
	}
	defer st.Close()

	handler := api.NewHandler(st, policy, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"store", cfg.Backend,
			"limit_mode", policy.LimitMode,
			"daily_limit", policy.DefaultDailyLimit.String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
