package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Store backends.
const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendMemory   = "memory"
)

// config is the server configuration. Flags win over environment variables,
// which win over defaults.
type config struct {
	Port        int
	Backend     string
	DBPath      string
	DatabaseURL string
	Policy      string
	LogLevel    slog.Level
	LogFormat   string
	CORSOrigins []string
}

// loadConfig parses args with getenv supplying the defaults.
func loadConfig(args []string, getenv func(string) string) (config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	defaultPort := 8080
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return config{}, fmt.Errorf("PORT: %w", err)
		}
		defaultPort = p
	}

	var (
		cfg      config
		logLevel string
		origins  string
	)
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", defaultPort, "HTTP server port (env PORT)")
	fs.StringVar(&cfg.Backend, "store", env("LEDGER_STORE", backendSQLite), "store backend: sqlite, postgres or memory (env LEDGER_STORE)")
	fs.StringVar(&cfg.DBPath, "db", env("DB_PATH", "ledger.db"), `SQLite database path, ":memory:" for in-memory (env DB_PATH)`)
	fs.StringVar(&cfg.DatabaseURL, "database-url", env("DATABASE_URL", ""), "PostgreSQL connection string (env DATABASE_URL)")
	fs.StringVar(&cfg.Policy, "policy", env("LEDGER_POLICY", ""), "policy preset (strict, lenient) or JSON file path (env LEDGER_POLICY)")
	fs.StringVar(&logLevel, "log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error (env LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", env("LOG_FORMAT", "text"), "text or json (env LOG_FORMAT)")
	fs.StringVar(&origins, "cors-origins", env("CORS_ORIGINS", ""), "comma-separated allowed origins (env CORS_ORIGINS)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return config{}, fmt.Errorf("log level: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return config{}, fmt.Errorf("log format %q: want text or json", cfg.LogFormat)
	}

	switch cfg.Backend {
	case backendSQLite, backendMemory:
	case backendPostgres:
		if cfg.DatabaseURL == "" {
			return config{}, fmt.Errorf("store %s requires -database-url or DATABASE_URL", backendPostgres)
		}
	default:
		return config{}, fmt.Errorf("unknown store %q", cfg.Backend)
	}

	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}
