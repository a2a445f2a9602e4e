package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/pepeccz/msi-a-sub001/internal/settings"
	"github.com/pepeccz/msi-a-sub001/internal/store"
	"github.com/pepeccz/msi-a-sub001/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MSI-A state data
	DefaultStateDir = "/var/lib/msia"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "msia.db"
	// DefaultCatalogPath is where the element catalog is read from
	DefaultCatalogPath = "configs/catalog.yaml"
	// MemoryDSN selects the in-process store
	MemoryDSN = "memory"
)

// Config holds environment configuration
type Config struct {
	DSN               string
	StateDir          string
	APIAddr           string
	CatalogPath       string
	WebhookToken      string
	SlackWebhookURL   string
	SettingsCacheTTL  time.Duration
	SettingsCacheSize int
	Debug             bool
}

// rootFlags holds the persistent flag values shared by subcommands
type rootFlags struct {
	stateDir string
	dbDSN    string
	debug    bool
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DSN:               os.Getenv("MSIA_DB_DSN"),
		StateDir:          os.Getenv("MSIA_STATE_DIR"),
		APIAddr:           os.Getenv("API_ADDR"),
		CatalogPath:       os.Getenv("MSIA_CATALOG_PATH"),
		WebhookToken:      os.Getenv("CHATWOOT_WEBHOOK_TOKEN"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		SettingsCacheTTL:  util.ParseDurationEnv("SETTINGS_CACHE_TTL", settings.DefaultCacheTTL),
		SettingsCacheSize: util.ParseIntEnv("SETTINGS_CACHE_SIZE", settings.DefaultCacheSize),
		Debug:             util.ParseBoolEnv("MSIA_DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DSN == "" {
		config.DSN = os.Getenv("DATABASE_URL")
	}
	if config.CatalogPath == "" {
		config.CatalogPath = DefaultCatalogPath
	}

	slog.Debug("environment variables loaded",
		"MSIA_DB_DSN_SET", config.DSN != "",
		"MSIA_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"MSIA_CATALOG_PATH", config.CatalogPath,
		"CHATWOOT_WEBHOOK_TOKEN_SET", config.WebhookToken != "",
		"SLACK_WEBHOOK_URL_SET", config.SlackWebhookURL != "",
		"SETTINGS_CACHE_TTL", config.SettingsCacheTTL,
		"SETTINGS_CACHE_SIZE", config.SettingsCacheSize)

	return config
}

// resolveDSN returns the DSN to open: the flag value, or SQLite in the state directory.
func resolveDSN(flags *rootFlags) string {
	if flags.dbDSN != "" {
		return flags.dbDSN
	}
	return filepath.Join(flags.stateDir, DefaultDBFileName)
}

// openStore opens the store selected by the DSN.
func openStore(flags *rootFlags) (store.Store, error) {
	dsn := resolveDSN(flags)
	if dsn == MemoryDSN {
		slog.Warn("Using in-memory store; state is lost on exit")
		return store.NewInMemoryStore(), nil
	}

	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Opening Postgres store")
		st, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		slog.Debug("Opening SQLite store", "path", dsn)
		st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	}
}
