package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// RESUMLY_DATA_DIR env var, or ~/.resumly as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("RESUMLY_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.resumly"
}

// openStore opens the configured store backend. SQLite under the data dir
// is the default; database.driver/dsn select postgres or mysql, and
// database.path overrides the sqlite file location.
func openStore() (*store.Store, error) {
	driver := strings.ToLower(viper.GetString("database.driver"))
	dsn := viper.GetString("database.dsn")

	switch driver {
	case "postgres", "pgx":
		if dsn == "" {
			return nil, fmt.Errorf("database.dsn is required for driver %q", driver)
		}
		return store.Open(store.DriverPostgres, dsn)
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("database.dsn is required for driver %q", driver)
		}
		return store.Open(store.DriverMySQL, dsn)
	case "", "sqlite":
		if path := viper.GetString("database.path"); path != "" {
			return store.Open(store.DriverSQLite, path+"?_journal_mode=WAL&_busy_timeout=5000")
		}
		return store.NewStore(resolveDataDir())
	default:
		return nil, fmt.Errorf("unsupported database driver %q; use sqlite, postgres, or mysql", driver)
	}
}

// newLogger builds the process logger from the logging config section.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("logging.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(viper.GetString("logging.format")) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// jwtSecret returns the configured session signing secret, falling back
// to a development default.
func jwtSecret() string {
	secret := viper.GetString("auth.jwt_secret")
	if secret == "" {
		secret = "resumly-dev-secret-change-me"
	}
	return secret
}

// resolveUser looks up a user by email for commands that act on behalf
// of an account.
func resolveUser(ctx context.Context, st *store.Store, email string) (*model.User, error) {
	if email == "" {
		return nil, fmt.Errorf("--user is required")
	}
	user, err := st.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("no user with email %q", email)
	}
	return user, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
