package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/database/postgres"
	"github.com/safemigrate/safemigrate/database/sqlite"
	"github.com/safemigrate/safemigrate/internal/config"
	"github.com/safemigrate/safemigrate/internal/errdefs"
)

// databaseHandle bundles the connection and catalog for one environment.
type databaseHandle struct {
	conn       database.ConnectionManager
	catalog    database.CatalogProvider
	production bool
	close      func()
}

// loadConfigOrExit loads safemigrate.toml, exiting on parse errors.
func loadConfigOrExit() *config.Config {
	cfg, err := config.LoadConfig()
	if err != nil {
		if errorx.IsOfType(err, errdefs.ConfigError) {
			log.Fatalf("Invalid %s: %v", config.ConfigFile, err)
		}
		log.Fatalf("Failed to load config file: %v", err)
	}
	return cfg
}

// openEnvironment resolves the --environment flag and connects to its
// database.
func openEnvironment(ctx context.Context, cfg *config.Config) (*databaseHandle, error) {
	env, err := config.ResolveEnvironment(cfg, rootEnvironment)
	if err != nil {
		return nil, err
	}
	handle, err := openDatabase(ctx, env.DatabaseURL)
	if err != nil {
		return nil, err
	}
	handle.production = env.Production
	return handle, nil
}

// openDatabase connects to a database URL, picking the engine from the URL
// shape. PostgreSQL URLs use lib/pq, libsql:// URLs use the Turso client,
// everything else is treated as a SQLite path.
func openDatabase(ctx context.Context, url string) (*databaseHandle, error) {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		manager, err := postgres.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return &databaseHandle{
			conn:    manager,
			catalog: postgres.NewCatalog(manager.DB()),
			close:   func() { _ = manager.Close() },
		}, nil

	case strings.HasPrefix(lower, "libsql://"):
		db, err := sql.Open("libsql", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open libsql connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping libsql database: %w", err)
		}
		manager := sqlite.NewConnectionManager(db)
		return &databaseHandle{
			conn:    manager,
			catalog: sqlite.NewCatalog(db),
			close:   func() { _ = db.Close() },
		}, nil

	default:
		db, err := sqlite.Open(url)
		if err != nil {
			return nil, err
		}
		manager := sqlite.NewConnectionManager(db)
		return &databaseHandle{
			conn:    manager,
			catalog: sqlite.NewCatalog(db),
			close:   func() { _ = db.Close() },
		}, nil
	}
}

// componentLogger returns the zerolog logger commands hand to engines.
func componentLogger() zerolog.Logger {
	return zlog.Logger
}

// processID identifies this process for migration locks.
func processID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
