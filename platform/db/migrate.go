package db

import (
	"context"
	"errors"
	"strings"

	"leadflow_backend/platform/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateConfig is the subset of configuration RunMigrations needs.
type MigrateConfig interface {
	config.DatabaseConfig
	config.MigrationConfig
}

// RunMigrations applies all pending migrations for the service database.
// An empty migrations directory disables the step.
func RunMigrations(_ context.Context, cfg MigrateConfig) error {
	dir := strings.TrimSpace(cfg.GetMigrationsDir())
	if dir == "" {
		return nil
	}

	m, err := migrate.New("file://"+dir, cfg.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
