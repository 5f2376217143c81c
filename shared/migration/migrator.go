package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

// Migrator applies embedded SQL migrations to a service schema
type Migrator struct {
	db         *sql.DB
	migrations fs.FS
	dir        string
	service    string
	schemaName string
	logger     *logging.Logger
}

// Config holds migration configuration
type Config struct {
	Service    string
	SchemaName string
	Migrations fs.FS
	// Dir is the directory inside Migrations holding the *.sql files
	Dir    string
	Logger *logging.Logger
}

// NewMigrator creates a migrator over an already opened database
func NewMigrator(db *sql.DB, config *Config) *Migrator {
	dir := config.Dir
	if dir == "" {
		dir = "migrations"
	}
	schema := config.SchemaName
	if schema == "" {
		schema = "public"
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Migrator{
		db:         db,
		migrations: config.Migrations,
		dir:        dir,
		service:    config.Service,
		schemaName: schema,
		logger:     logger,
	}
}

// Migrate runs all pending migrations
func (m *Migrator) Migrate() error {
	if _, err := m.db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", m.schemaName)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	migration, err := m.createMigration()
	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}

	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := migration.Version()
	m.logger.WithFields(map[string]interface{}{
		"schema":  m.schemaName,
		"version": version,
		"dirty":   dirty,
	}).Info("migrations applied")
	return nil
}

// MigrateDown runs n down migrations
func (m *Migrator) MigrateDown(n int) error {
	migration, err := m.createMigration()
	if err != nil {
		return err
	}
	if err := migration.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run %d down migrations: %w", n, err)
	}
	return nil
}

func (m *Migrator) createMigration() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(m.migrations, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := postgres.WithInstance(m.db, &postgres.Config{
		SchemaName:      m.schemaName,
		MigrationsTable: fmt.Sprintf("%s_migrations", strings.ReplaceAll(m.service, "-", "_")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", sourceDriver, m.schemaName, dbDriver)
}
