package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrator applies the embedded goose migrations.
type Migrator struct {
	dsn    string
	logger *slog.Logger
}

func NewMigrator(dsn string, logger *slog.Logger) *Migrator {
	return &Migrator{dsn: dsn, logger: logger}
}

// Up applies pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		m.logger.Info("Applying database migrations")
		if err := goose.UpContext(runCtx, db, migrationsDir); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		m.logger.Info("Database migrations applied")
		return nil
	})
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	var version int64
	err := m.withDB(func(db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}

func (m *Migrator) withDB(fn func(*sql.DB) error) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to configure goose: %w", err)
	}

	db, err := sql.Open("pgx", m.dsn)
	if err != nil {
		return fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to reach the database: %w", err)
	}
	return fn(db)
}
