package postgres

import (
	"context"
	"errors"
	"fmt"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const foreignKeyViolation = "23503"

// Repository implements the application, database and activity stores on PostgreSQL.
type Repository struct {
	pool          *pgxpool.Pool
	logBufferSize int
}

var (
	_ app.Repository      = (*Repository)(nil)
	_ database.Repository = (*Repository)(nil)
	_ activity.Sink       = (*Repository)(nil)
	_ activity.Reader     = (*Repository)(nil)
)

// New constructs a Repository. logBufferSize bounds each app's log buffer; zero
// keeps every line.
func New(pool *pgxpool.Pool, logBufferSize int) *Repository {
	return &Repository{pool: pool, logBufferSize: logBufferSize}
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func isForeignKeyViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return pgErr, true
	}
	return nil, false
}
