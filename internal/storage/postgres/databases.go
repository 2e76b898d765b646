package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/jackc/pgx/v5"
)

// SaveDatabase inserts or updates a database record. Memberships are left alone.
func (r *Repository) SaveDatabase(ctx context.Context, db *database.Database) error {
	const query = `INSERT INTO databases (id, name, type) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type`
	if _, err := r.pool.Exec(ctx, query, db.ID, db.Name, string(db.Type)); err != nil {
		return fmt.Errorf("failed to save database %s: %w", db.ID, err)
	}
	return nil
}

func (r *Repository) FetchWithMembership(ctx context.Context, databaseID, appID string) (*database.Membership, error) {
	const query = `SELECT d.id, d.name, d.type,
			COALESCE(array_agg(da.app_id ORDER BY da.created_at) FILTER (WHERE da.app_id IS NOT NULL), '{}')
		FROM databases d
		LEFT JOIN database_apps da ON da.database_id = d.id
		WHERE d.id = $1
		GROUP BY d.id`

	var (
		db     database.Database
		dbType string
	)
	if err := r.pool.QueryRow(ctx, query, databaseID).Scan(&db.ID, &db.Name, &dbType, &db.AppIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("failed to load database %s: %w", databaseID, err)
	}
	db.Type = database.Type(dbType)

	return &database.Membership{Database: &db, Linked: slices.Contains(db.AppIDs, appID)}, nil
}

func (r *Repository) AddMember(ctx context.Context, databaseID, appID string) (bool, error) {
	const query = `INSERT INTO database_apps (database_id, app_id) VALUES ($1, $2)
		ON CONFLICT (database_id, app_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, databaseID, appID)
	if err != nil {
		if pgErr, ok := isForeignKeyViolation(err); ok {
			if strings.Contains(pgErr.ConstraintName, "app_id") {
				return false, app.ErrApplicationNotFound
			}
			return false, database.ErrDatabaseNotFound
		}
		return false, fmt.Errorf("failed to link database %s with %s: %w", databaseID, appID, err)
	}
	return tag.RowsAffected() == 1, nil
}
