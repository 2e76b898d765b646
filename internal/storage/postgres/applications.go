package postgres

import (
	"context"
	"errors"
	"fmt"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	"github.com/jackc/pgx/v5"
)

// Save inserts or updates an application and its git source.
func (r *Repository) Save(ctx context.Context, a *app.Application) error {
	var owner, name, branch *string
	if a.Source != nil {
		owner, name, branch = &a.Source.RepoOwner, &a.Source.RepoName, &a.Source.Branch
	}
	const query = `INSERT INTO applications (id, name, status, repo_owner, repo_name, branch, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			repo_owner = EXCLUDED.repo_owner,
			repo_name = EXCLUDED.repo_name,
			branch = EXCLUDED.branch,
			updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query, a.ID, a.Name, string(a.Status), owner, name, branch, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save application %s: %w", a.ID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*app.Application, error) {
	const query = `SELECT a.id, a.name, a.status, a.repo_owner, a.repo_name, a.branch, a.created_at, a.updated_at,
			COALESCE(array_agg(da.database_id ORDER BY da.created_at) FILTER (WHERE da.database_id IS NOT NULL), '{}')
		FROM applications a
		LEFT JOIN database_apps da ON da.app_id = a.id
		WHERE a.id = $1
		GROUP BY a.id`

	var (
		a                   app.Application
		status              string
		owner, name, branch *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &status, &owner, &name, &branch, &a.CreatedAt, &a.UpdatedAt, &a.DatabaseIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, app.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to load application %s: %w", id, err)
	}

	a.Status = app.Status(status)
	if owner != nil && name != nil {
		a.Source = &app.GitSource{RepoOwner: *owner, RepoName: *name}
		if branch != nil {
			a.Source.Branch = *branch
		}
	}
	return &a, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status app.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", app.ErrInvalidStatus, status)
	}
	const query = `UPDATE applications SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return app.ErrApplicationNotFound
	}
	return nil
}

// AddLog appends an entry and drops the oldest ones beyond the buffer size.
func (r *Repository) AddLog(ctx context.Context, id string, entry app.LogEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `INSERT INTO application_logs (app_id, type, message, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, insert, id, string(entry.Type), entry.Message, entry.CreatedAt); err != nil {
		if _, ok := isForeignKeyViolation(err); ok {
			return app.ErrApplicationNotFound
		}
		return fmt.Errorf("failed to append log of %s: %w", id, err)
	}

	if r.logBufferSize > 0 {
		const trim = `DELETE FROM application_logs WHERE app_id = $1 AND id <= (
			SELECT id FROM application_logs WHERE app_id = $1 ORDER BY id DESC OFFSET $2 LIMIT 1)`
		if _, err := tx.Exec(ctx, trim, id, r.logBufferSize); err != nil {
			return fmt.Errorf("failed to trim log buffer of %s: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) ClearLogs(ctx context.Context, id string) error {
	const query = `DELETE FROM application_logs WHERE app_id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear logs of %s: %w", id, err)
	}
	return nil
}

func (r *Repository) ListLogs(ctx context.Context, id string, limit int) ([]app.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	// Newest first with a limit, then flipped back to append order.
	const query = `SELECT type, message, created_at FROM (
			SELECT id, type, message, created_at FROM application_logs
			WHERE app_id = $1 ORDER BY id DESC
			LIMIT CASE WHEN $2::int < 0 THEN NULL ELSE $2::int END
		) recent ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs of %s: %w", id, err)
	}
	defer rows.Close()

	var entries []app.LogEntry
	for rows.Next() {
		var (
			e       app.LogEntry
			logType string
		)
		if err := rows.Scan(&logType, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = app.LogType(logType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM applications WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete application %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return app.ErrApplicationNotFound
	}
	return nil
}
