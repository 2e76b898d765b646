package postgres

import (
	"context"
	"fmt"

	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

// Record appends an activity entry. Entries are never updated.
func (r *Repository) Record(ctx context.Context, record activity.Record) error {
	const query = `INSERT INTO activities (name, description, reference_id, refers_to_model, modifier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		record.Name, record.Description, record.ReferenceID, string(record.RefersToModel), record.Modifier, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record activity %q: %w", record.Name, err)
	}
	return nil
}

// ListActivity returns the newest records about one entity.
func (r *Repository) ListActivity(ctx context.Context, referenceID string, limit int) ([]activity.Record, error) {
	const query = `SELECT name, description, reference_id, refers_to_model, modifier, created_at
		FROM activities WHERE reference_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, referenceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity of %s: %w", referenceID, err)
	}
	defer rows.Close()

	var records []activity.Record
	for rows.Next() {
		var (
			rec   activity.Record
			model string
		)
		if err := rows.Scan(&rec.Name, &rec.Description, &rec.ReferenceID, &model, &rec.Modifier, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.RefersToModel = activity.Model(model)
		records = append(records, rec)
	}
	return records, rows.Err()
}
