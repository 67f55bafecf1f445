package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

var _ ports.SharingExpiryRepository = (*ExpiryRepo)(nil)

// ExpiryRepo implements ports.SharingExpiryRepository.
type ExpiryRepo struct {
	db *DB
}

func NewExpiryRepo(db *DB) *ExpiryRepo {
	return &ExpiryRepo{db: db}
}

// Record stores a scheduled expiry. Re-recording a workflow moves its deadline.
func (r *ExpiryRepo) Record(ctx context.Context, workflowID string, expiresAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sharing_expiries (workflow_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (workflow_id) DO UPDATE SET expires_at = EXCLUDED.expires_at, disabled_at = NULL
	`, workflowID, expiresAt)
	return err
}

func (r *ExpiryRepo) MarkDisabled(ctx context.Context, workflowID string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE sharing_expiries SET disabled_at = $2 WHERE workflow_id = $1
	`, workflowID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expiry %s: %w", workflowID, domain.ErrNotFound)
	}
	return nil
}

// Pending lists expiries that have not fired yet, soonest first.
func (r *ExpiryRepo) Pending(ctx context.Context) ([]PendingExpiry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT workflow_id, expires_at FROM sharing_expiries
		WHERE disabled_at IS NULL ORDER BY expires_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingExpiry
	for rows.Next() {
		var p PendingExpiry
		if err := rows.Scan(&p.WorkflowID, &p.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingExpiry is a scheduled expiry that has not fired.
type PendingExpiry struct {
	WorkflowID string
	ExpiresAt  time.Time
}
