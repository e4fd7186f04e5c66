package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldwatch/backend/internal/models"
)

// Repository persists pending commands.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pending-command repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Supersede deletes any existing pending command for the subject and inserts a
// new one, inside a single transaction so two concurrent creates cannot both
// leave a row behind.
func (r *Repository) Supersede(ctx context.Context, subjectID uuid.UUID, cmdType models.CommandType, reason string, issuedAt time.Time) (*models.PendingCommand, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pending_commands WHERE subject_id = $1`, subjectID); err != nil {
		return nil, fmt.Errorf("delete superseded: %w", err)
	}

	const q = `INSERT INTO pending_commands (subject_id, command, reason, issued_at)
		VALUES ($1, $2, NULLIF($3,''), $4)
		RETURNING id, subject_id, command, COALESCE(reason,''), issued_at, acknowledged, created_at`
	var p models.PendingCommand
	err = tx.QueryRow(ctx, q, subjectID, cmdType, reason, issuedAt).
		Scan(&p.ID, &p.SubjectID, &p.Type, &p.Reason, &p.IssuedAt, &p.Acknowledged, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert pending: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &p, nil
}

// LatestForSubject returns the unacknowledged pending command with the newest
// issued_at for a subject, or nil when none exists. Latest-wins covers the
// defensive case of multiple rows.
func (r *Repository) LatestForSubject(ctx context.Context, subjectID uuid.UUID) (*models.PendingCommand, error) {
	const q = `SELECT id, subject_id, command, COALESCE(reason,''), issued_at, acknowledged, created_at
		FROM pending_commands
		WHERE subject_id = $1 AND acknowledged = FALSE
		ORDER BY issued_at DESC LIMIT 1`
	var p models.PendingCommand
	err := r.pool.QueryRow(ctx, q, subjectID).
		Scan(&p.ID, &p.SubjectID, &p.Type, &p.Reason, &p.IssuedAt, &p.Acknowledged, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Acknowledge marks the given rows acknowledged and returns the number of rows
// actually updated. Acknowledging an already-gone or already-acknowledged row
// is not an error.
func (r *Repository) Acknowledge(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `UPDATE pending_commands SET acknowledged = TRUE WHERE id = ANY($1) AND acknowledged = FALSE`
	tag, err := r.pool.Exec(ctx, q, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteStale removes acknowledged rows and rows issued before the cutoff.
// Expiry is enforced lazily on fetch; this is storage hygiene for the worker.
func (r *Repository) DeleteStale(ctx context.Context, issuedBefore time.Time) (int64, error) {
	const q = `DELETE FROM pending_commands WHERE acknowledged = TRUE OR issued_at < $1`
	tag, err := r.pool.Exec(ctx, q, issuedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
