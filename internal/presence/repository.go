package presence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldwatch/backend/internal/models"
)

// Row is a presence row joined with its user, as enumerated by the reconciler
// and the dashboard list.
type Row struct {
	models.Presence
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Repository handles the durable presence store. Rows are upserted, never
// deleted; last-write-wins under concurrent writers for the same user.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a presence repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert sets the user's presence status. touchLastSeen also bumps
// last_seen_at, which legitimate connect/disconnect transitions do; a
// reconciliation correction marking someone offline does not, because nobody
// actually saw them.
func (r *Repository) Upsert(ctx context.Context, userID uuid.UUID, status models.PresenceStatus, touchLastSeen bool) error {
	const q = `INSERT INTO user_presence (user_id, status, last_seen_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW(),
			last_seen_at = CASE WHEN $3 THEN NOW() ELSE user_presence.last_seen_at END`
	_, err := r.pool.Exec(ctx, q, userID, status, touchLastSeen)
	return err
}

// ListAll returns presence rows for all non-deleted users, joined with email
// and name. Users without a presence row are not included; they are outside
// reconciliation's write scope.
func (r *Repository) ListAll(ctx context.Context) ([]Row, error) {
	const q = `SELECT p.user_id, u.email, u.full_name, p.status, p.last_seen_at, p.updated_at
		FROM user_presence p
		JOIN users u ON u.id = p.user_id
		WHERE u.deleted_at IS NULL
		ORDER BY u.full_name, u.email`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.UserID, &row.Email, &row.FullName, &row.Status, &row.LastSeenAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
