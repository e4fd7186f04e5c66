package recordings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldwatch/backend/internal/models"
)

const sessionColumns = `id, room_name, initiator_user_id, subject_user_id, egress_id, status, COALESCE(blob_path,''), COALESCE(blob_url,''), created_at, updated_at`

// Repository handles recording session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recording session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new Active session keyed by the engine's egress id.
func (r *Repository) Create(ctx context.Context, s *models.RecordingSession) error {
	const q = `INSERT INTO recording_sessions (room_name, initiator_user_id, subject_user_id, egress_id, status, blob_path)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''))
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.RoomName, s.InitiatorUserID, s.SubjectUserID, s.EgressID, s.Status, s.BlobPath).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *Repository) scanSession(row pgx.Row) (*models.RecordingSession, error) {
	var s models.RecordingSession
	err := row.Scan(&s.ID, &s.RoomName, &s.InitiatorUserID, &s.SubjectUserID, &s.EgressID, &s.Status, &s.BlobPath, &s.BlobURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetByID returns a session by ID, or nil if not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE id = $1`
	return r.scanSession(r.pool.QueryRow(ctx, q, id))
}

// FindActiveByRoom returns the Active session for a room, or nil when none.
func (r *Repository) FindActiveByRoom(ctx context.Context, roomName string) (*models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE room_name = $1 AND status = $2 LIMIT 1`
	return r.scanSession(r.pool.QueryRow(ctx, q, roomName, models.RecordingStatusActive))
}

func (r *Repository) queryList(ctx context.Context, q string, args ...any) ([]models.RecordingSession, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RecordingSession
	for rows.Next() {
		var s models.RecordingSession
		if err := rows.Scan(&s.ID, &s.RoomName, &s.InitiatorUserID, &s.SubjectUserID, &s.EgressID, &s.Status, &s.BlobPath, &s.BlobURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListActiveBySubject returns all Active sessions for a subject.
func (r *Repository) ListActiveBySubject(ctx context.Context, subjectUserID uuid.UUID) ([]models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE subject_user_id = $1 AND status = $2 ORDER BY created_at`
	return r.queryList(ctx, q, subjectUserID, models.RecordingStatusActive)
}

// ListActiveOlderThan returns Active sessions created before the cutoff, for
// the orphan sweep.
func (r *Repository) ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE status = $1 AND created_at < $2 ORDER BY created_at`
	return r.queryList(ctx, q, models.RecordingStatusActive, cutoff)
}

// List returns all sessions, newest first.
func (r *Repository) List(ctx context.Context) ([]models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions ORDER BY created_at DESC`
	return r.queryList(ctx, q)
}

// MarkCompleted sets the session Completed with its artifact location.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, blobPath, blobURL string) error {
	const q = `UPDATE recording_sessions SET status = $1, blob_path = NULLIF($2,''), blob_url = NULLIF($3,''), updated_at = NOW() WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, models.RecordingStatusCompleted, blobPath, blobURL, id)
	return err
}

// MarkFailed sets the session Failed.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE recording_sessions SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.RecordingStatusFailed, id)
	return err
}

// Delete removes the session row. Returns whether a row was deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recording_sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
