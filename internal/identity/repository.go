package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldwatch/backend/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, COALESCE(directory_id,''), deleted_at, created_at, updated_at`

// Repository handles user persistence and lookup. Soft-deleted users stay in
// the table so presence rows and audit references remain resolvable.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an identity repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.DirectoryID, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID, or nil if not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

// GetByEmail returns a user by email, or nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, email))
}

// GetByDirectoryID returns a user by external directory id, or nil if not found.
func (r *Repository) GetByDirectoryID(ctx context.Context, directoryID string) (*models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE directory_id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, directoryID))
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, directoryID string) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role, directory_id)
		VALUES ($1, $2, $3, $4, NULLIF($5,''))
		RETURNING ` + userColumns
	return r.scanUser(r.pool.QueryRow(ctx, q, email, passwordHash, fullName, role, directoryID))
}

// ListActive returns all non-deleted users ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL ORDER BY full_name, email`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.DirectoryID, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}
