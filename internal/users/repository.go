package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users in PostgreSQL.
type Repository interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	DeleteExpiredMailTokens(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetByAPIKeyHash(ctx context.Context, hash string) (User, error) {
	query := `SELECT id, email, name, api_key_hash, created_at FROM users WHERE api_key_hash = $1`
	var u User
	err := r.pool.QueryRow(ctx, query, hash).Scan(&u.ID, &u.Email, &u.Name, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT id, email, name, api_key_hash, created_at FROM users WHERE id = $1`
	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) DeleteExpiredMailTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mail_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
