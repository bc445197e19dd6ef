package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSessionRepository is the PostgreSQL implementation of SessionRepository.
type PgSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPgSessionRepository creates a PgSessionRepository backed by the given pool.
func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

var _ SessionRepository = (*PgSessionRepository)(nil)

func (r *PgSessionRepository) Create(ctx context.Context, s *model.AdminSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admin_sessions (token, created_at, expires_at) VALUES ($1, $2, $3)`,
		s.Token, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r *PgSessionRepository) FindByToken(ctx context.Context, token string) (*model.AdminSession, error) {
	s := &model.AdminSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT token, created_at, expires_at FROM admin_sessions WHERE token = $1`,
		token).Scan(&s.Token, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PgSessionRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM admin_sessions WHERE token = $1`, token)
	return err
}

func (r *PgSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM admin_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
