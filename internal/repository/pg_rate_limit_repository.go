package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRateLimitRepository stores fixed-window counters in the rate_limits table.
type PgRateLimitRepository struct {
	pool *pgxpool.Pool
}

// NewPgRateLimitRepository creates a PgRateLimitRepository backed by the given pool.
func NewPgRateLimitRepository(pool *pgxpool.Pool) *PgRateLimitRepository {
	return &PgRateLimitRepository{pool: pool}
}

// Hit counts one request for key in a single upsert. The row lock taken by
// ON CONFLICT serialises concurrent hits; when the window is full the
// update's WHERE fails, nothing is written and the request is denied.
func (r *PgRateLimitRepository) Hit(ctx context.Context, key string, now time.Time, max int, window time.Duration) (*model.RateLimitRecord, bool, error) {
	rec := &model.RateLimitRecord{Key: key}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rate_limits AS rl (key, count, window_start) VALUES ($1, 1, $2)
		 ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rl.window_start <= $3 THEN 1 ELSE rl.count + 1 END,
			window_start = CASE WHEN rl.window_start <= $3 THEN $2 ELSE rl.window_start END
		 WHERE rl.window_start <= $3 OR rl.count < $4
		 RETURNING count, window_start`,
		key, now, now.Add(-window), max,
	).Scan(&rec.Count, &rec.WindowStart)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Denied: report the current window without touching it.
	err = r.pool.QueryRow(ctx,
		`SELECT count, window_start FROM rate_limits WHERE key = $1`, key,
	).Scan(&rec.Count, &rec.WindowStart)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}
