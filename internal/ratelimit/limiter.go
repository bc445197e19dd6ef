// Package ratelimit implements a per-key fixed-window request counter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
)

// ErrUnavailable is returned when the backing store cannot be read or
// written. Callers treat it as a denial (fail closed).
var ErrUnavailable = errors.New("rate limiter unavailable")

// Store applies one request to the counter for key as a single atomic
// step, following model.RateLimitRecord.Hit. It returns the record after
// the step and whether the request was counted. A denied request leaves the
// record unchanged.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, max int, window time.Duration) (*model.RateLimitRecord, bool, error)
}

// Limiter allows at most Max requests per key within each Window.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
}

// New creates a Limiter. prefix namespaces keys so several limiters can
// share one store.
func New(store Store, prefix string, max int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		max:    max,
		window: window,
		prefix: prefix,
		now:    time.Now,
	}
}

// Limit returns the configured maximum per window.
func (l *Limiter) Limit() int { return l.max }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Check counts one request for address. Concurrent checks for the same
// address never admit more than the limit because the store decides and
// increments in one step.
func (l *Limiter) Check(ctx context.Context, address string) (model.RateLimitResult, error) {
	key := l.prefix + address

	rec, allowed, err := l.store.Hit(ctx, key, l.now(), l.max, l.window)
	if err != nil {
		return model.RateLimitResult{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, err)
	}

	result := model.RateLimitResult{
		Allowed: allowed,
		Limit:   l.max,
		ResetAt: rec.WindowStart.Add(l.window),
	}
	if allowed {
		result.Remaining = l.max - rec.Count
	}
	return result, nil
}
