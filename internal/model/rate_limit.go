package model

import "time"

// RateLimitRecord is the fixed-window counter for one key.
type RateLimitRecord struct {
	Key         string
	Count       int
	WindowStart time.Time
}

// RateLimitResult is the outcome of a single limiter check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Hit applies one request to r at now. An expired or empty window starts
// over at count 1; a full window is returned unchanged with allowed=false.
func (r RateLimitRecord) Hit(now time.Time, max int, window time.Duration) (next RateLimitRecord, allowed bool) {
	switch {
	case r.Count == 0 || now.Sub(r.WindowStart) >= window:
		return RateLimitRecord{Key: r.Key, Count: 1, WindowStart: now}, true
	case r.Count >= max:
		return r, false
	}
	r.Count++
	return r, true
}
