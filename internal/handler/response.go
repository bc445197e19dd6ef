package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/ratelimit"
	"github.com/ThePickle31/clawd-site-sub000/internal/service"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes. Unknown errors are
// logged and reported as internal_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *service.ValidationError
		rl *service.RateLimitedError
		ae *service.AuthError
		ce *service.ConflictError
		nf *service.NotFoundError
		cf *service.ConfigurationError
		te *service.TransportError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &rl):
		writeRateLimited(w, rl.Limit, rl.ResetAt)
	case errors.As(err, &ae):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &ce):
		writeError(w, http.StatusBadRequest, "already processed")
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.As(err, &cf):
		slog.Error("missing configuration", "component", cf.Component, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, cf.Error())
	case errors.As(err, &te):
		writeError(w, http.StatusInternalServerError, te.Error())
	case errors.Is(err, ratelimit.ErrUnavailable):
		slog.Error("rate limiter unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func writeRateLimited(w http.ResponseWriter, limit int, resetAt time.Time) {
	writeRateLimitHeaders(w, limit, 0, resetAt)
	w.Header().Set("Retry-After", retryAfterSeconds(time.Until(resetAt)))
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error":   "rate limit exceeded",
		"resetAt": resetAt.UTC().Format(time.RFC3339),
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
