package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/service"
)

func TestWriteServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", &service.ValidationError{Field: "name", Message: "is required"}, http.StatusBadRequest, "name: is required"},
		{"auth", &service.AuthError{Message: "invalid password"}, http.StatusUnauthorized, "unauthorized"},
		{"conflict", &service.ConflictError{Resource: "message", ID: "1", Status: "replied"}, http.StatusBadRequest, "already processed"},
		{"not found", &service.NotFoundError{Resource: "message", ID: "1"}, http.StatusNotFound, "not_found"},
		{"configuration", &service.ConfigurationError{Component: "reply transport"}, http.StatusInternalServerError, "reply transport is not configured"},
		{"transport", &service.TransportError{Op: "send reply", Err: errors.New("resend send: status 500")}, http.StatusInternalServerError, "send reply: resend send: status 500"},
		{"unknown", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/x", nil)
			rec := httptest.NewRecorder()
			writeServiceError(rec, req, tt.err)

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != tt.message {
				t.Errorf("expected error %q, got %q", tt.message, body["error"])
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-5 * time.Second, "1"},
		{0, "1"},
		{2500 * time.Millisecond, "3"},
		{59*time.Minute + 30*time.Second, "3571"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
