package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/service"
)

// IntakeService accepts contact form submissions.
type IntakeService interface {
	Intake(ctx context.Context, req service.IntakeRequest) (*service.IntakeResult, error)
}

// ContactHandler handles the public contact form.
type ContactHandler struct {
	svc IntakeService
}

// NewContactHandler creates a ContactHandler with the given service.
func NewContactHandler(svc IntakeService) *ContactHandler {
	return &ContactHandler{svc: svc}
}

type submitResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submit handles POST /api/contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SourceAddress = ClientIP(r)

	res, err := h.svc.Intake(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	rl := res.RateLimit
	writeRateLimitHeaders(w, rl.Limit, rl.Remaining, rl.ResetAt)
	writeJSON(w, http.StatusCreated, submitResponse{
		Success:   true,
		Message:   "Thanks! Your message has been received.",
		ID:        res.Message.ID,
		CreatedAt: res.Message.CreatedAt,
	})
}
