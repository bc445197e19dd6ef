package handler

import (
	"context"
	"net/http"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/ThePickle31/clawd-site-sub000/internal/service"
)

// AutomationService is the machine side of the approval workflow.
type AutomationService interface {
	ListApproved(ctx context.Context) ([]*model.Message, error)
	SubmitDrafts(ctx context.Context, sub service.DraftSubmission) (*service.TransitionResult, error)
	RecordAutomationResult(ctx context.Context, id string, r service.AutomationResult) (*service.TransitionResult, error)
}

// AutomationHandler serves the bearer-protected automation endpoints.
type AutomationHandler struct {
	svc AutomationService
}

func NewAutomationHandler(svc AutomationService) *AutomationHandler {
	return &AutomationHandler{svc: svc}
}

// Approved handles GET /api/automation/approved.
func (h *AutomationHandler) Approved(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ListApproved(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, listResponse{Messages: msgs})
}

type draftsResponse struct {
	Success  bool              `json:"success"`
	Draft    *model.ReplyDraft `json:"draft"`
	Notified bool              `json:"notified"`
}

// Drafts handles POST /api/automation/drafts.
func (h *AutomationHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	var sub service.DraftSubmission
	if !decodeJSON(w, r, &sub) {
		return
	}
	res, err := h.svc.SubmitDrafts(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, draftsResponse{Success: true, Draft: res.Draft, Notified: res.Notified})
}

// Result handles POST /api/automation/messages/{id}/result.
func (h *AutomationHandler) Result(w http.ResponseWriter, r *http.Request) {
	var req service.AutomationResult
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := service.WithActor(r.Context(), "automation")
	res, err := h.svc.RecordAutomationResult(ctx, r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTransition(w, res)
}
