package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	"github.com/ThePickle31/clawd-site-sub000/pkg/auth"
)

// adminActor names the web dashboard in notifications.
const adminActor = "admin"

// SessionManager opens and closes admin sessions.
type SessionManager interface {
	Login(ctx context.Context, password string) (*model.AdminSession, error)
	DeleteSession(ctx context.Context, token string) error
}

// MessageService is the operator side of the approval workflow.
type MessageService interface {
	ListMessages(ctx context.Context, filter model.MessageFilter) ([]*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, *model.ReplyDraft, error)
	Reply(ctx context.Context, id, content string) (*service.TransitionResult, error)
	Ignore(ctx context.Context, id string) (*service.TransitionResult, error)
	Approve(ctx context.Context, id string) (*service.TransitionResult, error)
}

// AdminHandler serves the operator dashboard API.
type AdminHandler struct {
	sessions     SessionManager
	messages     MessageService
	secureCookie bool
}

// NewAdminHandler creates an AdminHandler. secureCookie should be false
// only for plain-HTTP local development.
func NewAdminHandler(sessions SessionManager, messages MessageService, secureCookie bool) *AdminHandler {
	return &AdminHandler{sessions: sessions, messages: messages, secureCookie: secureCookie}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login handles POST /api/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password: is required")
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName(),
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(auth.SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Success: true, ExpiresAt: session.ExpiresAt})
}

// Logout handles POST /api/admin/logout. It succeeds without a session.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName()); err == nil && cookie.Value != "" {
		if err := h.sessions.DeleteSession(r.Context(), cookie.Value); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type listResponse struct {
	Messages []*model.Message `json:"messages"`
}

// List handles GET /api/admin/messages?filter=pending|all.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.ParseMessageFilter(r.URL.Query().Get("filter"))
	msgs, err := h.messages.ListMessages(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, listResponse{Messages: msgs})
}

type detailResponse struct {
	Message *model.Message    `json:"message"`
	Draft   *model.ReplyDraft `json:"draft"`
}

// Get handles GET /api/admin/messages/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	msg, draft, err := h.messages.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Message: msg, Draft: draft})
}

type transitionResponse struct {
	Success  bool           `json:"success"`
	Message  *model.Message `json:"message"`
	Notified bool           `json:"notified"`
}

func writeTransition(w http.ResponseWriter, res *service.TransitionResult) {
	writeJSON(w, http.StatusOK, transitionResponse{Success: true, Message: res.Message, Notified: res.Notified})
}

type replyRequest struct {
	ReplyContent string `json:"replyContent"`
}

// Reply handles POST /api/admin/messages/{id}/reply.
func (h *AdminHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := service.WithActor(r.Context(), adminActor)
	res, err := h.messages.Reply(ctx, r.PathValue("id"), req.ReplyContent)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTransition(w, res)
}

// Ignore handles POST /api/admin/messages/{id}/ignore.
func (h *AdminHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	ctx := service.WithActor(r.Context(), adminActor)
	res, err := h.messages.Ignore(ctx, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTransition(w, res)
}

type approveRequest struct {
	MessageID string `json:"messageId"`
}

// Approve handles POST /api/admin/approve.
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.MessageID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "messageId: is required")
		return
	}
	ctx := service.WithActor(r.Context(), adminActor)
	res, err := h.messages.Approve(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTransition(w, res)
}
