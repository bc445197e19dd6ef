package handler

import (
	"net/http"

	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	"github.com/ThePickle31/clawd-site-sub000/pkg/auth"
)

// Routes bundles everything NewRouter mounts.
type Routes struct {
	Base         *Handler
	Contact      *ContactHandler
	Admin        *AdminHandler
	Interactions *InteractionHandler
	Automation   *AutomationHandler

	Sessions         auth.SessionValidator
	LoginLimiter     service.RateLimiter
	AutomationSecret string
}

// NewRouter mounts all API routes and wraps them in the common middleware.
func NewRouter(rt Routes) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", rt.Base.Health)

	// Public
	mux.HandleFunc("POST /api/contact", rt.Contact.Submit)
	mux.HandleFunc("POST /api/interactions", rt.Interactions.Handle)

	// Admin session
	mux.Handle("POST /api/admin/login", RateLimit(rt.LoginLimiter)(http.HandlerFunc(rt.Admin.Login)))
	mux.HandleFunc("POST /api/admin/logout", rt.Admin.Logout)

	session := auth.RequireSession(rt.Sessions)
	mux.Handle("GET /api/admin/messages", session(http.HandlerFunc(rt.Admin.List)))
	mux.Handle("GET /api/admin/messages/{id}", session(http.HandlerFunc(rt.Admin.Get)))
	mux.Handle("POST /api/admin/messages/{id}/reply", session(http.HandlerFunc(rt.Admin.Reply)))
	mux.Handle("POST /api/admin/messages/{id}/ignore", session(http.HandlerFunc(rt.Admin.Ignore)))
	mux.Handle("POST /api/admin/approve", session(http.HandlerFunc(rt.Admin.Approve)))

	// Send-side automation (bearer secret)
	bearer := auth.RequireBearer(rt.AutomationSecret)
	mux.Handle("GET /api/automation/approved", bearer(http.HandlerFunc(rt.Automation.Approved)))
	mux.Handle("POST /api/automation/drafts", bearer(http.HandlerFunc(rt.Automation.Drafts)))
	mux.Handle("POST /api/automation/messages/{id}/result", bearer(http.HandlerFunc(rt.Automation.Result)))

	return Recovery(RequestLogger(SecurityHeaders(rt.Base.CORS(mux))))
}
