package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/ThePickle31/clawd-site-sub000/internal/repository"
	"github.com/ThePickle31/clawd-site-sub000/pkg/auth"
)

var (
	// ErrInvalidSession is returned for unknown tokens.
	ErrInvalidSession = errors.New("invalid_session")
	// ErrSessionExpired is returned for tokens past their expiry.
	ErrSessionExpired = errors.New("session_expired")
)

// SessionService manages DB-backed admin sessions.
// Implements auth.SessionValidator.
type SessionService struct {
	repo     repository.SessionRepository
	password *auth.PasswordChecker
	now      func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(repo repository.SessionRepository, password *auth.PasswordChecker) *SessionService {
	return &SessionService{repo: repo, password: password, now: time.Now}
}

// Login checks the operator password and opens a session. Expired
// sessions are swept on every successful login.
func (s *SessionService) Login(ctx context.Context, password string) (*model.AdminSession, error) {
	ok, err := s.password.Check(password)
	if errors.Is(err, auth.ErrPasswordNotConfigured) {
		return nil, &ConfigurationError{Component: "admin password"}
	}
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		slog.Warn("admin login rejected")
		return nil, &AuthError{Message: "invalid password"}
	}

	if _, err := s.SweepExpired(ctx); err != nil {
		slog.Warn("sweep expired sessions failed", "error", err)
	}
	return s.CreateSession(ctx)
}

// CreateSession generates a new opaque token, stores it in DB, and returns the session.
func (s *SessionService) CreateSession(ctx context.Context) (*model.AdminSession, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now()
	session := &model.AdminSession{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(auth.SessionDuration),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	slog.Info("admin session created", "expires_at", session.ExpiresAt)
	return session, nil
}

// ValidateSession checks a session token. Expired sessions are deleted on sight.
// Implements auth.SessionValidator.
func (s *SessionService) ValidateSession(ctx context.Context, token string) error {
	session, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidSession
	}
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if !session.Valid(s.now()) {
		if err := s.repo.DeleteByToken(ctx, token); err != nil {
			slog.Warn("delete expired session failed", "error", err)
		}
		return ErrSessionExpired
	}
	return nil
}

// DeleteSession removes a session (logout).
func (s *SessionService) DeleteSession(ctx context.Context, token string) error {
	return s.repo.DeleteByToken(ctx, token)
}

// SweepExpired deletes every expired session and returns how many were removed.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("expired sessions swept", "count", n)
	}
	return n, nil
}
