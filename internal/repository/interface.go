package repository

import (
	"context"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
)

// DB checks that the database connection is alive.
type DB interface {
	Ping(ctx context.Context) error
}

// MessageRepository persists contact messages.
type MessageRepository interface {
	// Create inserts msg with status pending and fills ID and timestamps.
	Create(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	// List returns messages newest-first.
	List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, error)
	ListByStatus(ctx context.Context, status model.MessageStatus) ([]*model.Message, error)
	// Transition moves the message to status `to` only when its current
	// status is one of model.MessageSourcesFor(to). It returns ErrConflict
	// when the guard fails and ErrNotFound for an unknown id.
	Transition(ctx context.Context, id string, to model.MessageStatus, t model.MessageTransition) (*model.Message, error)
	AttachNotification(ctx context.Context, id, ref string) error
	// ClaimSend marks the message as being replied to without changing its
	// status. It fails with ErrConflict when the message cannot move to
	// replied or another sender holds a claim younger than model.SendLease.
	ClaimSend(ctx context.Context, id string, now time.Time) (*model.Message, error)
	// ReleaseSend drops the claim after a failed send.
	ReleaseSend(ctx context.Context, id string) error
}

// DraftRepository persists reply drafts. message_id is unique.
type DraftRepository interface {
	// Upsert replaces drafts and external ref of the existing record for
	// messageID, keeping its status, or inserts a new pending record.
	Upsert(ctx context.Context, messageID string, drafts []model.DraftOption, externalRef string) (*model.ReplyDraft, error)
	FindByID(ctx context.Context, id string) (*model.ReplyDraft, error)
	FindByMessageID(ctx context.Context, messageID string) (*model.ReplyDraft, error)
	FindByExternalRef(ctx context.Context, ref string) (*model.ReplyDraft, error)
	Transition(ctx context.Context, id string, to model.DraftStatus, t model.DraftTransition) (*model.ReplyDraft, error)
	SetExternalRef(ctx context.Context, id, ref string) error
}

// SessionRepository handles persistence for admin sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *model.AdminSession) error
	FindByToken(ctx context.Context, token string) (*model.AdminSession, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
