package service

import (
	"context"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
)

// RateLimiter counts requests per source address.
type RateLimiter interface {
	Check(ctx context.Context, address string) (model.RateLimitResult, error)
}

// NotificationKind selects how a notification card is rendered.
type NotificationKind string

const (
	NotifyNewMessage NotificationKind = "new_message"
	NotifyDrafts     NotificationKind = "drafts"
	NotifyNeedsReply NotificationKind = "needs_reply"
	NotifyApproved   NotificationKind = "approved"
	NotifyIgnored    NotificationKind = "ignored"
	NotifySent       NotificationKind = "sent"
	NotifySendFailed NotificationKind = "send_failed"
	NotifyReplied    NotificationKind = "replied"
)

// Notification is the content of one card in the operator channel.
type Notification struct {
	Kind    NotificationKind
	Message *model.Message
	Draft   *model.ReplyDraft
	// Detail carries free text such as a transport error.
	Detail string
	// Actor names who triggered the change, when known.
	Actor string
}

// NotificationSink pushes cards to an external chat channel and later
// replaces them. Failures never abort a message transition.
type NotificationSink interface {
	Push(ctx context.Context, n Notification) (externalID string, err error)
	Patch(ctx context.Context, externalID string, n Notification) error
}

// Reply is one outbound email answering a message.
type Reply struct {
	To              string
	Name            string
	OriginalMessage string
	Body            string
}

// ReplyTransport delivers the final reply. Send is synchronous.
type ReplyTransport interface {
	IsConfigured() bool
	Send(ctx context.Context, r Reply) error
}

// EventType is the routing key of a lifecycle event.
type EventType string

const (
	EventMessageReceived EventType = "message.received"
	EventMessageApproved EventType = "message.approved"
	EventMessageIgnored  EventType = "message.ignored"
	EventMessageReplied  EventType = "message.replied"
	EventMessageFailed   EventType = "message.failed"
)

// Event announces a message status change to send-side automation.
type Event struct {
	Type      EventType           `json:"event"`
	MessageID string              `json:"messageId"`
	Status    model.MessageStatus `json:"status"`
	At        time.Time           `json:"at"`
}

// EventPublisher publishes lifecycle events. Failures are logged only.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
