package model

import "time"

// SendLease bounds how long a send claim blocks other senders. A claim
// older than this is treated as abandoned.
const SendLease = 2 * time.Minute

// MessageStatus is the lifecycle state of a contact message.
type MessageStatus string

const (
	MessageStatusPending  MessageStatus = "pending"
	MessageStatusApproved MessageStatus = "approved"
	MessageStatusReplied  MessageStatus = "replied"
	MessageStatusIgnored  MessageStatus = "ignored"
	MessageStatusFailed   MessageStatus = "failed"
)

// messageTransitions lists the legal targets for every source status.
// replied and ignored are terminal.
var messageTransitions = map[MessageStatus][]MessageStatus{
	MessageStatusPending:  {MessageStatusApproved, MessageStatusIgnored, MessageStatusReplied},
	MessageStatusApproved: {MessageStatusReplied, MessageStatusFailed},
	MessageStatusFailed:   {MessageStatusReplied},
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusApproved, MessageStatusReplied,
		MessageStatusIgnored, MessageStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s MessageStatus) Terminal() bool {
	return len(messageTransitions[s]) == 0
}

// CanTransitionTo reports whether s → to is a legal message transition.
func (s MessageStatus) CanTransitionTo(to MessageStatus) bool {
	for _, t := range messageTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// MessageSourcesFor returns every status from which a message may move to
// target. Stores use it as the expected-status set of a conditional update.
func MessageSourcesFor(target MessageStatus) []MessageStatus {
	var from []MessageStatus
	for _, s := range []MessageStatus{MessageStatusPending, MessageStatusApproved, MessageStatusFailed} {
		if s.CanTransitionTo(target) {
			from = append(from, s)
		}
	}
	return from
}

// Message is an inbound contact form submission.
type Message struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	Body           string        `json:"message"`
	SourceAddress  string        `json:"-"`
	Status         MessageStatus `json:"status"`
	NotificationID string        `json:"notificationId,omitempty"`
	ReplyContent   string        `json:"replyContent,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	ApprovedAt     *time.Time    `json:"approvedAt,omitempty"`
	RepliedAt      *time.Time    `json:"repliedAt,omitempty"`
	SendingAt      *time.Time    `json:"-"`
}

// Sending reports whether a send claim taken at SendingAt is still live at now.
func (m *Message) Sending(now time.Time) bool {
	return m.SendingAt != nil && m.SendingAt.After(now.Add(-SendLease))
}

// MessageTransition carries the fields written together with a status change.
type MessageTransition struct {
	At           time.Time
	ReplyContent string
}

// MessageFilter selects messages for the admin list.
type MessageFilter string

const (
	MessageFilterPending MessageFilter = "pending"
	MessageFilterAll     MessageFilter = "all"
)

// ParseMessageFilter maps a query value to a filter. Unknown and empty
// values fall back to pending.
func ParseMessageFilter(s string) MessageFilter {
	if MessageFilter(s) == MessageFilterAll {
		return MessageFilterAll
	}
	return MessageFilterPending
}
