package model

import "time"

// Tone labels a drafted reply variant.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	TonePlayful      Tone = "playful"
)

// Valid reports whether t is one of the known tones.
func (t Tone) Valid() bool {
	switch t {
	case ToneFriendly, ToneProfessional, TonePlayful:
		return true
	}
	return false
}

// DraftStatus is the lifecycle state of a ReplyDraft.
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusSent     DraftStatus = "sent"
	DraftStatusFailed   DraftStatus = "failed"
)

// A failed send may be approved again; sent is terminal.
var draftTransitions = map[DraftStatus][]DraftStatus{
	DraftStatusPending:  {DraftStatusApproved},
	DraftStatusApproved: {DraftStatusSent, DraftStatusFailed},
	DraftStatusFailed:   {DraftStatusApproved},
}

// CanTransitionTo reports whether s → to is a legal draft transition.
func (s DraftStatus) CanTransitionTo(to DraftStatus) bool {
	for _, t := range draftTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// DraftSourcesFor returns every draft status from which target is reachable.
func DraftSourcesFor(target DraftStatus) []DraftStatus {
	var from []DraftStatus
	for _, s := range []DraftStatus{DraftStatusPending, DraftStatusApproved, DraftStatusFailed} {
		if s.CanTransitionTo(target) {
			from = append(from, s)
		}
	}
	return from
}

// DraftOption is one candidate reply text.
type DraftOption struct {
	Tone    Tone   `json:"tone" validate:"required,oneof=friendly professional playful"`
	Content string `json:"content" validate:"required,max=5000"`
}

// ReplyDraft holds the candidate replies for a single message. There is at
// most one draft per message.
type ReplyDraft struct {
	ID            string        `json:"id"`
	MessageID     string        `json:"messageId"`
	Drafts        []DraftOption `json:"drafts"`
	ExternalRef   string        `json:"externalRef,omitempty"`
	Status        DraftStatus   `json:"status"`
	SelectedDraft *int          `json:"selectedDraft,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// DraftTransition carries the fields written together with a draft status change.
type DraftTransition struct {
	SelectedDraft *int
}
