package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ActionVerb is the first segment of a button custom id.
type ActionVerb string

const (
	// ActionApprove sends draft option {index} of message {id}.
	ActionApprove ActionVerb = "approve"
	// ActionIgnore closes message {id} without replying.
	ActionIgnore ActionVerb = "ignore"
	// ActionClaim approves message {id} for a manual reply.
	ActionClaim ActionVerb = "claim"
)

// Action is a decoded button press.
type Action struct {
	Verb     ActionVerb
	EntityID string
	Index    int
	// ExternalRef is the notification card the button was attached to.
	ExternalRef string
}

// ErrUnknownAction is returned by ParseAction for ids it cannot decode.
var ErrUnknownAction = errors.New("unknown action")

// ActionID encodes a button custom id as "{verb}_{entityId}" or
// "{verb}_{entityId}_{index}".
func ActionID(verb ActionVerb, entityID string, index ...int) string {
	id := string(verb) + "_" + entityID
	if len(index) > 0 {
		id += "_" + strconv.Itoa(index[0])
	}
	return id
}

// ParseAction decodes a custom id produced by ActionID. Entity ids are
// UUIDs and never contain an underscore.
func ParseAction(customID string) (Action, error) {
	parts := strings.Split(customID, "_")
	if len(parts) < 2 || parts[1] == "" {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, customID)
	}
	a := Action{Verb: ActionVerb(parts[0]), EntityID: parts[1]}
	switch a.Verb {
	case ActionApprove:
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, customID)
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 {
			return Action{}, fmt.Errorf("%w: bad index in %q", ErrUnknownAction, customID)
		}
		a.Index = idx
	case ActionIgnore, ActionClaim:
		if len(parts) != 2 {
			return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, customID)
		}
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, customID)
	}
	return a, nil
}

// HandleAction runs a button press and returns the text of the follow-up
// shown to the operator. Failures are reported in the text as well.
func (s *ApprovalService) HandleAction(ctx context.Context, a Action) (string, error) {
	switch a.Verb {
	case ActionApprove:
		res, err := s.ApproveDraft(ctx, DraftApproval{ExternalRef: a.ExternalRef, MessageID: a.EntityID, Index: a.Index})
		if err != nil {
			return DescribeError(err), err
		}
		return fmt.Sprintf("Reply sent to %s.", res.Message.Email), nil
	case ActionIgnore:
		res, err := s.Ignore(ctx, a.EntityID)
		if err != nil {
			return DescribeError(err), err
		}
		return fmt.Sprintf("Message from %s ignored.", res.Message.Name), nil
	case ActionClaim:
		res, err := s.Approve(ctx, a.EntityID)
		if err != nil {
			return DescribeError(err), err
		}
		return fmt.Sprintf("Message from %s approved, waiting for a manual reply.", res.Message.Name), nil
	}
	err := fmt.Errorf("%w: %q", ErrUnknownAction, a.Verb)
	return DescribeError(err), err
}

// DescribeError renders err as a short operator-facing sentence.
func DescribeError(err error) string {
	var (
		ce *ConflictError
		nf *NotFoundError
		ve *ValidationError
		te *TransportError
		cf *ConfigurationError
	)
	switch {
	case errors.As(err, &ce):
		if ce.Status != "" {
			return fmt.Sprintf("Already processed (%s).", ce.Status)
		}
		return "Already processed."
	case errors.As(err, &nf):
		return "Not found: " + nf.Resource + "."
	case errors.As(err, &ve):
		return "Invalid request: " + ve.Error() + "."
	case errors.As(err, &te):
		return "Sending failed: " + te.Err.Error()
	case errors.As(err, &cf):
		return "Email sending is not configured."
	case errors.Is(err, ErrUnknownAction):
		return "Unknown action."
	}
	return "Something went wrong."
}

type actorKey struct{}

// WithActor records who triggered the operations run with ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}
