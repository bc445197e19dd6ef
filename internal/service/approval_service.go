package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/ThePickle31/clawd-site-sub000/internal/repository"
	"github.com/go-playground/validator/v10"
)

// IntakeRequest is a contact form submission as received over HTTP.
type IntakeRequest struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Message       string `json:"message" validate:"required"`
	SourceAddress string `json:"-"`
}

// IntakeResult is returned by a successful Intake.
type IntakeResult struct {
	Message   *model.Message
	RateLimit model.RateLimitResult
	Notified  bool
}

// TransitionResult is returned by every operation that changes state.
// Notified is false when the notification sink could not be reached.
type TransitionResult struct {
	Message  *model.Message
	Draft    *model.ReplyDraft
	Notified bool
}

// DraftSubmission carries candidate replies for one message.
type DraftSubmission struct {
	MessageID string              `json:"messageId" validate:"required"`
	Drafts    []model.DraftOption `json:"drafts" validate:"required,min=1,max=5,dive"`
}

// DraftApproval selects one option of a draft. The draft is looked up by
// the notification card it was posted as, falling back to the message id.
type DraftApproval struct {
	ExternalRef string
	MessageID   string
	Index       int
}

// AutomationResult is reported by send-side automation for an approved message.
type AutomationResult struct {
	Success      bool   `json:"success"`
	ReplyContent string `json:"replyContent"`
	Error        string `json:"error"`
}

// ApprovalDeps bundles the collaborators of ApprovalService. Sink, Events
// and Transport may be nil.
type ApprovalDeps struct {
	Messages  repository.MessageRepository
	Drafts    repository.DraftRepository
	Limiter   RateLimiter
	Sink      NotificationSink
	Transport ReplyTransport
	Events    EventPublisher
}

// ApprovalService runs the approval-gated reply workflow. It keeps no
// message state between calls; every guard is evaluated by the store.
type ApprovalService struct {
	messages  repository.MessageRepository
	drafts    repository.DraftRepository
	limiter   RateLimiter
	sink      NotificationSink
	transport ReplyTransport
	events    EventPublisher
	validate  *validator.Validate
	now       func() time.Time
}

// NewApprovalService creates an ApprovalService.
func NewApprovalService(d ApprovalDeps) *ApprovalService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &ApprovalService{
		messages:  d.Messages,
		drafts:    d.Drafts,
		limiter:   d.Limiter,
		sink:      d.Sink,
		transport: d.Transport,
		events:    d.Events,
		validate:  v,
		now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Intake
// ---------------------------------------------------------------------------

// Intake rate-limits, validates, sanitizes and stores a contact message,
// then notifies the operator. Notification failures do not fail intake.
func (s *ApprovalService) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	addr := req.SourceAddress
	if addr == "" {
		addr = "unknown"
	}
	rl, err := s.limiter.Check(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("contact rate limit: %w", err)
	}
	if !rl.Allowed {
		slog.Warn("contact rate limited", "source", addr, "reset_at", rl.ResetAt)
		return nil, &RateLimitedError{Limit: rl.Limit, ResetAt: rl.ResetAt}
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	name := Sanitize(req.Name, maxNameLength)
	body := Sanitize(req.Message, maxMessageLength)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if utf8.RuneCountInString(body) < minMessageLength {
		return nil, &ValidationError{Field: "message", Message: fmt.Sprintf("must be at least %d characters", minMessageLength)}
	}

	msg := &model.Message{
		Name:          name,
		Email:         req.Email,
		Body:          body,
		SourceAddress: req.SourceAddress,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	slog.Info("contact message received", "message_id", msg.ID)

	notified := false
	if ref, ok := s.push(ctx, Notification{Kind: NotifyNewMessage, Message: msg}); ok {
		notified = true
		if err := s.messages.AttachNotification(ctx, msg.ID, ref); err != nil {
			slog.Warn("attach notification failed", "message_id", msg.ID, "error", err)
		} else {
			msg.NotificationID = ref
		}
	}
	s.publish(ctx, EventMessageReceived, msg)

	return &IntakeResult{Message: msg, RateLimit: rl, Notified: notified}, nil
}

// ---------------------------------------------------------------------------
// Operator decisions
// ---------------------------------------------------------------------------

// Approve marks a pending message for a manual reply and asks the operator
// to write it.
func (s *ApprovalService) Approve(ctx context.Context, id string) (*TransitionResult, error) {
	msg, err := s.messages.Transition(ctx, id, model.MessageStatusApproved, model.MessageTransition{At: s.now()})
	if err != nil {
		return nil, s.messageError(ctx, id, err)
	}
	slog.Info("message approved", "message_id", id, "actor", actorFrom(ctx))

	s.patch(ctx, msg.NotificationID, s.notification(ctx, NotifyApproved, msg, nil, ""))
	_, notified := s.push(ctx, s.notification(ctx, NotifyNeedsReply, msg, nil, ""))
	s.publish(ctx, EventMessageApproved, msg)
	return &TransitionResult{Message: msg, Notified: notified}, nil
}

// Ignore closes a pending message without replying.
func (s *ApprovalService) Ignore(ctx context.Context, id string) (*TransitionResult, error) {
	msg, err := s.messages.Transition(ctx, id, model.MessageStatusIgnored, model.MessageTransition{At: s.now()})
	if err != nil {
		return nil, s.messageError(ctx, id, err)
	}
	slog.Info("message ignored", "message_id", id, "actor", actorFrom(ctx))

	n := s.notification(ctx, NotifyIgnored, msg, nil, "")
	notified := s.patch(ctx, msg.NotificationID, n)
	if d, err := s.drafts.FindByMessageID(ctx, id); err == nil && d.ExternalRef != "" && d.ExternalRef != msg.NotificationID {
		n.Draft = d
		notified = s.patch(ctx, d.ExternalRef, n) || notified
	}
	s.publish(ctx, EventMessageIgnored, msg)
	return &TransitionResult{Message: msg, Notified: notified}, nil
}

// Reply sends content to the sender of a pending, approved or failed
// message. The message is claimed before sending so overlapping replies
// send once. A failed send releases the claim and leaves the status
// untouched so it can be retried.
func (s *ApprovalService) Reply(ctx context.Context, id, content string) (*TransitionResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Field: "replyContent", Message: "is required"}
	}
	if utf8.RuneCountInString(content) > maxReplyLength {
		return nil, &ValidationError{Field: "replyContent", Message: fmt.Sprintf("must be at most %d characters", maxReplyLength)}
	}

	msg, err := s.messages.ClaimSend(ctx, id, s.now())
	if err != nil {
		return nil, s.messageError(ctx, id, err)
	}
	if !s.transportReady() {
		s.releaseSend(ctx, id)
		return nil, &ConfigurationError{Component: "reply transport"}
	}

	if err := s.transport.Send(ctx, replyFor(msg, content)); err != nil {
		slog.Error("reply send failed", "message_id", id, "error", err)
		s.releaseSend(ctx, id)
		return nil, &TransportError{Op: "send reply", Err: err}
	}
	return s.completeReply(ctx, msg, content, nil)
}

// ---------------------------------------------------------------------------
// Drafts
// ---------------------------------------------------------------------------

// SubmitDrafts stores candidate replies for a message and posts (or
// refreshes) the card offering one approve button per option. Submitting
// twice for the same message replaces the options of the single draft.
func (s *ApprovalService) SubmitDrafts(ctx context.Context, sub DraftSubmission) (*TransitionResult, error) {
	for i := range sub.Drafts {
		sub.Drafts[i].Content = strings.TrimSpace(sub.Drafts[i].Content)
	}
	if err := s.validateStruct(sub); err != nil {
		return nil, err
	}

	msg, err := s.messages.FindByID(ctx, sub.MessageID)
	if err != nil {
		return nil, s.messageError(ctx, sub.MessageID, err)
	}
	if msg.Status.Terminal() {
		return nil, &ConflictError{Resource: "message", ID: msg.ID, Status: string(msg.Status)}
	}

	ref := ""
	existing, err := s.drafts.FindByMessageID(ctx, msg.ID)
	switch {
	case err == nil:
		if existing.Status == model.DraftStatusApproved || existing.Status == model.DraftStatusSent {
			return nil, &ConflictError{Resource: "draft", ID: existing.ID, Status: string(existing.Status)}
		}
		ref = existing.ExternalRef
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find draft for message %s: %w", msg.ID, err)
	}

	draft, err := s.drafts.Upsert(ctx, msg.ID, sub.Drafts, ref)
	if err != nil {
		return nil, fmt.Errorf("upsert draft: %w", err)
	}
	slog.Info("drafts stored", "message_id", msg.ID, "draft_id", draft.ID, "options", len(draft.Drafts))

	n := s.notification(ctx, NotifyDrafts, msg, draft, "")
	notified := s.patch(ctx, ref, n)
	if !notified {
		if newRef, ok := s.push(ctx, n); ok {
			notified = true
			if err := s.drafts.SetExternalRef(ctx, draft.ID, newRef); err != nil {
				slog.Warn("store draft card reference failed", "draft_id", draft.ID, "error", err)
			} else {
				draft.ExternalRef = newRef
			}
		}
	}
	return &TransitionResult{Message: msg, Draft: draft, Notified: notified}, nil
}

// ApproveDraft sends the selected draft option. Both the message and the
// draft are claimed with conditional updates before the email goes out, so
// neither a repeated click nor a concurrent manual reply can send twice.
func (s *ApprovalService) ApproveDraft(ctx context.Context, a DraftApproval) (*TransitionResult, error) {
	draft, err := s.findDraft(ctx, a)
	if err != nil {
		return nil, err
	}
	if draft.Status != model.DraftStatusPending && draft.Status != model.DraftStatusFailed {
		return nil, &ConflictError{Resource: "draft", ID: draft.ID, Status: string(draft.Status)}
	}

	if a.Index < 0 || a.Index >= len(draft.Drafts) {
		return nil, &ValidationError{Field: "index", Message: fmt.Sprintf("draft option %d does not exist", a.Index+1)}
	}
	if !s.transportReady() {
		return nil, &ConfigurationError{Component: "reply transport"}
	}

	msg, err := s.messages.ClaimSend(ctx, draft.MessageID, s.now())
	if err != nil {
		return nil, s.messageError(ctx, draft.MessageID, err)
	}

	idx := a.Index
	draft, err = s.drafts.Transition(ctx, draft.ID, model.DraftStatusApproved, model.DraftTransition{SelectedDraft: &idx})
	if err != nil {
		s.releaseSend(ctx, msg.ID)
		return nil, s.draftError(err, a)
	}
	content := draft.Drafts[idx].Content
	slog.Info("draft approved", "draft_id", draft.ID, "message_id", msg.ID, "option", idx, "actor", actorFrom(ctx))

	if err := s.transport.Send(ctx, replyFor(msg, content)); err != nil {
		slog.Error("draft send failed", "draft_id", draft.ID, "message_id", msg.ID, "error", err)
		if failed, ferr := s.drafts.Transition(ctx, draft.ID, model.DraftStatusFailed, model.DraftTransition{}); ferr != nil {
			slog.Error("mark draft failed", "draft_id", draft.ID, "error", ferr)
		} else {
			draft = failed
		}
		s.releaseSend(ctx, msg.ID)
		s.patch(ctx, draft.ExternalRef, s.notification(ctx, NotifySendFailed, msg, draft, err.Error()))
		return nil, &TransportError{Op: "send reply", Err: err}
	}

	if sent, err := s.drafts.Transition(ctx, draft.ID, model.DraftStatusSent, model.DraftTransition{}); err != nil {
		slog.Error("mark draft sent", "draft_id", draft.ID, "error", err)
	} else {
		draft = sent
	}
	return s.completeReply(ctx, msg, content, draft)
}

func (s *ApprovalService) findDraft(ctx context.Context, a DraftApproval) (*model.ReplyDraft, error) {
	var draft *model.ReplyDraft
	err := repository.ErrNotFound
	if a.ExternalRef != "" {
		draft, err = s.drafts.FindByExternalRef(ctx, a.ExternalRef)
	}
	if errors.Is(err, repository.ErrNotFound) && a.MessageID != "" {
		draft, err = s.drafts.FindByMessageID(ctx, a.MessageID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "draft", ID: firstNonEmpty(a.ExternalRef, a.MessageID)}
	}
	if err != nil {
		return nil, fmt.Errorf("find draft: %w", err)
	}
	if a.MessageID != "" && draft.MessageID != a.MessageID {
		return nil, &ValidationError{Field: "messageId", Message: "does not match the draft"}
	}
	return draft, nil
}

// ---------------------------------------------------------------------------
// Send-side automation
// ---------------------------------------------------------------------------

// ListApproved returns messages waiting for send-side automation.
func (s *ApprovalService) ListApproved(ctx context.Context) ([]*model.Message, error) {
	msgs, err := s.messages.ListByStatus(ctx, model.MessageStatusApproved)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

// RecordAutomationResult stores the outcome of a send performed outside
// this service for an approved message.
func (s *ApprovalService) RecordAutomationResult(ctx context.Context, id string, r AutomationResult) (*TransitionResult, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, s.messageError(ctx, id, err)
	}
	if msg.Status != model.MessageStatusApproved {
		return nil, &ConflictError{Resource: "message", ID: id, Status: string(msg.Status)}
	}

	if r.Success {
		content := strings.TrimSpace(r.ReplyContent)
		if content == "" {
			return nil, &ValidationError{Field: "replyContent", Message: "is required"}
		}
		return s.completeReply(ctx, msg, content, nil)
	}

	failed, err := s.messages.Transition(ctx, id, model.MessageStatusFailed, model.MessageTransition{At: s.now()})
	if err != nil {
		return nil, s.messageError(ctx, id, err)
	}
	slog.Warn("automation reported send failure", "message_id", id, "error", r.Error)
	notified := s.patch(ctx, failed.NotificationID, s.notification(ctx, NotifySendFailed, failed, nil, r.Error))
	s.publish(ctx, EventMessageFailed, failed)
	return &TransitionResult{Message: failed, Notified: notified}, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// ListMessages returns messages newest-first.
func (s *ApprovalService) ListMessages(ctx context.Context, filter model.MessageFilter) ([]*model.Message, error) {
	msgs, err := s.messages.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

// GetMessage returns a message and its draft, if any.
func (s *ApprovalService) GetMessage(ctx context.Context, id string) (*model.Message, *model.ReplyDraft, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, nil, s.messageError(ctx, id, err)
	}
	draft, err := s.drafts.FindByMessageID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return msg, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find draft for message %s: %w", id, err)
	}
	return msg, draft, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// completeReply records a delivered reply. The email has already gone out,
// so a failed transition here is logged loudly.
func (s *ApprovalService) completeReply(ctx context.Context, msg *model.Message, content string, draft *model.ReplyDraft) (*TransitionResult, error) {
	replied, err := s.messages.Transition(ctx, msg.ID, model.MessageStatusReplied, model.MessageTransition{
		At:           s.now(),
		ReplyContent: content,
	})
	if err != nil {
		slog.Error("reply delivered but message transition failed", "message_id", msg.ID, "error", err)
		return nil, s.messageError(ctx, msg.ID, err)
	}
	slog.Info("message replied", "message_id", msg.ID, "actor", actorFrom(ctx))

	n := s.notification(ctx, NotifySent, replied, draft, "")
	notified := s.patch(ctx, replied.NotificationID, n)
	if draft != nil && draft.ExternalRef != "" && draft.ExternalRef != replied.NotificationID {
		notified = s.patch(ctx, draft.ExternalRef, n) || notified
	}
	if draft != nil || !notified {
		if _, ok := s.push(ctx, s.notification(ctx, NotifyReplied, replied, draft, "")); ok {
			notified = true
		}
	}
	s.publish(ctx, EventMessageReplied, replied)
	return &TransitionResult{Message: replied, Draft: draft, Notified: notified}, nil
}

// releaseSend drops a send claim. It runs even when ctx is already done so
// an aborted send stays retryable without waiting for the lease.
func (s *ApprovalService) releaseSend(ctx context.Context, id string) {
	if err := s.messages.ReleaseSend(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("release send claim failed", "message_id", id, "error", err)
	}
}

func (s *ApprovalService) transportReady() bool {
	return s.transport != nil && s.transport.IsConfigured()
}

func (s *ApprovalService) notification(ctx context.Context, kind NotificationKind, msg *model.Message, draft *model.ReplyDraft, detail string) Notification {
	return Notification{Kind: kind, Message: msg, Draft: draft, Detail: detail, Actor: actorFrom(ctx)}
}

func (s *ApprovalService) push(ctx context.Context, n Notification) (string, bool) {
	if s.sink == nil {
		return "", false
	}
	ref, err := s.sink.Push(ctx, n)
	if err != nil {
		slog.Warn("notification push failed", "kind", n.Kind, "error", err)
		return "", false
	}
	return ref, true
}

func (s *ApprovalService) patch(ctx context.Context, ref string, n Notification) bool {
	if s.sink == nil || ref == "" {
		return false
	}
	if err := s.sink.Patch(ctx, ref, n); err != nil {
		slog.Warn("notification patch failed", "kind", n.Kind, "ref", ref, "error", err)
		return false
	}
	return true
}

func (s *ApprovalService) publish(ctx context.Context, t EventType, msg *model.Message) {
	if s.events == nil {
		return
	}
	e := Event{Type: t, MessageID: msg.ID, Status: msg.Status, At: s.now().UTC()}
	if err := s.events.Publish(ctx, e); err != nil {
		slog.Warn("event publish failed", "event", t, "message_id", msg.ID, "error", err)
	}
}

// messageError maps store errors to service errors. Conflicts re-read the
// message to report its current status.
func (s *ApprovalService) messageError(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Resource: "message", ID: id}
	case errors.Is(err, repository.ErrConflict):
		ce := &ConflictError{Resource: "message", ID: id}
		if cur, ferr := s.messages.FindByID(ctx, id); ferr == nil {
			ce.Status = string(cur.Status)
		}
		return ce
	}
	return fmt.Errorf("message %s: %w", id, err)
}

func (s *ApprovalService) draftError(err error, a DraftApproval) error {
	id := firstNonEmpty(a.ExternalRef, a.MessageID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Resource: "draft", ID: id}
	case errors.Is(err, repository.ErrConflict):
		return &ConflictError{Resource: "draft", ID: id}
	}
	return fmt.Errorf("draft %s: %w", id, err)
}

func (s *ApprovalService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return &ValidationError{Field: fieldPath(ves[0]), Message: describeTag(ves[0])}
	}
	return &ValidationError{Message: err.Error()}
}

// fieldPath drops the struct name prefix, e.g. "DraftSubmission.drafts[0].tone" → "drafts[0].tone".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " entries"
		}
		return "must be at most " + fe.Param() + " characters"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must have at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}

func replyFor(msg *model.Message, content string) Reply {
	return Reply{To: msg.Email, Name: msg.Name, OriginalMessage: msg.Body, Body: content}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
