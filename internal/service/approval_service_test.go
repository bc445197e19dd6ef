package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/ThePickle31/clawd-site-sub000/internal/ratelimit"
	"github.com/ThePickle31/clawd-site-sub000/internal/repository"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memMessageRepo struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*model.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{rows: map[string]*model.Message{}}
}

func (r *memMessageRepo) Create(_ context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	now := time.Now()
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	msg.Status = model.MessageStatusPending
	msg.CreatedAt, msg.UpdatedAt = now.Add(time.Duration(r.seq)*time.Millisecond), now
	cp := *msg
	r.rows[msg.ID] = &cp
	return nil
}

func (r *memMessageRepo) FindByID(_ context.Context, id string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) List(_ context.Context, filter model.MessageFilter) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.rows {
		if filter == model.MessageFilterPending && m.Status != model.MessageStatusPending {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memMessageRepo) ListByStatus(_ context.Context, status model.MessageStatus) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.rows {
		if m.Status == status {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMessageRepo) Transition(_ context.Context, id string, to model.MessageStatus, t model.MessageTransition) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.Status.CanTransitionTo(to) {
		return nil, repository.ErrConflict
	}
	if to != model.MessageStatusReplied && to != model.MessageStatusFailed && m.Sending(t.At) {
		return nil, repository.ErrConflict
	}
	m.Status = to
	m.UpdatedAt = t.At
	m.SendingAt = nil
	switch to {
	case model.MessageStatusApproved:
		at := t.At
		m.ApprovedAt = &at
	case model.MessageStatusReplied:
		at := t.At
		m.RepliedAt = &at
		m.ReplyContent = t.ReplyContent
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) AttachNotification(_ context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.NotificationID = ref
	return nil
}

func (r *memMessageRepo) ClaimSend(_ context.Context, id string, now time.Time) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.Status.CanTransitionTo(model.MessageStatusReplied) || m.Sending(now) {
		return nil, repository.ErrConflict
	}
	at := now
	m.SendingAt = &at
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) ReleaseSend(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.rows[id]; ok {
		m.SendingAt = nil
	}
	return nil
}

type memDraftRepo struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*model.ReplyDraft
}

func newMemDraftRepo() *memDraftRepo {
	return &memDraftRepo{rows: map[string]*model.ReplyDraft{}}
}

func copyDraft(d *model.ReplyDraft) *model.ReplyDraft {
	cp := *d
	cp.Drafts = append([]model.DraftOption(nil), d.Drafts...)
	return &cp
}

func (r *memDraftRepo) Upsert(_ context.Context, messageID string, drafts []model.DraftOption, ref string) (*model.ReplyDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.rows {
		if d.MessageID == messageID {
			d.Drafts = append([]model.DraftOption(nil), drafts...)
			d.ExternalRef = ref
			return copyDraft(d), nil
		}
	}
	r.seq++
	d := &model.ReplyDraft{
		ID:          fmt.Sprintf("draft-%d", r.seq),
		MessageID:   messageID,
		Drafts:      append([]model.DraftOption(nil), drafts...),
		ExternalRef: ref,
		Status:      model.DraftStatusPending,
	}
	r.rows[d.ID] = d
	return copyDraft(d), nil
}

func (r *memDraftRepo) find(match func(*model.ReplyDraft) bool) (*model.ReplyDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.rows {
		if match(d) {
			return copyDraft(d), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memDraftRepo) FindByID(_ context.Context, id string) (*model.ReplyDraft, error) {
	return r.find(func(d *model.ReplyDraft) bool { return d.ID == id })
}

func (r *memDraftRepo) FindByMessageID(_ context.Context, messageID string) (*model.ReplyDraft, error) {
	return r.find(func(d *model.ReplyDraft) bool { return d.MessageID == messageID })
}

func (r *memDraftRepo) FindByExternalRef(_ context.Context, ref string) (*model.ReplyDraft, error) {
	return r.find(func(d *model.ReplyDraft) bool { return d.ExternalRef == ref })
}

func (r *memDraftRepo) Transition(_ context.Context, id string, to model.DraftStatus, t model.DraftTransition) (*model.ReplyDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !d.Status.CanTransitionTo(to) {
		return nil, repository.ErrConflict
	}
	d.Status = to
	if t.SelectedDraft != nil {
		idx := *t.SelectedDraft
		d.SelectedDraft = &idx
	}
	return copyDraft(d), nil
}

func (r *memDraftRepo) SetExternalRef(_ context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.ExternalRef = ref
	return nil
}

type stubLimiter struct {
	result model.RateLimitResult
	err    error
}

func (l *stubLimiter) Check(_ context.Context, _ string) (model.RateLimitResult, error) {
	return l.result, l.err
}

func allowAll() *stubLimiter {
	return &stubLimiter{result: model.RateLimitResult{Allowed: true, Limit: 3, Remaining: 2}}
}

type recordingSink struct {
	mu        sync.Mutex
	seq       int
	pushes    []Notification
	patches   map[string][]Notification
	failPush  bool
	failPatch bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{patches: map[string][]Notification{}}
}

func (s *recordingSink) Push(_ context.Context, n Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPush {
		return "", errors.New("discord down")
	}
	s.seq++
	s.pushes = append(s.pushes, n)
	return fmt.Sprintf("card-%d", s.seq), nil
}

func (s *recordingSink) Patch(_ context.Context, ref string, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPatch {
		return errors.New("discord down")
	}
	s.patches[ref] = append(s.patches[ref], n)
	return nil
}

func (s *recordingSink) pushKinds() []NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []NotificationKind
	for _, n := range s.pushes {
		out = append(out, n.Kind)
	}
	return out
}

type stubTransport struct {
	mu         sync.Mutex
	configured bool
	err        error
	delay      time.Duration
	sent       []Reply
}

func (t *stubTransport) IsConfigured() bool { return t.configured }

func (t *stubTransport) Send(_ context.Context, r Reply) error {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, r)
	return nil
}

func (t *stubTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []Event
}

func (e *recordingEvents) Publish(_ context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type fixture struct {
	svc       *ApprovalService
	messages  *memMessageRepo
	drafts    *memDraftRepo
	limiter   *stubLimiter
	sink      *recordingSink
	transport *stubTransport
	events    *recordingEvents
}

func newFixture() *fixture {
	f := &fixture{
		messages:  newMemMessageRepo(),
		drafts:    newMemDraftRepo(),
		limiter:   allowAll(),
		sink:      newRecordingSink(),
		transport: &stubTransport{configured: true},
		events:    &recordingEvents{},
	}
	f.svc = NewApprovalService(ApprovalDeps{
		Messages:  f.messages,
		Drafts:    f.drafts,
		Limiter:   f.limiter,
		Sink:      f.sink,
		Transport: f.transport,
		Events:    f.events,
	})
	return f
}

func (f *fixture) intake(t *testing.T) *model.Message {
	t.Helper()
	res, err := f.svc.Intake(context.Background(), IntakeRequest{
		Name:          "Ada",
		Email:         "ada@example.com",
		Message:       "Hello there, I have a question.",
		SourceAddress: "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	return res.Message
}

func (f *fixture) status(t *testing.T, id string) model.MessageStatus {
	t.Helper()
	m, err := f.messages.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return m.Status
}

func twoDrafts(id string) DraftSubmission {
	return DraftSubmission{
		MessageID: id,
		Drafts: []model.DraftOption{
			{Tone: model.ToneFriendly, Content: "Hi Ada, thanks!"},
			{Tone: model.ToneProfessional, Content: "Dear Ada, thank you for reaching out."},
		},
	}
}

// ---------------------------------------------------------------------------
// Intake
// ---------------------------------------------------------------------------

func TestIntake_StoresPendingAndNotifies(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Intake(context.Background(), IntakeRequest{
		Name:          "  <b>Ada</b>  Lovelace ",
		Email:         "ada@example.com",
		Message:       "Hello <script>x</script> there,\n\n  friend!",
		SourceAddress: "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Notified {
		t.Error("expected Notified=true")
	}
	stored, _ := f.messages.FindByID(context.Background(), res.Message.ID)
	if stored.Status != model.MessageStatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
	if stored.Name != "Ada Lovelace" {
		t.Errorf("expected sanitized name, got %q", stored.Name)
	}
	if strings.ContainsAny(stored.Body, "<>") {
		t.Errorf("expected tags stripped, got %q", stored.Body)
	}
	if stored.NotificationID != "card-1" {
		t.Errorf("expected notification id card-1, got %q", stored.NotificationID)
	}
	if kinds := f.sink.pushKinds(); len(kinds) != 1 || kinds[0] != NotifyNewMessage {
		t.Errorf("expected one new_message push, got %v", kinds)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != EventMessageReceived {
		t.Errorf("expected message.received event, got %+v", f.events.events)
	}
}

func TestIntake_RateLimited(t *testing.T) {
	f := newFixture()
	reset := time.Now().Add(30 * time.Minute)
	f.limiter.result = model.RateLimitResult{Allowed: false, Limit: 3, ResetAt: reset}

	_, err := f.svc.Intake(context.Background(), IntakeRequest{Name: "A", Email: "a@example.com", Message: "long enough text"})
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if !rl.ResetAt.Equal(reset) {
		t.Errorf("expected resetAt %v, got %v", reset, rl.ResetAt)
	}
	if len(f.messages.rows) != 0 {
		t.Error("no message may be stored when rate limited")
	}
}

func TestIntake_LimiterUnavailableFailsClosed(t *testing.T) {
	f := newFixture()
	f.limiter.err = fmt.Errorf("%w: redis down", ratelimit.ErrUnavailable)

	_, err := f.svc.Intake(context.Background(), IntakeRequest{Name: "A", Email: "a@example.com", Message: "long enough text"})
	if !errors.Is(err, ratelimit.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(f.messages.rows) != 0 {
		t.Error("no message may be stored when the limiter is unavailable")
	}
}

func TestIntake_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   IntakeRequest
		field string
	}{
		{"missing name", IntakeRequest{Email: "a@example.com", Message: "long enough text"}, "name"},
		{"markup-only name", IntakeRequest{Name: "<b></b>", Email: "a@example.com", Message: "long enough text"}, "name"},
		{"bad email", IntakeRequest{Name: "A", Email: "not-an-email", Message: "long enough text"}, "email"},
		{"missing message", IntakeRequest{Name: "A", Email: "a@example.com"}, "message"},
		{"short after sanitizing", IntakeRequest{Name: "A", Email: "a@example.com", Message: "<p>hi</p>      "}, "message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Intake(context.Background(), tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestIntake_SinkFailureStillStores(t *testing.T) {
	f := newFixture()
	f.sink.failPush = true

	res, err := f.svc.Intake(context.Background(), IntakeRequest{Name: "A", Email: "a@example.com", Message: "long enough text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Notified {
		t.Error("expected Notified=false")
	}
	if f.status(t, res.Message.ID) != model.MessageStatusPending {
		t.Error("message should still be stored as pending")
	}
}

// ---------------------------------------------------------------------------
// Approve / Ignore
// ---------------------------------------------------------------------------

func TestApprove_SecondCallConflicts(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)

	res, err := f.svc.Approve(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message.Status != model.MessageStatusApproved || res.Message.ApprovedAt == nil {
		t.Errorf("expected approved with approvedAt, got %+v", res.Message)
	}
	if len(f.sink.patches[msg.NotificationID]) != 1 {
		t.Error("expected the intake card to be patched")
	}

	_, err = f.svc.Approve(context.Background(), msg.ID)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Status != string(model.MessageStatusApproved) {
		t.Errorf("expected current status approved, got %q", ce.Status)
	}
}

func TestApprove_UnknownMessage(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Approve(context.Background(), "nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestIgnore_OnlyFromPending(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.Approve(context.Background(), msg.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Ignore(context.Background(), msg.ID)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	other := f.intake(t)
	res, err := f.svc.Ignore(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message.Status != model.MessageStatusIgnored {
		t.Errorf("expected ignored, got %s", res.Message.Status)
	}
}

// ---------------------------------------------------------------------------
// Reply
// ---------------------------------------------------------------------------

func TestReply_TransportFailureLeavesStatus(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	f.transport.err = errors.New("smtp 550")

	_, err := f.svc.Reply(context.Background(), msg.ID, "Thanks!")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if f.status(t, msg.ID) != model.MessageStatusPending {
		t.Error("status must not change when sending fails")
	}

	f.transport.err = nil
	res, err := f.svc.Reply(context.Background(), msg.ID, "Thanks!")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Message.Status != model.MessageStatusReplied || res.Message.ReplyContent != "Thanks!" {
		t.Errorf("expected replied with content, got %+v", res.Message)
	}
	if f.transport.sent[0].To != "ada@example.com" || f.transport.sent[0].OriginalMessage == "" {
		t.Errorf("unexpected reply: %+v", f.transport.sent[0])
	}
}

func TestReply_NotConfigured(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	f.transport.configured = false

	_, err := f.svc.Reply(context.Background(), msg.ID, "Thanks!")
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if f.transport.count() != 0 {
		t.Error("nothing may be sent")
	}
}

func TestReply_AlreadyRepliedDoesNotSend(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.Reply(context.Background(), msg.ID, "First"); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Reply(context.Background(), msg.ID, "Second")
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if f.transport.count() != 1 {
		t.Errorf("expected exactly one send, got %d", f.transport.count())
	}
}

func TestReply_ConcurrentRepliesSendOnce(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	f.transport.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reply(context.Background(), msg.ID, "Thanks for writing!")
			mu.Lock()
			defer mu.Unlock()
			var ce *ConflictError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &ce):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.transport.count() != 1 {
		t.Errorf("expected exactly one send, got %d", f.transport.count())
	}
	if ok != 1 || conflicts != 4 {
		t.Errorf("expected 1 success and 4 conflicts, got %d and %d", ok, conflicts)
	}
	if f.status(t, msg.ID) != model.MessageStatusReplied {
		t.Error("expected replied")
	}
}

func TestReply_IgnoreWhileSendingConflicts(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	f.transport.delay = 30 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Reply(context.Background(), msg.ID, "Thanks!")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := f.svc.Ignore(context.Background(), msg.ID)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError while a reply is in flight, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("reply: %v", err)
	}
	if f.status(t, msg.ID) != model.MessageStatusReplied {
		t.Error("expected replied")
	}
}

func TestReply_StaleClaimCanBeTakenOver(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	stale := time.Now().Add(-2 * model.SendLease)
	if _, err := f.messages.ClaimSend(context.Background(), msg.ID, stale); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Reply(context.Background(), msg.ID, "Thanks!"); err != nil {
		t.Fatalf("expected an abandoned claim to be taken over, got %v", err)
	}
	if f.transport.count() != 1 {
		t.Errorf("expected one send, got %d", f.transport.count())
	}
}

func TestReply_EmptyContent(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	_, err := f.svc.Reply(context.Background(), msg.ID, "   ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Drafts
// ---------------------------------------------------------------------------

func TestSubmitDrafts_ResubmitKeepsSingleCard(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)

	first, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Draft.ExternalRef == "" {
		t.Fatal("expected the draft card reference to be stored")
	}

	sub := twoDrafts(msg.ID)
	sub.Drafts = sub.Drafts[:1]
	second, err := f.svc.SubmitDrafts(context.Background(), sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Draft.ID != first.Draft.ID {
		t.Error("expected the same draft record")
	}
	if len(second.Draft.Drafts) != 1 {
		t.Errorf("expected options replaced, got %d", len(second.Draft.Drafts))
	}
	if len(f.sink.patches[first.Draft.ExternalRef]) != 1 {
		t.Error("expected the existing draft card to be patched")
	}
	if len(f.drafts.rows) != 1 {
		t.Errorf("expected one draft, got %d", len(f.drafts.rows))
	}
}

func TestSubmitDrafts_Validation(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)

	sub := twoDrafts(msg.ID)
	sub.Drafts[1].Tone = "sarcastic"
	_, err := f.svc.SubmitDrafts(context.Background(), sub)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "drafts[1].tone" {
		t.Errorf("expected field drafts[1].tone, got %q", ve.Field)
	}

	_, err = f.svc.SubmitDrafts(context.Background(), DraftSubmission{MessageID: msg.ID})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty drafts, got %v", err)
	}
}

func TestApproveDraft_SendsSelectedOption(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	sub, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID))
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.ApproveDraft(context.Background(), DraftApproval{ExternalRef: sub.Draft.ExternalRef, MessageID: msg.ID, Index: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.transport.sent[0].Body; got != "Dear Ada, thank you for reaching out." {
		t.Errorf("expected option 1 to be sent, got %q", got)
	}
	if res.Message.Status != model.MessageStatusReplied {
		t.Errorf("expected replied, got %s", res.Message.Status)
	}
	if res.Draft.Status != model.DraftStatusSent || res.Draft.SelectedDraft == nil || *res.Draft.SelectedDraft != 1 {
		t.Errorf("expected sent draft with selection 1, got %+v", res.Draft)
	}

	_, err = f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 0})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError on second approval, got %v", err)
	}
	if f.transport.count() != 1 {
		t.Errorf("expected exactly one send, got %d", f.transport.count())
	}
}

func TestApproveDraft_IndexOutOfRange(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID)); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 2})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	d, _ := f.drafts.FindByMessageID(context.Background(), msg.ID)
	if d.Status != model.DraftStatusPending {
		t.Errorf("draft must stay pending, got %s", d.Status)
	}
}

func TestApproveDraft_SendFailureCanBeRetried(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID)); err != nil {
		t.Fatal(err)
	}
	f.transport.err = errors.New("resend 500")

	_, err := f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 0})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	d, _ := f.drafts.FindByMessageID(context.Background(), msg.ID)
	if d.Status != model.DraftStatusFailed {
		t.Errorf("expected failed draft, got %s", d.Status)
	}
	if f.status(t, msg.ID) != model.MessageStatusPending {
		t.Error("message must stay pending after a failed send")
	}

	f.transport.err = nil
	if _, err := f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 0}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.status(t, msg.ID) != model.MessageStatusReplied {
		t.Error("expected replied after retry")
	}
}

func TestApproveDraft_ConcurrentClicksSendOnce(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 0})
		}()
	}
	wg.Wait()

	if f.transport.count() != 1 {
		t.Errorf("expected exactly one send, got %d", f.transport.count())
	}
}

func TestApproveDraft_RacingManualReplySendsOnce(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID)); err != nil {
		t.Fatal(err)
	}
	f.transport.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.svc.Reply(context.Background(), msg.ID, "Manual answer")
	}()
	go func() {
		defer wg.Done()
		_, _ = f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 0})
	}()
	wg.Wait()

	if f.transport.count() != 1 {
		t.Errorf("expected exactly one send, got %d", f.transport.count())
	}
	d, _ := f.drafts.FindByMessageID(context.Background(), msg.ID)
	if d.Status == model.DraftStatusApproved {
		t.Error("a losing draft approval must not leave the draft approved")
	}
}

func TestApproveDraft_IgnoredMessage(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Ignore(context.Background(), msg.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.ApproveDraft(context.Background(), DraftApproval{MessageID: msg.ID, Index: 0})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if f.transport.count() != 0 {
		t.Error("nothing may be sent for an ignored message")
	}
}

// ---------------------------------------------------------------------------
// Automation
// ---------------------------------------------------------------------------

func TestRecordAutomationResult_FailureThenManualReply(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)
	if _, err := f.svc.Approve(context.Background(), msg.ID); err != nil {
		t.Fatal(err)
	}

	approved, err := f.svc.ListApproved(context.Background())
	if err != nil || len(approved) != 1 {
		t.Fatalf("expected one approved message, got %d (%v)", len(approved), err)
	}

	res, err := f.svc.RecordAutomationResult(context.Background(), msg.ID, AutomationResult{Success: false, Error: "bounce"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message.Status != model.MessageStatusFailed {
		t.Errorf("expected failed, got %s", res.Message.Status)
	}

	if _, err := f.svc.Reply(context.Background(), msg.ID, "Trying again"); err != nil {
		t.Fatalf("reply from failed: %v", err)
	}
	if f.status(t, msg.ID) != model.MessageStatusReplied {
		t.Error("expected replied")
	}
}

func TestRecordAutomationResult_RequiresApproved(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)

	_, err := f.svc.RecordAutomationResult(context.Background(), msg.ID, AutomationResult{Success: true, ReplyContent: "x"})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func TestListMessages_Filter(t *testing.T) {
	f := newFixture()
	a := f.intake(t)
	f.intake(t)
	if _, err := f.svc.Ignore(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}

	pending, _ := f.svc.ListMessages(context.Background(), model.MessageFilterPending)
	all, _ := f.svc.ListMessages(context.Background(), model.MessageFilterAll)
	if len(pending) != 1 || len(all) != 2 {
		t.Errorf("expected 1 pending / 2 total, got %d / %d", len(pending), len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Error("expected newest first")
	}
}

func TestGetMessage_IncludesDraft(t *testing.T) {
	f := newFixture()
	msg := f.intake(t)

	_, d, err := f.svc.GetMessage(context.Background(), msg.ID)
	if err != nil || d != nil {
		t.Fatalf("expected no draft yet, got %v / %v", d, err)
	}
	if _, err := f.svc.SubmitDrafts(context.Background(), twoDrafts(msg.ID)); err != nil {
		t.Fatal(err)
	}
	_, d, err = f.svc.GetMessage(context.Background(), msg.ID)
	if err != nil || d == nil || len(d.Drafts) != 2 {
		t.Fatalf("expected draft with 2 options, got %+v / %v", d, err)
	}
}
