package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	"github.com/ThePickle31/clawd-site-sub000/pkg/discord"
	"github.com/patrickmn/go-cache"
)

const (
	interactionTimeout = 30 * time.Second
	followUpTimeout    = 10 * time.Second
	// Discord interaction tokens are valid for 15 minutes, so a retry
	// never arrives later than that.
	replayWindow = 15 * time.Minute
)

// SignatureVerifier checks the signature headers of an interaction.
type SignatureVerifier interface {
	Verify(signatureHex, timestamp string, body []byte) error
}

// ActionRunner executes a decoded button press.
type ActionRunner interface {
	HandleAction(ctx context.Context, a service.Action) (string, error)
}

// FollowUpSender posts the result of a deferred interaction.
type FollowUpSender interface {
	FollowUp(ctx context.Context, interactionToken string, msg discord.Message) error
}

// InteractionHandler receives Discord button presses. It acknowledges
// within the callback deadline and does the work in the background.
type InteractionHandler struct {
	verifier SignatureVerifier
	actions  ActionRunner
	followUp FollowUpSender
	seen     *cache.Cache
	timeout  time.Duration
	async    func(func())
	inflight sync.WaitGroup
}

// NewInteractionHandler creates an InteractionHandler. A nil verifier
// rejects every request.
func NewInteractionHandler(verifier SignatureVerifier, actions ActionRunner, followUp FollowUpSender) *InteractionHandler {
	h := &InteractionHandler{
		verifier: verifier,
		actions:  actions,
		followUp: followUp,
		seen:     cache.New(replayWindow, 2*replayWindow),
		timeout:  interactionTimeout,
	}
	h.async = h.track
	return h
}

// DrainTimeout is long enough for one action plus its follow-up.
const DrainTimeout = interactionTimeout + followUpTimeout

func (h *InteractionHandler) track(fn func()) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		fn()
	}()
}

// Wait blocks until every background action has finished or ctx is done.
// Call it after the HTTP server has stopped accepting requests.
func (h *InteractionHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle handles POST /api/interactions.
func (h *InteractionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeServiceError(w, r, &service.ConfigurationError{Component: "interaction verifier"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if err := h.verifier.Verify(r.Header.Get(discord.HeaderSignature), r.Header.Get(discord.HeaderTimestamp), body); err != nil {
		slog.Warn("interaction signature rejected", "error", err, "remote_addr", ClientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid_signature")
		return
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	switch in.Type {
	case discord.InteractionPing:
		writeJSON(w, http.StatusOK, discord.InteractionResponse{Type: discord.ResponsePong})

	case discord.InteractionMessageComponent:
		action, err := service.ParseAction(in.Data.CustomID)
		if err != nil {
			slog.Warn("unknown interaction action", "custom_id", in.Data.CustomID)
			writeJSON(w, http.StatusOK, discord.InteractionResponse{
				Type: discord.ResponseChannelMessage,
				Data: &discord.Message{Content: service.DescribeError(err), Flags: discord.FlagEphemeral},
			})
			return
		}
		deferred := discord.InteractionResponse{Type: discord.ResponseDeferredUpdateMessage}
		if err := h.seen.Add(in.ID, struct{}{}, cache.DefaultExpiration); err != nil {
			slog.Info("duplicate interaction dropped", "interaction_id", in.ID)
			writeJSON(w, http.StatusOK, deferred)
			return
		}
		action.ExternalRef = in.MessageID()
		actor := in.Actor()
		writeJSON(w, http.StatusOK, deferred)
		h.async(func() { h.process(in.Token, actor, action) })

	default:
		writeError(w, http.StatusBadRequest, "unsupported_interaction")
	}
}

func (h *InteractionHandler) process(token string, actor discord.User, a service.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if actor.Username != "" {
		ctx = service.WithActor(ctx, actor.Username)
	}

	text, err := h.actions.HandleAction(ctx, a)
	if err != nil {
		slog.Warn("interaction action failed", "verb", a.Verb, "entity_id", a.EntityID, "error", err)
	}
	if h.followUp == nil {
		return
	}

	fctx, fcancel := context.WithTimeout(context.Background(), followUpTimeout)
	defer fcancel()
	if err := h.followUp.FollowUp(fctx, token, discord.Message{Content: text, Flags: discord.FlagEphemeral}); err != nil {
		slog.Error("interaction follow-up failed", "verb", a.Verb, "entity_id", a.EntityID, "error", err)
	}
}
