// Package notify renders workflow notifications as Discord cards.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	"github.com/ThePickle31/clawd-site-sub000/pkg/discord"
)

// Embed limits enforced by Discord.
const (
	maxTitle       = 256
	maxDescription = 4000
	maxFieldValue  = 1024
)

const (
	colorPending = 0x5865F2
	colorDrafts  = 0xFEE75C
	colorDone    = 0x57F287
	colorIgnored = 0x99AAB5
	colorFailed  = 0xED4245
)

// Poster is the webhook surface of *discord.Client.
type Poster interface {
	Execute(ctx context.Context, msg discord.Message) (string, error)
	Edit(ctx context.Context, messageID string, msg discord.Message) error
}

// DiscordSink implements service.NotificationSink on a Discord webhook.
type DiscordSink struct {
	poster     Poster
	operatorID string
}

// NewDiscordSink creates a DiscordSink. operatorID, when set, is mentioned
// on cards that need attention.
func NewDiscordSink(poster Poster, operatorID string) *DiscordSink {
	return &DiscordSink{poster: poster, operatorID: operatorID}
}

// Push posts a new card and returns its message id.
func (s *DiscordSink) Push(ctx context.Context, n service.Notification) (string, error) {
	return s.poster.Execute(ctx, s.Render(n))
}

// Patch replaces the card with the given message id.
func (s *DiscordSink) Patch(ctx context.Context, externalID string, n service.Notification) error {
	return s.poster.Edit(ctx, externalID, s.Render(n))
}

// Render builds the card for n.
func (s *DiscordSink) Render(n service.Notification) discord.Message {
	msg := n.Message
	if msg == nil {
		msg = &model.Message{}
	}
	var out discord.Message

	switch n.Kind {
	case service.NotifyNewMessage:
		out.Content = s.mention()
		out.Embeds = []discord.Embed{messageEmbed("New message from "+msg.Name, msg, colorPending)}
		out.Components = discord.Rows(
			discord.Button(discord.ButtonSuccess, "Approve", service.ActionID(service.ActionClaim, msg.ID)),
			discord.Button(discord.ButtonDanger, "Ignore", service.ActionID(service.ActionIgnore, msg.ID)),
		)

	case service.NotifyDrafts:
		out.Content = s.mention()
		e := messageEmbed("Draft replies for "+msg.Name, msg, colorDrafts)
		e.Fields = append(e.Fields, draftFields(n.Draft)...)
		out.Embeds = []discord.Embed{e}
		out.Components = draftButtons(msg.ID, n.Draft)

	case service.NotifyNeedsReply:
		out.Content = s.mention()
		out.Embeds = []discord.Embed{messageEmbed("Reply needed for "+msg.Name, msg, colorPending)}

	case service.NotifyApproved:
		out.Embeds = []discord.Embed{messageEmbed(byActor("Approved", n.Actor)+": "+msg.Name, msg, colorDone)}

	case service.NotifyIgnored:
		out.Embeds = []discord.Embed{messageEmbed(byActor("Ignored", n.Actor)+": "+msg.Name, msg, colorIgnored)}

	case service.NotifySent:
		e := messageEmbed(byActor("Reply sent", n.Actor)+" to "+msg.Email, msg, colorDone)
		e.Fields = append(e.Fields, field("Reply", msg.ReplyContent))
		out.Embeds = []discord.Embed{e}

	case service.NotifySendFailed:
		out.Content = s.mention()
		e := messageEmbed("Sending failed for "+msg.Name, msg, colorFailed)
		e.Fields = append(e.Fields, field("Error", n.Detail))
		if n.Draft != nil {
			e.Fields = append(e.Fields, draftFields(n.Draft)...)
			out.Components = draftButtons(msg.ID, n.Draft)
		}
		out.Embeds = []discord.Embed{e}

	case service.NotifyReplied:
		out.Content = fmt.Sprintf("Replied to %s <%s>.", msg.Name, msg.Email)

	default:
		out.Content = fmt.Sprintf("Message %s: %s", msg.ID, n.Kind)
	}

	if out.Content != "" && s.operatorID != "" {
		out.AllowedMentions = &discord.AllowedMentions{Parse: []string{}, Users: []string{s.operatorID}}
	}
	return out
}

func (s *DiscordSink) mention() string {
	if s.operatorID == "" {
		return ""
	}
	return "<@" + s.operatorID + ">"
}

func messageEmbed(title string, msg *model.Message, color int) discord.Embed {
	e := discord.Embed{
		Title:       service.Truncate(title, maxTitle),
		Description: service.Truncate(msg.Body, maxDescription),
		Color:       color,
		Fields: []discord.EmbedField{
			{Name: "Email", Value: orDash(msg.Email), Inline: true},
			{Name: "Status", Value: orDash(string(msg.Status)), Inline: true},
		},
	}
	if !msg.CreatedAt.IsZero() {
		e.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339)
	}
	return e
}

func draftFields(d *model.ReplyDraft) []discord.EmbedField {
	if d == nil {
		return nil
	}
	fields := make([]discord.EmbedField, 0, len(d.Drafts))
	for i, opt := range d.Drafts {
		fields = append(fields, field(fmt.Sprintf("Option %d (%s)", i+1, opt.Tone), opt.Content))
	}
	return fields
}

// draftButtons offers one send button per option plus ignore. Indexes in
// the custom id are 0-based; labels are 1-based.
func draftButtons(messageID string, d *model.ReplyDraft) []discord.Component {
	if d == nil {
		return nil
	}
	buttons := make([]discord.Component, 0, len(d.Drafts)+1)
	for i, opt := range d.Drafts {
		label := fmt.Sprintf("Send %d (%s)", i+1, opt.Tone)
		buttons = append(buttons, discord.Button(discord.ButtonPrimary, label, service.ActionID(service.ActionApprove, messageID, i)))
	}
	buttons = append(buttons, discord.Button(discord.ButtonDanger, "Ignore", service.ActionID(service.ActionIgnore, messageID)))
	return discord.Rows(buttons...)
}

func field(name, value string) discord.EmbedField {
	return discord.EmbedField{Name: name, Value: service.Truncate(orDash(value), maxFieldValue)}
}

func byActor(verb, actor string) string {
	if actor == "" {
		return verb
	}
	return verb + " by " + actor
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
