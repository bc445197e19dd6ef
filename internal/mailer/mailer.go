// Package mailer turns workflow replies into outbound email.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	"github.com/ThePickle31/clawd-site-sub000/pkg/email"
)

// Subject is used for every reply.
const Subject = "Re: your message"

// Sender is the send surface of *email.Client.
type Sender interface {
	Configured() bool
	Send(ctx context.Context, e email.Email) (string, error)
}

// Mailer implements service.ReplyTransport.
type Mailer struct {
	sender   Sender
	from     string
	fromName string
}

// New creates a Mailer sending as "fromName <from>".
func New(sender Sender, from, fromName string) *Mailer {
	return &Mailer{sender: sender, from: from, fromName: fromName}
}

// IsConfigured reports whether both the API key and the sender address are set.
func (m *Mailer) IsConfigured() bool {
	return m.sender != nil && m.sender.Configured() && m.from != ""
}

// Send delivers r and blocks until the provider accepted it.
func (m *Mailer) Send(ctx context.Context, r service.Reply) error {
	if !m.IsConfigured() {
		return email.ErrNotConfigured
	}
	id, err := m.sender.Send(ctx, email.Email{
		From:    m.fromHeader(),
		To:      []string{r.To},
		Subject: Subject,
		Text:    Compose(r),
		ReplyTo: m.from,
	})
	if err != nil {
		return err
	}
	slog.Info("reply email sent", "provider_id", id)
	return nil
}

func (m *Mailer) fromHeader() string {
	if m.fromName == "" {
		return m.from
	}
	return fmt.Sprintf("%s <%s>", m.fromName, m.from)
}

// Compose renders the plain-text body: a greeting, the reply, and the
// original message quoted underneath.
func Compose(r service.Reply) string {
	var b strings.Builder
	if r.Name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", r.Name)
	}
	b.WriteString(strings.TrimSpace(r.Body))
	b.WriteString("\n")
	if orig := strings.TrimSpace(r.OriginalMessage); orig != "" {
		b.WriteString("\n---\nYou wrote:\n")
		for _, line := range strings.Split(orig, "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}
