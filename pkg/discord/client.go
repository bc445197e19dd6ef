// Package discord is a small Discord client for incoming webhooks and
// message component interactions.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultAPIBase is the Discord REST API root used for interaction follow-ups.
const DefaultAPIBase = "https://discord.com/api/v10"

// ErrNotConfigured is returned when no webhook URL is configured.
var ErrNotConfigured = errors.New("discord: not configured")

// Client posts and edits messages through one incoming webhook and sends
// interaction follow-ups for one application.
type Client struct {
	http          *resty.Client
	webhookURL    string
	applicationID string
	apiBase       string
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIBase overrides the REST root, for tests.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(base, "/") }
}

// WithRestyClient replaces the underlying HTTP client.
func WithRestyClient(rc *resty.Client) Option {
	return func(c *Client) { c.http = rc }
}

// NewClient creates a Client. An empty webhookURL yields a client whose
// webhook calls return ErrNotConfigured.
func NewClient(webhookURL, applicationID string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		webhookURL:    strings.TrimRight(webhookURL, "/"),
		applicationID: applicationID,
		apiBase:       DefaultAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a webhook URL is set.
func (c *Client) Configured() bool {
	return c.webhookURL != ""
}

type messageResponse struct {
	ID string `json:"id"`
}

// Execute posts msg through the webhook and returns the created message id.
func (c *Client) Execute(ctx context.Context, msg Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("wait", "true").
		SetBody(withComponents(msg)).
		SetResult(&out).
		Post(c.webhookURL)
	if err != nil {
		return "", fmt.Errorf("discord execute webhook: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("discord execute webhook: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ID == "" {
		return "", errors.New("discord execute webhook: empty message id in response")
	}
	return out.ID, nil
}

// Edit replaces the content and components of a message previously sent
// through the webhook.
func (c *Client) Edit(ctx context.Context, messageID string, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if messageID == "" {
		return errors.New("discord edit webhook message: empty message id")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(withComponents(msg)).
		Patch(c.webhookURL + "/messages/" + messageID)
	if err != nil {
		return fmt.Errorf("discord edit webhook message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord edit webhook message: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// FollowUp sends a follow-up message for a deferred interaction.
func (c *Client) FollowUp(ctx context.Context, interactionToken string, msg Message) error {
	if c.applicationID == "" {
		return ErrNotConfigured
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(withComponents(msg)).
		Post(fmt.Sprintf("%s/webhooks/%s/%s", c.apiBase, c.applicationID, interactionToken))
	if err != nil {
		return fmt.Errorf("discord follow-up: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord follow-up: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func withComponents(msg Message) Message {
	if msg.Components == nil {
		msg.Components = []Component{}
	}
	return msg
}
