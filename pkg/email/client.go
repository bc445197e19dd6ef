// Package email sends transactional mail through the Resend HTTP API.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the Resend API root.
const DefaultBaseURL = "https://api.resend.com"

// ErrNotConfigured is returned when the API key or sender is missing.
var ErrNotConfigured = errors.New("email: not configured")

// Email is a single outbound message.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Client is a Resend API client.
type Client struct {
	http   *resty.Client
	apiKey string
}

// NewClient creates a Client. baseURL defaults to DefaultBaseURL when empty.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json").
			SetTimeout(15 * time.Second),
		apiKey: apiKey,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send delivers e and returns the provider message id.
func (c *Client) Send(ctx context.Context, e Email) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	var out sendResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(e).
		SetResult(&out).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return "", fmt.Errorf("resend send: %s", apiErr.Message)
		}
		return "", fmt.Errorf("resend send: status %d", resp.StatusCode())
	}
	return out.ID, nil
}
