package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zoner/backend/internal/breaker"
)

// ErrMailNotConfigured is returned when no API key or sender is set.
var ErrMailNotConfigured = errors.New("mail client not configured")

// MailClient sends transactional email through the Brevo v3 API.
type MailClient struct {
	endpoint  string
	apiKey    string
	fromEmail string
	fromName  string
	client    *http.Client
	cb        *gobreaker.CircuitBreaker
}

// NewMailClient builds a Brevo client.
func NewMailClient(endpoint, apiKey, fromEmail, fromName string, client *http.Client, logger *slog.Logger) *MailClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &MailClient{
		endpoint:  endpoint,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    client,
		cb:        breaker.New("mail", logger),
	}
}

// Configured reports whether the client has credentials and a sender.
func (c *MailClient) Configured() bool {
	return c.apiKey != "" && c.fromEmail != "" && c.endpoint != ""
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// Send delivers one HTML email.
func (c *MailClient) Send(ctx context.Context, to, subject, html string) error {
	if !c.Configured() {
		return ErrMailNotConfigured
	}
	if to == "" || subject == "" || html == "" {
		return errors.New("mail: recipient, subject and content are required")
	}

	body, err := json.Marshal(brevoEmail{
		Sender:      brevoContact{Email: c.fromEmail, Name: c.fromName},
		To:          []brevoContact{{Email: to}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	_, err = c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("brevo status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
