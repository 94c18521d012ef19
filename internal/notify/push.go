package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zoner/backend/internal/breaker"
)

// PushMessage is a single device notification.
type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// PushClient posts FCM v1 shaped messages to a push gateway.
type PushClient struct {
	endpoint string
	token    string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewPushClient returns a client for endpoint. An empty endpoint yields a
// client whose Send is a no-op.
func NewPushClient(endpoint, token string, client *http.Client, logger *slog.Logger) *PushClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PushClient{
		endpoint: strings.TrimSpace(endpoint),
		token:    token,
		client:   client,
		cb:       breaker.New("push", logger),
	}
}

// Enabled reports whether an endpoint is configured.
func (c *PushClient) Enabled() bool {
	return c != nil && c.endpoint != ""
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// Send delivers msg. Gateway 5xx responses and transport errors count
// towards the breaker.
func (c *PushClient) Send(ctx context.Context, msg PushMessage) error {
	if !c.Enabled() {
		return nil
	}
	if msg.Token == "" {
		return fmt.Errorf("push: device token is required")
	}

	body, err := json.Marshal(map[string]fcmMessage{"message": {
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}

	_, err = c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("push gateway status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	return nil
}
