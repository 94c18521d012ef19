package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zoner/backend/internal/breaker"
	"github.com/zoner/backend/internal/models"
)

// ErrOAuthTokenRejected is returned when a provider does not accept a token.
var ErrOAuthTokenRejected = errors.New("oauth token rejected")

// Identity is the account information a provider vouches for.
type Identity struct {
	Provider models.AuthProvider
	Email    string
	Name     string
}

// IdentityVerifier exchanges a client token for a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// httpVerifier queries a provider endpoint that answers with a JSON profile.
type httpVerifier struct {
	provider models.AuthProvider
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	buildURL func(token string) string
}

// NewGoogleVerifier validates Google ID tokens against the tokeninfo endpoint.
func NewGoogleVerifier(tokenInfoURL string, client *http.Client, logger *slog.Logger) IdentityVerifier {
	return &httpVerifier{
		provider: models.ProviderGoogle,
		client:   defaultClient(client),
		breaker:  breaker.New("oauth-google", logger),
		buildURL: func(token string) string {
			return tokenInfoURL + "?" + url.Values{"id_token": {token}}.Encode()
		},
	}
}

// NewFacebookVerifier validates Facebook access tokens against the graph /me endpoint.
func NewFacebookVerifier(graphURL string, client *http.Client, logger *slog.Logger) IdentityVerifier {
	return &httpVerifier{
		provider: models.ProviderFacebook,
		client:   defaultClient(client),
		breaker:  breaker.New("oauth-facebook", logger),
		buildURL: func(token string) string {
			return strings.TrimSuffix(graphURL, "/") + "/me?" + url.Values{
				"fields":       {"id,name,email"},
				"access_token": {token},
			}.Encode()
		},
	}
}

func (v *httpVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrOAuthTokenRejected
	}

	result, err := v.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.buildURL(token), nil)
		if err != nil {
			return nil, err
		}
		resp, err := v.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%s verifier: upstream status %d", v.provider, resp.StatusCode)
		}
		// Rejections are a healthy answer and must not trip the breaker.
		if resp.StatusCode != http.StatusOK {
			return Identity{}, nil
		}

		var payload struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%s verifier: decode profile: %w", v.provider, err)
		}
		return Identity{Provider: v.provider, Email: strings.ToLower(strings.TrimSpace(payload.Email)), Name: payload.Name}, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("verify %s token: %w", strings.ToLower(string(v.provider)), err)
	}

	identity := result.(Identity)
	if identity.Email == "" {
		return Identity{}, ErrOAuthTokenRejected
	}
	return identity, nil
}

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 10 * time.Second}
}
