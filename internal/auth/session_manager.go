package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/zoner/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// SessionStore persists issued refresh tokens so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
}

// ExpiringSessionStore is implemented by stores that can sweep stale tokens.
type ExpiringSessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Session represents a refresh token issued to a user.
type Session struct {
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// Manager issues JWT access tokens paired with opaque refresh tokens, and
// revokes both on logout.
type Manager struct {
	tokens     *TokenIssuer
	refreshTTL time.Duration
	store      SessionStore
	revoker    Revoker

	NowFunc func() time.Time
}

// NewManager constructs a Manager. A nil revoker falls back to an in-memory one.
func NewManager(tokens *TokenIssuer, refreshTTL time.Duration, store SessionStore, revoker Revoker) *Manager {
	if tokens == nil {
		panic("auth: token issuer must not be nil")
	}
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &Manager{
		tokens:     tokens,
		refreshTTL: refreshTTL,
		store:      store,
		revoker:    revoker,
	}
}

// Issue creates a new pair of access and refresh tokens for the user.
func (m *Manager) Issue(ctx context.Context, userID string, role models.Role) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := m.now()
	access, claims, err := m.tokens.Sign(userID, role, now)
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	tokens := models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}

	if err := m.store.Save(ctx, Session{
		RefreshToken: refreshToken,
		UserID:       userID,
		ExpiresAt:    tokens.RefreshExpiresAt,
	}); err != nil {
		return models.SessionTokens{}, fmt.Errorf("save session: %w", err)
	}

	return tokens, nil
}

// Consume exchanges a refresh token for the session it belongs to. The token
// is single use; callers issue a fresh pair with the user's current role.
func (m *Manager) Consume(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}

	if m.now().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return Session{}, ErrRefreshTokenExpired
	}

	if err := m.store.Delete(ctx, refreshToken); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Authenticate verifies an access token and rejects revoked ones.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := m.tokens.Parse(accessToken)
	if err != nil {
		return Principal{}, err
	}
	revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}
	return PrincipalFromClaims(claims), nil
}

// Logout revokes the access token until its natural expiry and drops the
// refresh token.
func (m *Manager) Logout(ctx context.Context, p Principal, refreshToken string) error {
	if p.TokenID != "" {
		if err := m.revoker.Revoke(ctx, p.TokenID, p.ExpiresAt.Sub(m.now())); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	m.Revoke(ctx, refreshToken)
	return nil
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	_ = m.store.Delete(ctx, refreshToken)
}

// PurgeExpired removes expired refresh tokens when the store supports it.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	store, ok := m.store.(ExpiringSessionStore)
	if !ok {
		return 0, nil
	}
	return store.DeleteExpired(ctx, m.now())
}

func (m *Manager) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
