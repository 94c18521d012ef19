package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
)

// Authenticator resolves a bearer token to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller on the request context.
func Authenticate(authn Authenticator) func(http.Handler) http.Handler {
	return authenticate(authn, true)
}

// OptionalAuthenticate attaches the caller when a valid bearer token is
// present and lets anonymous requests through.
func OptionalAuthenticate(authn Authenticator) func(http.Handler) http.Handler {
	return authenticate(authn, false)
}

func authenticate(authn Authenticator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if required {
					writeError(w, http.StatusUnauthorized, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			principal, err := authn.Authenticate(ctx, token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenRevoked) {
					logging.FromContext(ctx).Error("authenticate request", slog.Any("error", err))
					writeError(w, http.StatusInternalServerError, "unable to authenticate request")
					return
				}
				if required {
					writeError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx = logging.WithUser(auth.WithPrincipal(ctx, principal), principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only callers holding one of roles. It must run after
// Authenticate.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !slices.Contains(roles, principal.Role) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
