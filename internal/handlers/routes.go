package handlers

import (
	"net/http"
	"time"

	"github.com/zoner/backend/internal/middleware"
	"github.com/zoner/backend/internal/models"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts      AccountService
	Passwords     PasswordService
	Business      BusinessService
	Notifications NotificationService
	Statuses      StatusService
	Authenticator middleware.Authenticator
	AuthLimiter   middleware.RateLimiter
	OTPLimiter    middleware.RateLimiter
	HealthChecks  map[string]Pinger
	// UploadTimeout bounds routes that accept media uploads.
	UploadTimeout time.Duration
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.HealthChecks}
	authH := AuthHandler{Accounts: deps.Accounts}
	password := PasswordHandler{Accounts: deps.Passwords}
	biz := BusinessHandler{Business: deps.Business}
	notifications := NotificationHandler{Notifications: deps.Notifications}
	statuses := StatusHandler{Statuses: deps.Statuses}

	authed := middleware.Authenticate(deps.Authenticator)
	optional := middleware.OptionalAuthenticate(deps.Authenticator)
	business := middleware.RequireRole(models.RoleBusiness)

	limited := func(scope string, limiter middleware.RateLimiter, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(limiter, scope)(h)
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}
	upload := middleware.Deadline(deps.UploadTimeout)

	mux.HandleFunc("/healthz", health.Handle)

	mux.Handle("POST /auth/register", limited("register", deps.AuthLimiter, authH.Register))
	mux.Handle("POST /auth/login", limited("login", deps.AuthLimiter, authH.Login))
	mux.Handle("POST /auth/oauth/register", limited("oauth", deps.AuthLimiter, authH.OAuthRegister))
	mux.Handle("POST /auth/oauth/login", limited("oauth", deps.AuthLimiter, authH.OAuthLogin))
	mux.Handle("POST /auth/verify-email", limited("verify", deps.AuthLimiter, authH.VerifyEmail))
	mux.Handle("POST /auth/resend-otp", limited("verify", deps.OTPLimiter, authH.ResendOTP))
	mux.Handle("POST /auth/check-username", optional(http.HandlerFunc(authH.CheckUsername)))
	mux.Handle("POST /auth/complete-profile", upload(protected(authH.CompleteProfile)))
	mux.Handle("POST /auth/refresh", limited("refresh", deps.AuthLimiter, authH.Refresh))
	mux.Handle("POST /auth/logout", protected(authH.Logout))
	mux.Handle("PUT /auth/fcm-token", protected(authH.UpdateFCMToken))

	mux.Handle("POST /password/forgot", limited("password", deps.OTPLimiter, password.Forgot))
	mux.Handle("POST /password/resend-otp", limited("password", deps.OTPLimiter, password.Forgot))
	mux.Handle("POST /password/reset", limited("password-reset", deps.OTPLimiter, password.Reset))

	mux.Handle("POST /business/profile", upload(protected(biz.CreateProfile)))
	mux.Handle("GET /business/profile", protected(biz.GetProfile))
	mux.Handle("POST /business/{userId}/follow", protected(biz.Follow))
	mux.Handle("DELETE /business/{userId}/follow", protected(biz.Unfollow))

	mux.Handle("GET /notifications", protected(notifications.List))
	mux.Handle("GET /notifications/unread-count", protected(notifications.UnreadCount))
	mux.Handle("POST /notifications/{id}/read", protected(notifications.MarkRead))

	mux.Handle("POST /status", upload(authed(business(http.HandlerFunc(statuses.Create)))))
	mux.Handle("GET /status", protected(statuses.Mine))
	mux.Handle("DELETE /status", protected(statuses.Delete))
	mux.Handle("GET /status/discover", protected(statuses.Discover))
	mux.Handle("GET /status/users/{userId}", protected(statuses.ByUser))
	mux.Handle("PATCH /status/{id}", protected(statuses.UpdateCaption))
	mux.Handle("POST /status/{id}/view", protected(statuses.View))
	mux.Handle("POST /status/{id}/like", protected(statuses.Like))
	mux.Handle("DELETE /status/{id}/like", protected(statuses.Unlike))
	mux.Handle("POST /status/{id}/replies", protected(statuses.AddReply))
	mux.Handle("GET /status/replies", protected(statuses.ListReplies))
	mux.Handle("DELETE /status/replies", protected(statuses.DeleteReply))
}
