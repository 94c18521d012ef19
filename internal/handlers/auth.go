package handlers

import (
	"net/http"
	"strings"

	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/logging"
)

// AuthHandler implements the onboarding and session endpoints under /auth.
type AuthHandler struct {
	Accounts AccountService
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID            string `json:"userId"`
	RegistrationStage string `json:"registrationStage"`
	NextAction        string `json:"nextAction"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type oauthRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

type verifyEmailRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type resendOTPRequest struct {
	UserID string `json:"userId"`
}

type checkUsernameRequest struct {
	Username string `json:"username"`
}

type checkUsernameResponse struct {
	Username    string   `json:"username"`
	Available   bool     `json:"available"`
	Suggestions []string `json:"suggestions"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type fcmTokenRequest struct {
	FCMToken string `json:"fcmToken"`
}

// Register handles POST /auth/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Accounts.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	resp := registerResponse{UserID: result.UserID, RegistrationStage: string(result.Stage), NextAction: result.NextAction}
	if result.Existing {
		respondOK(ctx, w, http.StatusOK, "account already exists", resp)
		return
	}
	respondOK(ctx, w, http.StatusCreated, "verification code sent", resp)
}

// VerifyEmail handles POST /auth/verify-email.
func (h AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Accounts.VerifyEmail(ctx, strings.TrimSpace(req.UserID), strings.TrimSpace(req.Code))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "email verified", newAuthResponse(result.User, result.Business, result.Tokens))
}

// ResendOTP handles POST /auth/resend-otp.
func (h AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.ResendVerification(ctx, strings.TrimSpace(req.UserID)); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "verification code sent", nil)
}

// Login handles POST /auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "login successful", newAuthResponse(result.User, result.Business, result.Tokens))
}

// OAuthRegister handles POST /auth/oauth/register.
func (h AuthHandler) OAuthRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req oauthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Accounts.OAuthRegister(ctx, req.Provider, req.Token)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusCreated, "account created", newAuthResponse(result.User, result.Business, result.Tokens))
}

// OAuthLogin handles POST /auth/oauth/login.
func (h AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req oauthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Accounts.OAuthLogin(ctx, req.Provider, req.Token)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "login successful", newAuthResponse(result.User, result.Business, result.Tokens))
}

// CheckUsername handles POST /auth/check-username. Signed-in callers may
// keep their own username.
func (h AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkUsernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	var userID string
	if p, ok := auth.PrincipalFrom(ctx); ok {
		userID = p.UserID
	}

	check, err := h.Accounts.CheckUsername(ctx, req.Username, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	suggestions := check.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	message := "username is available"
	if !check.Available {
		message = "username is already taken"
	}
	respondOK(ctx, w, http.StatusOK, message, checkUsernameResponse{
		Username:    check.Username,
		Available:   check.Available,
		Suggestions: suggestions,
	})
}

// CompleteProfile handles POST /auth/complete-profile as multipart with a
// username field and an optional profilePic part.
func (h AuthHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := parseMultipart(w, r); err != nil {
		respondError(ctx, w, err)
		return
	}
	picture, _, err := formFile(r, "profilePic", false)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	user, err := h.Accounts.CompleteProfile(ctx, p.UserID, r.FormValue("username"), picture)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "profile completed", newUserResponse(user))
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	tokens, err := h.Accounts.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "token refreshed", newTokensResponse(tokens))
}

// Logout revokes the caller's access token and, when supplied, its refresh
// token.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(ctx, w, err)
			return
		}
	}

	if err := h.Accounts.Logout(ctx, p, strings.TrimSpace(req.RefreshToken)); err != nil {
		respondError(ctx, w, err)
		return
	}
	logging.FromContext(ctx).Info("user logged out", "user_id", p.UserID)
	respondOK(ctx, w, http.StatusOK, "logged out", nil)
}

// UpdateFCMToken handles PUT /auth/fcm-token.
func (h AuthHandler) UpdateFCMToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req fcmTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.UpdateFCMToken(ctx, p.UserID, req.FCMToken); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "fcm token updated", nil)
}
