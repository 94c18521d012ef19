package handlers

import (
	"net/http"
	"strings"
)

// PasswordHandler implements the password reset endpoints.
type PasswordHandler struct {
	Accounts PasswordService
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// Forgot handles POST /password/forgot and /password/resend-otp. The
// response never reveals whether the email is registered.
func (h PasswordHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.ForgotPassword(ctx, req.Email); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "if the account exists, a reset code has been sent", nil)
}

// Reset handles POST /password/reset.
func (h PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.ResetPassword(ctx, req.Email, strings.TrimSpace(req.OTP), req.NewPassword); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "password reset successful", nil)
}
