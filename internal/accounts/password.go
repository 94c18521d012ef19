package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/repositories"
)

var ErrInvalidOTP = apperr.Validation("invalid or expired otp")

// ForgotPassword mails a reset OTP when the email belongs to an account.
// Unknown emails succeed silently so callers cannot probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logging.FromContext(ctx).Info("password reset for unknown email")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	code, err := s.storeCode(ctx, user.ID, models.PurposePasswordReset, resetDigits)
	if err != nil {
		return err
	}
	name := user.Name
	if name == "" {
		name = "User"
	}
	if err := s.Mailer.SendPasswordResetCode(ctx, user.Email, name, code, CodeTTL); err != nil {
		logging.FromContext(ctx).Warn("queue password reset email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// ResetPassword consumes a reset OTP and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	otp = strings.TrimSpace(otp)
	if len(otp) != resetDigits {
		return apperr.Validation(fmt.Sprintf("otp must be %d digits", resetDigits))
	}
	if len(newPassword) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := s.consumeCode(ctx, user.ID, models.PurposePasswordReset, otp); err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrExpiredCode) {
			return ErrInvalidOTP
		}
		return err
	}

	hashed, err := hashSecret(newPassword, s.HashCost)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, user.ID, hashed, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	logging.FromContext(ctx).Info("password reset", slog.String("user_id", user.ID))
	return nil
}
