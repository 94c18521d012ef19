// Package accounts implements registration, login and the account lifecycle.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/repositories"
	"github.com/zoner/backend/internal/uploads"
)

const (
	// CodeTTL bounds how long verification and reset codes stay valid.
	CodeTTL = 10 * time.Minute

	verificationDigits = 4
	resetDigits        = 6
	minPasswordLength  = 8

	// ProfilePictureFolder is the object store prefix for avatars.
	ProfilePictureFolder = "profile-pictures"
)

var (
	ErrInvalidCredentials = apperr.Authentication("invalid credentials")
	ErrEmailNotVerified   = apperr.Authorization("email not verified")
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrInvalidCode        = apperr.Authentication("invalid verification code")
	ErrExpiredCode        = apperr.Authentication("verification code has expired")
)

// Sessions issues and retires token pairs.
type Sessions interface {
	Issue(ctx context.Context, userID string, role models.Role) (models.SessionTokens, error)
	Consume(ctx context.Context, refreshToken string) (auth.Session, error)
	Logout(ctx context.Context, p auth.Principal, refreshToken string) error
}

// Mailer delivers one-time codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, name, code string, ttl time.Duration) error
	SendPasswordResetCode(ctx context.Context, email, name, code string, ttl time.Duration) error
}

// ImageUploader stores profile pictures.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, folder string) (uploads.Result, error)
}

// BusinessFinder loads the business attached to a user, if any.
type BusinessFinder interface {
	FindByUser(ctx context.Context, userID string) (models.BusinessProfile, error)
}

// Service implements the account flows.
type Service struct {
	Users     repositories.UserRepository
	Codes     repositories.VerificationRepository
	Sessions  Sessions
	Mailer    Mailer
	Images    ImageUploader
	Business  BusinessFinder
	Verifiers map[models.AuthProvider]auth.IdentityVerifier

	// HashCost overrides the bcrypt cost; zero uses the library default.
	HashCost int
	NowFunc  func() time.Time
}

// RegisterResult describes where a registrant stands in onboarding.
type RegisterResult struct {
	UserID     string
	Stage      models.RegistrationStage
	NextAction string
	Existing   bool
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	User     models.User
	Business *models.BusinessProfile
	Tokens   models.SessionTokens
}

// Register creates an email account and mails a verification code. An
// already registered email reports its current stage instead.
func (s *Service) Register(ctx context.Context, name, email, password string) (RegisterResult, error) {
	name = strings.TrimSpace(name)
	email, err := normalizeEmail(email)
	if err != nil {
		return RegisterResult{}, err
	}
	if name == "" {
		return RegisterResult{}, apperr.Validation("name is required")
	}
	if len(password) < minPasswordLength {
		return RegisterResult{}, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	existing, err := s.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return RegisterResult{
			UserID:     existing.ID,
			Stage:      existing.RegistrationStage,
			NextAction: existing.RegistrationStage.NextAction(),
			Existing:   true,
		}, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return RegisterResult{}, fmt.Errorf("lookup user: %w", err)
	}

	hashed, err := hashSecret(password, s.HashCost)
	if err != nil {
		return RegisterResult{}, err
	}

	now := s.now()
	user := models.User{
		ID:                uuid.NewString(),
		Email:             email,
		Name:              name,
		AuthProvider:      models.ProviderEmail,
		Password:          hashed,
		RegistrationStage: models.StageEmailSubmitted,
		Role:              models.RoleUser,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return RegisterResult{}, apperr.Conflict("email already registered")
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerificationCode(ctx, user); err != nil {
		return RegisterResult{}, err
	}

	logging.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return RegisterResult{
		UserID:     user.ID,
		Stage:      user.RegistrationStage,
		NextAction: user.RegistrationStage.NextAction(),
	}, nil
}

// VerifyEmail consumes the verification code and signs the user in.
func (s *Service) VerifyEmail(ctx context.Context, userID, code string) (AuthResult, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}
	if user.EmailVerified {
		return AuthResult{}, apperr.Conflict("email already verified")
	}
	if err := s.consumeCode(ctx, userID, models.PurposeEmailVerification, code); err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	if err := s.Users.MarkEmailVerified(ctx, userID, now); err != nil {
		return AuthResult{}, fmt.Errorf("mark email verified: %w", err)
	}
	user.EmailVerified = true
	user.EmailVerifiedAt = &now
	user.RegistrationStage = models.StageEmailVerified

	return s.signIn(ctx, user)
}

// ResendVerification mails a fresh verification code.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return apperr.Conflict("email already verified")
	}
	return s.sendVerificationCode(ctx, user)
}

// Login authenticates an email account.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return AuthResult{}, apperr.Validation("email and password are required")
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !secretMatches(user.Password, password) {
		logging.FromContext(ctx).Warn("login password mismatch", slog.String("user_id", user.ID))
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.Active || user.Banned {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return AuthResult{}, ErrEmailNotVerified
	}
	return s.signIn(ctx, user)
}

// OAuthRegister creates an account from a provider identity. The provider
// has verified the email, so the account skips email verification.
func (s *Service) OAuthRegister(ctx context.Context, provider, token string) (AuthResult, error) {
	identity, err := s.verifyIdentity(ctx, provider, token)
	if err != nil {
		return AuthResult{}, err
	}

	if _, err := s.Users.FindByEmail(ctx, identity.Email); err == nil {
		return AuthResult{}, apperr.Conflict("user already exists, please log in instead")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}

	name := identity.Name
	if name == "" {
		name = "Unknown User"
	}
	now := s.now()
	user := models.User{
		ID:                uuid.NewString(),
		Email:             identity.Email,
		Name:              name,
		AuthProvider:      identity.Provider,
		EmailVerified:     true,
		EmailVerifiedAt:   &now,
		RegistrationStage: models.StageEmailVerified,
		Role:              models.RoleUser,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return AuthResult{}, apperr.Conflict("user already exists, please log in instead")
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}
	return s.signIn(ctx, user)
}

// OAuthLogin signs in an account previously registered with the same provider.
func (s *Service) OAuthLogin(ctx context.Context, provider, token string) (AuthResult, error) {
	identity, err := s.verifyIdentity(ctx, provider, token)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.Users.FindByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return AuthResult{}, apperr.NotFound("user not found, please register first")
		}
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.AuthProvider != identity.Provider {
		return AuthResult{}, apperr.Conflict(fmt.Sprintf("this email is registered with the %s provider", user.AuthProvider))
	}
	if !user.Active || user.Banned {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.signIn(ctx, user)
}

func (s *Service) verifyIdentity(ctx context.Context, provider, token string) (auth.Identity, error) {
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(token) == "" {
		return auth.Identity{}, apperr.Validation("provider and token are required")
	}
	verifier, ok := s.Verifiers[models.AuthProvider(strings.ToUpper(strings.TrimSpace(provider)))]
	if !ok || verifier == nil {
		return auth.Identity{}, apperr.Validation("unsupported provider")
	}
	identity, err := verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrOAuthTokenRejected) {
			return auth.Identity{}, apperr.Authentication("invalid token or email not found")
		}
		return auth.Identity{}, apperr.Internal("verify oauth token", err)
	}
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	return identity, nil
}

// CompleteProfile sets the username and optional picture of a verified user.
func (s *Service) CompleteProfile(ctx context.Context, userID, username string, picture []byte) (models.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if user.RegistrationStage != models.StageEmailVerified {
		return models.User{}, apperr.Validation("verify email first")
	}

	normalized, err := NormalizeUsername(username)
	if err != nil {
		return models.User{}, err
	}
	taken, err := s.Users.UsernameTaken(ctx, normalized, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return models.User{}, s.usernameConflict(ctx, normalized, userID)
	}

	if len(picture) > 0 {
		result, err := s.Images.UploadImage(ctx, picture, ProfilePictureFolder)
		if err != nil {
			return models.User{}, err
		}
		user.ProfilePicURL = result.URL
	}

	user.Username = normalized
	user.RegistrationStage = models.StageProfileCompleted
	user.UpdatedAt = s.now()
	if err := s.Users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.User{}, s.usernameConflict(ctx, normalized, userID)
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// UsernameConflictError carries alternatives for a taken username.
type UsernameConflictError struct {
	err         *apperr.Error
	Suggestions []string
}

// NewUsernameConflictError reports username as taken.
func NewUsernameConflictError(username string, suggestions []string) *UsernameConflictError {
	return &UsernameConflictError{
		err:         apperr.Conflict(fmt.Sprintf("username %s is already taken", username)),
		Suggestions: suggestions,
	}
}

func (e *UsernameConflictError) Error() string { return e.err.Error() }

func (e *UsernameConflictError) Unwrap() error { return e.err }

func (s *Service) usernameConflict(ctx context.Context, username, userID string) error {
	suggestions, err := s.suggestUsernames(ctx, username, userID)
	if err != nil {
		logging.FromContext(ctx).Warn("suggest usernames", slog.Any("error", err))
	}
	return NewUsernameConflictError(username, suggestions)
}

// UpdateFCMToken stores the device token used for pushes.
func (s *Service) UpdateFCMToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("fcm token is required")
	}
	if err := s.Users.UpdateFCMToken(ctx, userID, token, s.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update fcm token: %w", err)
	}
	return nil
}

// Refresh rotates a refresh token, reissuing with the user's current role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return models.SessionTokens{}, apperr.Validation("refresh token is required")
	}
	session, err := s.Sessions.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, repositories.ErrNotFound) {
			return models.SessionTokens{}, apperr.Authentication("unable to refresh session")
		}
		return models.SessionTokens{}, fmt.Errorf("consume refresh token: %w", err)
	}

	user, err := s.findUser(ctx, session.UserID)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if !user.Active || user.Banned {
		return models.SessionTokens{}, ErrInvalidCredentials
	}
	return s.Sessions.Issue(ctx, user.ID, user.Role)
}

// Logout revokes the presented access token and refresh token.
func (s *Service) Logout(ctx context.Context, p auth.Principal, refreshToken string) error {
	return s.Sessions.Logout(ctx, p, strings.TrimSpace(refreshToken))
}

func (s *Service) signIn(ctx context.Context, user models.User) (AuthResult, error) {
	now := s.now()
	if err := s.Users.RecordLogin(ctx, user.ID, now); err != nil {
		logging.FromContext(ctx).Warn("record login", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLoginAt = &now
	}

	tokens, err := s.Sessions.Issue(ctx, user.ID, user.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue session: %w", err)
	}

	result := AuthResult{User: user, Tokens: tokens}
	if s.Business != nil && user.Role == models.RoleBusiness {
		profile, err := s.Business.FindByUser(ctx, user.ID)
		switch {
		case err == nil:
			result.Business = &profile
		case !errors.Is(err, repositories.ErrNotFound):
			logging.FromContext(ctx).Warn("load business profile", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *Service) sendVerificationCode(ctx context.Context, user models.User) error {
	code, err := s.storeCode(ctx, user.ID, models.PurposeEmailVerification, verificationDigits)
	if err != nil {
		return err
	}
	if err := s.Mailer.SendVerificationCode(ctx, user.Email, user.Name, code, CodeTTL); err != nil {
		logging.FromContext(ctx).Warn("queue verification email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// storeCode generates a code, stores its hash and returns the plain code.
func (s *Service) storeCode(ctx context.Context, userID string, purpose models.CodePurpose, digits int) (string, error) {
	code, err := randomDigits(digits)
	if err != nil {
		return "", err
	}
	hashed, err := hashSecret(code, s.HashCost)
	if err != nil {
		return "", err
	}
	now := s.now()
	err = s.Codes.Upsert(ctx, models.VerificationCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  hashed,
		ExpiresAt: now.Add(CodeTTL),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("store %s code: %w", strings.ToLower(string(purpose)), err)
	}
	return code, nil
}

// consumeCode checks code against the stored hash and marks it used.
func (s *Service) consumeCode(ctx context.Context, userID string, purpose models.CodePurpose, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidCode
	}
	stored, err := s.Codes.Find(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("load code: %w", err)
	}
	if stored.Used {
		return ErrInvalidCode
	}
	if !s.now().Before(stored.ExpiresAt) {
		return ErrExpiredCode
	}
	if !secretMatches(stored.CodeHash, code) {
		return ErrInvalidCode
	}
	if err := s.Codes.MarkUsed(ctx, stored.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("mark code used: %w", err)
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, userID string) (models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return models.User{}, apperr.Validation("invalid user id")
	}
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
