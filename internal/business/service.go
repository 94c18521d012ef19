// Package business manages business profiles and their followers.
package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/notify"
	"github.com/zoner/backend/internal/repositories"
	"github.com/zoner/backend/internal/uploads"
)

// LogoFolder is the object store prefix for business logos.
const LogoFolder = "business-logos"

const compensationTimeout = 30 * time.Second

var ErrProfileNotFound = apperr.NotFound("business profile not found")

// Users resolves account details.
type Users interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// TokenIssuer mints a token pair for a role.
type TokenIssuer interface {
	Issue(ctx context.Context, userID string, role models.Role) (models.SessionTokens, error)
}

// ImageUploader stores logos.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, folder string) (uploads.Result, error)
	Delete(ctx context.Context, url string) error
}

// Notifier raises in-app notifications.
type Notifier interface {
	Create(ctx context.Context, userID, title, message, kind, referenceID string) (models.Notification, error)
}

// CreateInput is the business registration form.
type CreateInput struct {
	BusinessName  string
	Category      string
	PhoneNumber   string
	Description   string
	Location      string
	Country       string
	TermsAccepted bool
	Logo          []byte
}

// CreateResult is the promoted account with tokens carrying the new role.
type CreateResult struct {
	User    models.User
	Profile models.BusinessProfile
	Tokens  models.SessionTokens
}

// Service implements business onboarding and follows.
type Service struct {
	Profiles repositories.BusinessRepository
	Users    Users
	Tokens   TokenIssuer
	Images   ImageUploader
	Notifier Notifier
	NowFunc  func() time.Time
}

// Create registers the caller's business and promotes the account to the
// BUSINESS role.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (CreateResult, error) {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.Category = strings.TrimSpace(in.Category)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	switch {
	case !in.TermsAccepted:
		return CreateResult{}, apperr.Validation("terms and conditions must be accepted")
	case in.BusinessName == "":
		return CreateResult{}, apperr.Validation("businessName is required")
	case in.Category == "":
		return CreateResult{}, apperr.Validation("category is required")
	case in.PhoneNumber == "":
		return CreateResult{}, apperr.Validation("phoneNumber is required")
	}

	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return CreateResult{}, apperr.NotFound("user not found")
		}
		return CreateResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if _, err := s.Profiles.FindByUser(ctx, userID); err == nil {
		return CreateResult{}, apperr.Conflict("business profile already exists for this user")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return CreateResult{}, fmt.Errorf("lookup business profile: %w", err)
	}

	var logoURL string
	if len(in.Logo) > 0 {
		result, err := s.Images.UploadImage(ctx, in.Logo, LogoFolder)
		if err != nil {
			return CreateResult{}, err
		}
		logoURL = result.URL
	}

	now := s.now()
	profile := models.BusinessProfile{
		ID:              uuid.NewString(),
		UserID:          userID,
		BusinessName:    in.BusinessName,
		Category:        in.Category,
		PhoneNumber:     in.PhoneNumber,
		Description:     strings.TrimSpace(in.Description),
		Location:        strings.TrimSpace(in.Location),
		Country:         strings.TrimSpace(in.Country),
		LogoURL:         logoURL,
		TermsAcceptedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Profiles.CreateProfile(ctx, profile, models.StageBusinessAdded); err != nil {
		if logoURL != "" {
			s.discardLogo(ctx, logoURL)
		}
		if errors.Is(err, repositories.ErrConflict) {
			return CreateResult{}, apperr.Conflict("business profile already exists for this user")
		}
		return CreateResult{}, fmt.Errorf("create business profile: %w", err)
	}

	user.Role = models.RoleBusiness
	user.RegistrationStage = models.StageBusinessAdded
	user.UpdatedAt = now

	tokens, err := s.Tokens.Issue(ctx, userID, models.RoleBusiness)
	if err != nil {
		return CreateResult{}, fmt.Errorf("issue session: %w", err)
	}

	logging.FromContext(ctx).Info("business profile created",
		slog.String("user_id", userID),
		slog.String("profile_id", profile.ID),
	)
	return CreateResult{User: user, Profile: profile, Tokens: tokens}, nil
}

// discardLogo deletes an uploaded logo whose profile insert failed, outside
// the request's cancellation.
func (s *Service) discardLogo(ctx context.Context, url string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.Images.Delete(ctx, url); err != nil {
		logging.FromContext(ctx).Warn("remove orphaned business logo", slog.String("url", url), slog.Any("error", err))
	}
}

// Get returns the caller's business profile.
func (s *Service) Get(ctx context.Context, userID string) (models.BusinessProfile, error) {
	profile, err := s.Profiles.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.BusinessProfile{}, ErrProfileNotFound
		}
		return models.BusinessProfile{}, err
	}
	return profile, nil
}

// Follow subscribes followerID to a business. It reports false when the
// follow already existed.
func (s *Service) Follow(ctx context.Context, followerID, businessUserID string) (bool, error) {
	business, err := s.business(ctx, followerID, businessUserID)
	if err != nil {
		return false, err
	}

	created, err := s.Profiles.Follow(ctx, followerID, businessUserID, s.now())
	if err != nil {
		return false, fmt.Errorf("follow business: %w", err)
	}
	if created && s.Notifier != nil {
		name := "Someone"
		if follower, err := s.Users.FindByID(ctx, followerID); err == nil && follower.Name != "" {
			name = follower.Name
		}
		if _, err := s.Notifier.Create(ctx, business.ID, "New follower", name+" started following your business", notify.TypeNewFollower, followerID); err != nil {
			logging.FromContext(ctx).Warn("notify new follower", slog.String("business_id", business.ID), slog.Any("error", err))
		}
	}
	return created, nil
}

// Unfollow reports false when there was nothing to remove.
func (s *Service) Unfollow(ctx context.Context, followerID, businessUserID string) (bool, error) {
	if _, err := s.business(ctx, followerID, businessUserID); err != nil {
		return false, err
	}
	removed, err := s.Profiles.Unfollow(ctx, followerID, businessUserID)
	if err != nil {
		return false, fmt.Errorf("unfollow business: %w", err)
	}
	return removed, nil
}

func (s *Service) business(ctx context.Context, followerID, businessUserID string) (models.User, error) {
	if _, err := uuid.Parse(businessUserID); err != nil {
		return models.User{}, apperr.Validation("invalid business user id")
	}
	if followerID == businessUserID {
		return models.User{}, apperr.Validation("you cannot follow yourself")
	}
	user, err := s.Users.FindByID(ctx, businessUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, apperr.NotFound("business not found")
		}
		return models.User{}, fmt.Errorf("lookup business: %w", err)
	}
	if user.Role != models.RoleBusiness {
		return models.User{}, apperr.NotFound("business not found")
	}
	return user, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
