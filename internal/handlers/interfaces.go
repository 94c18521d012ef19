package handlers

import (
	"context"

	"github.com/zoner/backend/internal/accounts"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/business"
	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/notify"
	"github.com/zoner/backend/internal/status"
)

// AccountService captures the onboarding and session flows behind /auth.
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (accounts.RegisterResult, error)
	VerifyEmail(ctx context.Context, userID, code string) (accounts.AuthResult, error)
	ResendVerification(ctx context.Context, userID string) error
	Login(ctx context.Context, email, password string) (accounts.AuthResult, error)
	OAuthRegister(ctx context.Context, provider, token string) (accounts.AuthResult, error)
	OAuthLogin(ctx context.Context, provider, token string) (accounts.AuthResult, error)
	CheckUsername(ctx context.Context, username, userID string) (accounts.UsernameCheck, error)
	CompleteProfile(ctx context.Context, userID, username string, picture []byte) (models.User, error)
	UpdateFCMToken(ctx context.Context, userID, token string) error
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Logout(ctx context.Context, p auth.Principal, refreshToken string) error
}

// PasswordService captures the password reset flow.
type PasswordService interface {
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
}

// BusinessService captures business onboarding and follows.
type BusinessService interface {
	Create(ctx context.Context, userID string, in business.CreateInput) (business.CreateResult, error)
	Get(ctx context.Context, userID string) (models.BusinessProfile, error)
	Follow(ctx context.Context, followerID, businessUserID string) (bool, error)
	Unfollow(ctx context.Context, followerID, businessUserID string) (bool, error)
}

// NotificationService reads and acknowledges in-app notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

// StatusService captures the status lifecycle.
type StatusService interface {
	Create(ctx context.Context, author auth.Principal, in status.CreateInput) (models.Status, error)
	Mine(ctx context.Context, userID string) ([]models.Status, error)
	ByUser(ctx context.Context, viewerID, authorID string) ([]feed.Item, error)
	Discover(ctx context.Context, viewerID string, page, pageSize int) (feed.Page, error)
	View(ctx context.Context, viewerID, statusID string, durationMillis int64) (bool, error)
	Like(ctx context.Context, userID, statusID string) (bool, error)
	Unlike(ctx context.Context, userID, statusID string) (bool, error)
	UpdateCaption(ctx context.Context, userID, statusID, caption string) (models.Status, error)
	Delete(ctx context.Context, userID, statusID string) error
	AddReply(ctx context.Context, userID, statusID, text string) (models.StatusReply, error)
	ListReplies(ctx context.Context, statusID string, page, pageSize int) ([]models.StatusReply, error)
	DeleteReply(ctx context.Context, userID, replyID string) error
}

var (
	_ AccountService      = (*accounts.Service)(nil)
	_ PasswordService     = (*accounts.Service)(nil)
	_ BusinessService     = (*business.Service)(nil)
	_ NotificationService = notify.Service{}
	_ StatusService       = (*status.Service)(nil)
)
