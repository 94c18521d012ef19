package repositories

import (
	"context"
	"time"

	"github.com/zoner/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateFCMToken(ctx context.Context, id, token string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	UsernameTaken(ctx context.Context, username, exceptUserID string) (bool, error)
	TakenUsernames(ctx context.Context, candidates []string) (map[string]bool, error)
	BasicInfo(ctx context.Context, ids []string) ([]models.UserBasicInfo, error)
}
