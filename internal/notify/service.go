// Package notify persists in-app notifications and fans them out to push
// and email gateways off the request path.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/repositories"
)

const maxPageSize = 50

// Notification types raised by the platform.
const (
	TypeStatusReply = "status_reply"
	TypeNewFollower = "new_follower"
)

// Pusher delivers device notifications.
type Pusher interface {
	Send(ctx context.Context, msg PushMessage) error
}

// UserLookup resolves the device token of a recipient.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Service stores notifications and mirrors them as pushes.
type Service struct {
	Repo    repositories.NotificationRepository
	Users   UserLookup
	Push    Pusher
	Queue   Enqueuer
	NowFunc func() time.Time
}

// Create persists a notification and, when the recipient has a device
// token, queues a push. Push failures never fail the call.
func (s Service) Create(ctx context.Context, userID, title, message, kind, referenceID string) (models.Notification, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(title) == "" {
		return models.Notification{}, apperr.Validation("notification recipient and title are required")
	}

	n := models.Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Message:     message,
		Type:        kind,
		ReferenceID: referenceID,
		CreatedAt:   s.now(),
	}
	if err := s.Repo.Create(ctx, n); err != nil {
		return models.Notification{}, err
	}

	s.dispatchPush(ctx, n)
	return n, nil
}

func (s Service) dispatchPush(ctx context.Context, n models.Notification) {
	if s.Push == nil || s.Queue == nil || s.Users == nil {
		return
	}
	logger := logging.FromContext(ctx)

	user, err := s.Users.FindByID(ctx, n.UserID)
	if err != nil {
		logger.Warn("push recipient lookup failed", "user_id", n.UserID, "error", err)
		return
	}
	if user.FCMToken == "" {
		return
	}

	msg := PushMessage{
		Token: user.FCMToken,
		Title: n.Title,
		Body:  n.Message,
		Data: map[string]string{
			"title":          n.Title,
			"body":           n.Message,
			"type":           n.Type,
			"referenceId":    n.ReferenceID,
			"notificationId": n.ID,
		},
	}
	err = s.Queue.Enqueue(ctx, "push:"+n.Type, func(jobCtx context.Context) error {
		if err := s.Push.Send(jobCtx, msg); err != nil {
			logger.Warn("push delivery failed", "notification_id", n.ID, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		logger.Warn("push not queued", "notification_id", n.ID, "error", err)
	}
}

// List returns a page of the user's notifications, newest first.
func (s Service) List(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, error) {
	if page < 1 || pageSize < 1 || pageSize > maxPageSize {
		return nil, apperr.Validation(fmt.Sprintf("page must be positive and pageSize between 1 and %d", maxPageSize))
	}
	return s.Repo.List(ctx, userID, page, pageSize)
}

// UnreadCount returns how many notifications the user has not read.
func (s Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.Repo.UnreadCount(ctx, userID)
}

// MarkRead marks one of the user's notifications as read.
func (s Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	if _, err := uuid.Parse(notificationID); err != nil {
		return apperr.Validation("invalid notification id")
	}
	return s.Repo.MarkRead(ctx, notificationID, userID)
}

func (s Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
