// Package status implements posting, viewing and moderating ephemeral
// business statuses.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/notify"
	"github.com/zoner/backend/internal/repositories"
	"github.com/zoner/backend/internal/uploads"
)

const (
	// MediaFolder is the object store prefix for status media.
	MediaFolder = "statuses"

	MaxCaptionLength = 1000
	MaxReplyLength   = 500

	authorListLimit     = 50
	updateAttempts      = 2
	compensationTimeout = 30 * time.Second
)

var (
	ErrStatusNotFound = apperr.NotFound("status not found")
	ErrReplyNotFound  = apperr.NotFound("reply not found")
	ErrVersionChanged = apperr.Conflict("status was modified concurrently, refetch and retry")
)

// MediaUploader stores status media.
type MediaUploader interface {
	UploadImage(ctx context.Context, data []byte, folder string) (uploads.Result, error)
	UploadVideo(ctx context.Context, data []byte, originalName, folder string) (uploads.Result, error)
	Delete(ctx context.Context, url string) error
}

// FeedBuilder produces discover feed pages.
type FeedBuilder interface {
	Feed(ctx context.Context, viewerID string, page, pageSize int) (feed.Page, error)
}

// Notifier raises in-app notifications.
type Notifier interface {
	Create(ctx context.Context, userID, title, message, kind, referenceID string) (models.Notification, error)
}

// UserLookup resolves reply authors for notification copy.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// CreateInput carries a new status upload.
type CreateInput struct {
	Caption        string
	MediaType      models.MediaType
	DurationMillis int64
	Data           []byte
	Filename       string
}

// Service coordinates the status store with media uploads and notifications.
type Service struct {
	Statuses repositories.StatusRepository
	Media    MediaUploader
	Feed     FeedBuilder
	Notifier Notifier
	Users    UserLookup
	NowFunc  func() time.Time
}

// Create uploads the media and stores a status visible for 24 hours. Only
// business accounts may post. The uploaded object is removed again when the
// insert fails.
func (s *Service) Create(ctx context.Context, author auth.Principal, in CreateInput) (models.Status, error) {
	if author.Role != models.RoleBusiness {
		return models.Status{}, apperr.Authorization("only business accounts can post statuses")
	}
	if len(in.Data) == 0 {
		return models.Status{}, apperr.Validation("media file is required")
	}
	caption := strings.TrimSpace(in.Caption)
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return models.Status{}, apperr.Validation(fmt.Sprintf("caption must be at most %d characters", MaxCaptionLength))
	}
	if in.DurationMillis < 0 {
		return models.Status{}, apperr.Validation("durationMillis must not be negative")
	}

	ctx, span := logging.StartSpan(ctx, "status.create")
	defer span.End()

	var (
		result uploads.Result
		err    error
	)
	switch in.MediaType {
	case models.MediaImage:
		result, err = s.Media.UploadImage(ctx, in.Data, MediaFolder)
	case models.MediaVideo:
		result, err = s.Media.UploadVideo(ctx, in.Data, in.Filename, MediaFolder)
	default:
		return models.Status{}, apperr.Validation("mediaType must be IMAGE or VIDEO")
	}
	if err != nil {
		span.Fail(err)
		return models.Status{}, err
	}

	duration := in.DurationMillis
	if duration == 0 {
		duration = result.DurationMillis
	}

	now := s.now()
	st := models.Status{
		ID:             uuid.NewString(),
		UserID:         author.UserID,
		MediaURL:       result.URL,
		MediaType:      in.MediaType,
		Caption:        caption,
		BlurHash:       result.BlurHash,
		DurationMillis: duration,
		ExpiresAt:      now.Add(models.StatusTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Statuses.Create(ctx, st); err != nil {
		span.Fail(err)
		s.discardMedia(ctx, result.URL)
		return models.Status{}, fmt.Errorf("create status: %w", err)
	}

	logging.FromContext(ctx).Info("status created",
		slog.String("status_id", st.ID),
		slog.String("media_type", string(st.MediaType)),
	)
	return st, nil
}

// Mine lists the caller's active statuses, newest first.
func (s *Service) Mine(ctx context.Context, userID string) ([]models.Status, error) {
	return s.Statuses.ListActiveByAuthor(ctx, userID, s.now(), authorListLimit)
}

// ByUser lists another author's active statuses, flagging those the viewer has seen.
func (s *Service) ByUser(ctx context.Context, viewerID, authorID string) ([]feed.Item, error) {
	if _, err := uuid.Parse(authorID); err != nil {
		return nil, apperr.Validation("invalid user id")
	}
	statuses, err := s.Statuses.ListActiveByAuthor(ctx, authorID, s.now(), authorListLimit)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return []feed.Item{}, nil
	}
	viewed, err := s.Statuses.ViewedIDs(ctx, viewerID, []string{authorID})
	if err != nil {
		return nil, err
	}
	items := make([]feed.Item, 0, len(statuses))
	for _, st := range statuses {
		items = append(items, feed.Item{Status: st, Viewed: viewed[st.ID]})
	}
	return items, nil
}

// Discover returns a page of the viewer's discover feed.
func (s *Service) Discover(ctx context.Context, viewerID string, page, pageSize int) (feed.Page, error) {
	return s.Feed.Feed(ctx, viewerID, page, pageSize)
}

// View records that viewerID watched a status. It reports whether this was
// the viewer's first view.
func (s *Service) View(ctx context.Context, viewerID, statusID string, durationMillis int64) (bool, error) {
	if durationMillis < 0 {
		return false, apperr.Validation("duration must not be negative")
	}
	if _, err := s.active(ctx, statusID); err != nil {
		return false, err
	}
	return s.Statuses.RecordView(ctx, statusID, viewerID, durationMillis, s.now())
}

// Like reports false when the status was already liked.
func (s *Service) Like(ctx context.Context, userID, statusID string) (bool, error) {
	if _, err := s.active(ctx, statusID); err != nil {
		return false, err
	}
	return s.Statuses.Like(ctx, statusID, userID, s.now())
}

// Unlike reports false when there was no like to remove.
func (s *Service) Unlike(ctx context.Context, userID, statusID string) (bool, error) {
	if _, err := s.find(ctx, statusID); err != nil {
		return false, err
	}
	return s.Statuses.Unlike(ctx, statusID, userID, s.now())
}

// UpdateCaption edits the caption of the caller's status under optimistic
// concurrency, retrying once when the version moves underneath it.
func (s *Service) UpdateCaption(ctx context.Context, userID, statusID, caption string) (models.Status, error) {
	caption = strings.TrimSpace(caption)
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return models.Status{}, apperr.Validation(fmt.Sprintf("caption must be at most %d characters", MaxCaptionLength))
	}
	err := s.versioned(ctx, userID, statusID, func(expected int64) (bool, error) {
		return s.Statuses.UpdateCaption(ctx, statusID, userID, caption, expected, s.now())
	})
	if err != nil {
		return models.Status{}, err
	}
	return s.find(ctx, statusID)
}

// Delete soft deletes the caller's status.
func (s *Service) Delete(ctx context.Context, userID, statusID string) error {
	if strings.TrimSpace(statusID) == "" {
		return apperr.Validation("status id is required")
	}
	return s.versioned(ctx, userID, statusID, func(expected int64) (bool, error) {
		return s.Statuses.SoftDelete(ctx, statusID, userID, expected, s.now())
	})
}

func (s *Service) versioned(ctx context.Context, userID, statusID string, apply func(expected int64) (bool, error)) error {
	st, err := s.find(ctx, statusID)
	if err != nil {
		return err
	}
	if st.UserID != userID {
		return apperr.Authorization("you can only modify your own statuses")
	}

	expected := st.Version
	for attempt := 0; attempt < updateAttempts; attempt++ {
		ok, err := apply(expected)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		current, err := s.Statuses.Version(ctx, statusID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrStatusNotFound
			}
			return err
		}
		expected = current
	}

	if _, err := s.find(ctx, statusID); err != nil {
		return err
	}
	return ErrVersionChanged
}

// AddReply posts a text reply and notifies the status author.
func (s *Service) AddReply(ctx context.Context, userID, statusID, text string) (models.StatusReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.StatusReply{}, apperr.Validation("reply text is required")
	}
	if utf8.RuneCountInString(text) > MaxReplyLength {
		return models.StatusReply{}, apperr.Validation(fmt.Sprintf("reply must be at most %d characters", MaxReplyLength))
	}

	st, err := s.active(ctx, statusID)
	if err != nil {
		return models.StatusReply{}, err
	}

	now := s.now()
	reply, err := s.Statuses.AddReply(ctx, models.StatusReply{
		ID:        uuid.NewString(),
		StatusID:  statusID,
		UserID:    userID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.StatusReply{}, ErrStatusNotFound
		}
		return models.StatusReply{}, err
	}

	if st.UserID != userID && s.Notifier != nil {
		s.notifyReply(ctx, st, reply)
	}
	return reply, nil
}

func (s *Service) notifyReply(ctx context.Context, st models.Status, reply models.StatusReply) {
	name := "Someone"
	if s.Users != nil {
		if u, err := s.Users.FindByID(ctx, reply.UserID); err == nil && u.Name != "" {
			name = u.Name
		}
	}
	_, err := s.Notifier.Create(ctx, st.UserID, "New reply", name+" replied to your status", notify.TypeStatusReply, st.ID)
	if err != nil {
		logging.FromContext(ctx).Warn("notify status reply",
			slog.String("status_id", st.ID),
			slog.Any("error", err),
		)
	}
}

// ListReplies returns replies to a status, oldest first.
func (s *Service) ListReplies(ctx context.Context, statusID string, page, pageSize int) ([]models.StatusReply, error) {
	if page < 1 || pageSize < 1 || pageSize > feed.MaxPageSize {
		return nil, apperr.Validation(fmt.Sprintf("page must be positive and pageSize between 1 and %d", feed.MaxPageSize))
	}
	if _, err := s.find(ctx, statusID); err != nil {
		return nil, err
	}
	return s.Statuses.ListReplies(ctx, statusID, page, pageSize)
}

// DeleteReply removes the caller's own reply.
func (s *Service) DeleteReply(ctx context.Context, userID, replyID string) error {
	ok, err := s.Statuses.DeleteReply(ctx, replyID, userID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplyNotFound
	}
	return nil
}

// discardMedia removes an upload whose status row was never written. It runs
// detached from ctx so an expired request deadline does not orphan the object.
func (s *Service) discardMedia(ctx context.Context, url string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.Media.Delete(ctx, url); err != nil {
		logging.FromContext(ctx).Warn("remove orphaned status media",
			slog.String("url", url),
			slog.Any("error", err),
		)
	}
}

// CleanupExpired purges statuses past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, span := logging.StartSpan(ctx, "status.cleanup")
	defer span.End()

	n, err := s.Statuses.DeleteExpired(ctx, s.now())
	if err != nil {
		span.Fail(err)
		return 0, fmt.Errorf("delete expired statuses: %w", err)
	}
	logging.FromContext(ctx).Info("expired statuses removed", slog.Int64("count", n))
	return n, nil
}

func (s *Service) find(ctx context.Context, statusID string) (models.Status, error) {
	if _, err := uuid.Parse(statusID); err != nil {
		return models.Status{}, apperr.Validation("invalid status id")
	}
	st, err := s.Statuses.FindByID(ctx, statusID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Status{}, ErrStatusNotFound
		}
		return models.Status{}, err
	}
	return st, nil
}

func (s *Service) active(ctx context.Context, statusID string) (models.Status, error) {
	st, err := s.find(ctx, statusID)
	if err != nil {
		return models.Status{}, err
	}
	if !st.Active(s.now()) {
		return models.Status{}, ErrStatusNotFound
	}
	return st, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
