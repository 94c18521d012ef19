package models

import (
	"strings"
	"time"
)

// StatusTTL is how long a status stays visible after creation.
const StatusTTL = 24 * time.Hour

// DeletedStatusRetention is how long a soft-deleted status is kept for
// audit before the expiry sweep removes it.
const DeletedStatusRetention = 7 * 24 * time.Hour

// MediaType is the kind of media attached to a status or reply.
type MediaType string

const (
	MediaImage MediaType = "IMAGE"
	MediaVideo MediaType = "VIDEO"
)

// ParseMediaType accepts the case-insensitive wire form.
func ParseMediaType(raw string) (MediaType, bool) {
	switch MediaType(strings.ToUpper(strings.TrimSpace(raw))) {
	case MediaImage:
		return MediaImage, true
	case MediaVideo:
		return MediaVideo, true
	}
	return "", false
}

// Status is an ephemeral media post.
type Status struct {
	ID             string
	UserID         string
	MediaURL       string
	MediaType      MediaType
	Caption        string
	BlurHash       string
	DurationMillis int64
	ViewCount      int
	LikeCount      int
	ReplyCount     int
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Deleted        bool
	DeletedAt      *time.Time
	Version        int64
}

// Active reports whether the status is visible at the given instant.
func (s Status) Active(now time.Time) bool {
	return !s.Deleted && s.ExpiresAt.After(now)
}

// StatusView records that a viewer watched a status.
type StatusView struct {
	ID                 string
	StatusID           string
	ViewerID           string
	ViewDurationMillis int64
	ViewedAt           time.Time
}

// StatusLike records a like on a status.
type StatusLike struct {
	ID        string
	StatusID  string
	UserID    string
	CreatedAt time.Time
}

// StatusReply is a text reply to a status, optionally with media.
type StatusReply struct {
	ID        string
	StatusID  string
	UserID    string
	Text      string
	MediaURL  string
	MediaType MediaType
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
	DeletedAt *time.Time
	Version   int64
}
