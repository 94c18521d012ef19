package handlers

import (
	"time"

	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/models"
)

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

type tokensResponse struct {
	AccessToken      string `json:"accessToken"`
	AccessExpiresAt  int64  `json:"accessExpiresAt"`
	RefreshToken     string `json:"refreshToken"`
	RefreshExpiresAt int64  `json:"refreshExpiresAt"`
}

func newTokensResponse(t models.SessionTokens) tokensResponse {
	return tokensResponse{
		AccessToken:      t.AccessToken,
		AccessExpiresAt:  millis(t.AccessExpiresAt),
		RefreshToken:     t.RefreshToken,
		RefreshExpiresAt: millis(t.RefreshExpiresAt),
	}
}

type userResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Username          string `json:"username,omitempty"`
	ProfilePic        string `json:"profilePic,omitempty"`
	Role              string `json:"role"`
	AuthProvider      string `json:"authProvider"`
	RegistrationStage string `json:"registrationStage"`
	NextAction        string `json:"nextAction"`
	EmailVerified     bool   `json:"emailVerified"`
	CreatedAt         int64  `json:"createdAt"`
	LastLoginAt       *int64 `json:"lastLoginAt,omitempty"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Username:          u.Username,
		ProfilePic:        u.ProfilePicURL,
		Role:              string(u.Role),
		AuthProvider:      string(u.AuthProvider),
		RegistrationStage: string(u.RegistrationStage),
		NextAction:        u.RegistrationStage.NextAction(),
		EmailVerified:     u.EmailVerified,
		CreatedAt:         millis(u.CreatedAt),
		LastLoginAt:       millisPtr(u.LastLoginAt),
	}
}

type businessProfileResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	BusinessName string `json:"businessName"`
	Category     string `json:"category"`
	PhoneNumber  string `json:"phoneNumber"`
	Description  string `json:"description,omitempty"`
	Location     string `json:"location,omitempty"`
	Country      string `json:"country,omitempty"`
	BusinessLogo string `json:"businessLogo,omitempty"`
	IsVerified   bool   `json:"isVerified"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

func newBusinessProfileResponse(p models.BusinessProfile) businessProfileResponse {
	return businessProfileResponse{
		ID:           p.ID,
		UserID:       p.UserID,
		BusinessName: p.BusinessName,
		Category:     p.Category,
		PhoneNumber:  p.PhoneNumber,
		Description:  p.Description,
		Location:     p.Location,
		Country:      p.Country,
		BusinessLogo: p.LogoURL,
		IsVerified:   p.Verified,
		CreatedAt:    millis(p.CreatedAt),
		UpdatedAt:    millis(p.UpdatedAt),
	}
}

type authResponse struct {
	User     userResponse             `json:"user"`
	Business *businessProfileResponse `json:"business,omitempty"`
	Tokens   tokensResponse           `json:"tokens"`
}

func newAuthResponse(u models.User, business *models.BusinessProfile, tokens models.SessionTokens) authResponse {
	resp := authResponse{User: newUserResponse(u), Tokens: newTokensResponse(tokens)}
	if business != nil {
		b := newBusinessProfileResponse(*business)
		resp.Business = &b
	}
	return resp
}

type notificationResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	ReferenceID string `json:"referenceId,omitempty"`
	IsRead      bool   `json:"isRead"`
	CreatedAt   int64  `json:"createdAt"`
}

func newNotificationResponses(ns []models.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationResponse{
			ID:          n.ID,
			Title:       n.Title,
			Message:     n.Message,
			Type:        n.Type,
			ReferenceID: n.ReferenceID,
			IsRead:      n.Read,
			CreatedAt:   millis(n.CreatedAt),
		})
	}
	return out
}

// StatusUploadResponse describes a status to its author.
type StatusUploadResponse struct {
	ID             string `json:"id"`
	MediaURL       string `json:"mediaUrl"`
	Caption        string `json:"caption"`
	MediaType      string `json:"mediaType"`
	BlurHash       string `json:"blurHash"`
	DurationMillis int64  `json:"durationMillis"`
	ViewCount      int    `json:"viewCount"`
	LikeCount      int    `json:"likeCount"`
	ReplyCount     int    `json:"replyCount"`
	CreatedAt      int64  `json:"createdAt"`
	LastUpdated    int64  `json:"lastUpdated"`
	ExpiresAt      int64  `json:"expiresAt"`
	Version        int64  `json:"version"`
}

func newStatusUploadResponse(s models.Status) StatusUploadResponse {
	return StatusUploadResponse{
		ID:             s.ID,
		MediaURL:       s.MediaURL,
		Caption:        s.Caption,
		MediaType:      string(s.MediaType),
		BlurHash:       s.BlurHash,
		DurationMillis: s.DurationMillis,
		ViewCount:      s.ViewCount,
		LikeCount:      s.LikeCount,
		ReplyCount:     s.ReplyCount,
		CreatedAt:      millis(s.CreatedAt),
		LastUpdated:    millis(s.UpdatedAt),
		ExpiresAt:      millis(s.ExpiresAt),
		Version:        s.Version,
	}
}

// OtherUserStatus describes a status to a viewer.
type OtherUserStatus struct {
	ID             string `json:"id"`
	MediaURL       string `json:"mediaUrl"`
	Caption        string `json:"caption"`
	MediaType      string `json:"mediaType"`
	CreatedAt      int64  `json:"createdAt"`
	IsViewed       bool   `json:"isViewed"`
	BlurHash       string `json:"blurHash"`
	DurationMillis int64  `json:"durationMillis"`
	LikesCount     int    `json:"likesCount"`
	ViewsCount     int    `json:"viewsCount"`
	RepliesCount   int    `json:"repliesCount"`
	ExpiresAt      int64  `json:"expiresAt"`
	LastUpdated    int64  `json:"lastUpdated"`
	Version        int64  `json:"version"`
}

func newOtherUserStatuses(items []feed.Item) []OtherUserStatus {
	out := make([]OtherUserStatus, 0, len(items))
	for _, it := range items {
		out = append(out, OtherUserStatus{
			ID:             it.ID,
			MediaURL:       it.MediaURL,
			Caption:        it.Caption,
			MediaType:      string(it.MediaType),
			CreatedAt:      millis(it.CreatedAt),
			IsViewed:       it.Viewed,
			BlurHash:       it.BlurHash,
			DurationMillis: it.DurationMillis,
			LikesCount:     it.LikeCount,
			ViewsCount:     it.ViewCount,
			RepliesCount:   it.ReplyCount,
			ExpiresAt:      millis(it.ExpiresAt),
			LastUpdated:    millis(it.UpdatedAt),
			Version:        it.Version,
		})
	}
	return out
}

// StatusGroup is one author's statuses in the discovery feed.
type StatusGroup struct {
	AuthorID      string            `json:"authorId"`
	AuthorName    string            `json:"authorName"`
	AuthorAvatar  string            `json:"authorAvatar"`
	Statuses      []OtherUserStatus `json:"statuses"`
	UpdatedAt     int64             `json:"updatedAt"`
	UnviewedCount int               `json:"unviewedCount"`
}

// StatusGroupsResponse is a page of the discovery feed.
type StatusGroupsResponse struct {
	StatusGroups []StatusGroup `json:"statusGroups"`
	HasMore      bool          `json:"hasMore"`
	TotalPages   int           `json:"totalPages"`
	CurrentPage  int           `json:"currentPage"`
}

func newStatusGroupsResponse(p feed.Page) StatusGroupsResponse {
	groups := make([]StatusGroup, 0, len(p.Groups))
	for _, g := range p.Groups {
		groups = append(groups, StatusGroup{
			AuthorID:      g.AuthorID,
			AuthorName:    g.AuthorName,
			AuthorAvatar:  g.AuthorAvatar,
			Statuses:      newOtherUserStatuses(g.Statuses),
			UpdatedAt:     millis(g.UpdatedAt),
			UnviewedCount: g.UnviewedCount,
		})
	}
	return StatusGroupsResponse{
		StatusGroups: groups,
		HasMore:      p.HasMore,
		TotalPages:   p.TotalPages,
		CurrentPage:  p.CurrentPage,
	}
}

type replyResponse struct {
	ID        string `json:"id"`
	StatusID  string `json:"statusId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

func newReplyResponse(r models.StatusReply) replyResponse {
	return replyResponse{ID: r.ID, StatusID: r.StatusID, UserID: r.UserID, Text: r.Text, CreatedAt: millis(r.CreatedAt)}
}
