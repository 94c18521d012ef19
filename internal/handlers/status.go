package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/status"
)

const defaultReplyPageSize = 20

// StatusHandler implements the status endpoints.
type StatusHandler struct {
	Statuses StatusService
}

type captionRequest struct {
	Caption string `json:"caption"`
}

type replyRequest struct {
	Text string `json:"text"`
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

// Create handles POST /status as multipart: caption, mediaType,
// durationMillis and file.
func (h StatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := parseMultipart(w, r); err != nil {
		respondError(ctx, w, err)
		return
	}

	mediaType, ok := models.ParseMediaType(r.FormValue("mediaType"))
	if !ok {
		respondError(ctx, w, apperr.Validation("mediaType must be IMAGE or VIDEO"))
		return
	}

	var duration int64
	if raw := strings.TrimSpace(r.FormValue("durationMillis")); raw != "" {
		duration, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || duration < 0 {
			respondError(ctx, w, apperr.Validation("durationMillis must be a non-negative integer"))
			return
		}
	}

	data, filename, err := formFile(r, "file", true)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	st, err := h.Statuses.Create(ctx, p, status.CreateInput{
		Caption:        r.FormValue("caption"),
		MediaType:      mediaType,
		DurationMillis: duration,
		Data:           data,
		Filename:       filename,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusCreated, "status uploaded", newStatusUploadResponse(st))
}

// Mine handles GET /status.
func (h StatusHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	statuses, err := h.Statuses.Mine(ctx, p.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	out := make([]StatusUploadResponse, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, newStatusUploadResponse(st))
	}
	respondOK(ctx, w, http.StatusOK, "statuses", out)
}

// Discover handles GET /status/discover?page&pageSize.
func (h StatusHandler) Discover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	page, size, err := paging(r, feed.DefaultPageSize)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Statuses.Discover(ctx, p.UserID, page, size)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "status feed", newStatusGroupsResponse(result))
}

// ByUser handles GET /status/users/{userId}.
func (h StatusHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	items, err := h.Statuses.ByUser(ctx, p.UserID, r.PathValue("userId"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "statuses", newOtherUserStatuses(items))
}

// Delete handles DELETE /status?id=.
func (h StatusHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		respondError(ctx, w, apperr.Validation("id is required"))
		return
	}

	if err := h.Statuses.Delete(ctx, p.UserID, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "status deleted", nil)
}

// UpdateCaption handles PATCH /status/{id}.
func (h StatusHandler) UpdateCaption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	var req captionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	st, err := h.Statuses.UpdateCaption(ctx, p.UserID, r.PathValue("id"), req.Caption)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "caption updated", newStatusUploadResponse(st))
}

// View handles POST /status/{id}/view?duration=.
func (h StatusHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	duration, err := queryInt(r, "duration", 0)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if duration < 0 {
		respondError(ctx, w, apperr.Validation("duration must not be negative"))
		return
	}

	recorded, err := h.Statuses.View(ctx, p.UserID, r.PathValue("id"), int64(duration))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "view recorded", changedResponse{Changed: recorded})
}

// Like handles POST /status/{id}/like.
func (h StatusHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	liked, err := h.Statuses.Like(ctx, p.UserID, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	message := "status liked"
	if !liked {
		message = "status already liked"
	}
	respondOK(ctx, w, http.StatusOK, message, changedResponse{Changed: liked})
}

// Unlike handles DELETE /status/{id}/like.
func (h StatusHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	removed, err := h.Statuses.Unlike(ctx, p.UserID, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	message := "status unliked"
	if !removed {
		message = "status was not liked"
	}
	respondOK(ctx, w, http.StatusOK, message, changedResponse{Changed: removed})
}

// AddReply handles POST /status/{id}/replies.
func (h StatusHandler) AddReply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	var req replyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	reply, err := h.Statuses.AddReply(ctx, p.UserID, r.PathValue("id"), req.Text)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusCreated, "reply added", newReplyResponse(reply))
}

// ListReplies handles GET /status/replies?statusId&page&pageSize.
func (h StatusHandler) ListReplies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statusID := strings.TrimSpace(r.URL.Query().Get("statusId"))
	if statusID == "" {
		respondError(ctx, w, apperr.Validation("statusId is required"))
		return
	}
	page, size, err := paging(r, defaultReplyPageSize)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	replies, err := h.Statuses.ListReplies(ctx, statusID, page, size)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	out := make([]replyResponse, 0, len(replies))
	for _, reply := range replies {
		out = append(out, newReplyResponse(reply))
	}
	respondOK(ctx, w, http.StatusOK, "replies", out)
}

// DeleteReply handles DELETE /status/replies?id=.
func (h StatusHandler) DeleteReply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		respondError(ctx, w, apperr.Validation("id is required"))
		return
	}

	if err := h.Statuses.DeleteReply(ctx, p.UserID, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "reply deleted", nil)
}
