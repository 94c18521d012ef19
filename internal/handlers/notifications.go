package handlers

import "net/http"

const defaultNotificationPageSize = 20

// NotificationHandler exposes the caller's in-app notifications.
type NotificationHandler struct {
	Notifications NotificationService
}

// List handles GET /notifications?page&pageSize.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	page, size, err := paging(r, defaultNotificationPageSize)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	items, err := h.Notifications.List(ctx, p.UserID, page, size)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "notifications", newNotificationResponses(items))
}

// UnreadCount handles GET /notifications/unread-count.
func (h NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	count, err := h.Notifications.UnreadCount(ctx, p.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "unread count", map[string]int{"count": count})
}

// MarkRead handles POST /notifications/{id}/read.
func (h NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Notifications.MarkRead(ctx, p.UserID, r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "notification marked as read", nil)
}
