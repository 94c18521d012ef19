package status

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/repositories"
	"github.com/zoner/backend/internal/uploads"
)

var now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type statusRepoStub struct {
	repositories.StatusRepository

	statuses  map[string]models.Status
	replies   []models.StatusReply
	views     map[string]int64
	likes     map[string]bool
	createErr error

	// staleWrites makes the next n optimistic writes miss, as if another
	// writer bumped the version first.
	staleWrites int
	writes      int
	expired     int64
}

func newStatusRepoStub() *statusRepoStub {
	return &statusRepoStub{
		statuses: map[string]models.Status{},
		views:    map[string]int64{},
		likes:    map[string]bool{},
	}
}

func (r *statusRepoStub) put(st models.Status) models.Status {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.ExpiresAt.IsZero() {
		st.ExpiresAt = now.Add(time.Hour)
	}
	r.statuses[st.ID] = st
	return st
}

func (r *statusRepoStub) Create(_ context.Context, st models.Status) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.statuses[st.ID] = st
	return nil
}

func (r *statusRepoStub) FindByID(_ context.Context, id string) (models.Status, error) {
	st, ok := r.statuses[id]
	if !ok || st.Deleted {
		return models.Status{}, repositories.ErrNotFound
	}
	return st, nil
}

func (r *statusRepoStub) ListActiveByAuthor(_ context.Context, authorID string, at time.Time, _ int) ([]models.Status, error) {
	var out []models.Status
	for _, st := range r.statuses {
		if st.UserID == authorID && st.Active(at) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r *statusRepoStub) ViewedIDs(_ context.Context, viewerID string, _ []string) (map[string]bool, error) {
	out := map[string]bool{}
	for key := range r.views {
		parts := strings.SplitN(key, "|", 2)
		if parts[1] == viewerID {
			out[parts[0]] = true
		}
	}
	return out, nil
}

func (r *statusRepoStub) RecordView(_ context.Context, statusID, viewerID string, d int64, _ time.Time) (bool, error) {
	key := statusID + "|" + viewerID
	_, seen := r.views[key]
	r.views[key] = d
	if !seen {
		st := r.statuses[statusID]
		st.ViewCount++
		r.statuses[statusID] = st
	}
	return !seen, nil
}

func (r *statusRepoStub) Like(_ context.Context, statusID, userID string, _ time.Time) (bool, error) {
	key := statusID + "|" + userID
	if r.likes[key] {
		return false, nil
	}
	r.likes[key] = true
	return true, nil
}

func (r *statusRepoStub) Unlike(_ context.Context, statusID, userID string, _ time.Time) (bool, error) {
	key := statusID + "|" + userID
	if !r.likes[key] {
		return false, nil
	}
	delete(r.likes, key)
	return true, nil
}

func (r *statusRepoStub) AddReply(_ context.Context, reply models.StatusReply) (models.StatusReply, error) {
	if _, ok := r.statuses[reply.StatusID]; !ok {
		return models.StatusReply{}, repositories.ErrNotFound
	}
	r.replies = append(r.replies, reply)
	return reply, nil
}

func (r *statusRepoStub) ListReplies(_ context.Context, statusID string, _, _ int) ([]models.StatusReply, error) {
	var out []models.StatusReply
	for _, reply := range r.replies {
		if reply.StatusID == statusID {
			out = append(out, reply)
		}
	}
	return out, nil
}

func (r *statusRepoStub) DeleteReply(_ context.Context, replyID, userID string, _ time.Time) (bool, error) {
	for i, reply := range r.replies {
		if reply.ID == replyID && reply.UserID == userID {
			r.replies = append(r.replies[:i], r.replies[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *statusRepoStub) Version(_ context.Context, id string) (int64, error) {
	st, ok := r.statuses[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	return st.Version, nil
}

func (r *statusRepoStub) write(id, userID string, expected int64, fn func(*models.Status)) (bool, error) {
	r.writes++
	st, ok := r.statuses[id]
	if !ok || st.Deleted || st.UserID != userID {
		return false, nil
	}
	if r.staleWrites > 0 {
		r.staleWrites--
		st.Version++
		r.statuses[id] = st
		return false, nil
	}
	if st.Version != expected {
		return false, nil
	}
	fn(&st)
	st.Version++
	r.statuses[id] = st
	return true, nil
}

func (r *statusRepoStub) UpdateCaption(_ context.Context, id, userID, caption string, expected int64, _ time.Time) (bool, error) {
	return r.write(id, userID, expected, func(st *models.Status) { st.Caption = caption })
}

func (r *statusRepoStub) SoftDelete(_ context.Context, id, userID string, expected int64, _ time.Time) (bool, error) {
	return r.write(id, userID, expected, func(st *models.Status) { st.Deleted = true })
}

func (r *statusRepoStub) DeleteExpired(context.Context, time.Time) (int64, error) {
	return r.expired, nil
}

type uploaderStub struct {
	result       uploads.Result
	err          error
	folder       string
	kind         string
	deleted      []string
	deleteErr    error
	deleteCtxErr error
}

func (u *uploaderStub) UploadImage(_ context.Context, _ []byte, folder string) (uploads.Result, error) {
	u.kind, u.folder = "image", folder
	return u.result, u.err
}

func (u *uploaderStub) UploadVideo(_ context.Context, _ []byte, _ string, folder string) (uploads.Result, error) {
	u.kind, u.folder = "video", folder
	return u.result, u.err
}

func (u *uploaderStub) Delete(ctx context.Context, url string) error {
	u.deleted = append(u.deleted, url)
	u.deleteCtxErr = ctx.Err()
	return u.deleteErr
}

type notifierStub struct {
	calls []models.Notification
}

func (n *notifierStub) Create(_ context.Context, userID, title, message, kind, ref string) (models.Notification, error) {
	note := models.Notification{UserID: userID, Title: title, Message: message, Type: kind, ReferenceID: ref}
	n.calls = append(n.calls, note)
	return note, nil
}

type userLookupStub struct{}

func (userLookupStub) FindByID(_ context.Context, id string) (models.User, error) {
	return models.User{ID: id, Name: "Ada"}, nil
}

type feedStub struct {
	page feed.Page
}

func (f feedStub) Feed(context.Context, string, int, int) (feed.Page, error) {
	return f.page, nil
}

func newService(repo *statusRepoStub, media *uploaderStub, notifier *notifierStub) *Service {
	return &Service{
		Statuses: repo,
		Media:    media,
		Feed:     feedStub{page: feed.Page{CurrentPage: 1}},
		Notifier: notifier,
		Users:    userLookupStub{},
		NowFunc:  func() time.Time { return now },
	}
}

var business = auth.Principal{UserID: "biz-1", Role: models.RoleBusiness}

func TestCreateImageStatus(t *testing.T) {
	repo := newStatusRepoStub()
	media := &uploaderStub{result: uploads.Result{URL: "https://cdn/statuses/a.jpg", BlurHash: "LEHV6nWB2yk8"}}
	svc := newService(repo, media, &notifierStub{})

	st, err := svc.Create(context.Background(), business, CreateInput{Caption: "  fresh bread  ", MediaType: models.MediaImage, Data: []byte{1}})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if media.kind != "image" || media.folder != MediaFolder {
		t.Fatalf("expected image upload to %s got %s to %s", MediaFolder, media.kind, media.folder)
	}
	if st.Caption != "fresh bread" || st.BlurHash != "LEHV6nWB2yk8" || st.MediaURL != media.result.URL {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !st.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expected expiry 24h after creation got %v", st.ExpiresAt)
	}
	if _, ok := repo.statuses[st.ID]; !ok {
		t.Fatalf("expected status to be stored")
	}
}

func TestCreateVideoUsesProbedDuration(t *testing.T) {
	repo := newStatusRepoStub()
	media := &uploaderStub{result: uploads.Result{URL: "https://cdn/statuses/v.mp4", DurationMillis: 4200}}
	svc := newService(repo, media, &notifierStub{})

	st, err := svc.Create(context.Background(), business, CreateInput{MediaType: models.MediaVideo, Data: []byte{1}, Filename: "clip.mov"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if media.kind != "video" || st.DurationMillis != 4200 {
		t.Fatalf("expected probed duration 4200 got %d (%s)", st.DurationMillis, media.kind)
	}

	st, err = svc.Create(context.Background(), business, CreateInput{MediaType: models.MediaVideo, Data: []byte{1}, DurationMillis: 3000})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if st.DurationMillis != 3000 {
		t.Fatalf("expected client duration 3000 got %d", st.DurationMillis)
	}
}

func TestCreateRejections(t *testing.T) {
	svc := newService(newStatusRepoStub(), &uploaderStub{}, &notifierStub{})
	cases := []struct {
		name   string
		author auth.Principal
		in     CreateInput
		kind   apperr.Kind
	}{
		{"regular user", auth.Principal{UserID: "u", Role: models.RoleUser}, CreateInput{MediaType: models.MediaImage, Data: []byte{1}}, apperr.KindAuthorization},
		{"no media", business, CreateInput{MediaType: models.MediaImage}, apperr.KindValidation},
		{"bad media type", business, CreateInput{MediaType: "AUDIO", Data: []byte{1}}, apperr.KindValidation},
		{"long caption", business, CreateInput{MediaType: models.MediaImage, Data: []byte{1}, Caption: strings.Repeat("x", MaxCaptionLength+1)}, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.author, tc.in); !apperr.Is(err, tc.kind) {
				t.Fatalf("expected %s got %v", tc.kind, err)
			}
		})
	}
}

func TestCreateCompensatesFailedInsert(t *testing.T) {
	repo := newStatusRepoStub()
	repo.createErr = errors.New("insert failed")
	media := &uploaderStub{result: uploads.Result{URL: "https://cdn/statuses/a.jpg"}, deleteErr: errors.New("storage down")}
	svc := newService(repo, media, &notifierStub{})

	_, err := svc.Create(context.Background(), business, CreateInput{MediaType: models.MediaImage, Data: []byte{1}})
	if !errors.Is(err, repo.createErr) {
		t.Fatalf("expected original insert error got %v", err)
	}
	if len(media.deleted) != 1 || media.deleted[0] != media.result.URL {
		t.Fatalf("expected uploaded object to be deleted, got %v", media.deleted)
	}
}

func TestCreateCompensatesAfterRequestCancelled(t *testing.T) {
	repo := newStatusRepoStub()
	repo.createErr = context.DeadlineExceeded
	media := &uploaderStub{result: uploads.Result{URL: "https://cdn/statuses/late.jpg"}}
	svc := newService(repo, media, &notifierStub{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, business, CreateInput{MediaType: models.MediaImage, Data: []byte{1}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error got %v", err)
	}
	if len(media.deleted) != 1 || media.deleted[0] != media.result.URL {
		t.Fatalf("expected uploaded object to be deleted, got %v", media.deleted)
	}
	if media.deleteCtxErr != nil {
		t.Fatalf("expected compensation to run on a live context got %v", media.deleteCtxErr)
	}
}

func TestCreateUploadFailureSkipsInsert(t *testing.T) {
	repo := newStatusRepoStub()
	media := &uploaderStub{err: apperr.Upload("storage rejected", nil)}
	svc := newService(repo, media, &notifierStub{})

	if _, err := svc.Create(context.Background(), business, CreateInput{MediaType: models.MediaImage, Data: []byte{1}}); !apperr.Is(err, apperr.KindUpload) {
		t.Fatalf("expected upload error got %v", err)
	}
	if len(repo.statuses) != 0 || len(media.deleted) != 0 {
		t.Fatalf("expected nothing stored or deleted")
	}
}

func TestViewAndLikeRequireActiveStatus(t *testing.T) {
	repo := newStatusRepoStub()
	live := repo.put(models.Status{UserID: "biz-1"})
	expired := repo.put(models.Status{UserID: "biz-1", ExpiresAt: now.Add(-time.Minute)})
	svc := newService(repo, &uploaderStub{}, &notifierStub{})
	ctx := context.Background()

	first, err := svc.View(ctx, "viewer", live.ID, 1500)
	if err != nil || !first {
		t.Fatalf("expected first view to be recorded, got %v %v", first, err)
	}
	again, err := svc.View(ctx, "viewer", live.ID, 3000)
	if err != nil || again {
		t.Fatalf("expected repeat view to update only, got %v %v", again, err)
	}
	if repo.statuses[live.ID].ViewCount != 1 || repo.views[live.ID+"|viewer"] != 3000 {
		t.Fatalf("unexpected view state: %+v %v", repo.statuses[live.ID], repo.views)
	}

	if _, err := svc.View(ctx, "viewer", expired.ID, 10); !errors.Is(err, ErrStatusNotFound) {
		t.Fatalf("expected expired status to be not found got %v", err)
	}
	if _, err := svc.Like(ctx, "viewer", uuid.NewString()); !errors.Is(err, ErrStatusNotFound) {
		t.Fatalf("expected missing status to be not found got %v", err)
	}
	if _, err := svc.Like(ctx, "viewer", "not-a-uuid"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected invalid id to be rejected got %v", err)
	}

	liked, _ := svc.Like(ctx, "viewer", live.ID)
	dup, _ := svc.Like(ctx, "viewer", live.ID)
	if !liked || dup {
		t.Fatalf("expected like then duplicate false, got %v %v", liked, dup)
	}
	removed, _ := svc.Unlike(ctx, "viewer", live.ID)
	missing, _ := svc.Unlike(ctx, "viewer", live.ID)
	if !removed || missing {
		t.Fatalf("expected unlike then false, got %v %v", removed, missing)
	}
}

func TestUpdateCaptionRetriesOnce(t *testing.T) {
	repo := newStatusRepoStub()
	st := repo.put(models.Status{UserID: "biz-1", Caption: "old"})
	repo.staleWrites = 1
	svc := newService(repo, &uploaderStub{}, &notifierStub{})

	updated, err := svc.UpdateCaption(context.Background(), "biz-1", st.ID, "new")
	if err != nil {
		t.Fatalf("UpdateCaption returned error: %v", err)
	}
	if updated.Caption != "new" || updated.Version != 2 {
		t.Fatalf("unexpected status after retry: %+v", updated)
	}
	if repo.writes != 2 {
		t.Fatalf("expected 2 write attempts got %d", repo.writes)
	}
}

func TestUpdateCaptionConflictAfterRetries(t *testing.T) {
	repo := newStatusRepoStub()
	st := repo.put(models.Status{UserID: "biz-1"})
	repo.staleWrites = updateAttempts
	svc := newService(repo, &uploaderStub{}, &notifierStub{})

	if _, err := svc.UpdateCaption(context.Background(), "biz-1", st.ID, "new"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
	if repo.statuses[st.ID].Caption != "" {
		t.Fatalf("expected caption to be unchanged")
	}
}

func TestDeleteOwnershipAndMissing(t *testing.T) {
	repo := newStatusRepoStub()
	st := repo.put(models.Status{UserID: "biz-1"})
	svc := newService(repo, &uploaderStub{}, &notifierStub{})
	ctx := context.Background()

	if err := svc.Delete(ctx, "intruder", st.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error got %v", err)
	}
	if err := svc.Delete(ctx, "biz-1", st.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !repo.statuses[st.ID].Deleted {
		t.Fatalf("expected status to be soft deleted")
	}
	if err := svc.Delete(ctx, "biz-1", st.ID); !errors.Is(err, ErrStatusNotFound) {
		t.Fatalf("expected not found on second delete got %v", err)
	}
}

func TestAddReplyNotifiesAuthor(t *testing.T) {
	repo := newStatusRepoStub()
	st := repo.put(models.Status{UserID: "biz-1"})
	notifier := &notifierStub{}
	svc := newService(repo, &uploaderStub{}, notifier)

	reply, err := svc.AddReply(context.Background(), "fan", st.ID, "  love it ")
	if err != nil {
		t.Fatalf("AddReply returned error: %v", err)
	}
	if reply.Text != "love it" {
		t.Fatalf("expected trimmed text got %q", reply.Text)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected 1 notification got %d", len(notifier.calls))
	}
	n := notifier.calls[0]
	if n.UserID != "biz-1" || n.Type != "status_reply" || n.ReferenceID != st.ID || !strings.HasPrefix(n.Message, "Ada") {
		t.Fatalf("unexpected notification: %+v", n)
	}

	if _, err := svc.AddReply(context.Background(), "biz-1", st.ID, "thanks"); err != nil {
		t.Fatalf("AddReply returned error: %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected self reply not to notify")
	}
}

func TestAddReplyValidation(t *testing.T) {
	repo := newStatusRepoStub()
	st := repo.put(models.Status{UserID: "biz-1"})
	svc := newService(repo, &uploaderStub{}, &notifierStub{})

	for _, text := range []string{"", "   ", strings.Repeat("a", MaxReplyLength+1)} {
		if _, err := svc.AddReply(context.Background(), "fan", st.ID, text); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %d chars got %v", len(text), err)
		}
	}
}

func TestRepliesListAndDelete(t *testing.T) {
	repo := newStatusRepoStub()
	st := repo.put(models.Status{UserID: "biz-1"})
	svc := newService(repo, &uploaderStub{}, &notifierStub{})
	ctx := context.Background()

	reply, err := svc.AddReply(ctx, "fan", st.ID, "hello")
	if err != nil {
		t.Fatalf("AddReply returned error: %v", err)
	}
	replies, err := svc.ListReplies(ctx, st.ID, 1, 20)
	if err != nil || len(replies) != 1 {
		t.Fatalf("expected 1 reply got %d (%v)", len(replies), err)
	}
	if _, err := svc.ListReplies(ctx, st.ID, 0, 20); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
	if err := svc.DeleteReply(ctx, "someone-else", reply.ID); !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("expected not found for foreign reply got %v", err)
	}
	if err := svc.DeleteReply(ctx, "fan", reply.ID); err != nil {
		t.Fatalf("DeleteReply returned error: %v", err)
	}
}

func TestByUserFlagsViewed(t *testing.T) {
	repo := newStatusRepoStub()
	author := uuid.NewString()
	seen := repo.put(models.Status{UserID: author})
	repo.put(models.Status{UserID: author})
	repo.views[seen.ID+"|viewer"] = 100
	svc := newService(repo, &uploaderStub{}, &notifierStub{})

	items, err := svc.ByUser(context.Background(), "viewer", author)
	if err != nil {
		t.Fatalf("ByUser returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items got %d", len(items))
	}
	for _, item := range items {
		if item.Viewed != (item.ID == seen.ID) {
			t.Fatalf("unexpected viewed flag for %s: %v", item.ID, item.Viewed)
		}
	}
}

func TestCleanupExpired(t *testing.T) {
	repo := newStatusRepoStub()
	repo.expired = 7
	svc := newService(repo, &uploaderStub{}, &notifierStub{})

	n, err := svc.CleanupExpired(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("expected 7 removed got %d (%v)", n, err)
	}
}
