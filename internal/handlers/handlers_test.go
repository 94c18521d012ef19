package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zoner/backend/internal/accounts"
	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/middleware"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/status"
)

type tokenAuthenticator struct{}

func (tokenAuthenticator) Authenticate(_ context.Context, token string) (auth.Principal, error) {
	switch token {
	case "business-token":
		return auth.Principal{UserID: "biz-1", Role: models.RoleBusiness}, nil
	case "user-token":
		return auth.Principal{UserID: "user-1", Role: models.RoleUser}, nil
	}
	return auth.Principal{}, auth.ErrInvalidToken
}

type accountStub struct {
	AccountService
	loginErr      error
	completeErr   error
	completeName  string
	completePic   []byte
	checkedUserID string
	loggedOut     string
	logoutRefresh string
}

func (a *accountStub) Login(_ context.Context, email, password string) (accounts.AuthResult, error) {
	if a.loginErr != nil {
		return accounts.AuthResult{}, a.loginErr
	}
	return accounts.AuthResult{
		User:   models.User{ID: "user-1", Email: email, Role: models.RoleUser, RegistrationStage: models.StageProfileCompleted},
		Tokens: models.SessionTokens{AccessToken: "access", RefreshToken: "refresh", AccessExpiresAt: time.UnixMilli(1_700_000_000_000)},
	}, nil
}

func (a *accountStub) CheckUsername(_ context.Context, username, userID string) (accounts.UsernameCheck, error) {
	a.checkedUserID = userID
	return accounts.UsernameCheck{Username: "@" + username, Available: true}, nil
}

func (a *accountStub) CompleteProfile(_ context.Context, userID, username string, picture []byte) (models.User, error) {
	a.completeName = username
	a.completePic = picture
	if a.completeErr != nil {
		return models.User{}, a.completeErr
	}
	return models.User{ID: userID, Username: username, RegistrationStage: models.StageProfileCompleted}, nil
}

func (a *accountStub) Logout(_ context.Context, p auth.Principal, refresh string) error {
	a.loggedOut = p.UserID
	a.logoutRefresh = refresh
	return nil
}

type passwordStub struct {
	calls int
}

func (p *passwordStub) ForgotPassword(context.Context, string) error {
	p.calls++
	return nil
}

func (p *passwordStub) ResetPassword(_ context.Context, _, otp, _ string) error {
	if otp != "123456" {
		return accounts.ErrInvalidOTP
	}
	return nil
}

type statusStub struct {
	StatusService
	created     status.CreateInput
	createdBy   auth.Principal
	discoverErr error
	page        feed.Page
	gotPage     [2]int
	updateErr   error
	deletedID   string
}

func (s *statusStub) Create(_ context.Context, author auth.Principal, in status.CreateInput) (models.Status, error) {
	s.created = in
	s.createdBy = author
	created := time.UnixMilli(1_700_000_000_000).UTC()
	return models.Status{
		ID:        "status-1",
		UserID:    author.UserID,
		MediaURL:  "https://cdn.example.com/statuses/a.jpg",
		MediaType: in.MediaType,
		Caption:   in.Caption,
		CreatedAt: created,
		UpdatedAt: created,
		ExpiresAt: created.Add(models.StatusTTL),
		Version:   0,
	}, nil
}

func (s *statusStub) Discover(_ context.Context, _ string, page, size int) (feed.Page, error) {
	s.gotPage = [2]int{page, size}
	if s.discoverErr != nil {
		return feed.Page{}, s.discoverErr
	}
	return s.page, nil
}

func (s *statusStub) UpdateCaption(_ context.Context, _, _, _ string) (models.Status, error) {
	return models.Status{}, s.updateErr
}

func (s *statusStub) Delete(_ context.Context, _, id string) error {
	s.deletedID = id
	return nil
}

type countingLimiter struct {
	limit int
	seen  map[string]int
}

func (l *countingLimiter) Allow(key string) bool {
	if l.seen == nil {
		l.seen = make(map[string]int)
	}
	l.seen[key]++
	return l.seen[key] <= l.limit
}

var _ middleware.RateLimiter = (*countingLimiter)(nil)

type fixture struct {
	mux       *http.ServeMux
	accounts  *accountStub
	passwords *passwordStub
	statuses  *statusStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{accounts: &accountStub{}, passwords: &passwordStub{}, statuses: &statusStub{}}
	f.mux = http.NewServeMux()
	RegisterRoutes(f.mux, Dependencies{
		Accounts:      f.accounts,
		Passwords:     f.passwords,
		Statuses:      f.statuses,
		Authenticator: tokenAuthenticator{},
		OTPLimiter:    &countingLimiter{limit: 2},
	})
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func jsonRequest(t *testing.T, method, target, token string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, target, token string, fields map[string]string, fileField string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "upload.jpg")
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestLoginReturnsEnvelopeWithTokens(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, jsonRequest(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "a@example.com", Password: "password1"}))
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected success got %d %+v", rec.Code, env)
	}
	data := env.Data.(map[string]any)
	tokens := data["tokens"].(map[string]any)
	if tokens["accessToken"] != "access" || tokens["accessExpiresAt"].(float64) != 1_700_000_000_000 {
		t.Fatalf("unexpected tokens %v", tokens)
	}
	user := data["user"].(map[string]any)
	if user["nextAction"] != "login" {
		t.Fatalf("expected nextAction login got %v", user["nextAction"])
	}
}

func TestLoginMapsErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"unverified", accounts.ErrEmailNotVerified, http.StatusForbidden, accounts.ErrEmailNotVerified.Message},
		{"bad credentials", accounts.ErrInvalidCredentials, http.StatusUnauthorized, accounts.ErrInvalidCredentials.Message},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.accounts.loginErr = tc.err

			rec, env := f.do(t, jsonRequest(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "a@example.com", Password: "x"}))
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if env.Success || env.Message != tc.msg {
				t.Fatalf("expected message %q got %+v", tc.msg, env)
			}
		})
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	rec, env := f.do(t, req)
	if rec.Code != http.StatusBadRequest || env.Message != "invalid request body" {
		t.Fatalf("expected 400 invalid body got %d %+v", rec.Code, env)
	}
}

func TestCheckUsernameUsesOptionalPrincipal(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, jsonRequest(t, http.MethodPost, "/auth/check-username", "", checkUsernameRequest{Username: "shop"}))
	if rec.Code != http.StatusOK || f.accounts.checkedUserID != "" {
		t.Fatalf("expected anonymous check got %d user %q", rec.Code, f.accounts.checkedUserID)
	}

	rec, _ = f.do(t, jsonRequest(t, http.MethodPost, "/auth/check-username", "user-token", checkUsernameRequest{Username: "shop"}))
	if rec.Code != http.StatusOK || f.accounts.checkedUserID != "user-1" {
		t.Fatalf("expected caller id to be forwarded got %q", f.accounts.checkedUserID)
	}
}

func TestCompleteProfileConflictIncludesSuggestions(t *testing.T) {
	f := newFixture(t)
	f.accounts.completeErr = accounts.NewUsernameConflictError("@shop", []string{"@shop1", "@shop_2"})

	req := multipartRequest(t, "/auth/complete-profile", "user-token", map[string]string{"username": "shop"}, "profilePic", []byte("img"))
	rec, env := f.do(t, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	data := env.Data.(map[string]any)
	suggestions := data["suggestions"].([]any)
	if len(suggestions) != 2 || suggestions[0] != "@shop1" {
		t.Fatalf("unexpected suggestions %v", suggestions)
	}
	if f.accounts.completeName != "shop" || string(f.accounts.completePic) != "img" {
		t.Fatalf("expected form values to be forwarded got %q %q", f.accounts.completeName, f.accounts.completePic)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/status", "/status/discover", "/notifications"} {
		rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", target, rec.Code)
		}
	}
}

func TestLogoutForwardsRefreshToken(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, jsonRequest(t, http.MethodPost, "/auth/logout", "user-token", refreshRequest{RefreshToken: "r-1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if f.accounts.loggedOut != "user-1" || f.accounts.logoutRefresh != "r-1" {
		t.Fatalf("unexpected logout call %q %q", f.accounts.loggedOut, f.accounts.logoutRefresh)
	}
}

func TestPasswordRoutesAreRateLimited(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, jsonRequest(t, http.MethodPost, "/password/forgot", "", forgotPasswordRequest{Email: "a@example.com"}))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, rec.Code)
		}
	}
	rec, _ := f.do(t, jsonRequest(t, http.MethodPost, "/password/resend-otp", "", forgotPasswordRequest{Email: "a@example.com"}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if f.passwords.calls != 2 {
		t.Fatalf("expected limiter to block the service call, got %d calls", f.passwords.calls)
	}
}

func TestPasswordResetInvalidOTP(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, jsonRequest(t, http.MethodPost, "/password/reset", "", resetPasswordRequest{Email: "a@example.com", OTP: "000000", NewPassword: "newpassword"}))
	if rec.Code != http.StatusBadRequest || env.Message != accounts.ErrInvalidOTP.Message {
		t.Fatalf("expected invalid otp got %d %+v", rec.Code, env)
	}
}

func TestCreateStatus(t *testing.T) {
	f := newFixture(t)

	req := multipartRequest(t, "/status", "business-token", map[string]string{
		"caption":        "grand opening",
		"mediaType":      "image",
		"durationMillis": "0",
	}, "file", []byte{0xff, 0xd8, 0xff})
	rec, env := f.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d %+v", rec.Code, env)
	}
	if f.statuses.created.MediaType != models.MediaImage || f.statuses.created.Caption != "grand opening" {
		t.Fatalf("unexpected input %+v", f.statuses.created)
	}
	if f.statuses.created.Filename != "upload.jpg" || len(f.statuses.created.Data) != 3 {
		t.Fatalf("expected file to be forwarded got %q %d", f.statuses.created.Filename, len(f.statuses.created.Data))
	}
	data := env.Data.(map[string]any)
	if data["createdAt"].(float64) != 1_700_000_000_000 || data["expiresAt"].(float64) != 1_700_000_000_000+86_400_000 {
		t.Fatalf("expected epoch millisecond timestamps got %v", data)
	}
}

func TestCreateStatusRejections(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		fields map[string]string
		file   bool
		status int
	}{
		{"regular user", "user-token", map[string]string{"mediaType": "IMAGE"}, true, http.StatusForbidden},
		{"bad media type", "business-token", map[string]string{"mediaType": "GIF"}, true, http.StatusBadRequest},
		{"bad duration", "business-token", map[string]string{"mediaType": "VIDEO", "durationMillis": "abc"}, true, http.StatusBadRequest},
		{"missing file", "business-token", map[string]string{"mediaType": "IMAGE"}, false, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			field := ""
			if tc.file {
				field = "file"
			}
			rec, _ := f.do(t, multipartRequest(t, "/status", tc.token, tc.fields, field, []byte("data")))
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestDiscoverPaging(t *testing.T) {
	f := newFixture(t)
	updated := time.UnixMilli(1_700_000_100_000).UTC()
	f.statuses.page = feed.Page{
		Groups: []feed.Group{{
			AuthorID:   "biz-2",
			AuthorName: "Bakery",
			Statuses: []feed.Item{{
				Status: models.Status{ID: "s-1", MediaType: models.MediaVideo, DurationMillis: 4000, LikeCount: 3, UpdatedAt: updated},
				Viewed: true,
			}},
			UpdatedAt: updated,
		}},
		HasMore:     true,
		TotalPages:  3,
		CurrentPage: 1,
	}

	req := httptest.NewRequest(http.MethodGet, "/status/discover", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec, env := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if f.statuses.gotPage != [2]int{1, feed.DefaultPageSize} {
		t.Fatalf("expected default paging got %v", f.statuses.gotPage)
	}

	raw, _ := json.Marshal(env.Data)
	var resp StatusGroupsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if !resp.HasMore || resp.TotalPages != 3 || len(resp.StatusGroups) != 1 {
		t.Fatalf("unexpected feed metadata %+v", resp)
	}
	item := resp.StatusGroups[0].Statuses[0]
	if !item.IsViewed || item.LikesCount != 3 || item.LastUpdated != 1_700_000_100_000 {
		t.Fatalf("unexpected status item %+v", item)
	}

	req = httptest.NewRequest(http.MethodGet, "/status/discover?page=abc", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec, _ = f.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric page got %d", rec.Code)
	}

	f.statuses.discoverErr = apperr.Validation("page must be positive")
	req = httptest.NewRequest(http.MethodGet, "/status/discover?page=0&pageSize=51", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec, _ = f.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range paging got %d", rec.Code)
	}
	if f.statuses.gotPage != [2]int{0, 51} {
		t.Fatalf("expected raw paging to reach the service got %v", f.statuses.gotPage)
	}
}

func TestUpdateCaptionConflict(t *testing.T) {
	f := newFixture(t)
	f.statuses.updateErr = status.ErrVersionChanged

	rec, env := f.do(t, jsonRequest(t, http.MethodPatch, "/status/s-1", "business-token", captionRequest{Caption: "new"}))
	if rec.Code != http.StatusConflict || env.Message != status.ErrVersionChanged.Message {
		t.Fatalf("expected 409 got %d %+v", rec.Code, env)
	}

	f.statuses.updateErr = status.ErrStatusNotFound
	rec, _ = f.do(t, jsonRequest(t, http.MethodPatch, "/status/s-1", "business-token", captionRequest{Caption: "new"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestDeleteStatusRequiresID(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/status", nil)
	req.Header.Set("Authorization", "Bearer business-token")
	rec, _ := f.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/status?id=s-9", nil)
	req.Header.Set("Authorization", "Bearer business-token")
	rec, _ = f.do(t, req)
	if rec.Code != http.StatusOK || f.statuses.deletedID != "s-9" {
		t.Fatalf("expected delete of s-9 got %d %q", rec.Code, f.statuses.deletedID)
	}
}
