package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/config"
)

type recordedRequest struct {
	method      string
	path        string
	apikey      string
	auth        string
	contentType string
	body        string
}

type fakeStorageAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func (f *fakeStorageAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		apikey:      r.Header.Get("apikey"),
		auth:        r.Header.Get("Authorization"),
		contentType: r.Header.Get("Content-Type"),
		body:        string(body),
	})
	status := f.status
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"message":"ok"}`))
}

func newTestHTTPStore(t *testing.T, api *fakeStorageAPI) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store, err := NewHTTPStore(srv.URL+"/storage/v1/object/", "zoner-media", "service-key", srv.Client())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestHTTPStoreUpload(t *testing.T) {
	api := &fakeStorageAPI{}
	store := newTestHTTPStore(t, api)

	url, err := store.Upload(context.Background(), "statuses/image_1_abcd1234.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	want := store.BaseURL + "/public/zoner-media/statuses/image_1_abcd1234.jpg"
	if url != want {
		t.Fatalf("expected %s got %s", want, url)
	}

	if len(api.requests) != 1 {
		t.Fatalf("expected one request got %d", len(api.requests))
	}
	req := api.requests[0]
	if req.method != http.MethodPut {
		t.Fatalf("expected PUT got %s", req.method)
	}
	if req.path != "/storage/v1/object/zoner-media/statuses/image_1_abcd1234.jpg" {
		t.Fatalf("unexpected path %s", req.path)
	}
	if req.apikey != "service-key" || req.auth != "Bearer service-key" {
		t.Fatalf("expected apikey and bearer headers got %q %q", req.apikey, req.auth)
	}
	if req.contentType != "image/jpeg" || req.body != "jpeg-bytes" {
		t.Fatalf("unexpected payload %q %q", req.contentType, req.body)
	}
}

func TestHTTPStoreUploadFailureIsUploadError(t *testing.T) {
	api := &fakeStorageAPI{status: http.StatusBadRequest}
	store := newTestHTTPStore(t, api)

	_, err := store.Upload(context.Background(), "statuses/a.jpg", "image/jpeg", []byte("x"))
	if !apperr.Is(err, apperr.KindUpload) {
		t.Fatalf("expected upload error got %v", err)
	}
	if len(api.requests) != 1 {
		t.Fatalf("expected no retry got %d requests", len(api.requests))
	}
}

func TestHTTPStoreDeleteReversesPublicURL(t *testing.T) {
	api := &fakeStorageAPI{}
	store := newTestHTTPStore(t, api)

	url, err := store.Upload(context.Background(), "profile-pictures/image_9_deadbeef.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Delete(context.Background(), url); err != nil {
		t.Fatalf("delete: %v", err)
	}

	req := api.requests[1]
	if req.method != http.MethodDelete {
		t.Fatalf("expected DELETE got %s", req.method)
	}
	if req.path != "/storage/v1/object/zoner-media/profile-pictures/image_9_deadbeef.png" {
		t.Fatalf("unexpected delete path %s", req.path)
	}
	if req.auth != "Bearer service-key" {
		t.Fatalf("expected bearer header on delete got %q", req.auth)
	}

	if err := store.Delete(context.Background(), "https://elsewhere.example/other/file.png"); !apperr.Is(err, apperr.KindUpload) {
		t.Fatalf("expected foreign url to be rejected got %v", err)
	}
}

func TestHTTPStoreDeleteFolderNamedLikeBucket(t *testing.T) {
	api := &fakeStorageAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store, err := NewHTTPStore(srv.URL+"/storage/v1/object", "statuses", "service-key", srv.Client())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	url, err := store.Upload(context.Background(), "statuses/image_1_abcd.jpg", "image/jpeg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Delete(context.Background(), url); err != nil {
		t.Fatalf("delete: %v", err)
	}

	const want = "/storage/v1/object/statuses/statuses/image_1_abcd.jpg"
	if api.requests[0].path != want {
		t.Fatalf("expected upload path %s got %s", want, api.requests[0].path)
	}
	if api.requests[1].path != want {
		t.Fatalf("expected delete path %s got %s", want, api.requests[1].path)
	}

	if err := store.Delete(context.Background(), srv.URL+"/storage/v1/object/statuses/image_1_abcd.jpg"); !apperr.Is(err, apperr.KindUpload) {
		t.Fatalf("expected non-public url to be rejected got %v", err)
	}
}

func TestNewHTTPStoreRequiresSettings(t *testing.T) {
	if _, err := NewHTTPStore("", "bucket", "key", nil); err == nil {
		t.Fatal("expected missing base url error")
	}
	if _, err := NewHTTPStore("https://x.example/storage/v1/object", " ", "key", nil); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestObjectPath(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	got := ObjectPath("/statuses/", "image", ".jpg", now)

	pattern := regexp.MustCompile(`^statuses/image_1700000000123_[0-9a-f-]{8}\.jpg$`)
	if !pattern.MatchString(got) {
		t.Fatalf("unexpected object path %s", got)
	}
	if ObjectPath("statuses", "image", "jpg", now) == got {
		t.Fatal("expected unique suffix per call")
	}
}

func TestKeyFromPublicURL(t *testing.T) {
	cases := []struct {
		name, url, base, want string
		ok                    bool
	}{
		{"base prefix", "https://cdn.example/media/statuses/a.jpg", "https://cdn.example/media", "statuses/a.jpg", true},
		{"bucket segment", "http://minio:9000/zoner-media/statuses/a.jpg", "", "statuses/a.jpg", true},
		{"query stripped", "http://minio:9000/zoner-media/statuses/a.jpg?X-Amz=1", "", "statuses/a.jpg", true},
		{"folder named like bucket", "http://minio:9000/zoner-media/zoner-media/a.jpg", "", "zoner-media/a.jpg", true},
		{"bare key", "statuses/a.jpg", "", "statuses/a.jpg", true},
		{"foreign", "https://other.example/x/a.jpg", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := keyFromPublicURL(tc.url, tc.base, "zoner-media")
			if ok != tc.ok || got != tc.want {
				t.Fatalf("expected %q/%v got %q/%v", tc.want, tc.ok, got, ok)
			}
		})
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), config.ObjectStoreConfig{Driver: "ftp"}); err == nil {
		t.Fatal("expected unknown driver error")
	}

	store, err := New(context.Background(), config.ObjectStoreConfig{Driver: config.DriverHTTP, BaseURL: "https://x.example/storage/v1/object", Bucket: "b"})
	if err != nil {
		t.Fatalf("new http store: %v", err)
	}
	if _, ok := store.(*HTTPStore); !ok {
		t.Fatalf("expected *HTTPStore got %T", store)
	}
}
