package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zoner/backend/internal/apperr"
)

// HTTPStore talks to a REST object storage API such as Supabase Storage.
// BaseURL is the object root, e.g. https://x.supabase.co/storage/v1/object.
type HTTPStore struct {
	BaseURL    string
	Bucket     string
	ServiceKey string
	Client     *http.Client
}

var _ ObjectStore = (*HTTPStore)(nil)

// NewHTTPStore validates the settings and returns a store.
func NewHTTPStore(baseURL, bucket, serviceKey string, client *http.Client) (*HTTPStore, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("http storage: base url is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("http storage: bucket is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{BaseURL: baseURL, Bucket: bucket, ServiceKey: serviceKey, Client: client}, nil
}

// PublicURL is the unauthenticated address of path.
func (s *HTTPStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/public/%s/%s", s.BaseURL, s.Bucket, strings.TrimLeft(path, "/"))
}

// Upload PUTs data at path. Any non-2xx answer is an upload error.
func (s *HTTPStore) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", apperr.Upload("store object", fmt.Errorf("empty object path"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return "", apperr.Upload("build upload request", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)

	if err := s.do(req); err != nil {
		return "", apperr.Upload("upload object", err)
	}
	return s.PublicURL(path), nil
}

// Delete removes the object behind a URL previously returned by Upload.
func (s *HTTPStore) Delete(ctx context.Context, url string) error {
	key, ok := keyAfterPrefix(url, s.PublicURL(""))
	if !ok {
		return apperr.Upload("delete object", fmt.Errorf("url %q is outside bucket %s", url, s.Bucket))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
	if err != nil {
		return apperr.Upload("build delete request", err)
	}
	s.authorize(req)

	if err := s.do(req); err != nil {
		return apperr.Upload("delete object", err)
	}
	return nil
}

func (s *HTTPStore) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.BaseURL, s.Bucket, key)
}

func (s *HTTPStore) authorize(req *http.Request) {
	req.Header.Set("apikey", s.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
}

func (s *HTTPStore) do(req *http.Request) error {
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
