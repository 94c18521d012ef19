package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/config"
)

// ObjectStore persists encoded media and hands back a public URL.
type ObjectStore interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// ObjectPath builds "{folder}/{prefix}_{unixMillis}_{uuid8}.{ext}".
func ObjectPath(folder, prefix, ext string, now time.Time) string {
	folder = strings.Trim(folder, "/")
	name := fmt.Sprintf("%s_%d_%s.%s", prefix, now.UnixMilli(), uuid.NewString()[:8], strings.TrimPrefix(ext, "."))
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// New selects the object store implementation named by cfg.Driver.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "", config.DriverHTTP:
		return NewHTTPStore(cfg.BaseURL, cfg.Bucket, cfg.ServiceKey, nil)
	case config.DriverS3:
		return NewS3Store(ctx, cfg)
	case config.DriverMinio:
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// keyAfterPrefix strips an exact public URL prefix and any query or fragment.
func keyAfterPrefix(url, prefix string) (string, bool) {
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := stripQuery(strings.TrimPrefix(url, prefix))
	return key, key != ""
}

// keyAfterBucket returns the object key following the first "/{bucket}/"
// segment of a public URL. Folders may share the bucket's name, so the first
// occurrence is the bucket itself.
func keyAfterBucket(url, bucket string) (string, bool) {
	marker := "/" + bucket + "/"
	idx := strings.Index(url, marker)
	if idx < 0 {
		return "", false
	}
	key := stripQuery(url[idx+len(marker):])
	return key, key != ""
}

func stripQuery(key string) string {
	if q := strings.IndexAny(key, "?#"); q >= 0 {
		return key[:q]
	}
	return key
}
