// Package uploads runs client media through validation, transcoding and
// object storage.
package uploads

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"path"
	"time"

	"github.com/disintegration/imaging"

	"github.com/zoner/backend/internal/jobs"
	"github.com/zoner/backend/internal/logging"
	"github.com/zoner/backend/internal/media"
	"github.com/zoner/backend/internal/storage"
)

// Runner executes CPU-bound work off the request goroutine.
type Runner interface {
	Do(ctx context.Context, fn jobs.Func) error
}

// ImageCompressor fits images into a size band.
type ImageCompressor interface {
	Compress(data []byte, info media.ImageInfo, profile media.Profile) (media.CompressedImage, error)
}

// VideoProcessor normalises videos into the mp4 envelope.
type VideoProcessor interface {
	Transcode(ctx context.Context, data []byte, originalName string, info media.VideoInfo) (media.Video, error)
}

// Result is the stored object plus its preview metadata.
type Result struct {
	URL            string
	MIME           string
	BlurHash       string
	DurationMillis int64
}

// Service chains the media pipeline with the object store.
type Service struct {
	Validator *media.Validator
	Images    ImageCompressor
	Videos    VideoProcessor
	Store     storage.ObjectStore
	Runner    Runner
	NowFunc   func() time.Time
}

// UploadImage validates, compresses and stores an image under folder. Folders
// containing "profile" use the profile picture band.
func (s *Service) UploadImage(ctx context.Context, data []byte, folder string) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "uploads.image")
	defer span.End()

	info, err := s.Validator.ValidateImage(data, media.CategoryForFolder(folder))
	if err != nil {
		return Result{}, err
	}

	var (
		compressed media.CompressedImage
		hash       string
	)
	err = s.run(ctx, func(ctx context.Context) error {
		out, err := s.Images.Compress(data, info, media.ProfileFor(info.Category))
		if err != nil {
			return err
		}
		compressed = out
		hash = blurHashOf(ctx, out.Image)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	objectPath := storage.ObjectPath(folder, "image", compressed.Extension, s.now())
	url, err := s.Store.Upload(ctx, objectPath, compressed.MIME, compressed.Data)
	if err != nil {
		return Result{}, err
	}

	logging.FromContext(ctx).Info("image stored",
		slog.String("path", objectPath),
		slog.Int("bytes", len(compressed.Data)),
		slog.Int("quality", compressed.Quality),
	)
	return Result{URL: url, MIME: compressed.MIME, BlurHash: hash}, nil
}

// UploadVideo validates, transcodes and stores a video under folder. The
// BlurHash comes from the extracted thumbnail when there is one.
func (s *Service) UploadVideo(ctx context.Context, data []byte, originalName, folder string) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "uploads.video")
	defer span.End()

	info, err := s.Validator.ValidateVideo(ctx, data)
	if err != nil {
		return Result{}, err
	}

	var (
		video media.Video
		hash  string
	)
	err = s.run(ctx, func(ctx context.Context) error {
		out, err := s.Videos.Transcode(ctx, data, originalName, info)
		if err != nil {
			return err
		}
		video = out
		if len(out.Thumbnail) > 0 {
			if thumb, err := imaging.Decode(bytes.NewReader(out.Thumbnail)); err == nil {
				hash = blurHashOf(ctx, thumb)
			} else {
				logging.FromContext(ctx).Warn("decode video thumbnail", slog.Any("error", err))
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	objectPath := path.Join(folder, video.Name)
	url, err := s.Store.Upload(ctx, objectPath, "video/mp4", video.Data)
	if err != nil {
		return Result{}, err
	}

	return Result{
		URL:            url,
		MIME:           "video/mp4",
		BlurHash:       hash,
		DurationMillis: video.Duration.Milliseconds(),
	}, nil
}

// Delete removes a previously stored object.
func (s *Service) Delete(ctx context.Context, url string) error {
	return s.Store.Delete(ctx, url)
}

func (s *Service) run(ctx context.Context, fn jobs.Func) error {
	if s.Runner == nil {
		return fn(ctx)
	}
	return s.Runner.Do(ctx, fn)
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now()
}

// blurHashOf never fails the upload; a missing hash only degrades the preview.
func blurHashOf(ctx context.Context, img image.Image) string {
	if img == nil {
		return ""
	}
	hash, err := media.BlurHash(img)
	if err != nil {
		logging.FromContext(ctx).Warn("compute blurhash", slog.Any("error", err))
		return ""
	}
	return hash
}
