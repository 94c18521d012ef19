package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/zoner/backend/internal/apperr"
)

const (
	MaxImageBytes     = 20 * 1024 * 1024
	MaxImageDimension = 4096
	MaxVideoBytes     = 10 * 1024 * 1024
	MaxVideoDuration  = 60 * time.Second
)

// Limits bound what the validator accepts.
type Limits struct {
	MaxImageBytes     int
	MaxImageDimension int
	MaxVideoBytes     int
	MaxVideoDuration  time.Duration
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxImageBytes:     MaxImageBytes,
		MaxImageDimension: MaxImageDimension,
		MaxVideoBytes:     MaxVideoBytes,
		MaxVideoDuration:  MaxVideoDuration,
	}
}

// ImageInfo describes a validated image.
type ImageInfo struct {
	MIME      string
	Extension string
	Width     int
	Height    int
	Lossless  bool
	Category  Category
}

// VideoInfo describes a validated video.
type VideoInfo struct {
	MIME      string
	Extension string
	Probe     Probe
}

// VideoProber inspects video bytes for stream metadata.
type VideoProber interface {
	ProbeBytes(ctx context.Context, data []byte) (Probe, error)
}

// Validator inspects uploads without modifying them. The detected content
// type always wins over any client supplied name or header.
type Validator struct {
	Limits Limits
	Prober VideoProber
}

// NewValidator builds a validator with the default limits.
func NewValidator(prober VideoProber) *Validator {
	return &Validator{Limits: DefaultLimits(), Prober: prober}
}

// ValidateImage checks size, detected type and pixel dimensions.
func (v *Validator) ValidateImage(data []byte, category Category) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, apperr.Validation("image file is empty")
	}
	if len(data) > v.Limits.MaxImageBytes {
		return ImageInfo{}, apperr.Validation(fmt.Sprintf("image exceeds maximum size of %dMB", v.Limits.MaxImageBytes/(1024*1024)))
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ImageInfo{}, apperr.Validation("unrecognised image format")
	}
	format, ok := supportedImages[kind.MIME.Value]
	if !ok {
		return ImageInfo{}, apperr.Validation(fmt.Sprintf("unsupported image type %s", kind.MIME.Value))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, apperr.Validation("image could not be read")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, apperr.Validation("image has no pixels")
	}
	if cfg.Width > v.Limits.MaxImageDimension || cfg.Height > v.Limits.MaxImageDimension {
		return ImageInfo{}, apperr.Validation(fmt.Sprintf("image dimensions %dx%d exceed maximum %dx%d", cfg.Width, cfg.Height, v.Limits.MaxImageDimension, v.Limits.MaxImageDimension))
	}

	return ImageInfo{
		MIME:      kind.MIME.Value,
		Extension: format.extension,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Lossless:  format.lossless,
		Category:  category,
	}, nil
}

// ValidateVideo checks size, detected type and duration.
func (v *Validator) ValidateVideo(ctx context.Context, data []byte) (VideoInfo, error) {
	if len(data) == 0 {
		return VideoInfo{}, apperr.Validation("video file is empty")
	}
	if len(data) > v.Limits.MaxVideoBytes {
		return VideoInfo{}, apperr.Validation(fmt.Sprintf("video exceeds maximum size of %dMB", v.Limits.MaxVideoBytes/(1024*1024)))
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return VideoInfo{}, apperr.Validation("unrecognised video format")
	}
	ext, ok := supportedVideos[kind.MIME.Value]
	if !ok {
		return VideoInfo{}, apperr.Validation(fmt.Sprintf("unsupported video type %s", kind.MIME.Value))
	}

	if v.Prober == nil {
		return VideoInfo{}, apperr.Processing("video prober unavailable", nil)
	}
	probe, err := v.Prober.ProbeBytes(ctx, data)
	if err != nil {
		return VideoInfo{}, err
	}
	if !probe.HasVideo {
		return VideoInfo{}, apperr.Validation("file contains no video stream")
	}
	if probe.Duration > v.Limits.MaxVideoDuration {
		return VideoInfo{}, apperr.Validation(fmt.Sprintf("video exceeds maximum duration of %ds", int(v.Limits.MaxVideoDuration.Seconds())))
	}

	return VideoInfo{MIME: kind.MIME.Value, Extension: ext, Probe: probe}, nil
}
