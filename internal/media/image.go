package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/zoner/backend/internal/apperr"
)

const (
	startQuality = 90
	qualityStep  = 10
)

// Profile is a compression size/quality band.
type Profile struct {
	Name         string
	TargetBytes  int
	MaxDimension int
	MinQuality   int
}

var (
	StandardProfile = Profile{Name: "standard", TargetBytes: 100 * 1024, MaxDimension: 1024, MinQuality: 10}
	PictureProfile  = Profile{Name: "profile", TargetBytes: 500 * 1024, MaxDimension: 2048, MinQuality: 80}
)

// ProfileFor returns the compression band for an upload category.
func ProfileFor(category Category) Profile {
	if category == CategoryProfile {
		return PictureProfile
	}
	return StandardProfile
}

// CompressedImage is the encoded output of the image transcoder.
type CompressedImage struct {
	Data      []byte
	MIME      string
	Extension string
	Width     int
	Height    int
	Quality   int
	Image     image.Image
}

// ImageTranscoder resizes and recompresses images into a size band.
type ImageTranscoder struct{}

// Compress encodes data under profile.TargetBytes where the quality floor
// allows it. If the primary path fails the raw bytes are decoded again and
// forced to JPEG; a second failure is a processing error.
func (t ImageTranscoder) Compress(data []byte, info ImageInfo, profile Profile) (CompressedImage, error) {
	out, err := t.compress(data, info, profile)
	if err == nil && len(out.Data) > 0 {
		return out, nil
	}
	if err == nil {
		err = errors.New("encoder produced no output")
	}

	fallback, fbErr := t.forceJPEG(data, profile)
	if fbErr != nil {
		return CompressedImage{}, apperr.Processing("compress image", errors.Join(err, fbErr))
	}
	return fallback, nil
}

func (t ImageTranscoder) compress(data []byte, info ImageInfo, profile Profile) (CompressedImage, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return CompressedImage{}, fmt.Errorf("decode image: %w", err)
	}
	img = fit(img, profile.MaxDimension)

	if info.Lossless {
		format := supportedImages[info.MIME]
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, format.encoder); err != nil {
			return CompressedImage{}, fmt.Errorf("encode %s: %w", format.extension, err)
		}
		if buf.Len() <= profile.TargetBytes {
			return newCompressed(buf.Bytes(), info.MIME, format.extension, img, 100), nil
		}
	}

	return encodeJPEGWithin(img, profile)
}

func (t ImageTranscoder) forceJPEG(data []byte, profile Profile) (CompressedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return CompressedImage{}, fmt.Errorf("fallback decode: %w", err)
	}
	img = fit(img, profile.MaxDimension)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(startQuality)); err != nil {
		return CompressedImage{}, fmt.Errorf("fallback encode: %w", err)
	}
	if buf.Len() == 0 {
		return CompressedImage{}, errors.New("fallback encoder produced no output")
	}
	return newCompressed(buf.Bytes(), "image/jpeg", "jpg", img, startQuality), nil
}

// encodeJPEGWithin steps quality down from startQuality until the output fits
// the target or the next step would cross the profile's floor.
func encodeJPEGWithin(img image.Image, profile Profile) (CompressedImage, error) {
	flat := flatten(img)

	var buf bytes.Buffer
	for quality := startQuality; ; quality -= qualityStep {
		buf.Reset()
		if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return CompressedImage{}, fmt.Errorf("encode jpeg q%d: %w", quality, err)
		}
		if buf.Len() <= profile.TargetBytes || quality-qualityStep < profile.MinQuality {
			out := make([]byte, buf.Len())
			copy(out, buf.Bytes())
			return newCompressed(out, "image/jpeg", "jpg", img, quality), nil
		}
	}
}

func newCompressed(data []byte, mime, ext string, img image.Image, quality int) CompressedImage {
	b := img.Bounds()
	return CompressedImage{
		Data:      data,
		MIME:      mime,
		Extension: ext,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Quality:   quality,
		Image:     img,
	}
}

func fit(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	if maxDimension <= 0 || (b.Dx() <= maxDimension && b.Dy() <= maxDimension) {
		return img
	}
	return imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
}

// flatten composites transparent pixels onto white before a JPEG encode.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
