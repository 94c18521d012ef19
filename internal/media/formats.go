package media

import (
	"strings"

	"github.com/disintegration/imaging"
)

// Category selects limits and compression profile for an upload destination.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryProfile
)

func (c Category) String() string {
	if c == CategoryProfile {
		return "profile"
	}
	return "general"
}

// CategoryForFolder maps an object storage folder to its category. Any folder
// naming profile pictures uses the profile band.
func CategoryForFolder(folder string) Category {
	if strings.Contains(strings.ToLower(folder), "profile") {
		return CategoryProfile
	}
	return CategoryGeneral
}

type imageFormat struct {
	extension string
	lossless  bool
	encoder   imaging.Format
}

var supportedImages = map[string]imageFormat{
	"image/jpeg": {extension: "jpg", encoder: imaging.JPEG},
	"image/webp": {extension: "webp", encoder: imaging.JPEG},
	"image/png":  {extension: "png", lossless: true, encoder: imaging.PNG},
	"image/gif":  {extension: "gif", lossless: true, encoder: imaging.GIF},
	"image/bmp":  {extension: "bmp", lossless: true, encoder: imaging.BMP},
	"image/tiff": {extension: "tiff", lossless: true, encoder: imaging.TIFF},
}

var supportedVideos = map[string]string{
	"video/mp4":        "mp4",
	"video/x-m4v":      "m4v",
	"video/quicktime":  "mov",
	"video/webm":       "webm",
	"video/x-matroska": "mkv",
	"video/3gpp":       "3gp",
}

// SupportedImageType reports whether mime is an accepted image type.
func SupportedImageType(mime string) bool {
	_, ok := supportedImages[mime]
	return ok
}

// SupportedVideoType reports whether mime is an accepted video type.
func SupportedVideoType(mime string) bool {
	_, ok := supportedVideos[mime]
	return ok
}
