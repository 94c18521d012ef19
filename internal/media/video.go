package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/logging"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// VideoSettings is the fixed output envelope for transcoded videos.
type VideoSettings struct {
	Width             int
	Height            int
	VideoBitrate      string
	MaxFrameRate      float64
	PixelFormat       string
	Preset            string
	CRF               int
	AudioBitrate      string
	ThumbnailFraction float64
}

// DefaultVideoSettings returns the H.264 mp4 envelope used for statuses.
func DefaultVideoSettings() VideoSettings {
	return VideoSettings{
		Width:             720,
		Height:            1280,
		VideoBitrate:      "1500k",
		MaxFrameRate:      30,
		PixelFormat:       "yuv420p",
		Preset:            "fast",
		CRF:               23,
		AudioBitrate:      "128k",
		ThumbnailFraction: 0.1,
	}
}

// Probe is the subset of ffprobe output the pipeline needs.
type Probe struct {
	Duration  time.Duration
	HasVideo  bool
	HasAudio  bool
	Width     int
	Height    int
	FrameRate float64
}

// Video is a transcoded video plus its representative still.
type Video struct {
	Data      []byte
	Thumbnail []byte
	Name      string
	Duration  time.Duration
	HasAudio  bool
}

// VideoTranscoder shells out to ffmpeg and ffprobe. Every call works in its
// own temporary directory which is removed before returning.
type VideoTranscoder struct {
	FFmpeg   string
	FFprobe  string
	Run      CommandRunner
	Timeout  time.Duration
	TempDir  string
	Settings VideoSettings
	NowFunc  func() time.Time
}

// NewVideoTranscoder constructs a transcoder using the given binaries.
func NewVideoTranscoder(ffmpeg, ffprobe string, timeout time.Duration) *VideoTranscoder {
	if strings.TrimSpace(ffmpeg) == "" {
		ffmpeg = "ffmpeg"
	}
	if strings.TrimSpace(ffprobe) == "" {
		ffprobe = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &VideoTranscoder{
		FFmpeg:   ffmpeg,
		FFprobe:  ffprobe,
		Run:      defaultCommandRunner,
		Timeout:  timeout,
		Settings: DefaultVideoSettings(),
	}
}

// ProbeBytes writes data to a scratch file and probes it.
func (t *VideoTranscoder) ProbeBytes(ctx context.Context, data []byte) (Probe, error) {
	dir, err := os.MkdirTemp(t.TempDir, "zoner-probe-*")
	if err != nil {
		return Probe{}, apperr.Processing("create probe workspace", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return Probe{}, apperr.Processing("write probe input", err)
	}
	return t.Probe(ctx, input)
}

// Probe reads stream metadata for the file at path.
func (t *VideoTranscoder) Probe(ctx context.Context, path string) (Probe, error) {
	execCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	out, err := t.runner()(execCtx, t.FFprobe, "-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		if execCtx.Err() != nil {
			return Probe{}, apperr.Processing("probe video", execCtx.Err())
		}
		return Probe{}, apperr.Validation("video could not be read")
	}

	var payload struct {
		Streams []struct {
			CodecType    string `json:"codec_type"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			AvgFrameRate string `json:"avg_frame_rate"`
			RFrameRate   string `json:"r_frame_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return Probe{}, apperr.Processing("parse ffprobe output", err)
	}

	var probe Probe
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			if probe.HasVideo {
				continue
			}
			probe.HasVideo = true
			probe.Width = stream.Width
			probe.Height = stream.Height
			probe.FrameRate = parseFrameRate(stream.AvgFrameRate)
			if probe.FrameRate == 0 {
				probe.FrameRate = parseFrameRate(stream.RFrameRate)
			}
		case "audio":
			probe.HasAudio = true
		}
	}

	if seconds, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && seconds > 0 {
		probe.Duration = time.Duration(seconds * float64(time.Second))
	}

	return probe, nil
}

// Transcode converts data into the configured envelope and grabs a thumbnail
// at ThumbnailFraction of the duration. A missing audio track is encoded with
// no audio stream at all.
func (t *VideoTranscoder) Transcode(ctx context.Context, data []byte, originalName string, info VideoInfo) (Video, error) {
	execCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp(t.TempDir, "zoner-video-*")
	if err != nil {
		return Video{}, apperr.Processing("create transcode workspace", err)
	}
	defer os.RemoveAll(dir)

	ext := info.Extension
	if ext == "" {
		ext = "mp4"
	}
	input := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return Video{}, apperr.Processing("write transcode input", err)
	}

	output := filepath.Join(dir, "output.mp4")
	if _, err := t.runner()(execCtx, t.FFmpeg, t.transcodeArgs(input, output, info.Probe)...); err != nil {
		return Video{}, apperr.Processing("transcode video", err)
	}

	encoded, err := os.ReadFile(output)
	if err != nil {
		return Video{}, apperr.Processing("read transcoded video", err)
	}
	if len(encoded) == 0 {
		return Video{}, apperr.Processing("transcode video", errors.New("ffmpeg produced an empty file"))
	}

	video := Video{
		Data:     encoded,
		Name:     t.outputName(originalName),
		Duration: info.Probe.Duration,
		HasAudio: info.Probe.HasAudio,
	}

	thumb, err := t.thumbnail(execCtx, input, dir, info.Probe.Duration)
	if err != nil {
		logging.FromContext(ctx).Warn("video thumbnail extraction failed", "error", err)
	} else {
		video.Thumbnail = thumb
	}

	return video, nil
}

func (t *VideoTranscoder) transcodeArgs(input, output string, probe Probe) []string {
	s := t.Settings
	// Fit inside the frame, then letterbox to exactly Width x Height.
	scale := fmt.Sprintf("scale=w=%[1]d:h=%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1", s.Width, s.Height)

	args := []string{
		"-y", "-i", input,
		"-vf", scale,
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-crf", strconv.Itoa(s.CRF),
		"-b:v", s.VideoBitrate,
		"-maxrate", s.VideoBitrate,
		"-bufsize", doubleBitrate(s.VideoBitrate),
		"-pix_fmt", s.PixelFormat,
	}
	if probe.FrameRate == 0 || probe.FrameRate > s.MaxFrameRate {
		args = append(args, "-r", strconv.FormatFloat(s.MaxFrameRate, 'f', -1, 64))
	}
	if probe.HasAudio {
		args = append(args, "-c:a", "aac", "-b:a", s.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	return append(args, "-movflags", "+faststart", "-f", "mp4", output)
}

func (t *VideoTranscoder) thumbnail(ctx context.Context, input, dir string, duration time.Duration) ([]byte, error) {
	output := filepath.Join(dir, "thumbnail.jpg")
	offset := duration.Seconds() * t.Settings.ThumbnailFraction
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}
	if _, err := t.runner()(ctx, t.FFmpeg, args...); err != nil {
		return nil, fmt.Errorf("extract thumbnail: %w", err)
	}
	thumb, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	if len(thumb) == 0 {
		return nil, errors.New("thumbnail is empty")
	}
	return thumb, nil
}

func (t *VideoTranscoder) outputName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = sanitizeName(base)
	if base == "" {
		base = "upload"
	}
	now := time.Now
	if t.NowFunc != nil {
		now = t.NowFunc
	}
	return fmt.Sprintf("video_%s_%d_%s.mp4", base, now().UnixMilli(), uuid.NewString()[:8])
}

func (t *VideoTranscoder) runner() CommandRunner {
	if t.Run == nil {
		return defaultCommandRunner
	}
	return t.Run
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseFrameRate(raw string) float64 {
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		f, _ := strconv.ParseFloat(raw, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func doubleBitrate(bitrate string) string {
	if n, err := strconv.Atoi(strings.TrimSuffix(bitrate, "k")); err == nil {
		return strconv.Itoa(n*2) + "k"
	}
	return bitrate
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s: %w", binary, err)
	}
	return out, nil
}
