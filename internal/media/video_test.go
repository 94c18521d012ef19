package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zoner/backend/internal/apperr"
)

type fakeFFmpeg struct {
	calls     [][]string
	failAt    int
	emptyOut  bool
	probeJSON string
}

func (f *fakeFFmpeg) run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{binary}, args...))
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, errors.New("exit status 1")
	}
	if binary == "ffprobe" {
		return []byte(f.probeJSON), nil
	}
	out := args[len(args)-1]
	payload := []byte("encoded")
	if f.emptyOut {
		payload = nil
	}
	if err := os.WriteFile(out, payload, 0o600); err != nil {
		return nil, err
	}
	return nil, nil
}

func newTestTranscoder(t *testing.T, fake *fakeFFmpeg) *VideoTranscoder {
	t.Helper()
	tr := NewVideoTranscoder("ffmpeg", "ffprobe", time.Minute)
	tr.Run = fake.run
	tr.TempDir = t.TempDir()
	tr.NowFunc = func() time.Time { return time.UnixMilli(1700000000000) }
	return tr
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch files to be removed, found %d entries", len(entries))
	}
}

func TestTranscodeWithoutAudioDropsAudioStream(t *testing.T) {
	fake := &fakeFFmpeg{}
	tr := newTestTranscoder(t, fake)

	info := VideoInfo{MIME: "video/mp4", Extension: "mp4", Probe: Probe{HasVideo: true, Duration: 20 * time.Second, FrameRate: 24}}
	video, err := tr.Transcode(context.Background(), []byte("raw"), "My Clip!.mov", info)
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}

	if len(fake.calls) != 2 {
		t.Fatalf("expected transcode and thumbnail calls got %d", len(fake.calls))
	}
	args := fake.calls[0]
	if !slices.Contains(args, "-an") || slices.Contains(args, "-c:a") {
		t.Fatalf("expected silent output args got %v", args)
	}
	if slices.Contains(args, "-r") {
		t.Fatalf("expected no frame rate cap for 24fps source got %v", args)
	}
	for _, want := range []string{"libx264", "yuv420p", "1500k", "+faststart"} {
		if !slices.Contains(args, want) {
			t.Fatalf("expected %q in args %v", want, args)
		}
	}
	vf := slices.Index(args, "-vf")
	if vf < 0 || !strings.Contains(args[vf+1], "scale=w=720:h=1280:force_original_aspect_ratio=decrease") ||
		!strings.Contains(args[vf+1], "pad=720:1280:(ow-iw)/2:(oh-ih)/2") {
		t.Fatalf("expected scale and pad to 720x1280 got %v", args)
	}

	thumbArgs := fake.calls[1]
	idx := slices.Index(thumbArgs, "-ss")
	if idx < 0 || thumbArgs[idx+1] != "2.000" {
		t.Fatalf("expected thumbnail at 10%% of duration got %v", thumbArgs)
	}

	if string(video.Data) != "encoded" || string(video.Thumbnail) != "encoded" {
		t.Fatalf("unexpected output %q / %q", video.Data, video.Thumbnail)
	}
	if !strings.HasPrefix(video.Name, "video_MyClip_1700000000000_") || !strings.HasSuffix(video.Name, ".mp4") {
		t.Fatalf("unexpected output name %s", video.Name)
	}
	if video.HasAudio {
		t.Fatal("expected HasAudio to be false")
	}

	assertEmptyDir(t, tr.TempDir)
}

func TestTranscodeWithAudioAndHighFrameRate(t *testing.T) {
	fake := &fakeFFmpeg{}
	tr := newTestTranscoder(t, fake)

	info := VideoInfo{Extension: "mp4", Probe: Probe{HasVideo: true, HasAudio: true, Duration: 10 * time.Second, FrameRate: 60}}
	if _, err := tr.Transcode(context.Background(), []byte("raw"), "clip.mp4", info); err != nil {
		t.Fatalf("transcode: %v", err)
	}

	args := fake.calls[0]
	if slices.Contains(args, "-an") {
		t.Fatalf("expected audio to be kept got %v", args)
	}
	idx := slices.Index(args, "-c:a")
	if idx < 0 || args[idx+1] != "aac" {
		t.Fatalf("expected aac audio got %v", args)
	}
	idx = slices.Index(args, "-r")
	if idx < 0 || args[idx+1] != "30" {
		t.Fatalf("expected 30fps cap got %v", args)
	}
}

func TestTranscodeThumbnailFailureIsNotFatal(t *testing.T) {
	fake := &fakeFFmpeg{failAt: 2}
	tr := newTestTranscoder(t, fake)

	video, err := tr.Transcode(context.Background(), []byte("raw"), "clip.mp4", VideoInfo{Extension: "mp4", Probe: Probe{HasVideo: true, Duration: time.Second}})
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if video.Thumbnail != nil {
		t.Fatal("expected no thumbnail")
	}
	assertEmptyDir(t, tr.TempDir)
}

func TestTranscodeFailures(t *testing.T) {
	cases := []struct {
		name string
		fake *fakeFFmpeg
	}{
		{"ffmpeg exits non-zero", &fakeFFmpeg{failAt: 1}},
		{"empty output", &fakeFFmpeg{emptyOut: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTranscoder(t, tc.fake)
			_, err := tr.Transcode(context.Background(), []byte("raw"), "clip.mp4", VideoInfo{Extension: "mp4", Probe: Probe{HasVideo: true}})
			if !apperr.Is(err, apperr.KindProcessing) {
				t.Fatalf("expected processing error got %v", err)
			}
			assertEmptyDir(t, tr.TempDir)
		})
	}
}

func TestProbeBytesParsesStreams(t *testing.T) {
	fake := &fakeFFmpeg{probeJSON: `{
		"streams": [
			{"codec_type": "video", "width": 1080, "height": 1920, "avg_frame_rate": "0/0", "r_frame_rate": "30000/1001"},
			{"codec_type": "audio"}
		],
		"format": {"duration": "12.500000"}
	}`}
	tr := newTestTranscoder(t, fake)

	probe, err := tr.ProbeBytes(context.Background(), []byte("raw"))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !probe.HasVideo || !probe.HasAudio {
		t.Fatalf("expected video and audio streams got %+v", probe)
	}
	if probe.Duration != 12500*time.Millisecond {
		t.Fatalf("expected 12.5s got %s", probe.Duration)
	}
	if probe.FrameRate < 29.9 || probe.FrameRate > 30 {
		t.Fatalf("expected ~29.97fps got %f", probe.FrameRate)
	}
	if probe.Width != 1080 || probe.Height != 1920 {
		t.Fatalf("unexpected dimensions %dx%d", probe.Width, probe.Height)
	}
	assertEmptyDir(t, tr.TempDir)
}

func TestProbeUnreadableInputIsValidationError(t *testing.T) {
	fake := &fakeFFmpeg{failAt: 1}
	tr := newTestTranscoder(t, fake)

	_, err := tr.Probe(context.Background(), filepath.Join(tr.TempDir, "missing"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
}
