package probe

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"mediastream/internal/domain"
)

// ---------------------------------------------------------------------------
// Unit tests — no ffprobe binary needed
// ---------------------------------------------------------------------------

func TestProbeEmptyPath(t *testing.T) {
	p := New("")
	tests := []struct {
		name string
		path string
	}{
		{"empty string", ""},
		{"whitespace only", "   "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Probe(context.Background(), tc.path)
			if err == nil {
				t.Fatal("expected error for empty path, got nil")
			}
			if err.Error() != "file path is required" {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewDefaultBinary(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		want   string
	}{
		{"empty defaults to ffprobe", "", "ffprobe"},
		{"whitespace defaults to ffprobe", "   ", "ffprobe"},
		{"custom binary preserved", "/usr/local/bin/ffprobe", "/usr/local/bin/ffprobe"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := New(tc.binary)
			if p.binary != tc.want {
				t.Fatalf("New(%q).binary = %q, want %q", tc.binary, p.binary, tc.want)
			}
		})
	}
}

func TestParseProbeOutputFullPayload(t *testing.T) {
	payload := []byte(`{
		"streams": [
			{
				"index": 0,
				"codec_type": "video",
				"codec_name": "h264",
				"codec_long_name": "H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10",
				"width": 1920,
				"height": 1080,
				"r_frame_rate": "24000/1001",
				"avg_frame_rate": "24000/1001",
				"disposition": {"default": 1, "forced": 0}
			},
			{
				"index": 1,
				"codec_type": "audio",
				"codec_name": "aac",
				"codec_long_name": "AAC (Advanced Audio Coding)",
				"channels": 6,
				"channel_layout": "5.1",
				"sample_rate": "48000",
				"bit_rate": "384000",
				"r_frame_rate": "0/0",
				"avg_frame_rate": "0/0",
				"tags": {"language": "eng", "title": "Surround"},
				"disposition": {"default": 1, "forced": 0}
			},
			{
				"index": 2,
				"codec_type": "subtitle",
				"codec_name": "subrip",
				"tags": {"language": "fin"},
				"disposition": {"default": 0, "forced": 1}
			},
			{
				"index": 3,
				"codec_type": "attachment",
				"codec_name": "ttf"
			}
		],
		"format": {"duration": "5399.654000"}
	}`)

	result, err := parseProbeOutput(payload)
	if err != nil {
		t.Fatalf("parseProbeOutput() error: %v", err)
	}

	if result.DurationSec != 5400 {
		t.Fatalf("DurationSec = %d, want 5400", result.DurationSec)
	}
	if len(result.Streams) != 3 {
		t.Fatalf("len(Streams) = %d, want 3 (attachment dropped)", len(result.Streams))
	}

	video := result.Streams[0]
	if video.Kind != domain.StreamVideo || video.Index != 0 {
		t.Fatalf("stream 0 = %+v, want video at index 0", video)
	}
	if video.Width != 1920 || video.Height != 1080 {
		t.Fatalf("video dimensions = %dx%d, want 1920x1080", video.Width, video.Height)
	}
	if video.FrameRate != 23.976 {
		t.Fatalf("video FrameRate = %v, want 23.976", video.FrameRate)
	}
	if !video.Default || video.Forced {
		t.Fatalf("video dispositions = default %v forced %v, want true/false", video.Default, video.Forced)
	}

	audio := result.Streams[1]
	if audio.Kind != domain.StreamAudio || audio.Index != 1 {
		t.Fatalf("stream 1 = %+v, want audio at index 1", audio)
	}
	if audio.Channels != 6 || audio.ChannelLayout != "5.1" {
		t.Fatalf("audio channels = %d/%q, want 6/5.1", audio.Channels, audio.ChannelLayout)
	}
	if audio.SampleRateHz != 48000 {
		t.Fatalf("audio SampleRateHz = %d, want 48000", audio.SampleRateHz)
	}
	if audio.BitRateBps != 384000 {
		t.Fatalf("audio BitRateBps = %d, want 384000", audio.BitRateBps)
	}
	if audio.Language != "eng" || audio.Title != "Surround" {
		t.Fatalf("audio tags = %q/%q, want eng/Surround", audio.Language, audio.Title)
	}

	sub := result.Streams[2]
	if sub.Kind != domain.StreamSubtitle || sub.Index != 2 {
		t.Fatalf("stream 2 = %+v, want subtitle at index 2", sub)
	}
	if !sub.Forced {
		t.Fatal("subtitle Forced = false, want true")
	}
}

func TestParseProbeOutputInvalidJSON(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestParseProbeOutputEmptyObject(t *testing.T) {
	result, err := parseProbeOutput([]byte("{}"))
	if err != nil {
		t.Fatalf("parseProbeOutput() error: %v", err)
	}
	if result.DurationSec != 0 || len(result.Streams) != 0 {
		t.Fatalf("expected zero result, got %+v", result)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name string
		real string
		avg  string
		want float64
	}{
		{"ntsc film fraction", "24000/1001", "24000/1001", 23.976},
		{"exact integer fraction", "25/1", "25/1", 25},
		{"real zero falls back to avg", "0/0", "30000/1001", 29.97},
		{"both unusable", "0/0", "0/0", 0},
		{"empty strings", "", "", 0},
		{"division by zero", "24/0", "", 0},
		{"bare number accepted", "23.976", "", 23.976},
		{"garbage", "abc", "def", 0},
		{"real wins over avg", "60/1", "30/1", 60},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseFrameRate(tc.real, tc.avg)
			if got != tc.want {
				t.Fatalf("parseFrameRate(%q, %q) = %v, want %v", tc.real, tc.avg, got, tc.want)
			}
		})
	}
}

func TestParseProbeOutputDurationRounding(t *testing.T) {
	tests := []struct {
		name     string
		duration string
		want     int
	}{
		{"rounds down", "17.400000", 17},
		{"rounds up", "17.500000", 18},
		{"whole seconds", "18.000000", 18},
		{"negative ignored", "-4.2", 0},
		{"unparseable ignored", "n/a", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := []byte(`{"streams": [], "format": {"duration": "` + tc.duration + `"}}`)
			result, err := parseProbeOutput(payload)
			if err != nil {
				t.Fatalf("parseProbeOutput() error: %v", err)
			}
			if result.DurationSec != tc.want {
				t.Fatalf("DurationSec = %d, want %d", result.DurationSec, tc.want)
			}
		})
	}
}

func TestGetTagCaseInsensitive(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		key  string
		want string
	}{
		{
			name: "exact match",
			tags: map[string]string{"language": "eng"},
			key:  "language",
			want: "eng",
		},
		{
			name: "uppercase match",
			tags: map[string]string{"LANGUAGE": "eng"},
			key:  "language",
			want: "eng",
		},
		{
			name: "lowercase match from mixed key",
			tags: map[string]string{"title": "Director's Commentary"},
			key:  "TITLE",
			want: "Director's Commentary",
		},
		{
			name: "no match",
			tags: map[string]string{"codec": "aac"},
			key:  "language",
			want: "",
		},
		{
			name: "nil map",
			tags: nil,
			key:  "language",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := getTag(tc.tags, tc.key)
			if got != tc.want {
				t.Fatalf("getTag(%v, %q) = %q, want %q", tc.tags, tc.key, got, tc.want)
			}
		})
	}
}

func TestProbeMissingBinaryIsTransient(t *testing.T) {
	p := New("/nonexistent/ffprobe-binary")
	result, err := p.Probe(context.Background(), "/tmp/whatever.mkv")
	if err == nil {
		t.Fatal("expected error for missing binary, got nil")
	}
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if result.DurationSec != 0 || len(result.Streams) != 0 {
		t.Fatalf("expected zero result on failure, got %+v", result)
	}
}

// ---------------------------------------------------------------------------
// Integration tests — skipped when ffprobe is unavailable
// ---------------------------------------------------------------------------

func ffprobeAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe binary not available, skipping integration test")
	}
}

func TestProbeValidFile(t *testing.T) {
	ffprobeAvailable(t)

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg binary not available, cannot generate test fixture")
	}

	tmpFile := t.TempDir() + "/test.mkv"
	cmd := exec.Command(ffmpegPath,
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x64:rate=1",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1",
		"-c:v", "libx264", "-preset", "ultrafast",
		"-c:a", "aac",
		"-metadata:s:a:0", "language=eng",
		"-y", tmpFile,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg failed to create test file: %v\n%s", err, out)
	}

	p := New("")
	result, err := p.Probe(context.Background(), tmpFile)
	if err != nil {
		t.Fatalf("Probe() error: %v", err)
	}

	if result.DurationSec <= 0 {
		t.Fatalf("expected positive duration, got %d", result.DurationSec)
	}

	foundAudio := false
	for _, stream := range result.Streams {
		if stream.Kind == domain.StreamAudio {
			foundAudio = true
			if stream.Codec != "aac" {
				t.Fatalf("expected audio codec aac, got %q", stream.Codec)
			}
			if stream.Language != "eng" {
				t.Fatalf("expected audio language eng, got %q", stream.Language)
			}
		}
	}
	if !foundAudio {
		t.Fatal("expected at least one audio stream")
	}
}

func TestProbeTimeout(t *testing.T) {
	ffprobeAvailable(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	// Let the tiny timeout expire.
	time.Sleep(2 * time.Millisecond)

	p := New("")
	_, err := p.Probe(ctx, "/dev/null")
	if err == nil {
		t.Fatal("expected error from expired context, got nil")
	}
}
