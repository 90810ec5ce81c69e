package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediastream/internal/domain"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "bbb.mkv"))
	writeFile(t, filepath.Join(root, "music", "song.mp3"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	catalogue := NewCatalogue("")
	count, err := catalogue.LoadDirectory(root)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (txt skipped)", count)
	}

	video, err := catalogue.GetVideo(context.Background(), "movies/bbb")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.Container != "mkv" {
		t.Errorf("container = %q", video.Container)
	}

	if _, err := catalogue.GetAudio(context.Background(), "music/song"); err != nil {
		t.Errorf("GetAudio: %v", err)
	}
	// Audio files are not visible as video.
	if _, err := catalogue.GetVideo(context.Background(), "music/song"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("audio as video: err = %v, want ErrNotFound", err)
	}
}

func TestGetVideoMissingFile(t *testing.T) {
	catalogue := NewCatalogue("")
	catalogue.AddVideo(domain.MediaHandle{ID: "m1", Path: "/nonexistent/movie.mkv"})

	if _, err := catalogue.GetVideo(context.Background(), "m1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for missing source file", err)
	}
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "movie.mp4")
	writeFile(t, path)

	catalogue := NewCatalogue("")
	catalogue.AddVideo(domain.MediaHandle{ID: "m1", Path: path})
	catalogue.Remove("m1")

	if _, err := catalogue.GetVideo(context.Background(), "m1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after Remove", err)
	}
}

func TestSettingsRoundtrip(t *testing.T) {
	catalogue := NewCatalogue("")

	settings, err := catalogue.GetTranscodingSettings(context.Background())
	if err != nil {
		t.Fatalf("GetTranscodingSettings: %v", err)
	}
	if settings != domain.DefaultTranscodingSettings() {
		t.Errorf("initial settings = %+v, want defaults", settings)
	}

	settings.Preset = "fast"
	settings.PrefetchSegments = 4
	if err := catalogue.SetTranscodingSettings(context.Background(), settings); err != nil {
		t.Fatalf("SetTranscodingSettings: %v", err)
	}

	got, _ := catalogue.GetTranscodingSettings(context.Background())
	if got.Preset != "fast" || got.PrefetchSegments != 4 {
		t.Errorf("settings = %+v", got)
	}
}

func TestSetSettingsDefaults(t *testing.T) {
	catalogue := NewCatalogue("")

	defaults := domain.DefaultTranscodingSettings()
	defaults.SegmentDurationSec = 4
	catalogue.SetSettingsDefaults(defaults)

	got, err := catalogue.GetTranscodingSettings(context.Background())
	if err != nil {
		t.Fatalf("GetTranscodingSettings: %v", err)
	}
	if got.SegmentDurationSec != 4 {
		t.Errorf("SegmentDurationSec = %d, want 4", got.SegmentDurationSec)
	}

	// A stored update wins over the deployment baseline.
	got.SegmentDurationSec = 8
	if err := catalogue.SetTranscodingSettings(context.Background(), got); err != nil {
		t.Fatal(err)
	}
	got, _ = catalogue.GetTranscodingSettings(context.Background())
	if got.SegmentDurationSec != 8 {
		t.Errorf("SegmentDurationSec = %d, want 8", got.SegmentDurationSec)
	}
}

func TestVerifyBearer(t *testing.T) {
	catalogue := NewCatalogue("tok")

	if _, err := catalogue.VerifyBearer(context.Background(), "tok"); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
	if _, err := catalogue.VerifyBearer(context.Background(), "nope"); !errors.Is(err, domain.ErrUnauthorised) {
		t.Errorf("invalid token: err = %v", err)
	}

	open := NewCatalogue("")
	if _, err := open.VerifyBearer(context.Background(), ""); err != nil {
		t.Errorf("auth disabled: %v", err)
	}
}
