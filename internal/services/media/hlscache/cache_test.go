package hlscache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/metrics"
	"mediastream/internal/services/media/encoder"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ---- fakes ----

// fakeInvoker pretends to be ffmpeg: it writes payload to the -y target.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   [][]string
	payload []byte
	err     error
	delay   time.Duration
}

func (f *fakeInvoker) Run(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	out := outputPath(args)
	if out == "" {
		return errors.New("no -y output in args")
	}
	payload := f.payload
	if payload == nil {
		payload = []byte("ts-data")
	}
	return os.WriteFile(out, payload, 0o644)
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func outputPath(args []string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-y" {
			return args[i+1]
		}
	}
	return ""
}

type fakeEncoders struct{ desc encoder.Descriptor }

func (f fakeEncoders) Active(ctx context.Context, settings domain.TranscodingSettings) encoder.Descriptor {
	return f.desc
}

type fakeSettings struct{ settings domain.TranscodingSettings }

func (f fakeSettings) Current(ctx context.Context) domain.TranscodingSettings {
	return f.settings
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func softwareDescriptor() encoder.Descriptor {
	return encoder.Descriptor{Name: "x264", Encoder: "libx264", Kind: encoder.Software, Priority: 100}
}

func newTestCache(t *testing.T, inv *fakeInvoker, settings domain.TranscodingSettings) *Cache {
	t.Helper()
	return New(t.TempDir(), inv, fakeEncoders{desc: softwareDescriptor()}, fakeSettings{settings: settings}, discardLogger())
}

func testMedia(duration int) domain.MediaHandle {
	return domain.MediaHandle{ID: "m1", Path: "/library/film.mkv", DurationSec: duration, Container: "mkv"}
}

func noPrefetchSettings() domain.TranscodingSettings {
	s := domain.DefaultTranscodingSettings()
	s.PrefetchSegments = 0
	return s
}

// ---- tests ----

func TestFetchGeneratesAndCaches(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("720p", settings)

	path, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := filepath.Join(cache.Root(), "m1", "adefault", "720p", "1.ts")
	if path != want {
		t.Errorf("segment path = %q, want %q", path, want)
	}
	if data, err := os.ReadFile(path); err != nil || len(data) == 0 {
		t.Fatalf("segment file unreadable: %v", err)
	}

	// Second fetch is a cache hit: no new transcoder invocation.
	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 1); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if got := inv.callCount(); got != 1 {
		t.Errorf("transcoder invoked %d times, want 1", got)
	}
}

func TestFetchRejectsOutOfRangeIndex(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	tier, _ := domain.TierByName("720p", settings)

	// 18 s / 6 s = 3 segments; index 3 is past the end.
	_, err := cache.Fetch(context.Background(), testMedia(18), domain.AudioTrackDefault, tier, 3)
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	_, err = cache.Fetch(context.Background(), testMedia(18), domain.AudioTrackDefault, tier, -1)
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("negative index err = %v, want ErrInvalid", err)
	}
	if inv.callCount() != 0 {
		t.Errorf("transcoder should not run for invalid indices")
	}
}

func TestFetchSingleFlight(t *testing.T) {
	inv := &fakeInvoker{delay: 50 * time.Millisecond}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("720p", settings)

	const waiters = 8
	var wg sync.WaitGroup
	var failures atomic.Int32
	paths := make([]string, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 2)
			if err != nil {
				failures.Add(1)
				return
			}
			paths[i] = path
		}(i)
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d waiters failed", failures.Load())
	}
	if got := inv.callCount(); got != 1 {
		t.Errorf("transcoder invoked %d times for one key, want 1", got)
	}
	for i := 1; i < waiters; i++ {
		if paths[i] != paths[0] {
			t.Errorf("waiter %d got %q, waiter 0 got %q", i, paths[i], paths[0])
		}
	}
}

func TestFetchWaitersObserveSameFailure(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("encoder exploded"), delay: 20 * time.Millisecond}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("480p", settings)

	const waiters = 4
	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, domain.ErrGenerationFailed) {
			t.Errorf("waiter %d err = %v, want ErrGenerationFailed", i, err)
		}
	}
	// A failed generation must not leave partial output behind.
	path := cache.SegmentPath(media.ID, domain.AudioTrackDefault, tier.Name, 0)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("failed generation left a file at %s", path)
	}
}

func TestFetchDeletesZeroByteLeftover(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("720p", settings)

	// Simulate a crash mid-generation: a zero-byte segment on disk.
	stale := cache.SegmentPath(media.ID, domain.AudioTrackDefault, tier.Name, 0)
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if inv.callCount() != 1 {
		t.Errorf("zero-byte leftover should force regeneration")
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("regenerated segment missing or empty: %v", err)
	}
}

func TestFetchTouchesExistingSegment(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("720p", settings)

	path, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	before := time.Now().Add(-time.Minute)
	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime().Before(before) {
		t.Errorf("read did not refresh access time: mtime %v", info.ModTime())
	}
}

func TestPrefetchWarmsUpcomingSegments(t *testing.T) {
	inv := &fakeInvoker{}
	settings := domain.DefaultTranscodingSettings() // prefetch 2
	cache := newTestCache(t, inv, settings)
	media := testMedia(30) // 5 segments
	tier, _ := domain.TierByName("360p", settings)

	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		s1 := cache.SegmentPath(media.ID, domain.AudioTrackDefault, tier.Name, 1)
		s2 := cache.SegmentPath(media.ID, domain.AudioTrackDefault, tier.Name, 2)
		i1, err1 := os.Stat(s1)
		i2, err2 := os.Stat(s2)
		if err1 == nil && err2 == nil && i1.Size() > 0 && i2.Size() > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("prefetched segments not materialised: %v %v", err1, err2)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Requesting a prefetched segment must not spawn another generation.
	calls := inv.callCount()
	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 1); err != nil {
		t.Fatalf("Fetch prefetched: %v", err)
	}
	if got := inv.callCount(); got != calls {
		t.Errorf("prefetched segment regenerated: %d calls, want %d", got, calls)
	}
}

func TestPrefetchStopsAtLastSegment(t *testing.T) {
	inv := &fakeInvoker{}
	settings := domain.DefaultTranscodingSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18) // segments 0..2
	tier, _ := domain.TierByName("360p", settings)

	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 2); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if got := inv.callCount(); got != 1 {
		t.Errorf("prefetch past the last segment ran %d generations, want 1", got)
	}
}

func TestPurgeRemovesMediaSubtree(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("720p", settings)

	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := cache.Purge(media.ID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cache.Root(), "m1")); !os.IsNotExist(err) {
		t.Errorf("media subtree survived purge")
	}
}

func TestStats(t *testing.T) {
	inv := &fakeInvoker{payload: []byte("0123456789")}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	tier, _ := domain.TierByName("720p", settings)

	for _, id := range []domain.MediaID{"m1", "m2"} {
		media := testMedia(18)
		media.ID = id
		for i := 0; i < 2; i++ {
			if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, i); err != nil {
				t.Fatalf("Fetch %s/%d: %v", id, i, err)
			}
		}
	}

	stats := cache.Stats()
	if stats.MediaCount != 2 {
		t.Errorf("MediaCount = %d, want 2", stats.MediaCount)
	}
	if stats.SegmentCount != 4 {
		t.Errorf("SegmentCount = %d, want 4", stats.SegmentCount)
	}
	if stats.TotalBytes != 40 {
		t.Errorf("TotalBytes = %d, want 40", stats.TotalBytes)
	}
}

func TestAudioTrackVariantsCoexist(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("480p", settings)

	p1, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0)
	if err != nil {
		t.Fatalf("Fetch default: %v", err)
	}
	p2, err := cache.Fetch(context.Background(), media, "2", tier, 0)
	if err != nil {
		t.Fatalf("Fetch track 2: %v", err)
	}
	if p1 == p2 {
		t.Errorf("audio renditions share a path: %s", p1)
	}
	if !strings.Contains(p1, "adefault") || !strings.Contains(p2, filepath.Join("m1", "a2")) {
		t.Errorf("unexpected layout: %s vs %s", p1, p2)
	}
	if inv.callCount() != 2 {
		t.Errorf("expected independent generations per audio track")
	}
}

// The inflight gauge is owned by generate alone; it must read zero once all
// generations, including failed ones, have finished.
func TestInflightGaugeSettlesAtZero(t *testing.T) {
	inv := &fakeInvoker{delay: 20 * time.Millisecond}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(18)
	tier, _ := domain.TierByName("720p", settings)

	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := testutil.ToFloat64(metrics.InflightGenerations); got != 0 {
		t.Errorf("gauge = %v after success, want 0", got)
	}

	inv.err = errors.New("encoder exploded")
	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 1); err == nil {
		t.Fatal("expected generation failure")
	}
	if got := testutil.ToFloat64(metrics.InflightGenerations); got != 0 {
		t.Errorf("gauge = %v after failure, want 0", got)
	}
}

func TestGenerationArgsReachInvoker(t *testing.T) {
	inv := &fakeInvoker{}
	settings := noPrefetchSettings()
	cache := newTestCache(t, inv, settings)
	media := testMedia(20)
	tier, _ := domain.TierByName("720p", settings)

	if _, err := cache.Fetch(context.Background(), media, domain.AudioTrackDefault, tier, 3); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	args := inv.calls[0]
	joined := strings.Join(args, " ")
	// Last segment of a 20 s source at 6 s segments: start 18, clipped 2.
	for _, want := range []string{
		"-ss 18 -i /library/film.mkv",
		"-t 2",
		"-output_ts_offset 18",
		"-f mpegts",
		"-mpegts_copyts 1",
		"-avoid_negative_ts disabled",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q:\n%s", want, joined)
		}
	}
}
