package hlscache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediastream/internal/metrics"
)

const (
	defaultSegmentTTL = 24 * time.Hour
	sweepInitialDelay = 30 * time.Second
	sweepInterval     = time.Hour
)

// Sweeper evicts cold segments by TTL. The first sweep runs shortly after
// startup so a restart clears stale leftovers quickly; after that sweeps are
// hourly. Stop cancels the schedule but lets an in-progress sweep finish.
type Sweeper struct {
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
	events EventSink

	initialDelay time.Duration
	interval     time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastSweep time.Time
	lastFiles int
	lastFreed int64
}

func NewSweeper(cache *Cache, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = defaultSegmentTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cache:        cache,
		ttl:          ttl,
		logger:       logger,
		initialDelay: sweepInitialDelay,
		interval:     sweepInterval,
	}
}

// SetEvents wires an event sink. Call during startup, before Start.
func (s *Sweeper) SetEvents(sink EventSink) {
	s.events = sink
}

// Start launches the sweep schedule. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the schedule and waits for the loop to exit. An in-progress
// sweep completes before Stop returns.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	first := time.NewTimer(s.initialDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
		s.Sweep()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep walks the cache root once, deleting playlist, segment and leftover
// temp files whose last access is older than the TTL and pruning directories
// that became empty. Errors are logged; the next scheduled sweep still fires.
func (s *Sweeper) Sweep() (removed int, freedBytes int64) {
	start := time.Now()
	cutoff := start.Add(-s.ttl)
	before := s.cache.Stats()

	removed = s.sweepDir(s.cache.Root(), cutoff, false)

	after := s.cache.Stats()
	if diff := before.TotalBytes - after.TotalBytes; diff > 0 {
		freedBytes = diff
	}

	metrics.CacheSweepsTotal.Inc()
	metrics.CacheSweptFilesTotal.Add(float64(removed))
	metrics.CacheSweptBytesTotal.Add(float64(freedBytes))

	s.mu.Lock()
	s.lastSweep = start
	s.lastFiles = removed
	s.lastFreed = freedBytes
	s.mu.Unlock()

	s.logger.Info("cache sweep finished",
		slog.Int("removedFiles", removed),
		slog.Int64("freedBytes", freedBytes),
		slog.Duration("took", time.Since(start)),
	)
	if s.events != nil {
		s.events.Publish("cache_sweep", map[string]any{
			"removedFiles": removed,
			"freedBytes":   freedBytes,
			"totalBytes":   after.TotalBytes,
			"segmentCount": after.SegmentCount,
		})
	}
	return removed, freedBytes
}

// sweepDir removes expired files under dir depth-first and, for every
// subdirectory (not the root itself), removes it once it has become empty.
func (s *Sweeper) sweepDir(dir string, cutoff time.Time, removable bool) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			metrics.CacheCleanupErrors.Inc()
			s.logger.Warn("cache sweep read dir failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			removed += s.sweepDir(path, cutoff, true)
			continue
		}
		name := entry.Name()
		// .tmp files are generation scratch; a crash mid-generation can
		// orphan them, so expired ones are swept like segments.
		if !strings.HasSuffix(name, ".ts") && !strings.HasSuffix(name, ".m3u8") && !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		// Cache.touch refreshes mtime together with atime; mtime is the
		// portable access marker.
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			metrics.CacheCleanupErrors.Inc()
			s.logger.Warn("cache sweep remove failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removable {
		// Remove fails on non-empty directories, which is exactly the
		// check we want.
		if err := os.Remove(dir); err == nil {
			s.logger.Debug("removed empty cache dir", slog.String("dir", dir))
		}
	}
	return removed
}

// LastSweep reports when the previous sweep ran and what it removed. The
// zero time means no sweep has run yet.
func (s *Sweeper) LastSweep() (at time.Time, removedFiles int, freedBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.lastFiles, s.lastFreed
}
