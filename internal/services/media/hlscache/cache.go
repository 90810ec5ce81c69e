package hlscache

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/metrics"
	"mediastream/internal/services/media/encoder"
)

// generationTimeoutSlack pads the per-segment wall-clock budget so that
// slow encoder warm-up on the first segment does not count against the
// per-second transcode rate.
const generationTimeoutSlack = 30 * time.Second

type invoker interface {
	Run(ctx context.Context, args []string) error
}

type encoderSource interface {
	Active(ctx context.Context, settings domain.TranscodingSettings) encoder.Descriptor
}

type settingsSource interface {
	Current(ctx context.Context) domain.TranscodingSettings
}

// EventSink receives generation lifecycle notifications. Implementations
// must not block the caller.
type EventSink interface {
	Publish(event string, payload any)
}

// Cache materialises MPEG-TS segments on demand and serves repeat requests
// from disk.
//
// Directory layout:
//
//	{root}/{mediaID}/a{audioTrack}/{tier}/{index}.ts
type Cache struct {
	root     string
	invoker  invoker
	encoders encoderSource
	settings settingsSource
	logger   *slog.Logger

	flights *flightRegistry
	events  EventSink

	healthMu  sync.Mutex
	lastErr   string
	lastErrAt time.Time
}

func New(root string, inv invoker, encoders encoderSource, settings settingsSource, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	_ = os.MkdirAll(root, 0o755)
	return &Cache{
		root:     root,
		invoker:  inv,
		encoders: encoders,
		settings: settings,
		logger:   logger,
		flights:  newFlightRegistry(),
	}
}

// SetEvents wires an event sink. Call during startup, before serving.
func (c *Cache) SetEvents(sink EventSink) {
	c.events = sink
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// SegmentPath returns the on-disk location for one segment key.
func (c *Cache) SegmentPath(id domain.MediaID, audioTrack, tierName string, index int) string {
	return filepath.Join(c.root, string(id), "a"+audioTrack, tierName, strconv.Itoa(index)+".ts")
}

// Fetch returns the on-disk path of one segment, generating it on a cache
// miss. Concurrent requests for the same key share a single generation and
// observe the same outcome. Generation is detached from ctx: a disconnecting
// requester never cancels work other waiters still want.
func (c *Cache) Fetch(ctx context.Context, media domain.MediaHandle, audioTrack string, tier domain.QualityTier, index int) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("%w: segment index %d", domain.ErrInvalid, index)
	}

	settings := c.settings.Current(ctx)
	path := c.SegmentPath(media.ID, audioTrack, tier.Name, index)

	if c.haveSegment(path) {
		metrics.SegmentCacheHits.Inc()
		c.touch(path)
		go c.prefetch(media, audioTrack, tier, index, settings)
		return path, nil
	}
	metrics.SegmentCacheMisses.Inc()

	key := segmentFlightKey(media.ID, audioTrack, tier.Name, index)
	entry, owner := c.flights.lookupOrInsert(key)

	if !owner {
		select {
		case <-entry.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if c.haveSegment(path) {
			c.touch(path)
			go c.prefetch(media, audioTrack, tier, index, settings)
			return path, nil
		}
		if entry.err != nil {
			return "", entry.err
		}
		return "", fmt.Errorf("%w: segment missing after generation", domain.ErrGenerationFailed)
	}

	err := c.generate(media, audioTrack, tier, index, settings)
	entry.complete(err)
	c.flights.remove(key)

	if err != nil {
		return "", err
	}
	if !c.haveSegment(path) {
		return "", fmt.Errorf("%w: segment missing after generation", domain.ErrGenerationFailed)
	}
	go c.prefetch(media, audioTrack, tier, index, settings)
	return path, nil
}

// haveSegment reports whether a usable segment exists at path. A zero-byte
// file is the leftover of a crashed generation and is deleted on sight.
func (c *Cache) haveSegment(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return false
	}
	return true
}

// touch refreshes atime and mtime so the TTL sweeper retains hot segments.
func (c *Cache) touch(path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		c.logger.Debug("segment touch failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// generate runs one transcoder invocation for one segment. The output goes
// to a sibling temp file and is renamed into place on success, so readers
// never observe partial content. Bounded by wall clock, not by any request.
func (c *Cache) generate(media domain.MediaHandle, audioTrack string, tier domain.QualityTier, index int, settings domain.TranscodingSettings) error {
	segDur := settings.SegmentDurationSec
	start := index * segDur
	clipped := media.DurationSec - start
	if clipped > segDur {
		clipped = segDur
	}
	if clipped <= 0 {
		return fmt.Errorf("%w: segment index %d out of range", domain.ErrInvalid, index)
	}

	final := c.SegmentPath(media.ID, audioTrack, tier.Name, index)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return c.failGeneration(media, tier, index, fmt.Errorf("create segment dir: %w", err))
	}
	tmp, err := os.CreateTemp(dir, strconv.Itoa(index)+"-*.tmp")
	if err != nil {
		return c.failGeneration(media, tier, index, fmt.Errorf("create temp segment: %w", err))
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	timeout := time.Duration(5*segDur)*time.Second + generationTimeoutSlack
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := buildSegmentArgs(segmentArgConfig{
		SourcePath: media.Path,
		AudioTrack: audioTrack,
		Tier:       tier,
		Encoder:    c.encoders.Active(ctx, settings),
		Settings:   settings,
		StartSec:   start,
		ClippedSec: clipped,
		OutputPath: tmpPath,
	})

	metrics.InflightGenerations.Inc()
	genStart := time.Now()
	runErr := c.invoker.Run(ctx, args)
	took := time.Since(genStart)
	metrics.InflightGenerations.Dec()
	metrics.SegmentGenerationDuration.Observe(took.Seconds())

	if runErr != nil {
		_ = os.Remove(tmpPath)
		metrics.SegmentGenerationsTotal.WithLabelValues(tier.Name, "error").Inc()
		return c.failGeneration(media, tier, index, runErr)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		metrics.SegmentGenerationsTotal.WithLabelValues(tier.Name, "error").Inc()
		return c.failGeneration(media, tier, index, fmt.Errorf("rename segment: %w", err))
	}

	metrics.SegmentGenerationsTotal.WithLabelValues(tier.Name, "ok").Inc()
	c.logger.Debug("segment generated",
		slog.String("mediaId", string(media.ID)),
		slog.String("tier", tier.Name),
		slog.Int("index", index),
		slog.Duration("took", took),
	)
	c.publish("segment_generated", map[string]any{
		"mediaId":    string(media.ID),
		"audioTrack": audioTrack,
		"tier":       tier.Name,
		"index":      index,
		"tookMs":     took.Milliseconds(),
	})
	return nil
}

// failGeneration logs the full cause (transcoder stderr included) and
// returns the terse error surfaced to clients.
func (c *Cache) failGeneration(media domain.MediaHandle, tier domain.QualityTier, index int, cause error) error {
	c.logger.Error("segment generation failed",
		slog.String("mediaId", string(media.ID)),
		slog.String("tier", tier.Name),
		slog.Int("index", index),
		slog.String("error", cause.Error()),
	)
	c.healthMu.Lock()
	c.lastErr = cause.Error()
	c.lastErrAt = time.Now()
	c.healthMu.Unlock()
	c.publish("segment_failed", map[string]any{
		"mediaId": string(media.ID),
		"tier":    tier.Name,
		"index":   index,
	})
	return fmt.Errorf("%w: %v", domain.ErrGenerationFailed, cause)
}

// prefetch warms the next few segments after a successful read. All work is
// detached; failures are logged and never surface to the reader.
func (c *Cache) prefetch(media domain.MediaHandle, audioTrack string, tier domain.QualityTier, index int, settings domain.TranscodingSettings) {
	count := settings.PrefetchSegments
	if count <= 0 {
		return
	}
	segDur := settings.SegmentDurationSec
	lastIndex := (media.DurationSec+segDur-1)/segDur - 1

	for k := 1; k <= count; k++ {
		next := index + k
		if next > lastIndex {
			return
		}
		if c.haveSegment(c.SegmentPath(media.ID, audioTrack, tier.Name, next)) {
			continue
		}
		key := prefetchFlightKey(media.ID, audioTrack, tier.Name, next)
		entry, owner := c.flights.lookupOrInsert(key)
		if !owner {
			continue
		}
		metrics.PrefetchStartsTotal.Inc()
		go func(next int, key string, entry *inflight) {
			err := c.generate(media, audioTrack, tier, next, settings)
			entry.complete(err)
			c.flights.remove(key)
			if err != nil {
				metrics.PrefetchFailuresTotal.Inc()
				c.logger.Warn("segment prefetch failed",
					slog.String("mediaId", string(media.ID)),
					slog.String("tier", tier.Name),
					slog.Int("index", next),
					slog.String("error", err.Error()),
				)
			}
		}(next, key, entry)
	}
}

// Purge removes every cached segment for one media item.
func (c *Cache) Purge(id domain.MediaID) error {
	dir := filepath.Join(c.root, string(id))
	if err := os.RemoveAll(dir); err != nil {
		time.Sleep(500 * time.Millisecond)
		if retryErr := os.RemoveAll(dir); retryErr != nil {
			metrics.CacheCleanupErrors.Inc()
			return fmt.Errorf("purge media cache: %w", retryErr)
		}
	}
	return nil
}

// Stats describes the cache contents as seen by a lock-free walk.
type Stats struct {
	TotalBytes   int64 `json:"totalBytes"`
	MediaCount   int   `json:"mediaCount"`
	SegmentCount int   `json:"segmentCount"`
}

// Stats walks the cache root without locks; results are best-effort and may
// race with concurrent generations.
func (c *Cache) Stats() Stats {
	var stats Stats

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache stats walk failed",
				slog.String("root", c.root),
				slog.String("error", err.Error()),
			)
		}
		return stats
	}
	for _, entry := range entries {
		if entry.IsDir() {
			stats.MediaCount++
		}
	}

	_ = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".ts") {
			return nil
		}
		stats.SegmentCount++
		if info, err := d.Info(); err == nil {
			stats.TotalBytes += info.Size()
		}
		return nil
	})
	return stats
}

// InflightCount reports how many generations are registered right now.
func (c *Cache) InflightCount() int {
	return c.flights.size()
}

// LastGenerationError returns the most recent generation failure, if any.
func (c *Cache) LastGenerationError() (string, time.Time) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	return c.lastErr, c.lastErrAt
}

func (c *Cache) publish(event string, payload any) {
	if c.events != nil {
		c.events.Publish(event, payload)
	}
}
