package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mediastream/internal/domain"
)

const settingsCacheTTL = 30 * time.Second

// SettingsFetcher is the slice of the catalogue the cache needs.
type SettingsFetcher interface {
	GetTranscodingSettings(ctx context.Context) (domain.TranscodingSettings, error)
}

// SettingsCache fronts the catalogue's transcoding settings with a single
// time-bounded slot. The first reader after expiry refreshes; a failed
// refresh falls back to the last known value so playback never stalls on
// the settings store. Staleness up to the TTL is accepted by design of the
// consumers (encoder demotion and prefetch depth are coarse knobs).
type SettingsCache struct {
	fetcher  SettingsFetcher
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	defaults domain.TranscodingSettings

	mu        sync.Mutex
	cached    domain.TranscodingSettings
	haveValue bool
	fetchedAt time.Time
}

func NewSettingsCache(fetcher SettingsFetcher, logger *slog.Logger) *SettingsCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsCache{
		fetcher:  fetcher,
		ttl:      settingsCacheTTL,
		logger:   logger,
		now:      time.Now,
		defaults: domain.DefaultTranscodingSettings(),
	}
}

// SetDefaults replaces the value returned when no fetch has ever succeeded.
// Call during startup, before serving.
func (c *SettingsCache) SetDefaults(settings domain.TranscodingSettings) {
	c.mu.Lock()
	c.defaults = settings.Normalize()
	c.mu.Unlock()
}

// Current returns the effective transcoding settings. Never fails: when the
// store is unreachable the last known value (or the defaults) is returned
// with a warning.
func (c *SettingsCache) Current(ctx context.Context) domain.TranscodingSettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveValue && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.cached
	}

	settings, err := c.fetcher.GetTranscodingSettings(ctx)
	if err != nil {
		c.logger.Warn("transcoding settings fetch failed, using stale value",
			slog.String("error", err.Error()),
		)
		if c.haveValue {
			return c.cached
		}
		return c.defaults
	}

	c.cached = settings.Normalize()
	c.haveValue = true
	c.fetchedAt = c.now()
	return c.cached
}

// Invalidate empties the slot so the next reader refetches. Called after a
// settings update so changes apply without waiting out the TTL.
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	c.haveValue = false
	c.mu.Unlock()
}
