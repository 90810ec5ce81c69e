package apihttp

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"mediastream/internal/services/media/encoder"
	"mediastream/internal/services/media/hlscache"
)

type streamerHealth struct {
	Status          string          `json:"status"`
	FFmpegOK        bool            `json:"ffmpegOk"`
	FFprobeOK       bool            `json:"ffprobeOk"`
	Encoder         string          `json:"encoder,omitempty"`
	EncoderHardware bool            `json:"encoderHardware"`
	Cache           *hlscache.Stats `json:"cache,omitempty"`
	CacheMaxSizeGB  int             `json:"cacheMaxSizeGB,omitempty"`
	Inflight        int             `json:"inflight"`
	LastError       string          `json:"lastError,omitempty"`
	LastErrorAt     *time.Time      `json:"lastErrorAt,omitempty"`
	LastSweepAt     *time.Time      `json:"lastSweepAt,omitempty"`
	LastSweepFiles  int             `json:"lastSweepFiles,omitempty"`
	LastSweepBytes  int64           `json:"lastSweepBytes,omitempty"`
}

// handleStreamerHealth reports whether the streaming pipeline can work at
// all: binaries resolvable, which encoder detection settled on, cache and
// sweeper state. Unauthenticated so orchestrators can probe it.
func (s *Server) handleStreamerHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	health := s.buildStreamerHealth(r.Context())
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) buildStreamerHealth(ctx context.Context) streamerHealth {
	health := streamerHealth{Status: "ok"}

	if _, err := exec.LookPath(s.ffmpegPath); err == nil {
		health.FFmpegOK = true
	}
	if _, err := exec.LookPath(s.ffprobePath); err == nil {
		health.FFprobeOK = true
	}
	if !health.FFmpegOK || !health.FFprobeOK {
		health.Status = "degraded"
	}

	if s.encoders != nil {
		descriptor := s.encoders.Detect(ctx)
		health.Encoder = descriptor.Name
		health.EncoderHardware = descriptor.Kind == encoder.Hardware
	}

	health.CacheMaxSizeGB = s.cacheMaxSizeGB
	if s.segments != nil {
		stats := s.segments.Stats()
		health.Cache = &stats
		health.Inflight = s.segments.InflightCount()
		if msg, at := s.segments.LastGenerationError(); msg != "" {
			health.LastError = msg
			health.LastErrorAt = &at
		}
	}

	if s.sweeper != nil {
		if at, files, bytes := s.sweeper.LastSweep(); !at.IsZero() {
			health.LastSweepAt = &at
			health.LastSweepFiles = files
			health.LastSweepBytes = bytes
		}
	}

	return health
}

// handleCacheStats serves GET /internal/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.segments == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "segment cache not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.segments.Stats())
}
