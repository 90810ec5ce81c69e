package apihttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/services/media/encoder"
	"mediastream/internal/services/media/hlscache"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Catalogue resolves media identifiers and principals. The real adapter is
// backed by MongoDB; tests use an in-memory one.
type Catalogue interface {
	GetVideo(ctx context.Context, id domain.MediaID) (domain.MediaHandle, error)
	GetAudio(ctx context.Context, id domain.MediaID) (domain.MediaHandle, error)
	VerifyBearer(ctx context.Context, token string) (domain.Principal, error)
}

// SegmentCache is the on-demand HLS segment store.
type SegmentCache interface {
	Fetch(ctx context.Context, media domain.MediaHandle, audioTrack string, tier domain.QualityTier, index int) (string, error)
	Purge(id domain.MediaID) error
	Stats() hlscache.Stats
	InflightCount() int
	LastGenerationError() (string, time.Time)
}

// Streamer pipes a live transcoder invocation to a writer; used by the
// direct-playback and subtitle endpoints.
type Streamer interface {
	Stream(ctx context.Context, args []string, w io.Writer) error
}

// MediaProbe inspects a source file's duration and stream layout.
type MediaProbe interface {
	Probe(ctx context.Context, filePath string) (domain.ProbeResult, error)
}

// SettingsSource yields the effective transcoding settings.
type SettingsSource interface {
	Current(ctx context.Context) domain.TranscodingSettings
	Invalidate()
}

// SettingsStore persists transcoding settings updates.
type SettingsStore interface {
	SetTranscodingSettings(ctx context.Context, settings domain.TranscodingSettings) error
}

// EncoderRegistry reports which encoder was detected for health output.
type EncoderRegistry interface {
	Detect(ctx context.Context) encoder.Descriptor
}

// SweeperStatus reports the last TTL sweep for health output.
type SweeperStatus interface {
	LastSweep() (at time.Time, removedFiles int, freedBytes int64)
}

// probeCacheEntry holds a cached ffprobe result with an expiration time.
type probeCacheEntry struct {
	result    domain.ProbeResult
	expiresAt time.Time
}

const probeCacheTTL = 5 * time.Minute

type Server struct {
	catalogue      Catalogue
	segments       SegmentCache
	streamer       Streamer
	probe          MediaProbe
	settings       SettingsSource
	settingsStore  SettingsStore
	encoders       EncoderRegistry
	sweeper        SweeperStatus
	ffmpegPath     string
	ffprobePath    string
	cacheMaxSizeGB int
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub

	probeCacheMu sync.RWMutex
	probeCache   map[domain.MediaID]probeCacheEntry
}

type ServerOption func(*Server)

func WithSegmentCache(cache SegmentCache) ServerOption {
	return func(s *Server) {
		s.segments = cache
	}
}

func WithStreamer(streamer Streamer) ServerOption {
	return func(s *Server) {
		s.streamer = streamer
	}
}

func WithMediaProbe(probe MediaProbe) ServerOption {
	return func(s *Server) {
		s.probe = probe
	}
}

func WithSettings(source SettingsSource) ServerOption {
	return func(s *Server) {
		s.settings = source
	}
}

func WithSettingsStore(store SettingsStore) ServerOption {
	return func(s *Server) {
		s.settingsStore = store
	}
}

func WithEncoderRegistry(registry EncoderRegistry) ServerOption {
	return func(s *Server) {
		s.encoders = registry
	}
}

func WithSweeper(sweeper SweeperStatus) ServerOption {
	return func(s *Server) {
		s.sweeper = sweeper
	}
}

// WithTranscoderPaths records the binary paths for the health endpoint.
func WithTranscoderPaths(ffmpeg, ffprobe string) ServerOption {
	return func(s *Server) {
		s.ffmpegPath = ffmpeg
		s.ffprobePath = ffprobe
	}
}

// WithCacheMaxSize records the configured cache size cap (GB) so operators
// can read it back from the health endpoint. Zero means uncapped.
func WithCacheMaxSize(gb int) ServerOption {
	return func(s *Server) {
		s.cacheMaxSizeGB = gb
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(catalogue Catalogue, opts ...ServerOption) *Server {
	s := &Server{
		catalogue:   catalogue,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		probeCache:  make(map[domain.MediaID]probeCacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/video/", s.handleVideo)
	mux.HandleFunc("/audio/", s.handleAudio)
	mux.HandleFunc("/subtitles/", s.handleSubtitles)
	mux.HandleFunc("/trickplay/", s.handleTrickplay)
	mux.HandleFunc("/hls/", s.handleHLS)
	mux.HandleFunc("/media/", s.handleMedia)
	mux.HandleFunc("/settings/transcoding", s.handleTranscodingSettings)
	mux.HandleFunc("/internal/health/streamer", s.handleStreamerHealth)
	mux.HandleFunc("/internal/cache/stats", s.handleCacheStats)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/events", s.handleWS)

	authed := s.authMiddleware(mux)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, authed), "mediastream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			// Segment fetches are too chatty to trace one by one.
			return p != "/metrics" && p != "/internal/health/streamer" && !strings.HasSuffix(p, ".ts")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// Events returns the hub as an event sink for the segment cache and the
// sweeper, so generation lifecycle and sweep reports reach connected clients.
func (s *Server) Events() hlscache.EventSink {
	return s.wsHub
}

// BroadcastStats pushes current cache statistics to all event subscribers.
func (s *Server) BroadcastStats() {
	if s.segments == nil {
		return
	}
	s.wsHub.Publish("cache_stats", s.segments.Stats())
}

// BroadcastHealth pushes the current health snapshot to all event subscribers.
func (s *Server) BroadcastHealth(ctx context.Context) {
	s.wsHub.Publish("health", s.buildStreamerHealth(ctx))
}

// InvalidateMediaCache drops the cached segments and the probe cache entry
// for one media item. Called by the catalogue when an item is deleted.
func (s *Server) InvalidateMediaCache(id domain.MediaID) error {
	s.probeCacheMu.Lock()
	delete(s.probeCache, id)
	s.probeCacheMu.Unlock()
	if s.segments == nil {
		return nil
	}
	return s.segments.Purge(id)
}

// Close disconnects all event stream clients. Running segment generations
// are left to finish; they are owned by the cache, not by requests.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
