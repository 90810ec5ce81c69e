package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "mediastream/internal/api/http"
	"mediastream/internal/app"
	"mediastream/internal/metrics"
	mongorepo "mediastream/internal/repository/mongo"
	"mediastream/internal/services/media/encoder"
	"mediastream/internal/services/media/hlscache"
	"mediastream/internal/services/media/probe"
	"mediastream/internal/services/media/transcode"
	"mediastream/internal/storage/memory"
	"mediastream/internal/telemetry"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// catalogue is the union of the ports the server and the settings cache
// consume; both the mongo and the in-memory adapters satisfy it.
type catalogue interface {
	apihttp.Catalogue
	apihttp.SettingsStore
	app.SettingsFetcher
}

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "mediastream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "mediastream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("hlsCachePath", cfg.HLSCachePath),
		slog.Int("hlsCacheMaxSizeGB", cfg.HLSCacheMaxSizeGB),
		slog.Int("segmentTTLHours", cfg.SegmentTTLHours),
		slog.Int("segmentDuration", cfg.SegmentDurationSec),
	)
	if cfg.MediaToken == "" {
		logger.Warn("MEDIA_API_TOKEN is empty, authentication is DISABLED")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	settingsDefaults := cfg.DefaultSettings()

	var store catalogue
	var disconnect func()
	if cfg.MongoURI != "" {
		monitor := otelmongo.NewMonitor()
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(monitor))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		repo := mongorepo.NewRepository(mongoClient, cfg.MongoDatabase, cfg.MediaToken)
		repo.SetSettingsDefaults(settingsDefaults)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		store = repo
		disconnect = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
	} else {
		// Standalone mode: scan the library directory into memory.
		mem := memory.NewCatalogue(cfg.MediaToken)
		mem.SetSettingsDefaults(settingsDefaults)
		if count, err := mem.LoadDirectory(cfg.MediaLibraryDir); err != nil {
			logger.Warn("library scan failed",
				slog.String("dir", cfg.MediaLibraryDir),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("library scanned",
				slog.String("dir", cfg.MediaLibraryDir),
				slog.Int("items", count),
			)
		}
		store = mem
		disconnect = func() {}
	}

	invoker := transcode.NewInvoker(cfg.FFMPEGPath, logger)
	registry := encoder.NewRegistry(invoker, logger)
	go registry.Detect(rootCtx) // warm the detection cache off the request path

	prober := probe.New(cfg.FFProbePath)
	settingsCache := app.NewSettingsCache(store, logger)
	settingsCache.SetDefaults(settingsDefaults)

	segmentCache := hlscache.New(cfg.HLSCachePath, invoker, registry, settingsCache, logger)
	sweeper := hlscache.NewSweeper(segmentCache, time.Duration(cfg.SegmentTTLHours)*time.Hour, logger)

	handler := apihttp.NewServer(store,
		apihttp.WithSegmentCache(segmentCache),
		apihttp.WithStreamer(invoker),
		apihttp.WithMediaProbe(prober),
		apihttp.WithSettings(settingsCache),
		apihttp.WithSettingsStore(store),
		apihttp.WithEncoderRegistry(registry),
		apihttp.WithSweeper(sweeper),
		apihttp.WithTranscoderPaths(cfg.FFMPEGPath, cfg.FFProbePath),
		apihttp.WithCacheMaxSize(cfg.HLSCacheMaxSizeGB),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithLogger(logger),
	)

	segmentCache.SetEvents(handler.Events())
	sweeper.SetEvents(handler.Events())
	sweeper.Start()

	go updateStreamingMetrics(rootCtx, segmentCache, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // live transcode responses run as long as playback
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	sweeper.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	disconnect()

	logger.Info("server stopped")
}

// updateStreamingMetrics refreshes the cache gauges and pushes periodic
// stats/health events to /events subscribers.
func updateStreamingMetrics(ctx context.Context, cache *hlscache.Cache, handler *apihttp.Server) {
	statsTicker := time.NewTicker(15 * time.Second)
	healthTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			stats := cache.Stats()
			metrics.HLSCacheSizeBytes.Set(float64(stats.TotalBytes))
			metrics.HLSCacheSegments.Set(float64(stats.SegmentCount))
			handler.BroadcastStats()
		case <-healthTicker.C:
			handler.BroadcastHealth(ctx)
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
