package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mediastream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	SegmentGenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "segment_generations_total",
		Help:      "Total segment generations by quality tier and outcome.",
	}, []string{"tier", "outcome"})

	SegmentGenerationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediastream",
		Name:      "segment_generation_duration_seconds",
		Help:      "Duration of segment transcode invocations in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	SegmentCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "segment_cache_hits_total",
		Help:      "Total segment requests served from the on-disk cache.",
	})

	SegmentCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "segment_cache_misses_total",
		Help:      "Total segment requests that required generation.",
	})

	InflightGenerations = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "inflight_generations",
		Help:      "Number of segment generations currently running.",
	})

	PrefetchStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "prefetch_starts_total",
		Help:      "Total background prefetch generations started.",
	})

	PrefetchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "prefetch_failures_total",
		Help:      "Total background prefetch generations that failed.",
	})

	HLSCacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "hls_cache_size_bytes",
		Help:      "Current total size of the HLS segment cache in bytes.",
	})

	HLSCacheSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "hls_cache_segments",
		Help:      "Current number of cached HLS segment files.",
	})

	CacheSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "cache_sweeps_total",
		Help:      "Total TTL sweeps over the segment cache.",
	})

	CacheSweptFilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "cache_swept_files_total",
		Help:      "Total files removed by TTL sweeps.",
	})

	CacheSweptBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "cache_swept_bytes_total",
		Help:      "Total bytes freed by TTL sweeps.",
	})

	CacheCleanupErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "cache_cleanup_errors_total",
		Help:      "Total cache cleanup failures.",
	})

	LiveStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "live_streams_active",
		Help:      "Number of live transcode streams currently running.",
	})

	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "event_subscribers",
		Help:      "Number of connected event stream clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SegmentGenerationsTotal,
		SegmentGenerationDuration,
		SegmentCacheHits,
		SegmentCacheMisses,
		InflightGenerations,
		PrefetchStartsTotal,
		PrefetchFailuresTotal,
		HLSCacheSizeBytes,
		HLSCacheSegments,
		CacheSweepsTotal,
		CacheSweptFilesTotal,
		CacheSweptBytesTotal,
		CacheCleanupErrors,
		LiveStreamsActive,
		EventSubscribers,
	)
}
