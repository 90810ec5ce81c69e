package app

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"mediastream/internal/domain"
)

type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	LogLevel      string
	LogFormat     string

	FFMPEGPath  string
	FFProbePath string

	// MediaToken is the static bearer token streaming clients present.
	// Empty disables authentication (development only).
	MediaToken string

	// MediaLibraryDir seeds the in-memory catalogue when no MongoDB is
	// configured (standalone mode).
	MediaLibraryDir string

	CORSAllowedOrigins []string

	HLSCachePath       string
	HLSCacheMaxSizeGB  int // surfaced for operators; eviction is TTL-driven
	SegmentTTLHours    int
	SegmentDurationSec int
}

// configFileEnv names the JSON configuration file. When unset, a
// mediaserver.json in the working directory is picked up if present.
const (
	configFileEnv     = "MEDIASERVER_CONFIG"
	defaultConfigFile = "mediaserver.json"
)

// fileConfig is the JSON configuration surface. fileWatcher is accepted for
// compatibility with library-scanner deployments but ignored here.
type fileConfig struct {
	HLSCache struct {
		Path            string `json:"path"`
		MaxSizeGB       int    `json:"maxSizeGB"`
		SegmentTTLHours int    `json:"segmentTTLHours"`
		SegmentDuration int    `json:"segmentDuration"`
	} `json:"hlsCache"`
	FileWatcher json.RawMessage `json:"fileWatcher,omitempty"`
}

// LoadConfig builds the effective configuration: defaults, overridden by the
// JSON file when one is found, overridden by environment variables.
func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "mediastream"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		FFMPEGPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		MediaToken:         getEnv("MEDIA_API_TOKEN", ""),
		MediaLibraryDir:    getEnv("MEDIA_LIBRARY_DIR", "./data/library"),
		CORSAllowedOrigins: parseOrigins(getEnv("CORS_ALLOWED_ORIGINS", "")),
		HLSCachePath:       "./data/hls-cache",
		SegmentTTLHours:    24,
		SegmentDurationSec: 6,
	}

	if file, ok := loadConfigFile(); ok {
		if file.HLSCache.Path != "" {
			cfg.HLSCachePath = file.HLSCache.Path
		}
		if file.HLSCache.MaxSizeGB > 0 {
			cfg.HLSCacheMaxSizeGB = file.HLSCache.MaxSizeGB
		}
		if file.HLSCache.SegmentTTLHours > 0 {
			cfg.SegmentTTLHours = file.HLSCache.SegmentTTLHours
		}
		if file.HLSCache.SegmentDuration > 0 {
			cfg.SegmentDurationSec = file.HLSCache.SegmentDuration
		}
	}

	// Environment wins over the file.
	if v := getEnv("HLS_CACHE_DIR", ""); v != "" {
		cfg.HLSCachePath = v
	}
	if v := int(getEnvInt64("HLS_CACHE_MAX_SIZE_GB", 0)); v > 0 {
		cfg.HLSCacheMaxSizeGB = v
	}
	if v := int(getEnvInt64("HLS_SEGMENT_TTL_HOURS", 0)); v > 0 {
		cfg.SegmentTTLHours = v
	}
	if v := int(getEnvInt64("HLS_SEGMENT_DURATION", 0)); v > 0 {
		cfg.SegmentDurationSec = v
	}

	return cfg
}

// DefaultSettings returns the baseline transcoding settings for this
// deployment: the built-in defaults with the configured segment duration.
// Settings stored in the catalogue override them.
func (c Config) DefaultSettings() domain.TranscodingSettings {
	settings := domain.DefaultTranscodingSettings()
	if c.SegmentDurationSec > 0 {
		settings.SegmentDurationSec = c.SegmentDurationSec
	}
	return settings
}

func loadConfigFile() (fileConfig, bool) {
	path := strings.TrimSpace(os.Getenv(configFileEnv))
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return fileConfig{}, false
		}
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, false
	}
	var file fileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return fileConfig{}, false
	}
	return file, true
}

func parseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}
