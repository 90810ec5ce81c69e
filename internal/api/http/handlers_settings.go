package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mediastream/internal/domain"
)

// transcodingSettingsPatch mirrors domain.TranscodingSettings with pointer
// fields so a PATCH body can change one knob without resetting the rest.
type transcodingSettingsPatch struct {
	Bitrate1080p        *int    `json:"bitrate1080p"`
	Bitrate720p         *int    `json:"bitrate720p"`
	Bitrate480p         *int    `json:"bitrate480p"`
	Bitrate360p         *int    `json:"bitrate360p"`
	SegmentDurationSec  *int    `json:"segmentDurationSec"`
	PrefetchSegments    *int    `json:"prefetchSegments"`
	EnableHardwareAccel *bool   `json:"enableHardwareAccel"`
	Preset              *string `json:"preset"`
	EnableLowLatency    *bool   `json:"enableLowLatency"`
	ThreadCount         *int    `json:"threadCount"`
}

var validPresets = map[string]bool{
	"ultrafast": true,
	"superfast": true,
	"veryfast":  true,
	"faster":    true,
	"fast":      true,
	"medium":    true,
	"slow":      true,
	"slower":    true,
	"veryslow":  true,
}

// handleTranscodingSettings serves GET|PATCH|PUT /settings/transcoding.
func (s *Server) handleTranscodingSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.Current(r.Context()))
	case http.MethodPatch, http.MethodPut:
		s.updateTranscodingSettings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) updateTranscodingSettings(w http.ResponseWriter, r *http.Request) {
	if s.settingsStore == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "settings store not configured")
		return
	}

	var patch transcodingSettingsPatch
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16*1024))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed settings body")
		return
	}

	merged := applySettingsPatch(s.settings.Current(r.Context()), patch)
	if msg, ok := validateSettings(merged); !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	if err := s.settingsStore.SetTranscodingSettings(r.Context(), merged); err != nil {
		s.logger.Error("settings update failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "settings update failed")
		return
	}
	s.settings.Invalidate()
	s.logger.Info("transcoding settings updated",
		slog.String("preset", merged.Preset),
		slog.Int("segmentDurationSec", merged.SegmentDurationSec),
		slog.Int("prefetchSegments", merged.PrefetchSegments),
		slog.Bool("hardwareAccel", merged.EnableHardwareAccel),
	)
	writeJSON(w, http.StatusOK, merged)
}

func applySettingsPatch(current domain.TranscodingSettings, patch transcodingSettingsPatch) domain.TranscodingSettings {
	if patch.Bitrate1080p != nil {
		current.Bitrate1080p = *patch.Bitrate1080p
	}
	if patch.Bitrate720p != nil {
		current.Bitrate720p = *patch.Bitrate720p
	}
	if patch.Bitrate480p != nil {
		current.Bitrate480p = *patch.Bitrate480p
	}
	if patch.Bitrate360p != nil {
		current.Bitrate360p = *patch.Bitrate360p
	}
	if patch.SegmentDurationSec != nil {
		current.SegmentDurationSec = *patch.SegmentDurationSec
	}
	if patch.PrefetchSegments != nil {
		current.PrefetchSegments = *patch.PrefetchSegments
	}
	if patch.EnableHardwareAccel != nil {
		current.EnableHardwareAccel = *patch.EnableHardwareAccel
	}
	if patch.Preset != nil {
		current.Preset = *patch.Preset
	}
	if patch.EnableLowLatency != nil {
		current.EnableLowLatency = *patch.EnableLowLatency
	}
	if patch.ThreadCount != nil {
		current.ThreadCount = *patch.ThreadCount
	}
	return current
}

func validateSettings(settings domain.TranscodingSettings) (string, bool) {
	if !validPresets[settings.Preset] {
		return "unknown preset " + settings.Preset, false
	}
	if settings.SegmentDurationSec < 2 || settings.SegmentDurationSec > 10 {
		return "segmentDurationSec must be between 2 and 10", false
	}
	if settings.PrefetchSegments < 0 || settings.PrefetchSegments > 10 {
		return "prefetchSegments must be between 0 and 10", false
	}
	if settings.ThreadCount < 0 {
		return "threadCount must be non-negative", false
	}
	for _, bitrate := range []int{settings.Bitrate1080p, settings.Bitrate720p, settings.Bitrate480p, settings.Bitrate360p} {
		if bitrate < 0 {
			return "bitrates must be non-negative", false
		}
	}
	return "", true
}
