package domain

import "strings"

// TierOriginal is the stream-copy rendition. It is advertised in master
// playlists only for native containers, but variant and segment requests
// accept it for any source.
const TierOriginal = "original"

// QualityTier is one rendition of a media item: either the stream-copied
// original or a bounded transcode preset.
type QualityTier struct {
	Name             string `json:"name"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	VideoBitrateKbps int    `json:"videoBitrateKbps,omitempty"`
	AudioBitrateKbps int    `json:"audioBitrateKbps,omitempty"`
	Original         bool   `json:"original,omitempty"`
}

// BandwidthBps is the bandwidth a master playlist advertises for the tier.
func (t QualityTier) BandwidthBps() int {
	if t.Original {
		return originalBandwidthBps
	}
	return (t.VideoBitrateKbps + t.AudioBitrateKbps) * 1000
}

// originalBandwidthBps is the nominal bandwidth advertised for the
// stream-copy rendition (20 Mbps).
const originalBandwidthBps = 20_000_000

var presetTiers = []QualityTier{
	{Name: "1080p", Width: 1920, Height: 1080, VideoBitrateKbps: 8000, AudioBitrateKbps: 192},
	{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 5000, AudioBitrateKbps: 128},
	{Name: "480p", Width: 854, Height: 480, VideoBitrateKbps: 2500, AudioBitrateKbps: 128},
	{Name: "360p", Width: 640, Height: 360, VideoBitrateKbps: 1000, AudioBitrateKbps: 96},
}

func OriginalTier() QualityTier {
	return QualityTier{Name: TierOriginal, Original: true}
}

// PresetTiers returns the transcode presets in descending quality order with
// the settings' video bitrate overrides applied. Audio bitrates are fixed.
func PresetTiers(settings TranscodingSettings) []QualityTier {
	out := make([]QualityTier, len(presetTiers))
	copy(out, presetTiers)
	for i := range out {
		if override := settings.videoBitrateOverride(out[i].Name); override > 0 {
			out[i].VideoBitrateKbps = override
		}
	}
	return out
}

// TierByName resolves a tier name (case-insensitive) against the original
// tier and the presets. The second return is false for unknown names.
func TierByName(name string, settings TranscodingSettings) (QualityTier, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == TierOriginal {
		return OriginalTier(), true
	}
	for _, tier := range PresetTiers(settings) {
		if tier.Name == normalized {
			return tier, true
		}
	}
	return QualityTier{}, false
}
