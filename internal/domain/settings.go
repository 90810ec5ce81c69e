package domain

// TranscodingSettings are the mutable tuning knobs consumed by the encoder
// registry and the segment cache. They are fetched from the catalogue and
// cached for a short TTL; staleness up to the TTL is acceptable.
type TranscodingSettings struct {
	Bitrate1080p        int    `json:"bitrate1080p,omitempty"`
	Bitrate720p         int    `json:"bitrate720p,omitempty"`
	Bitrate480p         int    `json:"bitrate480p,omitempty"`
	Bitrate360p         int    `json:"bitrate360p,omitempty"`
	SegmentDurationSec  int    `json:"segmentDurationSec"`
	PrefetchSegments    int    `json:"prefetchSegments"`
	EnableHardwareAccel bool   `json:"enableHardwareAccel"`
	Preset              string `json:"preset"`
	EnableLowLatency    bool   `json:"enableLowLatency"`
	ThreadCount         int    `json:"threadCount"`
}

func DefaultTranscodingSettings() TranscodingSettings {
	return TranscodingSettings{
		SegmentDurationSec:  6,
		PrefetchSegments:    2,
		EnableHardwareAccel: true,
		Preset:              "veryfast",
	}
}

// Normalize clamps values a stored document or a client may have corrupted
// back into the supported range.
func (s TranscodingSettings) Normalize() TranscodingSettings {
	if s.SegmentDurationSec <= 0 {
		s.SegmentDurationSec = 6
	}
	if s.PrefetchSegments < 0 {
		s.PrefetchSegments = 0
	}
	if s.Preset == "" {
		s.Preset = "veryfast"
	}
	if s.ThreadCount < 0 {
		s.ThreadCount = 0
	}
	for _, b := range []*int{&s.Bitrate1080p, &s.Bitrate720p, &s.Bitrate480p, &s.Bitrate360p} {
		if *b < 0 {
			*b = 0
		}
	}
	return s
}

func (s TranscodingSettings) videoBitrateOverride(tierName string) int {
	switch tierName {
	case "1080p":
		return s.Bitrate1080p
	case "720p":
		return s.Bitrate720p
	case "480p":
		return s.Bitrate480p
	case "360p":
		return s.Bitrate360p
	default:
		return 0
	}
}
