package hlscache

import (
	"fmt"
	"strconv"

	"mediastream/internal/domain"
	"mediastream/internal/services/media/encoder"
)

// segmentArgConfig holds all parameters for building one segment's
// transcoder argument vector. This is a value type — pass it by value to
// buildSegmentArgs.
type segmentArgConfig struct {
	SourcePath string
	AudioTrack string // "default" or absolute stream index
	Tier       domain.QualityTier
	Encoder    encoder.Descriptor
	Settings   domain.TranscodingSettings
	StartSec   int
	ClippedSec int
	OutputPath string
}

// buildSegmentArgs constructs the transcoder argument list for one segment.
// This is a pure function with no side effects.
//
// Transcoded tiers seek fast (before the input) and re-encode with the
// active encoder's emission. The Original tier stream-copies with an
// accurate seek after the input plus -copyts, so the copied packets keep
// their source timestamps. Both paths offset output timestamps to the
// segment's start so consecutive segments splice seamlessly.
func buildSegmentArgs(cfg segmentArgConfig) []string {
	start := strconv.Itoa(cfg.StartSec)

	args := []string{"-hide_banner", "-loglevel", "error"}

	if cfg.Tier.Original {
		args = append(args, "-i", cfg.SourcePath, "-ss", start, "-copyts")
	} else {
		args = append(args, "-ss", start, "-i", cfg.SourcePath)
	}

	args = append(args, "-map", "0:v:0")
	if cfg.AudioTrack == domain.AudioTrackDefault {
		args = append(args, "-map", "0:a:0")
	} else {
		args = append(args, "-map", "0:"+cfg.AudioTrack)
	}

	if cfg.Tier.Original {
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	} else {
		args = append(args, cfg.Encoder.VideoArgs(
			cfg.Tier.VideoBitrateKbps, cfg.Tier.Width, cfg.Tier.Height, cfg.Settings)...)
		args = append(args,
			"-c:a", "aac",
			"-b:a", strconv.Itoa(cfg.Tier.AudioBitrateKbps)+"k",
			"-ac", "2",
			"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", cfg.Settings.SegmentDurationSec),
		)
	}

	return append(args,
		"-output_ts_offset", start,
		"-t", strconv.Itoa(cfg.ClippedSec),
		"-f", "mpegts",
		"-mpegts_copyts", "1",
		"-avoid_negative_ts", "disabled",
		"-y", cfg.OutputPath,
	)
}
