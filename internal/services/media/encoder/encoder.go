package encoder

import (
	"fmt"
	"strconv"

	"mediastream/internal/domain"
)

type Kind string

const (
	Hardware Kind = "hardware"
	Software Kind = "software"
)

// Descriptor identifies one H.264 encoder the transcoder binary may offer.
type Descriptor struct {
	Name     string // human-readable label, e.g. "NVENC"
	Encoder  string // ffmpeg encoder identifier, e.g. "h264_nvenc"
	Kind     Kind
	Priority int // lower wins
}

// candidates lists every encoder we know how to drive, in priority order.
// Software x264 is the guaranteed fallback and must stay last.
var candidates = []Descriptor{
	{Name: "NVENC", Encoder: "h264_nvenc", Kind: Hardware, Priority: 1},
	{Name: "QSV", Encoder: "h264_qsv", Kind: Hardware, Priority: 2},
	{Name: "AMF", Encoder: "h264_amf", Kind: Hardware, Priority: 3},
	{Name: "VAAPI", Encoder: "h264_vaapi", Kind: Hardware, Priority: 4},
	{Name: "VideoToolbox", Encoder: "h264_videotoolbox", Kind: Hardware, Priority: 5},
	{Name: "x264", Encoder: "libx264", Kind: Software, Priority: 100},
}

func softwareFallback() Descriptor {
	return candidates[len(candidates)-1]
}

// VideoArgs emits the complete video-encoding flag sequence for one quality
// tier: codec selection, encoder-specific quality knobs, VBR rate caps
// (maxrate = 1.5x target, bufsize = 2x target) and the scale-with-letterbox
// filter. Settings are consulted only by the software encoder.
func (d Descriptor) VideoArgs(bitrateKbps, width, height int, settings domain.TranscodingSettings) []string {
	bitrate := strconv.Itoa(bitrateKbps) + "k"
	maxrate := strconv.Itoa(bitrateKbps*3/2) + "k"
	bufsize := strconv.Itoa(bitrateKbps*2) + "k"

	args := []string{"-c:v", d.Encoder}

	switch d.Encoder {
	case "h264_nvenc":
		args = append(args,
			"-preset", "p4",
			"-tune", "hq",
			"-profile:v", "high",
			"-level", "4.1",
			"-rc", "vbr",
			"-b:v", bitrate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
		)
	case "h264_qsv":
		args = append(args,
			"-preset", "faster",
			"-profile:v", "high",
			"-b:v", bitrate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
		)
	case "h264_amf":
		args = append(args,
			"-quality", "balanced",
			"-rc", "vbr_peak",
			"-b:v", bitrate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
		)
	case "h264_vaapi":
		args = append(args,
			"-b:v", bitrate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
		)
	case "h264_videotoolbox":
		args = append(args,
			"-profile:v", "high",
			"-b:v", bitrate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
		)
	default: // libx264
		args = append(args, "-preset", settings.Preset)
		if settings.EnableLowLatency {
			args = append(args, "-tune", "zerolatency")
		}
		args = append(args,
			"-profile:v", "high",
			"-level", "4.1",
			"-threads", strconv.Itoa(settings.ThreadCount),
			"-x264opts", "sliced-threads=1",
			"-b:v", bitrate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
		)
	}

	return append(args, "-vf", scaleFilter(width, height))
}

// scaleFilter fits the source inside width x height preserving aspect ratio,
// padding the remainder with black bars.
func scaleFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)
}
