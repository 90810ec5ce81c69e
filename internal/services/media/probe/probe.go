package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediastream/internal/domain"
)

type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

// Probe inspects a media file and returns its duration and stream layout.
// Failures return a zero ProbeResult alongside the error so that callers
// can degrade to "unknown layout" instead of refusing playback.
func (p *Prober) Probe(ctx context.Context, filePath string) (domain.ProbeResult, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.ProbeResult{}, errors.New("file path is required")
	}

	return p.runProbe(ctx, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	})
}

const maxProbeTimeout = 30 * time.Second

func (p *Prober) runProbe(ctx context.Context, args []string) (domain.ProbeResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result, parseErr := parseProbeOutput(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return domain.ProbeResult{}, fmt.Errorf("%w: ffprobe: %v", domain.ErrTransient, runErr)
			}
			return domain.ProbeResult{}, fmt.Errorf("%w: ffprobe: %v: %s", domain.ErrTransient, runErr, msg)
		}
		return domain.ProbeResult{}, fmt.Errorf("%w: ffprobe output parse: %v", domain.ErrTransient, parseErr)
	}

	// ffprobe can exit with non-zero for damaged or truncated files, but still
	// return usable stream metadata in stdout. Keep metadata if we have it.
	if runErr != nil && len(result.Streams) == 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return domain.ProbeResult{}, fmt.Errorf("%w: ffprobe: %v", domain.ErrTransient, runErr)
		}
		return domain.ProbeResult{}, fmt.Errorf("%w: ffprobe: %v: %s", domain.ErrTransient, runErr, msg)
	}

	return result, nil
}

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index         int               `json:"index"`
	CodecType     string            `json:"codec_type"`
	CodecName     string            `json:"codec_name"`
	CodecLongName string            `json:"codec_long_name"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	Channels      int               `json:"channels"`
	ChannelLayout string            `json:"channel_layout"`
	SampleRate    string            `json:"sample_rate"`
	BitRate       string            `json:"bit_rate"`
	RFrameRate    string            `json:"r_frame_rate"`
	AvgFrameRate  string            `json:"avg_frame_rate"`
	Tags          map[string]string `json:"tags"`
	Disposition   struct {
		Default int `json:"default"`
		Forced  int `json:"forced"`
	} `json:"disposition"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// parseProbeOutput parses raw ffprobe JSON output into a domain.ProbeResult.
func parseProbeOutput(data []byte) (domain.ProbeResult, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.ProbeResult{}, err
	}

	streams := make([]domain.StreamInfo, 0, len(payload.Streams))
	for _, stream := range payload.Streams {
		var kind domain.StreamKind
		switch stream.CodecType {
		case "video":
			kind = domain.StreamVideo
		case "audio":
			kind = domain.StreamAudio
		case "subtitle":
			kind = domain.StreamSubtitle
		default:
			continue
		}

		info := domain.StreamInfo{
			Index:         stream.Index,
			Kind:          kind,
			Codec:         stream.CodecName,
			CodecLong:     stream.CodecLongName,
			Language:      strings.TrimSpace(getTag(stream.Tags, "language")),
			Title:         strings.TrimSpace(getTag(stream.Tags, "title")),
			Default:       stream.Disposition.Default == 1,
			Forced:        stream.Disposition.Forced == 1,
			Channels:      stream.Channels,
			ChannelLayout: stream.ChannelLayout,
			Width:         stream.Width,
			Height:        stream.Height,
			FrameRate:     parseFrameRate(stream.RFrameRate, stream.AvgFrameRate),
		}
		if hz, err := strconv.Atoi(stream.SampleRate); err == nil && hz > 0 {
			info.SampleRateHz = hz
		}
		if bps, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil && bps > 0 {
			info.BitRateBps = bps
		}
		streams = append(streams, info)
	}

	var durationSec int
	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			durationSec = int(math.Round(d))
		}
	}

	return domain.ProbeResult{DurationSec: durationSec, Streams: streams}, nil
}

// parseFrameRate resolves the real frame rate with fallback to the average
// rate. ffprobe reports both as "num/den" fractions; the result is rounded
// to three decimal places.
func parseFrameRate(real, avg string) float64 {
	if rate := parseRational(real); rate > 0 {
		return rate
	}
	return parseRational(avg)
}

func parseRational(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	if !found {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			return math.Round(v*1000) / 1000
		}
		return 0
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	rate := n / d
	if rate <= 0 {
		return 0
	}
	return math.Round(rate*1000) / 1000
}

func getTag(tags map[string]string, key string) string {
	if len(tags) == 0 {
		return ""
	}
	if value, ok := tags[key]; ok {
		return value
	}
	upper := strings.ToUpper(key)
	if value, ok := tags[upper]; ok {
		return value
	}
	lower := strings.ToLower(key)
	if value, ok := tags[lower]; ok {
		return value
	}
	return ""
}
