package domain

type StreamKind string

const (
	StreamVideo    StreamKind = "video"
	StreamAudio    StreamKind = "audio"
	StreamSubtitle StreamKind = "subtitle"
)

// StreamInfo describes one stream of a probed source file. Index is the
// absolute stream index as reported by the probe tool; it is the value
// clients pass back as audioTrack or streamIndex.
type StreamInfo struct {
	Index         int        `json:"index"`
	Kind          StreamKind `json:"kind"`
	Codec         string     `json:"codec"`
	CodecLong     string     `json:"codecLong,omitempty"`
	Language      string     `json:"language,omitempty"`
	Title         string     `json:"title,omitempty"`
	Default       bool       `json:"default"`
	Forced        bool       `json:"forced"`
	Channels      int        `json:"channels,omitempty"`
	ChannelLayout string     `json:"channelLayout,omitempty"`
	SampleRateHz  int        `json:"sampleRateHz,omitempty"`
	BitRateBps    int64      `json:"bitRateBps,omitempty"`
	Width         int        `json:"width,omitempty"`
	Height        int        `json:"height,omitempty"`
	FrameRate     float64    `json:"frameRate,omitempty"`
}

// ProbeResult is the normalised output of the media probe. A zero duration
// with no streams means the layout is unknown; direct playback may still
// work for native containers.
type ProbeResult struct {
	DurationSec int          `json:"durationSec"`
	Streams     []StreamInfo `json:"streams"`
}

func (p ProbeResult) AudioStreams() []StreamInfo {
	return p.streamsOfKind(StreamAudio)
}

func (p ProbeResult) SubtitleStreams() []StreamInfo {
	return p.streamsOfKind(StreamSubtitle)
}

func (p ProbeResult) streamsOfKind(kind StreamKind) []StreamInfo {
	var out []StreamInfo
	for _, s := range p.Streams {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
