// Package playlist renders HLS master and variant manifests. Playlists are
// cheap to compute, so they are generated per request and never cached.
package playlist

import (
	"fmt"
	"net/url"
	"strings"

	"mediastream/internal/domain"
)

// SegmentCount returns how many segments a media item of durationSec splits
// into at the given segment length.
func SegmentCount(durationSec, segmentDurationSec int) int {
	if durationSec <= 0 || segmentDurationSec <= 0 {
		return 0
	}
	return (durationSec + segmentDurationSec - 1) / segmentDurationSec
}

// Master renders the master playlist for one media item. The stream-copy
// original is advertised only for native containers; the transcode presets
// follow in descending quality order. Variant URIs are relative to the
// master and carry the audio track so variant and segment requests stay on
// the same rendition.
func Master(media domain.MediaHandle, settings domain.TranscodingSettings, audioTrack string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	if domain.NativeContainer(media.Container) {
		original := domain.OriginalTier()
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,NAME=\"Original\"\n", original.BandwidthBps())
		b.WriteString(variantURI(original.Name, audioTrack))
		b.WriteString("\n")
	}

	for _, tier := range domain.PresetTiers(settings) {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,NAME=%q\n",
			tier.BandwidthBps(), tier.Width, tier.Height, tier.Name)
		b.WriteString(variantURI(tier.Name, audioTrack))
		b.WriteString("\n")
	}
	return b.String()
}

// Variant renders the VOD playlist of one tier: N = ceil(duration/segment)
// entries, the last one clipped to the remaining source time.
func Variant(media domain.MediaHandle, tier domain.QualityTier, settings domain.TranscodingSettings, audioTrack string) string {
	segDur := settings.SegmentDurationSec
	count := SegmentCount(media.DurationSec, segDur)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", segDur+1)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for i := 0; i < count; i++ {
		length := media.DurationSec - i*segDur
		if length > segDur {
			length = segDur
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", float64(length))
		fmt.Fprintf(&b, "%s/%d.ts?audioTrack=%s\n", tier.Name, i, url.QueryEscape(audioTrack))
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

func variantURI(tierName, audioTrack string) string {
	return fmt.Sprintf("%s.m3u8?audioTrack=%s", tierName, url.QueryEscape(audioTrack))
}
