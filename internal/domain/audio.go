package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AudioTrackDefault selects the source's first audio stream.
const AudioTrackDefault = "default"

// NormalizeAudioTrack validates a client-supplied audio track tag. A tag is
// either "default" (also the meaning of an absent parameter) or the absolute
// stream index of the wanted audio stream.
func NormalizeAudioTrack(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == AudioTrackDefault {
		return AudioTrackDefault, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: audio track %q", ErrInvalid, raw)
	}
	return strconv.Itoa(n), nil
}
