package domain

import (
	"path/filepath"
	"strings"
)

type MediaID string

// Principal identifies an authenticated caller. The core treats it as
// opaque; verification is delegated to the catalogue.
type Principal string

// MediaHandle is the catalogue's view of one playable item: an opaque
// identifier resolved to an absolute source path, plus the fields the
// streaming pipeline needs. Read-only inside the core.
type MediaHandle struct {
	ID          MediaID `json:"id"`
	Path        string  `json:"path"`
	DurationSec int     `json:"durationSec"`
	Container   string  `json:"container"`
	ThumbsPath  string  `json:"thumbsPath,omitempty"`
}

// ContainerHint derives the container from the path extension, lowercased
// and without the leading dot.
func ContainerHint(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// NativeContainer reports whether the container can be range-served to
// browsers and stream-copied without remuxing.
func NativeContainer(container string) bool {
	switch strings.ToLower(container) {
	case "mp4", "webm":
		return true
	default:
		return false
	}
}

// WithContainer fills in the container hint from the path when the catalogue
// left it empty.
func (h MediaHandle) WithContainer() MediaHandle {
	if h.Container == "" {
		h.Container = ContainerHint(h.Path)
	}
	return h
}
