package apihttp

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// handleSubtitles serves GET /subtitles/{id}?streamIndex=i by extracting the
// requested subtitle stream as WebVTT. The conversion runs per request; VTT
// output is small and the browser caches it for an hour.
func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := mediaPathID(r.URL.Path, "/subtitles/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.streamer == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not configured")
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("streamIndex"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "streamIndex is required")
		return
	}
	streamIndex, err := strconv.Atoi(raw)
	if err != nil || streamIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "streamIndex must be a non-negative integer")
		return
	}

	media, err := s.catalogue.GetVideo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := os.Stat(media.Path); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", media.Path,
		"-map", "0:" + strconv.Itoa(streamIndex),
		"-c:s", "webvtt",
		"-f", "webvtt",
		"-",
	}

	w.Header().Set("Content-Type", "text/vtt")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if err := s.streamer.Stream(r.Context(), args, w); err != nil {
		// Headers are already out; all we can do is log.
		s.logger.Warn("subtitle extraction failed",
			slog.String("mediaId", string(media.ID)),
			slog.Int("streamIndex", streamIndex),
			slog.String("error", err.Error()),
		)
	}
}
