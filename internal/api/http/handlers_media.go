package apihttp

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mediastream/internal/domain"
)

type mediaInfoResponse struct {
	ID          domain.MediaID      `json:"id"`
	Container   string              `json:"container"`
	DurationSec int                 `json:"durationSec"`
	Audio       []domain.StreamInfo `json:"audio"`
	Subtitles   []domain.StreamInfo `json:"subtitles"`
}

// handleMedia routes /media/{id}/info and /media/{id}/cache.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/media/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := domain.MediaID(parts[0])

	switch {
	case parts[1] == "info" && r.Method == http.MethodGet:
		s.serveMediaInfo(w, r, id)
	case parts[1] == "cache" && r.Method == http.MethodDelete:
		s.purgeMediaCache(w, r, id)
	case parts[1] == "info" || parts[1] == "cache":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

// serveMediaInfo returns the probed track layout for the player's audio and
// subtitle menus. Probe results are cached for a few minutes per media ID so
// a seeking player does not re-spawn ffprobe.
func (s *Server) serveMediaInfo(w http.ResponseWriter, r *http.Request, id domain.MediaID) {
	media, err := s.catalogue.GetVideo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	media = media.WithContainer()

	result, ok := s.cachedProbe(id)
	if !ok {
		if s.probe == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "media probe not configured")
			return
		}
		result, err = s.probe.Probe(r.Context(), media.Path)
		if err != nil {
			// Degrade to the catalogue's duration with an empty track list.
			s.logger.Warn("media probe failed",
				slog.String("mediaId", string(id)),
				slog.String("error", err.Error()),
			)
			result = domain.ProbeResult{DurationSec: media.DurationSec}
		}
		s.storeProbe(id, result)
	}

	duration := result.DurationSec
	if duration == 0 {
		duration = media.DurationSec
	}
	audio := result.AudioStreams()
	if audio == nil {
		audio = []domain.StreamInfo{}
	}
	subtitles := result.SubtitleStreams()
	if subtitles == nil {
		subtitles = []domain.StreamInfo{}
	}

	writeJSON(w, http.StatusOK, mediaInfoResponse{
		ID:          id,
		Container:   media.Container,
		DurationSec: duration,
		Audio:       audio,
		Subtitles:   subtitles,
	})
}

func (s *Server) purgeMediaCache(w http.ResponseWriter, r *http.Request, id domain.MediaID) {
	if _, err := s.catalogue.GetVideo(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.InvalidateMediaCache(id); err != nil {
		s.logger.Error("cache purge failed",
			slog.String("mediaId", string(id)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "cache purge failed")
		return
	}
	s.logger.Info("media cache purged", slog.String("mediaId", string(id)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (s *Server) cachedProbe(id domain.MediaID) (domain.ProbeResult, bool) {
	s.probeCacheMu.RLock()
	defer s.probeCacheMu.RUnlock()
	entry, ok := s.probeCache[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return domain.ProbeResult{}, false
	}
	return entry.result, true
}

func (s *Server) storeProbe(id domain.MediaID, result domain.ProbeResult) {
	s.probeCacheMu.Lock()
	defer s.probeCacheMu.Unlock()
	s.probeCache[id] = probeCacheEntry{result: result, expiresAt: time.Now().Add(probeCacheTTL)}
}
