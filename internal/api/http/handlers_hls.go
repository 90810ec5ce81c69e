package apihttp

import (
	"net/http"
	"os"
	"strings"

	"mediastream/internal/domain"
	"mediastream/internal/services/media/playlist"
)

const (
	contentTypePlaylist = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/mp2t"

	cacheControlNoCache = "no-cache"
	cacheControlSegment = "public, max-age=3600"
)

// handleHLS routes the adaptive-streaming surface:
//
//	GET /hls/{id}/master.m3u8
//	GET /hls/{id}/{quality}.m3u8
//	GET /hls/{id}/{quality}/{segment}.ts
//	GET /hls/{id}/qualities
func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/hls/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := domain.MediaID(parts[0])

	audioTrack, err := domain.NormalizeAudioTrack(r.URL.Query().Get("audioTrack"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	media, err := s.catalogue.GetVideo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	media = media.WithContainer()
	settings := s.settings.Current(r.Context())

	switch {
	case len(parts) == 2 && parts[1] == "master.m3u8":
		s.serveMasterPlaylist(w, media, settings, audioTrack)
	case len(parts) == 2 && parts[1] == "qualities":
		s.serveQualities(w, media, settings)
	case len(parts) == 2 && strings.HasSuffix(parts[1], ".m3u8"):
		s.serveVariantPlaylist(w, media, settings, strings.TrimSuffix(parts[1], ".m3u8"), audioTrack)
	case len(parts) == 3 && strings.HasSuffix(parts[2], ".ts"):
		s.serveSegment(w, r, media, settings, parts[1], strings.TrimSuffix(parts[2], ".ts"), audioTrack)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveMasterPlaylist(w http.ResponseWriter, media domain.MediaHandle, settings domain.TranscodingSettings, audioTrack string) {
	body := playlist.Master(media, settings, audioTrack)
	w.Header().Set("Content-Type", contentTypePlaylist)
	w.Header().Set("Cache-Control", cacheControlNoCache)
	_, _ = w.Write([]byte(body))
}

func (s *Server) serveVariantPlaylist(w http.ResponseWriter, media domain.MediaHandle, settings domain.TranscodingSettings, quality, audioTrack string) {
	tier, ok := domain.TierByName(quality, settings)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown quality "+quality)
		return
	}
	body := playlist.Variant(media, tier, settings, audioTrack)
	w.Header().Set("Content-Type", contentTypePlaylist)
	w.Header().Set("Cache-Control", cacheControlNoCache)
	_, _ = w.Write([]byte(body))
}

func (s *Server) serveSegment(w http.ResponseWriter, r *http.Request, media domain.MediaHandle, settings domain.TranscodingSettings, quality, segment, audioTrack string) {
	tier, ok := domain.TierByName(quality, settings)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown quality "+quality)
		return
	}
	index, err := parseSegmentIndex(segment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if index >= playlist.SegmentCount(media.DurationSec, settings.SegmentDurationSec) {
		writeError(w, http.StatusNotFound, "not_found", "segment index past end of media")
		return
	}

	path, err := s.segments.Fetch(r.Context(), media, audioTrack, tier, index)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generation_failed", "segment unreadable")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generation_failed", "segment unreadable")
		return
	}

	w.Header().Set("Content-Type", contentTypeSegment)
	w.Header().Set("Cache-Control", cacheControlSegment)
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

type qualityInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Width   *int   `json:"width"`
	Height  *int   `json:"height"`
	Bitrate *int   `json:"bitrate"` // video+audio, kbps
}

func (s *Server) serveQualities(w http.ResponseWriter, media domain.MediaHandle, settings domain.TranscodingSettings) {
	var out []qualityInfo
	if domain.NativeContainer(media.Container) {
		out = append(out, qualityInfo{Name: domain.TierOriginal, Label: "Original"})
	}
	for _, tier := range domain.PresetTiers(settings) {
		width, height := tier.Width, tier.Height
		bitrate := tier.VideoBitrateKbps + tier.AudioBitrateKbps
		out = append(out, qualityInfo{
			Name:    tier.Name,
			Label:   tier.Name,
			Width:   &width,
			Height:  &height,
			Bitrate: &bitrate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
