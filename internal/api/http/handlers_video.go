package apihttp

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"mediastream/internal/domain"
	"mediastream/internal/metrics"
)

// handleVideo serves GET|HEAD /video/{id}.
//
// Native containers (mp4/webm) with the default audio track are range-served
// straight from disk. Anything else (mkv/avi sources, or an explicit audio
// track selection) is remuxed or re-encoded on the fly into a fragmented MP4
// the browser can play progressively.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := mediaPathID(r.URL.Path, "/video/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	media, err := s.catalogue.GetVideo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	media = media.WithContainer()
	if _, err := os.Stat(media.Path); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}

	audioTrack, err := domain.NormalizeAudioTrack(r.URL.Query().Get("audioTrack"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if domain.NativeContainer(media.Container) && audioTrack == domain.AudioTrackDefault {
		// http.ServeFile handles Range, If-Modified-Since and HEAD; the
		// kernel handles the copying.
		w.Header().Set("Content-Type", videoContentType(media.Container))
		w.Header().Set("Accept-Ranges", "bytes")
		http.ServeFile(w, r, media.Path)
		return
	}

	s.serveLiveTranscode(w, r, media, audioTrack)
}

// serveLiveTranscode pipes a fragmented-MP4 remux/transcode of the source to
// the response. The client's seek position arrives as ?start=<seconds>.
func (s *Server) serveLiveTranscode(w http.ResponseWriter, r *http.Request, media domain.MediaHandle, audioTrack string) {
	if s.streamer == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not configured")
		return
	}

	startSec := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid start")
			return
		}
		startSec = parsed
	}

	args := buildLiveTranscodeArgs(media, audioTrack, startSec)

	w.Header().Set("Content-Type", "video/mp4")
	// No Content-Length: the output is produced as the encoder runs, so the
	// response goes out chunked.
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)

	metrics.LiveStreamsActive.Inc()
	defer metrics.LiveStreamsActive.Dec()

	// Stream ties the child's lifetime to the request context: a client
	// disconnect kills the transcoder.
	if err := s.streamer.Stream(r.Context(), args, w); err != nil {
		s.logger.Error("live transcode failed",
			slog.String("mediaId", string(media.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// buildLiveTranscodeArgs assembles the argument vector for one live fMP4
// stream. Native containers stream-copy both tracks: copying one and
// re-encoding the other would desynchronise them, since only the copy keeps
// the source's keyframe-aligned cut.
func buildLiveTranscodeArgs(media domain.MediaHandle, audioTrack string, startSec int) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if startSec > 0 {
		args = append(args, "-ss", strconv.Itoa(startSec))
	}
	args = append(args, "-i", media.Path)

	args = append(args, "-map", "0:v:0")
	if audioTrack == domain.AudioTrackDefault {
		args = append(args, "-map", "0:a:0?")
	} else {
		args = append(args, "-map", "0:"+audioTrack)
	}

	if domain.NativeContainer(media.Container) {
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-c:a", "aac",
			"-b:a", "192k",
			"-ac", "2",
		)
	}

	return append(args,
		"-movflags", "frag_keyframe+empty_moov+faststart",
		"-avoid_negative_ts", "make_zero",
		"-f", "mp4",
		"-",
	)
}

// handleAudio serves GET|HEAD /audio/{id}: range serving only, never
// transcoded.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := mediaPathID(r.URL.Path, "/audio/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	media, err := s.catalogue.GetAudio(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	media = media.WithContainer()
	if _, err := os.Stat(media.Path); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}

	w.Header().Set("Content-Type", audioContentType(media.Container))
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeFile(w, r, media.Path)
}
