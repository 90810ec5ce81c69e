package apihttp

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"mediastream/internal/domain"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeDomainError maps the error taxonomy to HTTP statuses. Internals never
// reach the client; transcoder stderr stays in the logs.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "media not found")
	case errors.Is(err, domain.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid_request", trimErrorPrefix(err, domain.ErrInvalid))
	case errors.Is(err, domain.ErrUnauthorised):
		writeError(w, http.StatusUnauthorized, "unauthorised", "missing or invalid token")
	case errors.Is(err, domain.ErrGenerationFailed):
		writeError(w, http.StatusInternalServerError, "generation_failed", "segment generation failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// trimErrorPrefix keeps the sentinel's description plus the wrap detail,
// which for Invalid errors is safe to surface ("invalid request: segment
// index -1").
func trimErrorPrefix(err error, sentinel error) string {
	msg := err.Error()
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

// mediaPathID extracts the {id} element of /prefix/{id} paths, rejecting
// empty ids and deeper paths.
func mediaPathID(path, prefix string) (domain.MediaID, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return domain.MediaID(rest), true
}

func parseSegmentIndex(value string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || index < 0 {
		return 0, errors.New("segment index must be a non-negative integer")
	}
	return index, nil
}

func videoContentType(container string) string {
	if byExt := mime.TypeByExtension("." + container); byExt != "" {
		return byExt
	}
	switch container {
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "avi":
		return "video/x-msvideo"
	case "mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

func audioContentType(container string) string {
	switch container {
	case "mp3":
		return "audio/mpeg"
	case "m4a":
		return "audio/mp4"
	case "aac":
		return "audio/aac"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
