package apihttp

import (
	"net/http"
	"strings"
	"testing"

	"mediastream/internal/domain"
)

func TestMasterPlaylistForNativeContainer(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 120)

	rec := fx.request(t, http.MethodGet, "/hls/m1/master.m3u8", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypePlaylist {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != cacheControlNoCache {
		t.Errorf("Cache-Control = %q", cc)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "original.m3u8?audioTrack=default") {
		t.Errorf("master playlist missing original variant:\n%s", body)
	}
	if !strings.Contains(body, "1080p.m3u8?audioTrack=default") {
		t.Errorf("master playlist missing 1080p variant:\n%s", body)
	}
}

func TestMasterPlaylistOmitsOriginalForMKV(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mkv", 120)

	rec := fx.request(t, http.MethodGet, "/hls/m1/master.m3u8", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "original.m3u8") {
		t.Errorf("mkv master playlist should not offer original:\n%s", rec.Body.String())
	}
}

func TestVariantPlaylistUnknownQuality(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 120)

	rec := fx.request(t, http.MethodGet, "/hls/m1/4k.m3u8", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Code != "invalid_request" {
		t.Errorf("error code = %q", payload.Code)
	}
}

func TestVariantPlaylistSegments(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 20)

	rec := fx.request(t, http.MethodGet, "/hls/m1/720p.m3u8?audioTrack=2", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	// 20s at 6s segments: 4 entries, short tail.
	if !strings.Contains(body, "720p/3.ts?audioTrack=2") {
		t.Errorf("missing final segment URI:\n%s", body)
	}
	if strings.Contains(body, "720p/4.ts") {
		t.Errorf("playlist lists a segment past the end:\n%s", body)
	}
	if !strings.Contains(body, "#EXT-X-ENDLIST") {
		t.Errorf("missing ENDLIST:\n%s", body)
	}
}

func TestSegmentServedFromCache(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 60)

	rec := fx.request(t, http.MethodGet, "/hls/m1/720p/2.ts", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeSegment {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != cacheControlSegment {
		t.Errorf("Cache-Control = %q", cc)
	}
	if got := rec.Body.String(); got != "segment-bytes" {
		t.Errorf("body = %q", got)
	}

	fx.segments.mu.Lock()
	defer fx.segments.mu.Unlock()
	if len(fx.segments.fetchCalls) != 1 || fx.segments.fetchCalls[0] != 2 {
		t.Errorf("fetch calls = %v, want [2]", fx.segments.fetchCalls)
	}
}

func TestSegmentIndexPastEndIs404(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 20) // 4 segments: 0..3

	rec := fx.request(t, http.MethodGet, "/hls/m1/720p/4.ts", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	fx.segments.mu.Lock()
	defer fx.segments.mu.Unlock()
	if len(fx.segments.fetchCalls) != 0 {
		t.Errorf("cache should not be hit for out-of-range index")
	}
}

func TestSegmentMalformedIndexIs400(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 60)

	for _, segment := range []string{"abc", "-1"} {
		rec := fx.request(t, http.MethodGet, "/hls/m1/720p/"+segment+".ts", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("segment %q: status = %d, want 400", segment, rec.Code)
		}
	}
}

func TestSegmentGenerationFailureIs500(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 60)
	fx.segments.fetchErr = domain.ErrGenerationFailed

	rec := fx.request(t, http.MethodGet, "/hls/m1/720p/0.ts", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	payload := decodeError(t, rec)
	if payload.Code != "generation_failed" {
		t.Errorf("error code = %q", payload.Code)
	}
	// The transcoder's stderr must never leak into responses.
	if strings.Contains(payload.Message, "stderr") {
		t.Errorf("message leaks internals: %q", payload.Message)
	}
}

func TestSegmentInvalidAudioTrack(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 60)

	rec := fx.request(t, http.MethodGet, "/hls/m1/720p/0.ts?audioTrack=bogus", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestQualitiesEndpoint(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.mp4", 60)

	rec := fx.request(t, http.MethodGet, "/hls/m1/qualities", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{`"original"`, `"1080p"`, `"720p"`, `"480p"`, `"360p"`} {
		if !strings.Contains(body, name) {
			t.Errorf("qualities missing %s:\n%s", name, body)
		}
	}
}

func TestQualitiesOmitsOriginalForAVI(t *testing.T) {
	fx := newTestServer(t)
	fx.addVideo(t, "m1", "movie.avi", 60)

	rec := fx.request(t, http.MethodGet, "/hls/m1/qualities", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"original"`) {
		t.Errorf("avi source should not offer original quality")
	}
}
