package apihttp

import (
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mediastream/internal/domain"
)

// Trickplay sprite directories are named "<width> - <cols>x<rows>", e.g.
// "320 - 10x10". Each holds numbered JPEG sprite sheets.
var trickplayDirPattern = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)x(\d+)$`)

const trickplayTileIntervalSec = 10

type trickplayTrack struct {
	Width       int `json:"width"`
	TileWidth   int `json:"tileWidth"`
	TileHeight  int `json:"tileHeight"`
	Columns     int `json:"columns"`
	Rows        int `json:"rows"`
	SpriteCount int `json:"spriteCount"`
	IntervalSec int `json:"intervalSec"`
}

// handleTrickplay serves the scrub-preview surface:
//
//	GET /trickplay/{id}             — available sprite tracks as JSON
//	GET /trickplay/{id}/{width}/{n} — one sprite sheet JPEG
func (s *Server) handleTrickplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/trickplay/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := domain.MediaID(parts[0])

	media, err := s.catalogue.GetVideo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if media.ThumbsPath == "" {
		writeError(w, http.StatusNotFound, "not_found", "no trickplay data for media")
		return
	}

	switch len(parts) {
	case 1:
		s.serveTrickplayTracks(w, media)
	case 3:
		s.serveTrickplaySprite(w, r, media, parts[1], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveTrickplayTracks(w http.ResponseWriter, media domain.MediaHandle) {
	entries, err := os.ReadDir(media.ThumbsPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no trickplay data for media")
		return
	}

	tracks := make([]trickplayTrack, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := trickplayDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		width, _ := strconv.Atoi(m[1])
		cols, _ := strconv.Atoi(m[2])
		rows, _ := strconv.Atoi(m[3])
		if width <= 0 || cols <= 0 || rows <= 0 {
			continue
		}

		dir := filepath.Join(media.ThumbsPath, entry.Name())
		sprites := listSprites(dir)
		if len(sprites) == 0 {
			continue
		}

		tileWidth, tileHeight := spriteTileSize(filepath.Join(dir, sprites[0]), cols, rows)
		if tileWidth <= 0 || tileHeight <= 0 {
			// Unreadable first sprite: assume 16:9 tiles at the track width.
			tileWidth = width
			tileHeight = width * 9 / 16
		}

		tracks = append(tracks, trickplayTrack{
			Width:       width,
			TileWidth:   tileWidth,
			TileHeight:  tileHeight,
			Columns:     cols,
			Rows:        rows,
			SpriteCount: len(sprites),
			IntervalSec: trickplayTileIntervalSec,
		})
	}

	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no trickplay data for media")
		return
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Width < tracks[j].Width })
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) serveTrickplaySprite(w http.ResponseWriter, r *http.Request, media domain.MediaHandle, widthRaw, indexRaw string) {
	width, err := strconv.Atoi(widthRaw)
	if err != nil || width <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid trickplay width")
		return
	}
	index, err := strconv.Atoi(strings.TrimSuffix(indexRaw, ".jpg"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid sprite index")
		return
	}

	dir, ok := trickplayDirForWidth(media.ThumbsPath, width)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no trickplay track at requested width")
		return
	}

	sprites := listSprites(dir)
	if index >= len(sprites) {
		writeError(w, http.StatusNotFound, "not_found", "sprite index out of range")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, filepath.Join(dir, sprites[index]))
}

// listSprites returns the .jpg files of one track directory in numeric order.
func listSprites(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".jpg") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		a, errA := strconv.Atoi(strings.TrimSuffix(names[i], ".jpg"))
		b, errB := strconv.Atoi(strings.TrimSuffix(names[j], ".jpg"))
		if errA != nil || errB != nil {
			return names[i] < names[j]
		}
		return a < b
	})
	return names
}

// spriteTileSize decodes the sprite sheet's header and divides its pixel
// dimensions by the grid to get the per-tile size.
func spriteTileSize(path string, cols, rows int) (int, int) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer file.Close()
	cfg, err := jpeg.DecodeConfig(file)
	if err != nil {
		return 0, 0
	}
	return cfg.Width / cols, cfg.Height / rows
}

func trickplayDirForWidth(root string, width int) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := trickplayDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if w, _ := strconv.Atoi(m[1]); w == width {
			return filepath.Join(root, entry.Name()), true
		}
	}
	return "", false
}
