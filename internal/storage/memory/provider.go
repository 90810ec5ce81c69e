// Package memory provides a catalogue backed by process memory. It serves
// two roles: the fallback when no MongoDB is configured (standalone mode,
// populated by scanning a library directory) and a test double.
package memory

import (
	"context"
	"crypto/subtle"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mediastream/internal/domain"
)

var videoExtensions = map[string]bool{
	"mp4": true, "webm": true, "mkv": true, "avi": true, "mov": true, "m4v": true,
}

var audioExtensions = map[string]bool{
	"mp3": true, "m4a": true, "aac": true, "ogg": true, "wav": true, "flac": true,
}

type Catalogue struct {
	mu       sync.RWMutex
	videos   map[domain.MediaID]domain.MediaHandle
	audio    map[domain.MediaID]domain.MediaHandle
	settings domain.TranscodingSettings
	token    string
}

func NewCatalogue(token string) *Catalogue {
	return &Catalogue{
		videos:   make(map[domain.MediaID]domain.MediaHandle),
		audio:    make(map[domain.MediaID]domain.MediaHandle),
		settings: domain.DefaultTranscodingSettings(),
		token:    token,
	}
}

// LoadDirectory walks root and registers every media file it finds. The ID
// is the slash-separated path relative to root with the extension dropped,
// so IDs stay stable across restarts.
func (c *Catalogue) LoadDirectory(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := domain.ContainerHint(path)
		if !videoExtensions[ext] && !audioExtensions[ext] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		id := domain.MediaID(strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel)))
		handle := domain.MediaHandle{ID: id, Path: path, Container: ext}
		if videoExtensions[ext] {
			c.AddVideo(handle)
		} else {
			c.AddAudio(handle)
		}
		count++
		return nil
	})
	return count, err
}

func (c *Catalogue) AddVideo(handle domain.MediaHandle) {
	c.mu.Lock()
	c.videos[handle.ID] = handle.WithContainer()
	c.mu.Unlock()
}

func (c *Catalogue) AddAudio(handle domain.MediaHandle) {
	c.mu.Lock()
	c.audio[handle.ID] = handle.WithContainer()
	c.mu.Unlock()
}

func (c *Catalogue) Remove(id domain.MediaID) {
	c.mu.Lock()
	delete(c.videos, id)
	delete(c.audio, id)
	c.mu.Unlock()
}

func (c *Catalogue) GetVideo(_ context.Context, id domain.MediaID) (domain.MediaHandle, error) {
	return c.get(c.videos, id)
}

func (c *Catalogue) GetAudio(_ context.Context, id domain.MediaID) (domain.MediaHandle, error) {
	return c.get(c.audio, id)
}

func (c *Catalogue) get(table map[domain.MediaID]domain.MediaHandle, id domain.MediaID) (domain.MediaHandle, error) {
	c.mu.RLock()
	handle, ok := table[id]
	c.mu.RUnlock()
	if !ok {
		return domain.MediaHandle{}, domain.ErrNotFound
	}
	if _, err := os.Stat(handle.Path); err != nil {
		return domain.MediaHandle{}, domain.ErrNotFound
	}
	return handle, nil
}

// List returns all registered video IDs in sorted order.
func (c *Catalogue) List() []domain.MediaID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]domain.MediaID, 0, len(c.videos))
	for id := range c.videos {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetSettingsDefaults replaces the baseline transcoding settings. Later
// SetTranscodingSettings calls override it.
func (c *Catalogue) SetSettingsDefaults(settings domain.TranscodingSettings) {
	c.mu.Lock()
	c.settings = settings.Normalize()
	c.mu.Unlock()
}

func (c *Catalogue) GetTranscodingSettings(context.Context) (domain.TranscodingSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings, nil
}

func (c *Catalogue) SetTranscodingSettings(_ context.Context, settings domain.TranscodingSettings) error {
	c.mu.Lock()
	c.settings = settings.Normalize()
	c.mu.Unlock()
	return nil
}

// VerifyBearer compares in constant time against the configured token. An
// empty token disables auth.
func (c *Catalogue) VerifyBearer(_ context.Context, token string) (domain.Principal, error) {
	if c.token == "" {
		return domain.Principal("anonymous"), nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.token)) != 1 {
		return "", domain.ErrUnauthorised
	}
	return domain.Principal("owner"), nil
}
