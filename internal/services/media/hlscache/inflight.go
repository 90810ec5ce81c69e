package hlscache

import (
	"fmt"
	"sync"

	"mediastream/internal/domain"
)

// inflight is a one-shot completion handle shared by every waiter of one
// generation. err is published before done closes and read only after.
type inflight struct {
	done chan struct{}
	err  error
}

func newInflight() *inflight {
	return &inflight{done: make(chan struct{})}
}

func (f *inflight) complete(err error) {
	f.err = err
	close(f.done)
}

// flightRegistry tracks in-progress generations process-wide. Request-driven
// and prefetch entries live in distinct key namespaces so a prefetch never
// blocks a direct request for the same segment.
type flightRegistry struct {
	mu      sync.Mutex
	entries map[string]*inflight
}

func newFlightRegistry() *flightRegistry {
	return &flightRegistry{entries: make(map[string]*inflight)}
}

// lookupOrInsert returns the entry registered under key, or inserts a fresh
// one. The boolean reports ownership: the owner must run the generation and
// complete the entry; everyone else waits on it.
func (r *flightRegistry) lookupOrInsert(key string) (*inflight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		return entry, false
	}
	entry := newInflight()
	r.entries[key] = entry
	return entry, true
}

func (r *flightRegistry) remove(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

func (r *flightRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func segmentFlightKey(id domain.MediaID, audioTrack, tierName string, index int) string {
	return fmt.Sprintf("seg:%s/a%s/%s/%d", id, audioTrack, tierName, index)
}

func prefetchFlightKey(id domain.MediaID, audioTrack, tierName string, index int) string {
	return fmt.Sprintf("pre:%s/a%s/%s/%d", id, audioTrack, tierName, index)
}
