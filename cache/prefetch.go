package cache

import (
	"sync"

	"go.uber.org/atomic"
)

const windowSize = 8

// strideTolerance is the "±10%" fuzziness spec §4.6 allows when comparing
// consecutive strides for sequential-access detection.
const strideTolerance = 0.10

type fileHistory struct {
	offsets []int64 // bounded ring of the last W recorded offsets, oldest first
}

func (h *fileHistory) record(offset int64) {
	h.offsets = append(h.offsets, offset)
	if len(h.offsets) > windowSize {
		h.offsets = h.offsets[len(h.offsets)-windowSize:]
	}
}

// sequential reports whether the last >=3 offsets are strictly increasing
// with a stride uniform to within strideTolerance (spec §4.6).
func (h *fileHistory) sequential() (stride int64, ok bool) {
	n := len(h.offsets)
	if n < 3 {
		return 0, false
	}
	strides := make([]int64, 0, 2)
	for i := n - 2; i < n; i++ {
		d := h.offsets[i] - h.offsets[i-1]
		if d <= 0 {
			return 0, false
		}
		strides = append(strides, d)
	}
	base := strides[0]
	for _, s := range strides[1:] {
		diff := s - base
		if diff < 0 {
			diff = -diff
		}
		if float64(diff) > float64(base)*strideTolerance {
			return 0, false
		}
	}
	return base, true
}

func (h *fileHistory) last() int64 {
	if len(h.offsets) == 0 {
		return 0
	}
	return h.offsets[len(h.offsets)-1]
}

// AccessPatternTracker detects sequential-read patterns per file so the
// Cache can prefetch the next predicted offset (spec §4.6 "Predictive
// prefetch").
type AccessPatternTracker struct {
	mu   sync.Mutex
	hist map[string]*fileHistory

	prefetched   map[string][]byte // side queue, never evicted by the hit path
	prefetchHits atomic.Int64
}

// NewAccessPatternTracker constructs a tracker. windowHint is currently
// unused beyond documenting intent; the window is fixed at windowSize per
// file to bound memory per tracked path.
func NewAccessPatternTracker(windowHint int) *AccessPatternTracker {
	return &AccessPatternTracker{
		hist:       make(map[string]*fileHistory),
		prefetched: make(map[string][]byte),
	}
}

// RecordAccess records offset for file and reports the predicted next
// offset when the access pattern is sequential.
func (t *AccessPatternTracker) RecordAccess(file string, offset int64) (predicted int64, sequential bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.hist[file]
	if !ok {
		h = &fileHistory{}
		t.hist[file] = h
	}
	h.record(offset)
	stride, seq := h.sequential()
	if !seq {
		return 0, false
	}
	return h.last() + stride, true
}

// OfferPrefetch stashes a prefetched payload for file at the side queue,
// keyed so GetPrefetched can consume it later. Per spec §4.6 "Prefetches
// do not evict live entries below the hit path" -- this never touches the
// LRU list or its eviction budget.
func (t *AccessPatternTracker) OfferPrefetch(file string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prefetched[file] = payload
}

// GetPrefetched consumes and returns file's prefetched payload, if any.
func (t *AccessPatternTracker) GetPrefetched(file string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.prefetched[file]
	if ok {
		delete(t.prefetched, file)
		t.prefetchHits.Inc()
	}
	return p, ok
}

// Tracker exposes the cache's embedded AccessPatternTracker so callers can
// drive prefetch on a miss (spec §4.6 "On a miss, if sequential, the cache
// accepts a prefetched payload ... into a side queue").
func (c *Cache) Tracker() *AccessPatternTracker { return c.tracker }

// GetPrefetched is a convenience forward to the cache's tracker.
func (c *Cache) GetPrefetched(key string) ([]byte, bool) { return c.tracker.GetPrefetched(key) }
