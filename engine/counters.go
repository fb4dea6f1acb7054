package engine

import "sync"

// accessCounters is the per-path read counter spec §3 "Access counter"
// describes, consulted by the Migration Planner and the Tuner. It
// implements migration.AccessCounters.
type accessCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newAccessCounters() *accessCounters {
	return &accessCounters{counts: make(map[string]int64)}
}

func (a *accessCounters) AccessCount(path string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[path]
}

func (a *accessCounters) recordAccess(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[path]++
}

// Reset clears every counter. The engine does not call it, so counts
// accumulate across migration batches.
func (a *accessCounters) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts = make(map[string]int64)
}
