// Package vat implements the Visual Allocation Table (spec §4.2, L2): the
// map from logical path to its ordered cluster chain, the free-cluster
// set, and the directory-entry set, guarded by one reader-writer lock per
// spec §5 ("VAT, free-set ... guarded by one reader-writer lock; readers
// do not block each other; writers are serialized"). The map/RWMutex shape
// is grounded on aistore's fs/mountfs.go MountedFS, which guards a
// very similar path->metadata map the same way.
package vat

import (
	"sort"
	"sync"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/vio"
)

// VAT is the Visual Allocation Table.
type VAT struct {
	mu sync.RWMutex

	gridSize int
	center   vio.Location
	curve    *hilbert.Curve

	entries          map[string][]vio.Location
	reverseIndex     map[vio.Location]string // §9 open question #2, resolved: maintained here
	directoryEntries map[string]struct{}
	rsProtected      map[string]bool
	free             map[vio.Location]struct{}
}

// New constructs an empty VAT over a grid of the given side, with every
// valid cluster start free.
func New(gridSize int, curve *hilbert.Curve) *VAT {
	cx, cy := gridSize/2, gridSize/2
	v := &VAT{
		gridSize:         gridSize,
		center:           vio.Location{X: uint32(cx), Y: uint32(cy)},
		curve:            curve,
		entries:          make(map[string][]vio.Location),
		reverseIndex:     make(map[vio.Location]string),
		directoryEntries: make(map[string]struct{}),
		rsProtected:      make(map[string]bool),
		free:             make(map[vio.Location]struct{}),
	}
	total := uint64(gridSize) * uint64(gridSize)
	for t := uint64(0); t < total; t += cmn.CellsPerClu {
		x, y, _ := curve.LinearToXY(t)
		v.free[vio.Location{X: x, Y: y}] = struct{}{}
	}
	return v
}

func (v *VAT) GridSize() int       { return v.gridSize }
func (v *VAT) Center() vio.Location { return v.center }

// FreeCount reports the number of unallocated cluster starts.
func (v *VAT) FreeCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.free)
}

// IsFree reports whether loc is a valid, currently unallocated cluster
// start, consulted by the Migration Planner's spiral search (spec §4.7).
func (v *VAT) IsFree(loc vio.Location) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.free[loc]
	return ok
}

// IsDirectory reports whether path is recorded as a directory entry.
func (v *VAT) IsDirectory(path string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.directoryEntries[path]
	return ok
}

// MarkDirectory records path as a directory entry. Fails with PathConflict
// if path already exists as a file.
func (v *VAT) MarkDirectory(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, isFile := v.entries[path]; isFile {
		return ecode.New(ecode.PathConflict, "vat.mark_directory", path+" already exists as a file")
	}
	v.directoryEntries[path] = struct{}{}
	return nil
}

// Lookup returns the anchor (first cluster) of path, or ok=false.
func (v *VAT) Lookup(path string) (loc vio.Location, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	chain, found := v.entries[path]
	if !found || len(chain) == 0 {
		return vio.Location{}, false
	}
	return chain[0], true
}

// Chain returns the full ordered cluster chain for path.
func (v *VAT) Chain(path string) ([]vio.Location, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	chain, ok := v.entries[path]
	if !ok {
		return nil, false
	}
	out := make([]vio.Location, len(chain))
	copy(out, chain)
	return out, true
}

// OwnerOf returns the path owning loc via the reverse index, resolving §9
// open question #2 without an O(n) scan over every chain.
func (v *VAT) OwnerOf(loc vio.Location) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.reverseIndex[loc]
	return p, ok
}

// Paths returns every file path currently allocated.
func (v *VAT) Paths() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.entries))
	for p := range v.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RSProtected reports whether path is flagged for Reed-Solomon protection.
func (v *VAT) RSProtected(path string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rsProtected[path]
}

// SetRSProtected flags or unflags path for RS protection (§4.4).
func (v *VAT) SetRSProtected(path string, protected bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[path]; !ok {
		return ecode.New(ecode.NotFound, "vat.set_rs_protected", path)
	}
	v.rsProtected[path] = protected
	return nil
}

// Allocate selects ceil(size/ClusterSize) clusters for path. If preferred
// is non-nil and free, it anchors the first cluster; if it is not free,
// the free cluster nearest to it does. Subsequent clusters (and the
// first, when no preference is supplied) are chosen by the locality
// heuristic (heuristic.go). Already-owned clusters
// are excluded by construction: they were removed from v.free when
// allocated.
func (v *VAT) Allocate(path string, size int64, preferred *vio.Location) ([]vio.Location, error) {
	if size <= 0 {
		return nil, ecode.New(ecode.InvariantViolated, "vat.allocate", "size must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, isDir := v.directoryEntries[path]; isDir {
		return nil, ecode.New(ecode.PathConflict, "vat.allocate", path+" already exists as a directory")
	}
	if _, exists := v.entries[path]; exists {
		return nil, ecode.New(ecode.PathConflict, "vat.allocate", path+" already allocated")
	}

	needed := int((size + cmn.ClusterSize - 1) / cmn.ClusterSize)
	if needed > len(v.free) {
		return nil, ecode.New(ecode.OutOfSpace, "vat.allocate", "not enough free clusters")
	}

	chain := make([]vio.Location, 0, needed)
	for i := 0; i < needed; i++ {
		var loc vio.Location
		if i == 0 && preferred != nil {
			if _, ok := v.free[*preferred]; ok {
				loc = *preferred
			} else {
				loc = v.nearestFree(*preferred)
			}
		} else {
			loc = v.bestFree(chain)
		}
		delete(v.free, loc)
		chain = append(chain, loc)
	}

	v.entries[path] = chain
	for _, loc := range chain {
		v.reverseIndex[loc] = path
	}
	return append([]vio.Location(nil), chain...), nil
}

// Free returns every cluster owned by path to the free set and removes the
// VAT entry.
func (v *VAT) Free(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	chain, ok := v.entries[path]
	if !ok {
		if _, isDir := v.directoryEntries[path]; isDir {
			delete(v.directoryEntries, path)
			return nil
		}
		return ecode.New(ecode.NotFound, "vat.free", path)
	}
	for _, loc := range chain {
		v.free[loc] = struct{}{}
		delete(v.reverseIndex, loc)
	}
	delete(v.entries, path)
	delete(v.rsProtected, path)
	return nil
}

// RelocateCluster moves a single cluster coordinate from old to new within
// whichever chain currently owns old, under the VAT write lock (spec §5:
// "each worker performs its VAT-update callback under the VAT write
// lock"). It is the VATUpdateFunc the Physical Relocator invokes after a
// move's integrity check passes. Fails with NotFound if old is unowned,
// InvariantViolated if new is not free.
func (v *VAT) RelocateCluster(old, new vio.Location) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	path, ok := v.reverseIndex[old]
	if !ok {
		return ecode.New(ecode.NotFound, "vat.relocate_cluster", "no chain owns "+old.String())
	}
	if _, free := v.free[new]; !free {
		return ecode.New(ecode.InvariantViolated, "vat.relocate_cluster", "target "+new.String()+" is not free")
	}
	chain := v.entries[path]
	for i, loc := range chain {
		if loc == old {
			chain[i] = new
			break
		}
	}
	delete(v.free, new)
	v.free[old] = struct{}{}
	delete(v.reverseIndex, old)
	v.reverseIndex[new] = path
	return nil
}

// distToCenter is a small helper shared by Allocate/heuristic code.
func (v *VAT) distToCenter(loc vio.Location) float64 {
	return loc.DistanceTo(v.center)
}

// Validate checks the invariants in spec §3 and §8 property 2: every
// cluster coordinate appears in at most one chain, and the union of
// chains and the free-set covers exactly the set of valid cluster starts.
// Returns an InvariantViolated error describing the first violation found.
func (v *VAT) Validate() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seen := make(map[vio.Location]string, len(v.reverseIndex))
	for path, chain := range v.entries {
		for _, loc := range chain {
			t, err := v.curve.XYToLinear(loc.X, loc.Y)
			if err != nil || t%cmn.CellsPerClu != 0 {
				return ecode.New(ecode.InvariantViolated, "vat.validate", "non-aligned or out-of-range cluster in chain for "+path)
			}
			if owner, dup := seen[loc]; dup {
				return ecode.New(ecode.InvariantViolated, "vat.validate", "cluster "+loc.String()+" owned by both "+owner+" and "+path)
			}
			if _, isFree := v.free[loc]; isFree {
				return ecode.New(ecode.InvariantViolated, "vat.validate", "cluster "+loc.String()+" is both owned and free")
			}
			seen[loc] = path
		}
	}
	total := uint64(v.gridSize) * uint64(v.gridSize) / cmn.CellsPerClu
	if uint64(len(seen)+len(v.free)) != total {
		return ecode.New(ecode.InvariantViolated, "vat.validate", "owned+free does not cover every valid cluster start")
	}
	return nil
}
