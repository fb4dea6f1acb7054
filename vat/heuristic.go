package vat

import "github.com/infinite-map/imap/vio"

// localityFrac is the fraction of N giving the "within radius N/8" bonus
// window from spec §4.2's locality heuristic formula.
const localityFrac = 1.0 / 8

// bestFree scores every free cluster with the locality heuristic from spec
// §4.2:
//
//	score = (1 - dist_to_center/(N/2)) + 0.1 * |owned clusters within N/8|
//
// and returns the maximum, breaking ties by lower Hilbert-linear offset.
// chainSoFar is consulted so a multi-cluster allocation also gravitates
// near clusters it has already picked in this same call, not only
// pre-existing allocations.
func (v *VAT) bestFree(chainSoFar []vio.Location) vio.Location {
	halfN := float64(v.gridSize) / 2
	radius := float64(v.gridSize) * localityFrac

	var best vio.Location
	var bestLinear uint64
	bestScore := -1.0
	first := true

	for loc := range v.free {
		score := 1.0 - v.distToCenter(loc)/halfN
		score += 0.1 * float64(v.countOwnedWithin(loc, radius, chainSoFar))

		linear, _ := v.curve.XYToLinear(loc.X, loc.Y)
		if first || score > bestScore || (score == bestScore && linear < bestLinear) {
			best = loc
			bestScore = score
			bestLinear = linear
			first = false
		}
	}
	return best
}

// countOwnedWithin counts VAT-owned anchors (plus any already picked in
// this allocation) within radius of loc. Reading v.entries directly
// requires the caller already hold v.mu (Allocate holds the write lock
// throughout, so this is safe without re-locking).
func (v *VAT) countOwnedWithin(loc vio.Location, radius float64, chainSoFar []vio.Location) int {
	n := 0
	for _, chain := range v.entries {
		if len(chain) == 0 {
			continue
		}
		if chain[0].DistanceTo(loc) < radius {
			n++
		}
	}
	for _, picked := range chainSoFar {
		if picked.DistanceTo(loc) < radius {
			n++
		}
	}
	return n
}

// nearestFree returns the free cluster closest to preferred, used when a
// caller-supplied preferred location is already owned.
func (v *VAT) nearestFree(preferred vio.Location) vio.Location {
	var best vio.Location
	bestDist := -1.0
	for loc := range v.free {
		d := loc.DistanceTo(preferred)
		if bestDist < 0 || d < bestDist {
			best = loc
			bestDist = d
		}
	}
	return best
}
