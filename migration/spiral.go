package migration

import (
	"math"

	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
	"github.com/infinite-map/imap/zone"
)

// targetDistance maps an access count to a target distance band, per spec
// §4.7: "HOT <= 50 accesses ~ 0.7*HOT-radius, ..., COLD < 5 accesses ~
// mid-COLD radius". Bands are evaluated from hottest to coldest; each
// band's distance is a fixed fraction (0.7) of the zone boundary it sits
// just inside of, and the coldest band is 1.5 COOL radii.
func (p *Planner) targetDistanceFor(accessCount int64) float64 {
	r := p.zones
	switch {
	case accessCount >= 50:
		return 0.7 * r.Hot
	case accessCount >= 20:
		return 0.7 * r.Warm
	case accessCount >= 10:
		return 0.7 * r.Temperate
	case accessCount >= 5:
		return 0.7 * r.Cool
	default:
		// mid-COLD: halfway between the COOL boundary and one more COOL
		// radius further out, since COLD itself has no upper bound.
		return r.Cool * 1.5
	}
}

// targetCoord computes the ideal cell for accessCount at the zone a
// migration should land in, then spiral-searches outward from it for the
// first free cell (spec §4.7 "moving radially ... then executing a spiral
// search").
func (p *Planner) targetCoord(current vio.Location, accessCount int64, currentZone zone.Zone) vio.Location {
	targetDist := p.targetDistanceFor(accessCount)
	ideal := radialMove(current, p.v.Center(), targetDist, p.v.GridSize())
	return spiralSearchFree(p.v, ideal, p.cfg.SpiralSearchCap)
}

// radialMove returns the point obtained by moving from current toward (or
// away from) center so that the new distance from center is targetDist,
// clamped onto the grid.
func radialMove(current, center vio.Location, targetDist float64, gridSize int) vio.Location {
	dx := float64(current.X) - float64(center.X)
	dy := float64(current.Y) - float64(center.Y)
	curDist := math.Hypot(dx, dy)

	var ux, uy float64
	if curDist < 1e-9 {
		ux, uy = 1, 0 // arbitrary direction when already at center
	} else {
		ux, uy = dx/curDist, dy/curDist
	}

	x := float64(center.X) + ux*targetDist
	y := float64(center.Y) + uy*targetDist
	return clampToGrid(x, y, gridSize)
}

func clampToGrid(x, y float64, gridSize int) vio.Location {
	max := float64(gridSize - 1)
	if x < 0 {
		x = 0
	}
	if x > max {
		x = max
	}
	if y < 0 {
		y = 0
	}
	if y > max {
		y = max
	}
	return vio.Location{X: uint32(x), Y: uint32(y)}
}

// spiralSearchFree walks an outward square spiral from ideal and returns
// the first free, on-grid cluster-start cell, or ideal itself if the
// search exhausts cap steps without finding one. That fallback may not be
// free; vat.RelocateCluster rejects such a target with InvariantViolated.
func spiralSearchFree(v *vat.VAT, ideal vio.Location, cap int) vio.Location {
	if v.IsFree(ideal) {
		return ideal
	}
	gridSize := v.GridSize()
	x, y := int(ideal.X), int(ideal.Y)
	for radius := 1; radius*radius <= cap; radius++ {
		for dx := -radius; dx <= radius; dx++ {
			for _, dy := range []int{-radius, radius} {
				if cand, ok := candidateAt(v, x+dx, y+dy, gridSize); ok {
					return cand
				}
			}
		}
		for dy := -radius + 1; dy <= radius-1; dy++ {
			for _, dx := range []int{-radius, radius} {
				if cand, ok := candidateAt(v, x+dx, y+dy, gridSize); ok {
					return cand
				}
			}
		}
	}
	return ideal
}

func candidateAt(v *vat.VAT, x, y, gridSize int) (vio.Location, bool) {
	if x < 0 || y < 0 || x >= gridSize || y >= gridSize {
		return vio.Location{}, false
	}
	loc := vio.Location{X: uint32(x), Y: uint32(y)}
	if v.IsFree(loc) {
		return loc, true
	}
	return vio.Location{}, false
}
