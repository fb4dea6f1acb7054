package placer

import (
	"math"
	"math/rand"

	"github.com/golang/glog"
	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
	"github.com/infinite-map/imap/zone"
)

// Placer implements spec §4.3: given a file, compute its importance,
// derive a target radius, pick a deterministic candidate cell on that
// radius's circle, and delegate placement to the VAT.
type Placer struct {
	gridSize          int
	vat               *vat.VAT
	zones             zone.Radii
	importanceOverrides map[string]int
}

func New(v *vat.VAT, cfg config.Config, overrides map[string]int) *Placer {
	return &Placer{
		gridSize:            v.GridSize(),
		vat:                 v,
		zones:               zone.Resolve(cfg.Zones, v.GridSize()),
		importanceOverrides: overrides,
	}
}

// Place runs the full §4.3 pipeline for one file and returns its realized
// cluster chain.
func (p *Placer) Place(path string, size int64) ([]vio.Location, int, error) {
	importance := Classify(path, size, p.importanceOverrides)
	targetRadius := TargetRadius(importance, p.gridSize)
	preferred := p.candidateCell(path, targetRadius)

	chain, err := p.vat.Allocate(path, size, &preferred)
	if err != nil {
		return nil, importance, err
	}

	p.verifyZone(path, chain[0], importance)
	return chain, importance, nil
}

// candidateCell picks a pseudo-random cell on the circle of radius
// targetRadius around center, seeded deterministically from path (spec §9
// design note: "Placer randomness must be seeded deterministically from
// the file path so identical inputs yield identical images").
func (p *Placer) candidateCell(path string, targetRadius float64) vio.Location {
	rng := rand.New(rand.NewSource(cmn.PathSeed(path)))
	theta := rng.Float64() * 2 * math.Pi
	center := p.vat.Center()

	x := float64(center.X) + targetRadius*math.Cos(theta)
	y := float64(center.Y) + targetRadius*math.Sin(theta)
	return p.clampToGrid(x, y)
}

func (p *Placer) clampToGrid(x, y float64) vio.Location {
	max := float64(p.gridSize - 1)
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

// verifyZone checks the realized anchor's zone matches the importance's
// target zone; per spec §4.3 step 5 it logs a mismatch but never fails the
// placement (the allocator may have had to deviate to find a free
// cluster).
func (p *Placer) verifyZone(path string, anchor vio.Location, importance int) {
	targetRadius := TargetRadius(importance, p.gridSize)
	wantZone := p.zones.Classify(targetRadius)
	gotZone := p.zones.Classify(anchor.DistanceTo(p.vat.Center()))
	if wantZone != gotZone {
		glog.V(3).Infof("placer: %s realized zone %s, wanted %s (importance=%d)", path, gotZone, wantZone, importance)
	}
}
