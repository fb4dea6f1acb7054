// Package migration implements the Migration Planner (spec §4.7, L7):
// per-path priority scoring, target-coordinate selection by spiral search,
// and greedy batch selection under caller-supplied caps. Grounded on the
// aistore's xaction-style "plan, then run a bounded batch" shape
// (xaction/registry), generalized to a pure planning component here (the
// actual move is the relocate package's job).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package migration

import (
	shortid "github.com/teris-io/shortid"

	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
	"github.com/infinite-map/imap/zone"
)

// AccessCounters reports the access count recorded for a path; callers
// typically back this with the Cache's hit tracking or the Tuner's
// sampling.
type AccessCounters interface {
	AccessCount(path string) int64
}

// Candidate is one path's migration assessment for a planning pass.
type Candidate struct {
	Path         string
	CurrentZone  zone.Zone
	AccessCount  int64
	Priority     int
	Benefit      float64
	ShouldMove   bool
	Inward       bool // true: move toward center; false: move outward
	CurrentCoord vio.Location
	TargetCoord  vio.Location
}

// MigrationBatch is the Planner's output, ready for the Relocator. ID
// correlates a batch across planning, relocation, and log lines the way
// healing.Task.ID does for repair tasks.
type MigrationBatch struct {
	ID         string
	Candidates []Candidate
	TotalBytes int64
}

func newBatchID() string {
	id, err := shortid.Generate()
	if err != nil {
		return "batch"
	}
	return id
}

// Planner evaluates every path in a VAT against the zone/access-count
// rules of spec §4.7.
type Planner struct {
	v       *vat.VAT
	zones   zone.Radii
	cfg     config.MigrationConfig
	pathLen func(path string) int64 // bytes per path, for batch byte caps
}

// New constructs a Planner bound to v, classifying distances via zones and
// thresholds from cfg.
func New(v *vat.VAT, zones zone.Radii, cfg config.MigrationConfig, pathSize func(string) int64) *Planner {
	return &Planner{v: v, zones: zones, cfg: cfg, pathLen: pathSize}
}

// Evaluate scores every allocated path against counters, per spec §4.7
// "For each path" rules.
func (p *Planner) Evaluate(counters AccessCounters) []Candidate {
	var out []Candidate
	for _, path := range p.v.Paths() {
		anchor, ok := p.v.Lookup(path)
		if !ok {
			continue
		}
		d := anchor.DistanceTo(p.v.Center())
		z := p.zones.Classify(d)
		count := counters.AccessCount(path)

		clamped := count * 5
		if clamped > 50 {
			clamped = 50
		}
		priority := z.Weight() + int(clamped)

		shouldMove, inward := shouldMigrate(z, count, p.cfg.AccessThreshold)
		benefit := float64(1000-priority) + 2*float64(count)

		c := Candidate{
			Path:         path,
			CurrentZone:  z,
			AccessCount:  count,
			Priority:     priority,
			Benefit:      benefit,
			ShouldMove:   shouldMove,
			Inward:       inward,
			CurrentCoord: anchor,
		}
		if shouldMove {
			c.TargetCoord = p.targetCoord(anchor, count, z)
		}
		out = append(out, c)
	}
	return out
}

// shouldMigrate implements spec §4.7's should_migrate rule: migrate inward
// when hot enough and not already HOT; migrate outward (defragmenting the
// hot zone) when cold enough but currently sitting in HOT.
func shouldMigrate(z zone.Zone, accessCount, threshold int64) (should, inward bool) {
	if accessCount >= threshold && z != zone.HOT {
		return true, true
	}
	if z == zone.HOT && accessCount < threshold/2 {
		return true, false
	}
	return false, false
}
