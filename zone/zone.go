// Package zone classifies grid coordinates into concentric distance bands
// around the grid center (spec §3 "Zones"), shared by the Placer, the
// Migration Planner, and the Integrity layer's reporting.
package zone

import (
	"math"

	"github.com/infinite-map/imap/config"
)

type Zone int

const (
	HOT Zone = iota
	WARM
	TEMPERATE
	COOL
	COLD
)

func (z Zone) String() string {
	switch z {
	case HOT:
		return "HOT"
	case WARM:
		return "WARM"
	case TEMPERATE:
		return "TEMPERATE"
	case COOL:
		return "COOL"
	default:
		return "COLD"
	}
}

// Radii resolves a ZoneConfig's fractions into absolute pixel distances for
// a grid of the given side length N.
type Radii struct {
	Hot, Warm, Temperate, Cool float64
}

func Resolve(cfg config.ZoneConfig, gridSize int) Radii {
	n := float64(gridSize)
	return Radii{
		Hot:       cfg.HotFrac * n,
		Warm:      cfg.WarmFrac * n,
		Temperate: cfg.TemperateFrac * n,
		Cool:      cfg.CoolFrac * n,
	}
}

// Classify returns the zone of a point at distance d from center.
func (r Radii) Classify(d float64) Zone {
	switch {
	case d < r.Hot:
		return HOT
	case d < r.Warm:
		return WARM
	case d < r.Temperate:
		return TEMPERATE
	case d < r.Cool:
		return COOL
	default:
		return COLD
	}
}

// Distance is the Euclidean distance between two grid coordinates.
func Distance(x1, y1, x2, y2 uint32) float64 {
	dx := float64(x1) - float64(x2)
	dy := float64(y1) - float64(y2)
	return math.Hypot(dx, dy)
}

// Center returns (N/2, N/2) per spec §3.
func Center(gridSize int) (uint32, uint32) {
	c := uint32(gridSize / 2)
	return c, c
}

// Weight returns a fixed urgency base per zone, used by the Migration
// Planner's priority formula (§4.7): smaller is more urgent, so COLD (the
// least urgent to *evacuate* but most urgent to migrate toward center when
// hot) gets the largest base weight.
func (z Zone) Weight() int {
	switch z {
	case HOT:
		return 0
	case WARM:
		return 20
	case TEMPERATE:
		return 40
	case COOL:
		return 60
	default:
		return 80
	}
}
