// Package hilbert implements the bijection between a linear offset and a
// 2-D grid coordinate used to address every cell in the Infinite Map's
// backing image (spec §4.0). It is new code: the original Python
// implementation's HilbertCurve class was not present in the retrieved
// source slice, so this follows the classical d2xy/xy2d bit-rotation
// algorithm, the standard approach for power-of-two Hilbert curves.
package hilbert

import "github.com/infinite-map/imap/ecode"

// lutCap bounds how large an order we will precompute a full lookup table
// for; above it Curve falls back to the iterative algorithm per spec §4.0.
const lutCap = 12 // order 12 -> 2^24 cells, 16M*2*4 bytes of LUT

// Curve is a Hilbert curve of the given order; side length N = 2^order.
type Curve struct {
	order int
	side  uint32
	xLUT  []uint32
	yLUT  []uint32
	tLUT  map[uint64]uint32 // (x<<32|y) -> t, only populated alongside xLUT/yLUT
}

// New constructs a Curve of the given order (side = 2^order). Orders up to
// lutCap precompute a full coordinate lookup table; larger orders compute
// on demand.
func New(order int) *Curve {
	c := &Curve{order: order, side: 1 << uint(order)}
	if order <= lutCap {
		c.buildLUT()
	}
	return c
}

// Order returns the curve's order (side = 2^Order()).
func (c *Curve) Order() int { return c.order }

// Side returns 2^order, the grid's side length N.
func (c *Curve) Side() uint32 { return c.side }

func (c *Curve) buildLUT() {
	n := uint64(c.side) * uint64(c.side)
	c.xLUT = make([]uint32, n)
	c.yLUT = make([]uint32, n)
	c.tLUT = make(map[uint64]uint32, n)
	for t := uint64(0); t < n; t++ {
		x, y := linearToXY(uint32(t), c.order)
		c.xLUT[t] = x
		c.yLUT[t] = y
		c.tLUT[key(x, y)] = uint32(t)
	}
}

func key(x, y uint32) uint64 { return uint64(x)<<32 | uint64(y) }

// LinearToXY maps t in [0, side^2) to its grid coordinate.
func (c *Curve) LinearToXY(t uint64) (x, y uint32, err error) {
	max := uint64(c.side) * uint64(c.side)
	if t >= max {
		return 0, 0, ecode.New(ecode.OutOfBounds, "hilbert.linear_to_xy", "t out of range")
	}
	if c.xLUT != nil {
		return c.xLUT[t], c.yLUT[t], nil
	}
	x, y = linearToXY(uint32(t), c.order)
	return x, y, nil
}

// XYToLinear maps an in-range (x, y) to its linear offset t.
func (c *Curve) XYToLinear(x, y uint32) (uint64, error) {
	if x >= c.side || y >= c.side {
		return 0, ecode.New(ecode.OutOfBounds, "hilbert.xy_to_linear", "coordinate out of range")
	}
	if c.tLUT != nil {
		return uint64(c.tLUT[key(x, y)]), nil
	}
	return uint64(xyToLinear(x, y, c.order)), nil
}

// linearToXY is the classical iterative "d2xy" algorithm.
func linearToXY(t uint32, order int) (x, y uint32) {
	for s := uint32(1); s < (uint32(1) << uint(order)); s <<= 1 {
		rx := uint32(1) & (t / 2)
		ry := uint32(1) & (t ^ rx)
		x, y = rot(s, x, y, rx, ry)
		x += s * rx
		y += s * ry
		t /= 4
	}
	return x, y
}

// xyToLinear is the classical iterative "xy2d" algorithm. Note rot is
// called with the full side n (not the shrinking sub-square s) here,
// unlike linearToXY above -- that asymmetry is part of the canonical
// algorithm, not a bug.
func xyToLinear(x, y uint32, order int) uint32 {
	n := uint32(1) << uint(order)
	var t uint32
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint32
		if x&s > 0 {
			rx = 1
		}
		if y&s > 0 {
			ry = 1
		}
		t += s * s * ((3 * rx) ^ ry)
		x, y = rot(n, x, y, rx, ry)
	}
	return t
}

// rot rotates/reflects a quadrant, the standard companion step to both
// direction conversions.
func rot(s, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx == 1 {
			x = s - 1 - x
			y = s - 1 - y
		}
		x, y = y, x
	}
	return x, y
}
