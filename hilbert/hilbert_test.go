package hilbert

import (
	"testing"

	fuzz "github.com/google/gofuzz"
)

func TestBijectionSmallOrders(t *testing.T) {
	for order := 1; order <= 6; order++ {
		c := New(order)
		n := uint64(c.Side()) * uint64(c.Side())
		for tt := uint64(0); tt < n; tt++ {
			x, y, err := c.LinearToXY(tt)
			if err != nil {
				t.Fatalf("order %d: LinearToXY(%d): %v", order, tt, err)
			}
			back, err := c.XYToLinear(x, y)
			if err != nil {
				t.Fatalf("order %d: XYToLinear(%d,%d): %v", order, x, y, err)
			}
			if back != tt {
				t.Fatalf("order %d: round-trip mismatch: t=%d -> (%d,%d) -> %d", order, tt, x, y, back)
			}
		}
	}
}

// TestBijectionFuzz fuzzes t within range for higher orders without
// enumerating every cell, per spec §8 property 1 ("for every order <= 12").
func TestBijectionFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(200, 200)
	for _, order := range []int{8, 10, 12} {
		c := New(order)
		n := uint64(c.Side()) * uint64(c.Side())
		var seeds []uint64
		f.Fuzz(&seeds)
		for _, s := range seeds {
			tt := s % n
			x, y, err := c.LinearToXY(tt)
			if err != nil {
				t.Fatalf("order %d: %v", order, err)
			}
			back, err := c.XYToLinear(x, y)
			if err != nil || back != tt {
				t.Fatalf("order %d: round-trip mismatch: t=%d -> (%d,%d) -> %d (err=%v)", order, tt, x, y, back, err)
			}
		}
	}
}

func TestOutOfBounds(t *testing.T) {
	c := New(4) // side 16
	if _, _, err := c.LinearToXY(256); err == nil {
		t.Fatal("expected OutOfBounds for t == side^2")
	}
	if _, err := c.XYToLinear(16, 0); err == nil {
		t.Fatal("expected OutOfBounds for x == side")
	}
	if _, err := c.XYToLinear(0, 16); err == nil {
		t.Fatal("expected OutOfBounds for y == side")
	}
}

func TestNoLUTAboveCap(t *testing.T) {
	c := New(lutCap + 1)
	if c.xLUT != nil {
		t.Fatal("expected no LUT above lutCap")
	}
	x, y, err := c.LinearToXY(12345)
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.XYToLinear(x, y)
	if err != nil || back != 12345 {
		t.Fatalf("round trip failed above lutCap: %d -> (%d,%d) -> %d", 12345, x, y, back)
	}
}
