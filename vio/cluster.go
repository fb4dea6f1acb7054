package vio

import (
	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
)

// cellsPerCluster is the number of 4-byte cells in one cluster (§3:
// "cluster starts occur only at offsets t divisible by 1024").
const cellsPerCluster = cmn.CellsPerClu

// AnchorLinear validates anchor is a valid cluster start and returns its
// Hilbert-linear offset.
func AnchorLinear(im *Image, anchor Location) (uint64, error) {
	t, err := im.Curve().XYToLinear(anchor.X, anchor.Y)
	if err != nil {
		return 0, ecode.Wrap(ecode.OutOfBounds, "vio.anchor_linear", "coordinate out of range", err)
	}
	if t%cellsPerCluster != 0 {
		return 0, ecode.New(ecode.OutOfBounds, "vio.anchor_linear", "anchor is not a valid cluster start")
	}
	return t, nil
}

// ReadCluster materializes the cellsPerCluster consecutive Hilbert cells
// starting at anchor into a cmn.ClusterSize-byte buffer. Byte ordering
// follows spec §4.1: byte k of the 4-byte cell at linear index i holds
// cluster byte 4*i+k, relative to anchor's linear offset.
func ReadCluster(im *Image, anchor Location) ([]byte, error) {
	start, err := AnchorLinear(im, anchor)
	if err != nil {
		return nil, err
	}
	out := vioBuf()
	for i := uint64(0); i < cellsPerCluster; i++ {
		x, y, err := im.Curve().LinearToXY(start + i)
		if err != nil {
			return nil, ecode.Wrap(ecode.OutOfBounds, "vio.read_cluster", "cluster runs past grid edge", err)
		}
		t, _ := im.Curve().XYToLinear(x, y)
		copy(out[i*4:i*4+4], im.ReadCell(t))
	}
	return out, nil
}

// WriteCluster is the inverse of ReadCluster: it writes exactly
// cmn.ClusterSize bytes into the cellsPerCluster cells starting at anchor.
func WriteCluster(im *Image, anchor Location, data []byte) error {
	if len(data) != cmn.ClusterSize {
		return ecode.New(ecode.InvariantViolated, "vio.write_cluster", "data must be exactly one cluster")
	}
	start, err := AnchorLinear(im, anchor)
	if err != nil {
		return err
	}
	for i := uint64(0); i < cellsPerCluster; i++ {
		x, y, err := im.Curve().LinearToXY(start + i)
		if err != nil {
			return ecode.Wrap(ecode.OutOfBounds, "vio.write_cluster", "cluster runs past grid edge", err)
		}
		t, _ := im.Curve().XYToLinear(x, y)
		im.WriteCell(t, data[i*4:i*4+4])
	}
	return nil
}

func vioBuf() []byte { return Default.Get() }
