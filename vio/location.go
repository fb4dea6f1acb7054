// Package vio (vector I/O) implements reading and writing a 4096-byte
// cluster anchored at a Hilbert grid coordinate against the backing image
// (spec §4.1, L1 Cluster I/O).
package vio

import (
	"encoding/binary"
	"fmt"

	"github.com/infinite-map/imap/zone"
)

// Location is a ClusterLocation: the (x, y) of a cluster's first cell.
type Location struct {
	X, Y uint32
}

func (l Location) String() string { return fmt.Sprintf("(%d,%d)", l.X, l.Y) }

// Bytes serializes the location as two little-endian uint16s, per spec
// §6.3 FAT entry field layout (first_cluster: x:uint16, y:uint16).
func (l Location) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], uint16(l.X))
	binary.LittleEndian.PutUint16(b[2:4], uint16(l.Y))
	return b
}

// LocationFromBytes is the inverse of Location.Bytes.
func LocationFromBytes(b []byte) Location {
	return Location{
		X: uint32(binary.LittleEndian.Uint16(b[0:2])),
		Y: uint32(binary.LittleEndian.Uint16(b[2:4])),
	}
}

// DistanceTo returns the Euclidean distance between two locations.
func (l Location) DistanceTo(other Location) float64 {
	return zone.Distance(l.X, l.Y, other.X, other.Y)
}

// ID returns a stable string identifier for this location, used as the
// checksum store's cluster_id (spec §3 "Checksum entry").
func (l Location) ID() string { return fmt.Sprintf("%d:%d", l.X, l.Y) }
