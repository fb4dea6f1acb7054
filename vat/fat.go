package vat

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/vio"
)

// FileType enumerates a directory entry's kind, spec §6.3 byte 80.
type FileType byte

const (
	FileTypeFile      FileType = 1
	FileTypeDir       FileType = 2
	FileTypeSymlink   FileType = 3
	FileTypeComponent FileType = 4
)

// Entry is the 96-byte on-image directory (FAT) record, spec §6.3. It is
// written by the Builder alongside the VAT document; see SPEC_FULL.md §C.1
// for why: it lets a disaster-recovery pass rebuild ownership even if the
// VAT JSON document itself is unreadable (ecode.Corrupt).
type Entry struct {
	Name         string
	FirstCluster vio.Location
	Size         uint32
	Mode         uint32
	Mtime        uint32
	Type         FileType
	Importance   uint8
	Flags        uint16
}

// MarshalBinary renders e as the 96-byte little-endian record from §6.3.
func (e Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, cmn.FATEntrySz)
	nameBytes := []byte(e.Name)
	if len(nameBytes) > 63 {
		nameBytes = nameBytes[:63]
	}
	copy(buf[0:64], nameBytes)
	copy(buf[64:68], e.FirstCluster.Bytes())
	binary.LittleEndian.PutUint32(buf[68:72], e.Size)
	binary.LittleEndian.PutUint32(buf[72:76], e.Mode)
	binary.LittleEndian.PutUint32(buf[76:80], e.Mtime)
	buf[80] = byte(e.Type)
	buf[81] = e.Importance
	binary.LittleEndian.PutUint16(buf[82:84], e.Flags)
	// 84..87 reserved, left zero.
	sum := crc32.ChecksumIEEE(buf[0:88])
	binary.LittleEndian.PutUint32(buf[88:92], sum)
	return buf, nil
}

// UnmarshalEntry parses a 96-byte FAT record, verifying its trailing CRC.
func UnmarshalEntry(buf []byte) (Entry, error) {
	if len(buf) != cmn.FATEntrySz {
		return Entry{}, ecode.New(ecode.Corrupt, "vat.unmarshal_fat_entry", "wrong length")
	}
	got := crc32.ChecksumIEEE(buf[0:88])
	want := binary.LittleEndian.Uint32(buf[88:92])
	if got != want {
		return Entry{}, ecode.New(ecode.Corrupt, "vat.unmarshal_fat_entry", "crc mismatch")
	}
	nameEnd := bytes.IndexByte(buf[0:64], 0)
	if nameEnd < 0 {
		nameEnd = 64
	}
	return Entry{
		Name:         string(buf[0:nameEnd]),
		FirstCluster: vio.LocationFromBytes(buf[64:68]),
		Size:         binary.LittleEndian.Uint32(buf[68:72]),
		Mode:         binary.LittleEndian.Uint32(buf[72:76]),
		Mtime:        binary.LittleEndian.Uint32(buf[76:80]),
		Type:         FileType(buf[80]),
		Importance:   buf[81],
		Flags:        binary.LittleEndian.Uint16(buf[82:84]),
	}, nil
}

// NewEntry builds a FAT record for path from its VAT anchor, size, and
// importance, stamping the current time as Mtime.
func NewEntry(path string, anchor vio.Location, size int64, importance uint8, isDir bool) Entry {
	ft := FileTypeFile
	if isDir {
		ft = FileTypeDir
	}
	return Entry{
		Name:         path,
		FirstCluster: anchor,
		Size:         uint32(size),
		Mode:         0o644,
		Mtime:        uint32(time.Now().Unix()),
		Type:         ft,
		Importance:   importance,
	}
}

// RebuildFromFAT reconstructs a VAT's forward/reverse indexes purely from a
// slice of FAT entries, without requiring the VAT JSON document at all;
// each file's chain holds only its anchor cluster, and Size is not
// consulted. This is the disaster-recovery path named in SPEC_FULL.md §C.1: when
// the VAT document is ecode.Corrupt but the on-image FAT table survives,
// ownership of each file's *anchor* cluster can still be recovered, even
// though any cluster beyond the anchor degrades to "free" until a
// subsequent scan/repair relocates and re-chains the file.
func RebuildFromFAT(gridSize int, curve *hilbert.Curve, entries []Entry) *VAT {
	v := New(gridSize, curve)
	for _, e := range entries {
		if e.Type == FileTypeDir {
			v.directoryEntries[e.Name] = struct{}{}
			continue
		}
		loc := e.FirstCluster
		if _, free := v.free[loc]; !free {
			// Anchor already claimed by an earlier, possibly stale entry;
			// leave this file unindexed for a human/Scanner to reconcile.
			continue
		}
		delete(v.free, loc)
		v.entries[e.Name] = []vio.Location{loc}
		v.reverseIndex[loc] = e.Name
	}
	return v
}
