// Package builder implements the Image Builder (spec §4.11, L11): the
// end-to-end pipeline from a source directory tree to a fresh backing
// image. It is the only component allowed to grow the grid (§4.11 "the
// builder is the only component allowed to grow the grid"). File
// discovery is grounded on aistore's fs/walk.go godirwalk.Options
// shape; the sort-by-importance-then-place loop reuses the placer package.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package builder

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/vio"
)

const (
	superblockMagic   = "INFIN2\x00"
	superblockVersion = uint16(2)
	sbSize            = cmn.ClusterSize
)

// superblock is spec §6.2's on-image header, one cluster wide.
type superblock struct {
	GridSize    uint16
	ClusterSize uint32
	VATOffset   uint32
	VATSize     uint32
	CenterX     uint16
	CenterY     uint16
	FATEntries  uint32
}

// encode renders sb into a cmn.ClusterSize-byte little-endian buffer per
// the exact §6.2 field layout; bytes past offset 31 stay zeroed.
func (sb superblock) encode() []byte {
	buf := make([]byte, sbSize)
	copy(buf[0:7], superblockMagic)
	binary.LittleEndian.PutUint16(buf[7:9], superblockVersion)
	binary.LittleEndian.PutUint16(buf[9:11], sb.GridSize)
	binary.LittleEndian.PutUint32(buf[11:15], sb.ClusterSize)
	binary.LittleEndian.PutUint32(buf[15:19], sb.VATOffset)
	binary.LittleEndian.PutUint32(buf[19:23], sb.VATSize)
	binary.LittleEndian.PutUint16(buf[23:25], sb.CenterX)
	binary.LittleEndian.PutUint16(buf[25:27], sb.CenterY)
	binary.LittleEndian.PutUint32(buf[27:31], sb.FATEntries)
	return buf
}

// decodeSuperblock parses a cluster previously produced by encode.
// vat.RebuildFromFAT takes already-decoded FAT entries and does not read
// the superblock.
func decodeSuperblock(buf []byte) (superblock, error) {
	if len(buf) < 31 || string(buf[0:7]) != superblockMagic {
		return superblock{}, ecode.New(ecode.Corrupt, "builder.decode_superblock", "bad magic")
	}
	if binary.LittleEndian.Uint16(buf[7:9]) != superblockVersion {
		return superblock{}, ecode.New(ecode.Corrupt, "builder.decode_superblock", "unsupported version")
	}
	return superblock{
		GridSize:    binary.LittleEndian.Uint16(buf[9:11]),
		ClusterSize: binary.LittleEndian.Uint32(buf[11:15]),
		VATOffset:   binary.LittleEndian.Uint32(buf[15:19]),
		VATSize:     binary.LittleEndian.Uint32(buf[19:23]),
		CenterX:     binary.LittleEndian.Uint16(buf[23:25]),
		CenterY:     binary.LittleEndian.Uint16(buf[25:27]),
		FATEntries:  binary.LittleEndian.Uint32(buf[27:31]),
	}, nil
}

// fatEntry is one spec §6.3 directory entry, 96 bytes on the wire.
type fatEntry struct {
	Name         string
	FirstCluster vio.Location
	Size         uint32
	Mode         uint32
	MTime        uint32
	FileType     uint8
	Importance   uint8
	Flags        uint16
}

const (
	fatEntrySize    = 96
	fatTypeFile     = 1
	fatTypeDir      = 2
	fatTypeSymlink  = 3
	fatTypeComponent = 4
)

// encode renders the entry into its 96-byte wire form, with a CRC-32 of
// the first 88 bytes in the trailing 4 bytes (§6.3).
func (e fatEntry) encode() []byte {
	buf := make([]byte, fatEntrySize)
	name := []byte(e.Name)
	if len(name) > 63 {
		name = name[:63]
	}
	copy(buf[0:64], name)
	binary.LittleEndian.PutUint16(buf[64:66], uint16(e.FirstCluster.X))
	binary.LittleEndian.PutUint16(buf[66:68], uint16(e.FirstCluster.Y))
	binary.LittleEndian.PutUint32(buf[68:72], e.Size)
	binary.LittleEndian.PutUint32(buf[72:76], e.Mode)
	binary.LittleEndian.PutUint32(buf[76:80], e.MTime)
	buf[80] = e.FileType
	buf[81] = e.Importance
	binary.LittleEndian.PutUint16(buf[82:84], e.Flags)
	sum := crc32.ChecksumIEEE(buf[0:88])
	binary.LittleEndian.PutUint32(buf[88:92], sum)
	return buf
}

func decodeFATEntry(buf []byte) (fatEntry, error) {
	if len(buf) != fatEntrySize {
		return fatEntry{}, ecode.New(ecode.Corrupt, "builder.decode_fat_entry", "wrong length")
	}
	want := binary.LittleEndian.Uint32(buf[88:92])
	got := crc32.ChecksumIEEE(buf[0:88])
	if want != got {
		return fatEntry{}, ecode.New(ecode.ChecksumMismatch, "builder.decode_fat_entry", "fat entry crc mismatch")
	}
	nameEnd := 0
	for nameEnd < 64 && buf[nameEnd] != 0 {
		nameEnd++
	}
	return fatEntry{
		Name: string(buf[0:nameEnd]),
		FirstCluster: vio.Location{
			X: uint32(binary.LittleEndian.Uint16(buf[64:66])),
			Y: uint32(binary.LittleEndian.Uint16(buf[66:68])),
		},
		Size:       binary.LittleEndian.Uint32(buf[68:72]),
		Mode:       binary.LittleEndian.Uint32(buf[72:76]),
		MTime:      binary.LittleEndian.Uint32(buf[76:80]),
		FileType:   buf[80],
		Importance: buf[81],
		Flags:      binary.LittleEndian.Uint16(buf[82:84]),
	}, nil
}
