// Package ioprobe adapts aistore's ios/diskstats.go disk-stat
// abstraction and fs/mountfs.go's syscall.Statfs free-space probe to the
// Performance Tuner's benchmark() (spec §4.10) and the Image Builder's
// pre-growth space check (spec §4.11).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ioprobe

import (
	"github.com/lufia/iostat"
	"golang.org/x/sys/unix"

	"github.com/infinite-map/imap/ecode"
)

// FreeSpace reports the free and total bytes available on the filesystem
// backing path, via a direct Statfs syscall -- the same call aistore's
// fs/mountfs.go makes to track per-mountpath capacity.
func FreeSpace(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, ecode.Wrap(ecode.IoError, "ioprobe.free_space", path, err)
	}
	free = st.Bavail * uint64(st.Bsize)
	total = st.Blocks * uint64(st.Bsize)
	return free, total, nil
}

// DiskCounters is a point-in-time snapshot of one block device's
// cumulative I/O counters, grounded on aistore's ios.diskBlockStat
// interface shape (ReadBytes/WriteBytes/IOMs).
type DiskCounters struct {
	Device     string
	ReadBytes  uint64
	WriteBytes uint64
}

// ReadDiskCounters samples every block device's counters via
// github.com/lufia/iostat. The Performance Tuner's benchmark() (spec
// §4.10) logs these counters; its latency and throughput figures come from
// timing in-process image I/O.
func ReadDiskCounters() ([]DiskCounters, error) {
	stats, err := iostat.ReadDriveStats()
	if err != nil {
		return nil, ecode.Wrap(ecode.IoError, "ioprobe.read_disk_counters", "iostat", err)
	}
	out := make([]DiskCounters, 0, len(stats))
	for _, s := range stats {
		out = append(out, DiskCounters{
			Device:     s.Name,
			ReadBytes:  uint64(s.BytesRead),
			WriteBytes: uint64(s.BytesWritten),
		})
	}
	return out, nil
}
