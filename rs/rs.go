// Package rs implements optional Reed-Solomon protection for a single
// cluster's payload (spec §4.4 "Optional Reed-Solomon protection", framing
// per §6.7), wrapping github.com/klauspost/reedsolomon -- the same codec
// aistore vendors for its own erasure-coded object storage (ec/).
package rs

import (
	"encoding/binary"

	"github.com/infinite-map/imap/ecode"
	"github.com/klauspost/reedsolomon"
)

const (
	magicProtected   uint32 = 0x52535253 // "RSRS" LE
	magicUnprotected uint32 = 0x52535000
	frameVersion     uint16 = 1
	headerSize              = 14 // magic(4) + version(2) + flags(2) + num_shards(2) + shard_size(4)
)

// Codec encodes/decodes a cluster's payload into D data shards + P parity
// shards, per spec §4.4.
type Codec struct {
	DataShards   int
	ParityShards int
	enc          reedsolomon.Encoder
}

// New constructs a Codec with d data shards and p parity shards.
func New(d, p int) (*Codec, error) {
	enc, err := reedsolomon.New(d, p)
	if err != nil {
		return nil, ecode.Wrap(ecode.InvariantViolated, "rs.new", "construct encoder", err)
	}
	return &Codec{DataShards: d, ParityShards: p, enc: enc}, nil
}

// Encode wraps a raw cluster payload in the §6.7 RS frame: splits it into
// DataShards data shards (padding the payload to a multiple of
// DataShards), computes ParityShards parity shards, and concatenates
// header+shards.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	shardSize := (len(payload) + c.DataShards - 1) / c.DataShards
	total := c.DataShards + c.ParityShards
	shards := make([][]byte, total)
	for i := 0; i < c.DataShards; i++ {
		shards[i] = make([]byte, shardSize)
	}
	for i := c.DataShards; i < total; i++ {
		shards[i] = make([]byte, shardSize)
	}
	for i := 0; i < len(payload); i++ {
		shards[i/shardSize][i%shardSize] = payload[i]
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, ecode.Wrap(ecode.InvariantViolated, "rs.encode", "reed-solomon encode", err)
	}

	out := make([]byte, headerSize+total*shardSize)
	binary.LittleEndian.PutUint32(out[0:4], magicProtected)
	binary.LittleEndian.PutUint16(out[4:6], frameVersion)
	binary.LittleEndian.PutUint16(out[6:8], 0) // flags, reserved
	binary.LittleEndian.PutUint16(out[8:10], uint16(total))
	binary.LittleEndian.PutUint32(out[10:14], uint32(shardSize))
	off := headerSize
	for _, s := range shards {
		copy(out[off:off+shardSize], s)
		off += shardSize
	}
	return out, nil
}

// IsEncoded reports whether framed begins with the RS-protected magic.
func IsEncoded(framed []byte) bool {
	if len(framed) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(framed[0:4]) == magicProtected
}

// Decode reverses Encode, tolerating up to ParityShards missing or
// corrupt shards (flagged via lost, one entry per shard index; nil means
// "assume all present"). payloadLen trims the padding introduced by
// Encode's shard splitting.
func (c *Codec) Decode(framed []byte, lost []bool, payloadLen int) ([]byte, error) {
	if len(framed) < headerSize {
		return nil, ecode.New(ecode.Corrupt, "rs.decode", "frame too short")
	}
	magic := binary.LittleEndian.Uint32(framed[0:4])
	if magic != magicProtected {
		return nil, ecode.New(ecode.Corrupt, "rs.decode", "not an RS-protected frame")
	}
	numShards := int(binary.LittleEndian.Uint16(framed[8:10]))
	shardSize := int(binary.LittleEndian.Uint32(framed[10:14]))
	total := c.DataShards + c.ParityShards
	if numShards != total {
		return nil, ecode.New(ecode.Corrupt, "rs.decode", "shard count mismatch")
	}
	if len(framed) < headerSize+total*shardSize {
		return nil, ecode.New(ecode.Corrupt, "rs.decode", "truncated shards")
	}

	shards := make([][]byte, total)
	off := headerSize
	for i := 0; i < total; i++ {
		if lost != nil && i < len(lost) && lost[i] {
			shards[i] = nil
		} else {
			buf := make([]byte, shardSize)
			copy(buf, framed[off:off+shardSize])
			shards[i] = buf
		}
		off += shardSize
	}

	ok, err := c.enc.Verify(shards)
	if err != nil || !ok {
		if err := c.enc.Reconstruct(shards); err != nil {
			return nil, ecode.Wrap(ecode.IntegrityUnrepairable, "rs.decode", "reconstruct failed", err)
		}
	}

	out := make([]byte, 0, payloadLen)
	for i := 0; i < c.DataShards && len(out) < payloadLen; i++ {
		remaining := payloadLen - len(out)
		if remaining >= shardSize {
			out = append(out, shards[i]...)
		} else {
			out = append(out, shards[i][:remaining]...)
		}
	}
	return out, nil
}

// WrapUnprotected frames payload with the unprotected magic, so every
// on-image cluster (protected or not) can be told apart by its header
// (spec §6.7).
func WrapUnprotected(payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], magicUnprotected)
	binary.LittleEndian.PutUint16(out[4:6], frameVersion)
	binary.LittleEndian.PutUint16(out[6:8], 0)
	copy(out[8:], payload)
	return out
}

// UnwrapUnprotected reverses WrapUnprotected.
func UnwrapUnprotected(framed []byte) ([]byte, error) {
	if len(framed) < 8 {
		return nil, ecode.New(ecode.Corrupt, "rs.unwrap_unprotected", "frame too short")
	}
	if binary.LittleEndian.Uint32(framed[0:4]) != magicUnprotected {
		return nil, ecode.New(ecode.Corrupt, "rs.unwrap_unprotected", "not an unprotected frame")
	}
	return framed[8:], nil
}
