package engine

import (
	"fmt"
	"sync"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/rs"
	"github.com/infinite-map/imap/vio"
)

// cacheKey builds the spec §3 cache-entry key "<path>:<offset>:<len>" for
// the cluster at clusterIndex. WriteFile and ReadFile use only index 0,
// caching the whole file's plaintext under that one key.
func cacheKey(path string, clusterIndex int) string {
	return fmt.Sprintf("%s:%d:%d", path, clusterIndex*cmn.ClusterSize, cmn.ClusterSize)
}

// fileLengths tracks each written file's pre-frame payload length, so
// ReadFile knows how much of the reassembled cluster bytes to keep once
// the §6.7 frame header (RS shard padding or the plain WrapUnprotected
// header) is stripped back off. The VAT's serialized document only
// carries the rs_protected bool (spec §6.4), not a byte length, so this
// is kept alongside the Engine rather than persisted; a restart that
// reopens an image must recompute it from the FAT (the Builder's
// directory entries already carry each file's logical size) before any
// of its files can round-trip through ReadFile again.
type fileLengths struct {
	mu  sync.Mutex
	len map[string]int
}

func newFileLengths() *fileLengths { return &fileLengths{len: make(map[string]int)} }

func (r *fileLengths) set(path string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.len[path] = n
}

func (r *fileLengths) get(path string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.len[path]
	return n, ok
}

// WriteFile places path (allocating if new) and writes its bytes across
// the realized cluster chain. Every write goes on-image framed per spec
// §6.7: an RS-protected path (spec §4.4 "a per-file flag tracked in the
// VAT") runs through the Reed-Solomon codec first; an unprotected path
// is wrapped with rs.WrapUnprotected so the cluster still carries a
// self-describing header instead of bare payload bytes. ReadFile
// reverses whichever framing applies using the original length recorded
// here. Every physical cluster also gets its own checksum and the write
// refreshes the plaintext cache entry.
func (e *Engine) WriteFile(path string, data []byte) ([]vio.Location, int, error) {
	protected := e.v.RSProtected(path)
	var onImage []byte
	if protected {
		framed, err := e.rsCodec.Encode(data)
		if err != nil {
			return nil, 0, err
		}
		onImage = framed
	} else {
		onImage = rs.WrapUnprotected(data)
	}
	e.fileLens.set(path, len(data))

	chain, importance, err := e.placer.Place(path, int64(len(onImage)))
	if err != nil {
		return nil, 0, err
	}

	for i, loc := range chain {
		start := i * cmn.ClusterSize
		end := start + cmn.ClusterSize
		buf := make([]byte, cmn.ClusterSize)
		if start < len(onImage) {
			n := end
			if n > len(onImage) {
				n = len(onImage)
			}
			copy(buf, onImage[start:n])
		}
		if err := vio.WriteCluster(e.im, loc, buf); err != nil {
			return nil, 0, err
		}
		if _, err := e.store.ComputeChecksum(buf, loc.ID()); err != nil {
			return nil, 0, err
		}
	}
	e.cache.Set(cacheKey(path, 0), data)
	return chain, importance, nil
}

// ReadFile reconstructs path's full contents from its cluster chain,
// consulting the cache first (spec §4.6 "the Cache fronts all cluster
// reads"), falling back to the image -- and RS-decoding when the file is
// protected -- on miss. It records an access for the Migration Planner
// and Tuner (spec §3 "Access counter").
func (e *Engine) ReadFile(path string) ([]byte, error) {
	chain, ok := e.v.Chain(path)
	if !ok {
		return nil, ecode.New(ecode.NotFound, "engine.read_file", path)
	}
	e.counters.recordAccess(path)

	if data, ok := e.cache.Get(cacheKey(path, 0)); ok {
		return data, nil
	}

	raw := make([]byte, 0, len(chain)*cmn.ClusterSize)
	for _, loc := range chain {
		buf, err := vio.ReadCluster(e.im, loc)
		if err != nil {
			return nil, err
		}
		raw = append(raw, buf...)
	}

	var data []byte
	if e.v.RSProtected(path) {
		payloadLen, ok := e.fileLens.get(path)
		if !ok {
			return nil, ecode.New(ecode.InvariantViolated, "engine.read_file", "rs-protected file has no recorded length: "+path)
		}
		decoded, err := e.rsCodec.Decode(raw, nil, payloadLen)
		if err != nil {
			return nil, err
		}
		data = decoded
	} else if unwrapped, err := rs.UnwrapUnprotected(raw); err == nil {
		if payloadLen, ok := e.fileLens.get(path); ok && payloadLen <= len(unwrapped) {
			unwrapped = unwrapped[:payloadLen]
		}
		data = unwrapped
	} else {
		// no §6.7 header present -- a cluster written directly by the
		// Image Builder, which does not yet frame bodies it places.
		data = raw
	}

	e.cache.Set(cacheKey(path, 0), data)
	return data, nil
}

// DeleteFile frees path's clusters. A stale cache entry for path, if any,
// is harmless: ReadFile checks the VAT chain before ever consulting the
// cache, so it surfaces NotFound instead of the old bytes; a later
// WriteFile to the same path overwrites the cache entry regardless.
func (e *Engine) DeleteFile(path string) error {
	if _, ok := e.v.Chain(path); !ok {
		return ecode.New(ecode.NotFound, "engine.delete_file", path)
	}
	return e.v.Free(path)
}

// SetRSProtection flags or unflags path for Reed-Solomon protection. It
// takes effect on the next WriteFile; it does not re-encode data already
// on disk.
func (e *Engine) SetRSProtection(path string, protected bool) error {
	return e.v.SetRSProtected(path, protected)
}
