package vio

import (
	"sync"

	"github.com/infinite-map/imap/cmn"
)

// ClusterPool hands out reusable cluster-sized ([]byte, len cmn.ClusterSize)
// buffers, adapted from aistore's memsys.MMSA slab allocator
// (memsys/mmsa.go, memsys/iosgl.go). The aistore's MMSA manages many slab
// sizes and reclaims idle slabs on a timer; our domain only ever moves
// exactly one size (a cluster), so a single sync.Pool slab is the whole
// adaptation needed -- the slab-reclaim machinery aistore built for a
// multi-tenant storage target has no work to do here and is left out
// rather than carried as dead weight.
type ClusterPool struct {
	pool sync.Pool
}

// NewClusterPool constructs a pool of cluster-sized buffers.
func NewClusterPool() *ClusterPool {
	return &ClusterPool{
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, cmn.ClusterSize)
				return &b
			},
		},
	}
}

// Get returns a zeroed cluster-sized buffer.
func (p *ClusterPool) Get() []byte {
	b := *(p.pool.Get().(*[]byte))
	for i := range b {
		b[i] = 0
	}
	return b
}

// Put returns buf to the pool. buf must be exactly cmn.ClusterSize bytes.
func (p *ClusterPool) Put(buf []byte) {
	if len(buf) != cmn.ClusterSize {
		return
	}
	p.pool.Put(&buf)
}

// Default is the package-wide pool used by ReadCluster/WriteCluster
// callers that don't need their own isolated pool.
var Default = NewClusterPool()
