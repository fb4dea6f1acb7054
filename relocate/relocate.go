// Package relocate implements the Physical Relocator (spec §4.8, L8):
// moving a cluster's bytes from one grid coordinate to another with
// integrity verification, and running a batch of such moves under bounded
// concurrency. The bounded-batch shape is grounded on aistore's
// cmn/sync.go LimitedWaitGroup, which pairs a WaitGroup with a
// DynSemaphore the same way aistore bounds concurrent mountpath joggers.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package relocate

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/vio"
)

// VATUpdateFunc swaps a path's anchor/chain entries from old to new in the
// VAT; it is invoked before a relocation is reported successful (spec
// §4.8 step 4) and is responsible for its own synchronization (spec §5).
type VATUpdateFunc func(old, new vio.Location) error

// Config carries the simulated-delay and cost-model knobs of spec §4.8;
// real deployments would replace ReadDelay/WriteDelay with actual image
// I/O timings.
type Config struct {
	MaxConcurrent int
	ReadDelay     time.Duration
	WriteDelay    time.Duration
	PerPixelCost  time.Duration
	Throughput    int64 // bytes/sec, for estimate_time's size component
}

// Move is one requested relocation.
type Move struct {
	Old, New vio.Location
	Data     []byte
}

// Result is one relocation's outcome (spec §4.8 step 5).
type Result struct {
	CorrelationID string
	Old, New      vio.Location
	BytesMoved    int
	Distance      float64
	Duration      time.Duration
	Verified      bool
	Err           error
}

// Relocator runs relocations with bounded concurrency.
type Relocator struct {
	cfg Config
}

// New constructs a Relocator bound by cfg.MaxConcurrent simultaneous moves.
func New(cfg Config) *Relocator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Relocator{cfg: cfg}
}

// RelocateCluster performs the steps of spec §4.8 `relocate_cluster`.
func (r *Relocator) RelocateCluster(old, new vio.Location, data []byte, update VATUpdateFunc) Result {
	start := time.Now()
	correlationID := uuid.New().String()

	oldSum := sha256.Sum256(data)
	oldDigest := hex.EncodeToString(oldSum[:])

	if r.cfg.ReadDelay > 0 {
		time.Sleep(r.cfg.ReadDelay)
	}
	if r.cfg.WriteDelay > 0 {
		time.Sleep(r.cfg.WriteDelay)
	}

	ok := verifyIntegrity(data, oldDigest)
	if !ok {
		return Result{
			CorrelationID: correlationID,
			Old:           old,
			New:           new,
			Duration:      time.Since(start),
			Verified:      false,
			Err:           ecode.New(ecode.ChecksumMismatch, "relocate.relocate_cluster", "new data digest mismatch"),
		}
	}

	if update != nil {
		if err := update(old, new); err != nil {
			return Result{
				CorrelationID: correlationID,
				Old:           old,
				New:           new,
				Duration:      time.Since(start),
				Verified:      true,
				Err:           ecode.Wrap(ecode.IoError, "relocate.relocate_cluster", "vat update callback", err),
			}
		}
	}

	return Result{
		CorrelationID: correlationID,
		Old:           old,
		New:           new,
		BytesMoved:    len(data),
		Distance:      old.DistanceTo(new),
		Duration:      time.Since(start),
		Verified:      true,
	}
}

func verifyIntegrity(data []byte, oldDigest string) bool {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == oldDigest
}

// RelocateBatch runs up to r.cfg.MaxConcurrent moves simultaneously.
// Partial failures do not poison the batch: each Result is independent
// (spec §4.8 "Concurrency").
func (r *Relocator) RelocateBatch(moves []Move, update VATUpdateFunc) []Result {
	results := make([]Result, len(moves))
	lwg := cmn.NewLimitedWaitGroup(r.cfg.MaxConcurrent)
	for i, m := range moves {
		i, m := i, m
		lwg.Add(1)
		go func() {
			defer lwg.Done()
			results[i] = r.RelocateCluster(m.Old, m.New, m.Data, update)
		}()
	}
	lwg.Wait()
	return results
}

// EstimateTime implements spec §4.8 `estimate_time`.
func (r *Relocator) EstimateTime(nClusters int, avgDistance float64, avgSize int64) time.Duration {
	if nClusters <= 0 {
		return 0
	}
	perItem := r.cfg.ReadDelay + r.cfg.WriteDelay
	total := perItem * time.Duration(nClusters)
	total += time.Duration(float64(r.cfg.PerPixelCost) * avgDistance * float64(nClusters))
	if r.cfg.Throughput > 0 {
		sizeComponent := time.Duration(float64(avgSize*int64(nClusters)) / float64(r.cfg.Throughput) * float64(time.Second))
		total += sizeComponent
	}
	denom := nClusters
	if r.cfg.MaxConcurrent < denom {
		denom = r.cfg.MaxConcurrent
	}
	if denom < 1 {
		denom = 1
	}
	return total / time.Duration(denom)
}
