// Package tuner implements the Performance Tuner (spec §4.10, L10): a
// benchmarking and self-adjustment loop over the Cache, the Migration
// Planner, and the Physical Relocator, grounded on aistore's
// xaction-style "observe, plan, apply a capped batch" shape.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package tuner

import (
	"crypto/rand"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/ioprobe"
	"github.com/infinite-map/imap/vio"
)

// BenchmarkResult is spec §4.10 benchmark()'s return value, supplemented
// with read-latency percentiles (SPEC_FULL.md §C.6).
type BenchmarkResult struct {
	ReadLatency    time.Duration
	WriteLatency   time.Duration
	Throughput     float64 // bytes/sec across both read and write passes
	CacheHitRate   float64
	Memory         uint64 // bytes currently allocated by the process heap
	Duration       time.Duration
	ReadLatencyP50 time.Duration
	ReadLatencyP90 time.Duration
	ReadLatencyP99 time.Duration
}

// Benchmark runs iterations synthetic write-then-read passes over a
// single scratch cluster, sampling latency distributions. It also samples
// real disk counters via ioprobe when available, purely for the log line
// -- the timings themselves come from the in-process image I/O since the
// backing image may be held entirely in memory.
func (t *Tuner) Benchmark(iterations int) (BenchmarkResult, error) {
	if iterations < 1 {
		iterations = 1
	}
	start := time.Now()

	anchor, err := t.scratchAnchor()
	if err != nil {
		return BenchmarkResult{}, err
	}

	payload := make([]byte, cmn.ClusterSize)
	if _, err := rand.Read(payload); err != nil {
		return BenchmarkResult{}, ecode.Wrap(ecode.IoError, "tuner.benchmark", "fill payload", err)
	}

	if before, err := ioprobe.ReadDiskCounters(); err != nil {
		glog.V(2).Infof("tuner: disk counters unavailable: %v", err)
	} else {
		glog.V(2).Infof("tuner: disk counters before benchmark: %+v", before)
	}

	readSamples := make([]time.Duration, 0, iterations)
	writeSamples := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		ws := time.Now()
		if err := vio.WriteCluster(t.im, anchor, payload); err != nil {
			return BenchmarkResult{}, err
		}
		writeSamples = append(writeSamples, time.Since(ws))

		rs := time.Now()
		if _, err := vio.ReadCluster(t.im, anchor); err != nil {
			return BenchmarkResult{}, err
		}
		readSamples = append(readSamples, time.Since(rs))
	}

	duration := time.Since(start)
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	totalBytes := float64(iterations) * 2 * float64(cmn.ClusterSize)
	var throughput float64
	if duration > 0 {
		throughput = totalBytes / duration.Seconds()
	}

	return BenchmarkResult{
		ReadLatency:    meanDuration(readSamples),
		WriteLatency:   meanDuration(writeSamples),
		Throughput:     throughput,
		CacheHitRate:   t.c.Stats().HitRate,
		Memory:         mem.Alloc,
		Duration:       duration,
		ReadLatencyP50: percentile(readSamples, 0.50),
		ReadLatencyP90: percentile(readSamples, 0.90),
		ReadLatencyP99: percentile(readSamples, 0.99),
	}, nil
}

// scratchAnchor returns the cluster start at Hilbert-linear offset 0,
// which is always valid regardless of VAT occupancy, for benchmark I/O
// that must not disturb allocated data outside that one cluster.
func (t *Tuner) scratchAnchor() (vio.Location, error) {
	x, y, err := t.im.Curve().LinearToXY(0)
	if err != nil {
		return vio.Location{}, ecode.Wrap(ecode.OutOfBounds, "tuner.benchmark", "resolve scratch anchor", err)
	}
	return vio.Location{X: x, Y: y}, nil
}

func meanDuration(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}

// percentile returns the p-th percentile (0 < p <= 1) of samples using
// nearest-rank interpolation; samples is not mutated.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
