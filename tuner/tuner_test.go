package tuner

import (
	"testing"

	"github.com/infinite-map/imap/cache"
	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/migration"
	"github.com/infinite-map/imap/relocate"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
	"github.com/infinite-map/imap/zone"
)

type fakeCounters map[string]int64

func (f fakeCounters) AccessCount(path string) int64 { return f[path] }

func newHarness(t *testing.T, gridSize int) (*Tuner, *vat.VAT, *vio.Image) {
	t.Helper()
	order := 0
	for 1<<uint(order) < gridSize {
		order++
	}
	curve := hilbert.New(order)
	v := vat.New(gridSize, curve)
	im, err := vio.NewImage(gridSize)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	cfg := config.Default(gridSize)
	zones := zone.Resolve(cfg.Zones, gridSize)

	c := cache.New(cfg.Cache.MaxSizeBytes)
	planner := migration.New(v, zones, cfg.Migration, func(string) int64 { return cmn.ClusterSize })
	relocator := relocate.New(relocate.Config{
		MaxConcurrent: cfg.Relocator.MaxConcurrent,
		Throughput:    cfg.Relocator.Throughput,
	})
	counters := fakeCounters{}

	tn := New(v, im, c, planner, relocator, counters, func(string) int64 { return cmn.ClusterSize }, cfg.Tuner, cfg.Migration, cfg.Relocator)
	return tn, v, im
}

func TestBenchmarkReportsLatencyAndPercentiles(t *testing.T) {
	tn, _, _ := newHarness(t, 64)
	result, err := tn.Benchmark(16)
	if err != nil {
		t.Fatalf("benchmark: %v", err)
	}
	if result.Duration <= 0 {
		t.Fatal("expected positive duration")
	}
	if result.ReadLatencyP50 <= 0 || result.ReadLatencyP99 < result.ReadLatencyP50 {
		t.Fatalf("unexpected percentile ordering: p50=%v p99=%v", result.ReadLatencyP50, result.ReadLatencyP99)
	}
	if result.Throughput <= 0 {
		t.Fatal("expected positive throughput")
	}
}

func TestTuneCacheGrowsWhenHitRateLow(t *testing.T) {
	tn, _, _ := newHarness(t, 64)
	// Force a low hit rate: several misses, no hits.
	for i := 0; i < 10; i++ {
		tn.c.Get("missing-key")
	}
	before := tn.c.MaxSize()
	changes := tn.TuneCache()
	if len(changes) == 0 {
		t.Fatal("expected a cache resize when hit rate is below target")
	}
	if tn.c.MaxSize() <= before {
		t.Fatalf("expected cache to grow: before=%d after=%d", before, tn.c.MaxSize())
	}
}

func TestTuneCacheNoOpWhenHitRateHealthy(t *testing.T) {
	tn, _, _ := newHarness(t, 64)
	tn.c.Set("k", []byte("v"))
	for i := 0; i < 10; i++ {
		tn.c.Get("k")
	}
	changes := tn.TuneCache()
	if len(changes) != 0 {
		t.Fatalf("expected no change when hit rate is already healthy, got %+v", changes)
	}
}

func TestTuneZoneDistributionRelocatesHotColdFile(t *testing.T) {
	tn, v, im := newHarness(t, 256)
	cfg := config.Default(256)
	zones := zone.Resolve(cfg.Zones, 256)

	far := v.Center()
	far.X += uint32(zones.Cool) + 40
	if _, err := v.Allocate("cold/file", cmn.ClusterSize, &far); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	anchor, _ := v.Lookup("cold/file")
	marker := make([]byte, cmn.ClusterSize)
	for i := range marker {
		marker[i] = 0x5A
	}
	if err := vio.WriteCluster(im, anchor, marker); err != nil {
		t.Fatalf("seed cluster: %v", err)
	}

	tn.counters = fakeCounters{"cold/file": 60}
	batch, results, err := tn.TuneZoneDistribution()
	if err != nil {
		t.Fatalf("tune zone distribution: %v", err)
	}
	if len(batch.Candidates) != 1 {
		t.Fatalf("expected 1 relocation candidate, got %d", len(batch.Candidates))
	}
	if len(results) != 1 || !results[0].Verified || results[0].Err != nil {
		t.Fatalf("expected a verified relocation, got %+v", results)
	}

	newAnchor, ok := v.Lookup("cold/file")
	if !ok {
		t.Fatal("expected cold/file to still be allocated after relocation")
	}
	if newAnchor == anchor {
		t.Fatal("expected the anchor to move")
	}
	got, err := vio.ReadCluster(im, newAnchor)
	if err != nil {
		t.Fatalf("read relocated cluster: %v", err)
	}
	for i, b := range got {
		if b != 0x5A {
			t.Fatalf("relocated cluster lost its data at byte %d: got %x", i, b)
		}
	}
}

func TestTuneClusterSizeReportsFragmentation(t *testing.T) {
	tn, v, _ := newHarness(t, 64)
	if _, err := v.Allocate("small", cmn.ClusterSize, nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	report, err := tn.TuneClusterSize()
	if err != nil {
		t.Fatalf("tune cluster size: %v", err)
	}
	if report.TotalFiles != 1 {
		t.Fatalf("expected 1 tracked file, got %d", report.TotalFiles)
	}
}

func TestTuneAllProducesRecommendationsAndHistory(t *testing.T) {
	tn, _, _ := newHarness(t, 64)
	cfg := config.Default(64)
	result, err := tn.TuneAll(cfg, 8)
	if err != nil {
		t.Fatalf("tune all: %v", err)
	}
	if len(result.Recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
	history := tn.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
}

func TestTuneAllRejectsInvalidConfig(t *testing.T) {
	tn, _, _ := newHarness(t, 64)
	bad := config.Default(64)
	bad.GridSize = 3 // not a power of two
	if _, err := tn.TuneAll(bad, 4); err == nil {
		t.Fatal("expected validation error for invalid config")
	}
}
