package tuner

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/infinite-map/imap/cache"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/migration"
	"github.com/infinite-map/imap/relocate"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// Tuner is the Performance Tuner (spec §4.10, L10). It observes the
// Cache's stats and the VAT's fragmentation and drives the Migration
// Planner and Physical Relocator to rebalance the grid.
type Tuner struct {
	mu sync.Mutex

	v         *vat.VAT
	im        *vio.Image
	c         *cache.Cache
	planner   *migration.Planner
	relocator *relocate.Relocator
	counters  migration.AccessCounters
	pathSize  func(string) int64

	cfg      config.TunerConfig
	migCfg   config.MigrationConfig
	relocCfg config.RelocatorConfig

	history *History
}

// New constructs a Tuner wired to the live engine components it observes
// and adjusts.
func New(
	v *vat.VAT,
	im *vio.Image,
	c *cache.Cache,
	planner *migration.Planner,
	relocator *relocate.Relocator,
	counters migration.AccessCounters,
	pathSize func(string) int64,
	cfg config.TunerConfig,
	migCfg config.MigrationConfig,
	relocCfg config.RelocatorConfig,
) *Tuner {
	return &Tuner{
		v: v, im: im, c: c, planner: planner, relocator: relocator,
		counters: counters, pathSize: pathSize,
		cfg: cfg, migCfg: migCfg, relocCfg: relocCfg,
		history: NewHistory(cfg.HistoryCap),
	}
}

// CacheChange describes one applied cache adjustment, returned by
// tune_cache() per spec §4.10 "return applied changes".
type CacheChange struct {
	Field    string
	OldValue int64
	NewValue int64
}

// TuneCache implements tune_cache(): when the observed hit-rate falls
// below cfg.TargetHitRate, it grows the cache by cfg.CacheResizeFactor
// (capped at cfg.MaxCacheSizeBytes). Growing a cache never evicts, so the
// entries already resident -- the current hot set -- stay warm without a
// separate re-fetch pass; eviction-policy switching (LRU/LFU/ARC) is left
// for a future cache implementation, since only LRU exists today.
func (t *Tuner) TuneCache() []CacheChange {
	stats := t.c.Stats()
	if stats.HitRate >= t.cfg.TargetHitRate {
		return nil
	}
	old := t.c.MaxSize()
	next := int64(float64(old) * t.cfg.CacheResizeFactor)
	if next > t.cfg.MaxCacheSizeBytes {
		next = t.cfg.MaxCacheSizeBytes
	}
	if next <= old {
		return nil
	}
	t.c.Resize(next)
	glog.Infof("tuner: hit_rate %.3f below target %.3f, grew cache %d -> %d bytes", stats.HitRate, t.cfg.TargetHitRate, old, next)
	return []CacheChange{{Field: "max_size_bytes", OldValue: old, NewValue: next}}
}

// TuneZoneDistribution implements tune_zone_distribution(): evaluates
// every path, selects a capped batch of the highest-benefit moves, and
// applies it through the Relocator, physically copying each moved
// cluster's bytes before swapping the VAT entry.
func (t *Tuner) TuneZoneDistribution() (migration.MigrationBatch, []relocate.Result, error) {
	candidates := t.planner.Evaluate(t.counters)
	batch := migration.SelectBatch(
		candidates, t.pathSize, t.relocCfg.Throughput,
		t.migCfg.MaxBatchCount, t.migCfg.MaxBatchBytes, t.migCfg.MaxBatchTime,
		t.migCfg.MinMigrationBenefit, t.relocCfg.MaxConcurrent,
	)
	if len(batch.Candidates) == 0 {
		return batch, nil, nil
	}

	moves := make([]relocate.Move, 0, len(batch.Candidates))
	for _, c := range batch.Candidates {
		data, err := vio.ReadCluster(t.im, c.CurrentCoord)
		if err != nil {
			return batch, nil, err
		}
		moves = append(moves, relocate.Move{Old: c.CurrentCoord, New: c.TargetCoord, Data: data})
	}

	results := t.relocator.RelocateBatch(moves, func(old, new vio.Location) error {
		idx := indexOfMove(moves, old, new)
		if idx < 0 {
			return nil
		}
		if err := vio.WriteCluster(t.im, new, moves[idx].Data); err != nil {
			return err
		}
		return t.v.RelocateCluster(old, new)
	})
	return batch, results, nil
}

func indexOfMove(moves []relocate.Move, old, new vio.Location) int {
	for i, m := range moves {
		if m.Old == old && m.New == new {
			return i
		}
	}
	return -1
}

// FragmentationReport is tune_cluster_size()'s return value.
type FragmentationReport struct {
	TotalFiles      int
	FragmentedFiles int
	Fraction        float64
}

// TuneClusterSize implements tune_cluster_size(): reports the fraction of
// files whose consecutive cluster-chain members are more than
// cfg.FragmentationGapCells Hilbert-linear cells apart. Actual
// defragmentation happens through TuneZoneDistribution's relocation pass,
// not here.
func (t *Tuner) TuneClusterSize() (FragmentationReport, error) {
	paths := t.v.Paths()
	var fragmented int
	for _, p := range paths {
		chain, ok := t.v.Chain(p)
		if !ok || len(chain) < 2 {
			continue
		}
		frag, err := isFragmented(t.im, chain, t.cfg.FragmentationGapCells)
		if err != nil {
			return FragmentationReport{}, err
		}
		if frag {
			fragmented++
		}
	}
	report := FragmentationReport{TotalFiles: len(paths), FragmentedFiles: fragmented}
	if len(paths) > 0 {
		report.Fraction = float64(fragmented) / float64(len(paths))
	}
	return report, nil
}

func isFragmented(im *vio.Image, chain []vio.Location, gapCells int64) (bool, error) {
	for i := 1; i < len(chain); i++ {
		prev, err := im.Curve().XYToLinear(chain[i-1].X, chain[i-1].Y)
		if err != nil {
			return false, err
		}
		cur, err := im.Curve().XYToLinear(chain[i].X, chain[i].Y)
		if err != nil {
			return false, err
		}
		gap := int64(cur) - int64(prev)
		if gap < 0 {
			gap = -gap
		}
		if gap > gapCells {
			return true, nil
		}
	}
	return false, nil
}

// TuneAllResult is tune_all()'s return value.
type TuneAllResult struct {
	Before             BenchmarkResult
	After              BenchmarkResult
	ImprovementPercent float64
	CacheChanges       []CacheChange
	MigrationBatch     migration.MigrationBatch
	Fragmentation      FragmentationReport
	Recommendations    []string
}

// TuneAll implements tune_all(): validate config, capture before-metrics,
// run every enabled tuner, capture after-metrics, compute
// improvement_percent as the mean of non-negative per-metric deltas
// (latency inverted so a decrease counts as positive), produce
// recommendations, and append to history.
func (t *Tuner) TuneAll(cfg config.Config, benchmarkIterations int) (TuneAllResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return TuneAllResult{}, err
	}

	before, err := t.Benchmark(benchmarkIterations)
	if err != nil {
		return TuneAllResult{}, err
	}

	cacheChanges := t.TuneCache()
	batch, _, err := t.TuneZoneDistribution()
	if err != nil {
		return TuneAllResult{}, err
	}
	frag, err := t.TuneClusterSize()
	if err != nil {
		return TuneAllResult{}, err
	}

	after, err := t.Benchmark(benchmarkIterations)
	if err != nil {
		return TuneAllResult{}, err
	}

	improvement := improvementPercent(before, after)
	recs := recommendations(before, after, frag, cacheChanges, batch)

	result := TuneAllResult{
		Before:             before,
		After:              after,
		ImprovementPercent: improvement,
		CacheChanges:       cacheChanges,
		MigrationBatch:     batch,
		Fragmentation:      frag,
		Recommendations:    recs,
	}

	t.history.Append(Record{
		Timestamp:          time.Now(),
		Before:             before,
		After:              after,
		ImprovementPercent: improvement,
		Recommendations:    recs,
		CacheChanges:       cacheChanges,
		MigrationBatchID:   batch.ID,
		MigrationMoved:     len(batch.Candidates),
	})
	return result, nil
}

// History returns every retained tune_all() record, newest last.
func (t *Tuner) History() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.All()
}

// improvementPercent is the mean of each metric's non-negative delta,
// with latency metrics inverted (a decrease in latency is an increase in
// goodness) per spec §4.10.
func improvementPercent(before, after BenchmarkResult) float64 {
	deltas := []float64{
		relativeImprovement(float64(before.ReadLatency), float64(after.ReadLatency), true),
		relativeImprovement(float64(before.WriteLatency), float64(after.WriteLatency), true),
		relativeImprovement(before.Throughput, after.Throughput, false),
		relativeImprovement(before.CacheHitRate, after.CacheHitRate, false),
	}
	var sum float64
	var n int
	for _, d := range deltas {
		if d > 0 {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 100
}

func relativeImprovement(before, after float64, lowerIsBetter bool) float64 {
	if before == 0 {
		return 0
	}
	delta := (after - before) / before
	if lowerIsBetter {
		delta = -delta
	}
	return delta
}

func recommendations(before, after BenchmarkResult, frag FragmentationReport, changes []CacheChange, batch migration.MigrationBatch) []string {
	var out []string
	if len(changes) > 0 {
		out = append(out, "cache resized to improve hit rate")
	}
	if len(batch.Candidates) > 0 {
		out = append(out, "applied a zone-rebalancing relocation batch")
	}
	if frag.Fraction > 0.25 {
		out = append(out, "high fragmentation detected; consider a dedicated defragmentation pass")
	}
	if after.CacheHitRate < before.CacheHitRate {
		out = append(out, "cache hit rate regressed; investigate working-set size")
	}
	if len(out) == 0 {
		out = append(out, "no changes applied; system within target thresholds")
	}
	return out
}
