package engine

import (
	"github.com/infinite-map/imap/integrity"
	"github.com/infinite-map/imap/jobs"
	"github.com/infinite-map/imap/migration"
	"github.com/infinite-map/imap/relocate"
	"github.com/infinite-map/imap/tuner"
	"github.com/infinite-map/imap/vio"
)

const (
	kindTuneAll  = "tune_all"
	kindZoneTune = "tune_zone_distribution"
	kindHealScan = "healing_scan"
)

// Scan runs a full integrity pass over the live VAT + image (spec §4.4
// `scan`).
func (e *Engine) Scan(progress integrity.ProgressFunc) (integrity.IntegrityReport, error) {
	return e.store.Scan(e.v, e.im, progress)
}

// Repair attempts to restore the given corrupted clusters from the
// configured recovery sources (spec §4.4 `repair`).
func (e *Engine) Repair(locs []vio.Location, sources integrity.RepairSources) (integrity.RepairResult, error) {
	return e.store.Repair(e.im, locs, sources, nil)
}

// RunHealingCycle asks the Self-Healing Daemon for one scan/repair pass
// out-of-band from its ticker (spec §4.9 "external force_scan()
// short-circuits the interval wait"). It only signals ForceScan: the pass
// runs on the goroutine executing Daemon().Run(), and when no such loop
// is running the signal stays pending and no pass executes.
func (e *Engine) RunHealingCycle() {
	e.daemon.ForceScan()
}

// TuneZoneDistribution evaluates the Migration Planner against the
// Engine's live access counters and applies the resulting batch through
// the Relocator, keeping the VAT and the cache's cluster keys consistent
// (spec §4.10 `tune_zone_distribution`).
func (e *Engine) TuneZoneDistribution() (migration.MigrationBatch, []relocate.Result, error) {
	return e.tuner.TuneZoneDistribution()
}

// TuneAll runs the Performance Tuner's full benchmark/adjust/benchmark
// cycle (spec §4.10 `tune_all`).
func (e *Engine) TuneAll(benchmarkIterations int) (tuner.TuneAllResult, error) {
	return e.tuner.TuneAll(e.cfg, benchmarkIterations)
}

// RunTuneAllAsync starts TuneAll as a tracked background Job. A second
// call while one is already in flight returns the existing Job instead
// of starting a concurrent second run (registry "renew" semantics).
func (e *Engine) RunTuneAllAsync(benchmarkIterations int) *jobs.Job {
	return e.jobs.Start(kindTuneAll, func() (interface{}, error) {
		return e.tuner.TuneAll(e.cfg, benchmarkIterations)
	})
}

// RunTuneZoneDistributionAsync starts TuneZoneDistribution as a tracked
// background Job, same renew semantics as RunTuneAllAsync.
func (e *Engine) RunTuneZoneDistributionAsync() *jobs.Job {
	return e.jobs.Start(kindZoneTune, func() (interface{}, error) {
		batch, results, err := e.tuner.TuneZoneDistribution()
		if err != nil {
			return nil, err
		}
		return struct {
			Batch   migration.MigrationBatch
			Results []relocate.Result
		}{batch, results}, nil
	})
}

// RunHealingScanAsync signals the Self-Healing Daemon to run one cycle
// out of band and returns a tracked Job that completes as soon as the
// signal is sent, not when the cycle finishes -- ForceScan only
// short-circuits the interval wait, so the Daemon's own Run loop must
// already be driving it for the cycle to actually execute. Poll Stats()
// via the Daemon accessor to observe the cycle's effect.
func (e *Engine) RunHealingScanAsync() *jobs.Job {
	return e.jobs.Start(kindHealScan, func() (interface{}, error) {
		e.daemon.ForceScan()
		return nil, nil
	})
}
