// Package config is the engine's global config object, grounded on
// aistore's cmn.GCO (global config object) pattern referenced throughout
// ec/respondxaction.go ("conf := cmn.GCO.Get()"). Unlike aistore we
// expose it as an explicit, constructor-injected value rather than a
// package-level singleton, per the "no global mutable state" design note
// in spec §9.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Zone thresholds express distance from center as a fraction of N, per
// spec §3 ("Zones"): HOT d<N/64, WARM d<3N/64, TEMPERATE d<N/16, COOL d<N/8.
type ZoneConfig struct {
	HotFrac       float64 `yaml:"hot_frac"`
	WarmFrac      float64 `yaml:"warm_frac"`
	TemperateFrac float64 `yaml:"temperate_frac"`
	CoolFrac      float64 `yaml:"cool_frac"`
}

type MigrationConfig struct {
	AccessThreshold     int64         `yaml:"access_threshold"`
	MinMigrationBenefit float64       `yaml:"min_migration_benefit"`
	MaxBatchCount       int           `yaml:"max_batch_count"`
	MaxBatchBytes       int64         `yaml:"max_batch_bytes"`
	MaxBatchTime        time.Duration `yaml:"max_batch_time"`
	SpiralSearchCap     int           `yaml:"spiral_search_cap"`
}

type CacheConfig struct {
	MaxSizeBytes  int64  `yaml:"max_size_bytes"`
	PrefetchWindow int   `yaml:"prefetch_window"`
	StrideTolerance float64 `yaml:"stride_tolerance"`
}

type RelocatorConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	ReadDelay     time.Duration `yaml:"read_delay"`
	WriteDelay    time.Duration `yaml:"write_delay"`
	PerPixelCost  time.Duration `yaml:"per_pixel_cost"`
	Throughput    int64         `yaml:"throughput_bytes_per_sec"`
}

type HealingConfig struct {
	ScanInterval    time.Duration `yaml:"scan_interval"`
	RepairsPerSec   float64       `yaml:"repairs_per_sec"`
}

// RSConfig governs optional Reed-Solomon cluster protection (spec §4.4
// "Optional Reed-Solomon protection"). DataShards/ParityShards feed
// rs.New directly; a file is only ever encoded when its VAT
// rs_protected flag is set, so these defaults apply uniformly to every
// protected file in an image.
type RSConfig struct {
	DataShards   int `yaml:"data_shards"`
	ParityShards int `yaml:"parity_shards"`
}

// TunerConfig governs the Performance Tuner (§4.10): when tune_cache()
// resizes the cache, how much fragmentation tune_cluster_size() tolerates,
// and the history ring buffer's depth (SPEC_FULL.md §C.5).
type TunerConfig struct {
	TargetHitRate          float64 `yaml:"target_hit_rate"`
	CacheResizeFactor      float64 `yaml:"cache_resize_factor"`
	MinCacheSizeBytes      int64   `yaml:"min_cache_size_bytes"`
	MaxCacheSizeBytes      int64   `yaml:"max_cache_size_bytes"`
	FragmentationGapCells  int64   `yaml:"fragmentation_gap_cells"`
	BenchmarkPayloadBytes  int64   `yaml:"benchmark_payload_bytes"`
	HistoryCap             int     `yaml:"history_cap"`
}

type Config struct {
	GridSize   int             `yaml:"grid_size"`
	Zones      ZoneConfig      `yaml:"zones"`
	Migration  MigrationConfig `yaml:"migration"`
	Cache      CacheConfig     `yaml:"cache"`
	Relocator  RelocatorConfig `yaml:"relocator"`
	Healing    HealingConfig   `yaml:"healing"`
	Tuner      TunerConfig     `yaml:"tuner"`
	RS         RSConfig        `yaml:"rs"`
}

// Default returns the spec-mandated defaults (§3, §4.7, §4.9) for a grid of
// the given side length. gridSize must be a power of two.
func Default(gridSize int) Config {
	return Config{
		GridSize: gridSize,
		Zones: ZoneConfig{
			HotFrac:       1.0 / 64,
			WarmFrac:      3.0 / 64,
			TemperateFrac: 1.0 / 16,
			CoolFrac:      1.0 / 8,
		},
		Migration: MigrationConfig{
			AccessThreshold:     50,
			MinMigrationBenefit: 50,
			MaxBatchCount:       64,
			MaxBatchBytes:       256 * 1024 * 1024,
			MaxBatchTime:        30 * time.Second,
			SpiralSearchCap:     4096,
		},
		Cache: CacheConfig{
			MaxSizeBytes:    64 * 1024 * 1024,
			PrefetchWindow:  8,
			StrideTolerance: 0.10,
		},
		Relocator: RelocatorConfig{
			MaxConcurrent: 4,
			ReadDelay:     200 * time.Microsecond,
			WriteDelay:    300 * time.Microsecond,
			PerPixelCost:  1 * time.Microsecond,
			Throughput:    200 * 1024 * 1024,
		},
		Healing: HealingConfig{
			ScanInterval:  5 * time.Minute,
			RepairsPerSec: 20,
		},
		RS: RSConfig{
			DataShards:   4,
			ParityShards: 2,
		},
		Tuner: TunerConfig{
			TargetHitRate:         0.8,
			CacheResizeFactor:     1.5,
			MinCacheSizeBytes:     16 * 1024 * 1024,
			MaxCacheSizeBytes:     512 * 1024 * 1024,
			FragmentationGapCells: 32,
			BenchmarkPayloadBytes: 4 * 1024 * 1024,
			HistoryCap:            200,
		},
	}
}

// Load reads a YAML config file layered on top of Default(gridSize).
func Load(path string, gridSize int) (Config, error) {
	cfg := Default(gridSize)
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Validate reports whether the config is internally consistent, consulted
// by the Performance Tuner's tune_all() before capturing before-metrics
// (§4.10).
func (c Config) Validate() error {
	if c.GridSize <= 0 || c.GridSize&(c.GridSize-1) != 0 {
		return errors.Errorf("grid_size %d must be a power of two", c.GridSize)
	}
	if !(0 < c.Zones.HotFrac && c.Zones.HotFrac < c.Zones.WarmFrac &&
		c.Zones.WarmFrac < c.Zones.TemperateFrac && c.Zones.TemperateFrac < c.Zones.CoolFrac && c.Zones.CoolFrac < 1) {
		return errors.New("zone fractions must be strictly increasing and within (0,1)")
	}
	if c.Relocator.MaxConcurrent < 1 {
		return errors.New("relocator.max_concurrent must be >= 1")
	}
	if c.Cache.MaxSizeBytes < 4096 {
		return errors.New("cache.max_size_bytes must hold at least one cluster")
	}
	if c.Tuner.TargetHitRate < 0 || c.Tuner.TargetHitRate > 1 {
		return errors.New("tuner.target_hit_rate must be within [0,1]")
	}
	if c.Tuner.HistoryCap < 1 {
		return errors.New("tuner.history_cap must be >= 1")
	}
	if c.RS.DataShards < 1 || c.RS.ParityShards < 1 {
		return errors.New("rs.data_shards and rs.parity_shards must each be >= 1")
	}
	return nil
}
