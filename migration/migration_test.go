package migration

import (
	"testing"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/zone"
)

type fakeCounters map[string]int64

func (f fakeCounters) AccessCount(path string) int64 { return f[path] }

func newTestVAT(t *testing.T, gridSize int) *vat.VAT {
	t.Helper()
	order := 0
	for 1<<uint(order) < gridSize {
		order++
	}
	return vat.New(gridSize, hilbert.New(order))
}

func TestShouldMigrateHotEnoughButNotHot(t *testing.T) {
	should, inward := shouldMigrate(zone.WARM, 60, 50)
	if !should || !inward {
		t.Fatalf("expected inward migration, got should=%v inward=%v", should, inward)
	}
}

func TestShouldMigrateColdHotZoneDefrags(t *testing.T) {
	should, inward := shouldMigrate(zone.HOT, 5, 50)
	if !should || inward {
		t.Fatalf("expected outward migration, got should=%v inward=%v", should, inward)
	}
}

func TestShouldMigrateNoAction(t *testing.T) {
	should, _ := shouldMigrate(zone.TEMPERATE, 10, 50)
	if should {
		t.Fatal("expected no migration for moderate access in TEMPERATE")
	}
}

func TestEvaluateProducesCandidates(t *testing.T) {
	v := newTestVAT(t, 256)
	cfg := config.Default(256)
	zones := zone.Resolve(cfg.Zones, 256)

	preferred := v.Center()
	preferred.X += uint32(zones.Cool) + 40 // far enough out to land COLD
	if _, err := v.Allocate("cold/file", cmn.ClusterSize, &preferred); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	p := New(v, zones, cfg.Migration, func(string) int64 { return cmn.ClusterSize })
	counters := fakeCounters{"cold/file": 60}
	candidates := p.Evaluate(counters)

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if !c.ShouldMove || !c.Inward {
		t.Fatalf("expected inward migration for hot-accessed cold file, got %+v", c)
	}
	if c.TargetCoord.DistanceTo(v.Center()) >= c.CurrentCoord.DistanceTo(v.Center()) {
		t.Fatalf("expected target closer to center than current: target=%v current=%v", c.TargetCoord, c.CurrentCoord)
	}
}

func TestSelectBatchRespectsCaps(t *testing.T) {
	candidates := []Candidate{
		{Path: "a", ShouldMove: true, Benefit: 900},
		{Path: "b", ShouldMove: true, Benefit: 800},
		{Path: "c", ShouldMove: true, Benefit: 10},
	}
	batch := SelectBatch(candidates, func(string) int64 { return cmn.ClusterSize }, 200*1024*1024, 1, 0, 0, 50, 4)
	if len(batch.Candidates) != 1 || batch.Candidates[0].Path != "a" {
		t.Fatalf("expected only highest-benefit candidate 'a', got %+v", batch.Candidates)
	}
}

func TestSelectBatchSkipsBelowMinBenefit(t *testing.T) {
	candidates := []Candidate{
		{Path: "a", ShouldMove: true, Benefit: 10},
	}
	batch := SelectBatch(candidates, func(string) int64 { return cmn.ClusterSize }, 200*1024*1024, 10, 0, 0, 50, 4)
	if len(batch.Candidates) != 0 {
		t.Fatal("expected candidate below min_migration_benefit to be skipped")
	}
}

func TestEstimateCostScalesWithDistanceAndSize(t *testing.T) {
	near := estimateCost(1, cmn.ClusterSize, 200*1024*1024)
	far := estimateCost(1000, cmn.ClusterSize, 200*1024*1024)
	if far <= near {
		t.Fatalf("expected farther migration to cost more: near=%v far=%v", near, far)
	}
	if near <= 0 {
		t.Fatal("expected positive cost")
	}
}

func TestSpiralSearchFindsFreeCell(t *testing.T) {
	v := newTestVAT(t, 64)
	center := v.Center()
	// Occupy the ideal cell itself.
	if _, err := v.Allocate("occupy", cmn.ClusterSize, &center); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	found := spiralSearchFree(v, center, 4096)
	if found == center {
		t.Fatal("expected spiral search to move off the occupied ideal cell")
	}
	if !v.IsFree(found) {
		t.Fatalf("expected spiral search result to be free, got %v", found)
	}
}
