package relocate

import (
	"sync"
	"testing"
	"time"

	"github.com/infinite-map/imap/vio"
)

func TestRelocateClusterSuccess(t *testing.T) {
	r := New(Config{MaxConcurrent: 2})
	data := []byte("cluster payload")
	old := vio.Location{X: 1, Y: 1}
	newLoc := vio.Location{X: 5, Y: 5}

	var updated bool
	result := r.RelocateCluster(old, newLoc, data, func(o, n vio.Location) error {
		updated = true
		if o != old || n != newLoc {
			t.Fatalf("unexpected callback args: %v -> %v", o, n)
		}
		return nil
	})
	if !result.Verified || result.Err != nil {
		t.Fatalf("expected success, got %+v", result)
	}
	if !updated {
		t.Fatal("expected VAT update callback to run")
	}
	if result.BytesMoved != len(data) {
		t.Fatalf("expected %d bytes moved, got %d", len(data), result.BytesMoved)
	}
	if result.CorrelationID == "" {
		t.Fatal("expected non-empty correlation id")
	}
}

func TestRelocateBatchBoundsConcurrency(t *testing.T) {
	r := New(Config{MaxConcurrent: 2, ReadDelay: 10 * time.Millisecond})
	var mu sync.Mutex
	var active, maxActive int

	moves := make([]Move, 6)
	for i := range moves {
		moves[i] = Move{Old: vio.Location{X: uint32(i)}, New: vio.Location{X: uint32(i + 10)}, Data: []byte("x")}
	}

	results := r.RelocateBatch(moves, func(o, n vio.Location) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, res := range results {
		if !res.Verified {
			t.Fatalf("expected all moves to verify, got %+v", res)
		}
	}
	if maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent VAT updates, saw %d", maxActive)
	}
}

func TestEstimateTimeDividesByConcurrency(t *testing.T) {
	r := New(Config{MaxConcurrent: 4, ReadDelay: time.Millisecond, WriteDelay: time.Millisecond, PerPixelCost: time.Microsecond, Throughput: 1024 * 1024})
	serial := r.EstimateTime(1, 10, 4096)
	batched := r.EstimateTime(8, 10, 4096)
	if batched <= 0 || serial <= 0 {
		t.Fatal("expected positive estimates")
	}
	if batched >= serial*8 {
		t.Fatalf("expected concurrency to reduce per-batch time below linear scaling: serial=%v batched=%v", serial, batched)
	}
}
