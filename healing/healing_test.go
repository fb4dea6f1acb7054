package healing

import (
	"sync"
	"testing"
	"time"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

func TestDaemonRepairsCorruptedCluster(t *testing.T) {
	v := vat.New(64, hilbert.New(6))
	chain, err := v.Allocate("f", cmn.ClusterSize, nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	corrupted := chain[0]

	var repairedMu sync.Mutex
	repaired := false

	d := New(
		func() (*vat.VAT, error) { return v, nil },
		func(_ *vat.VAT) ([]vio.Location, error) { return []vio.Location{corrupted}, nil },
		func(loc vio.Location) (bool, error) {
			repairedMu.Lock()
			repaired = true
			repairedMu.Unlock()
			return true, nil
		},
		50*time.Millisecond,
		0,
	)

	go d.Run()
	d.ForceScan()
	time.Sleep(100 * time.Millisecond)
	d.Stop()
	d.Wait()

	repairedMu.Lock()
	got := repaired
	repairedMu.Unlock()
	if !got {
		t.Fatal("expected the corrupted cluster to be repaired")
	}

	stats := d.Stats()
	if stats.TasksCompleted != 1 {
		t.Fatalf("expected 1 completed task, got %d", stats.TasksCompleted)
	}
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	d := New(
		func() (*vat.VAT, error) { return nil, nil },
		func(_ *vat.VAT) ([]vio.Location, error) { return nil, nil },
		func(vio.Location) (bool, error) { return true, nil },
		time.Hour,
		0,
	)
	go d.Run()
	d.Stop()
	d.Stop() // must not panic
	d.Wait()
}

func TestDaemonDoesNotDuplicatePendingTasks(t *testing.T) {
	loc := vio.Location{X: 2, Y: 2}
	var calls int
	var mu sync.Mutex

	d := New(
		func() (*vat.VAT, error) { return vat.New(64, hilbert.New(6)), nil },
		func(_ *vat.VAT) ([]vio.Location, error) { return []vio.Location{loc}, nil },
		func(vio.Location) (bool, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			return true, nil
		},
		20*time.Millisecond,
		0,
	)

	go d.Run()
	d.ForceScan()
	d.ForceScan() // coalesced; must not create a duplicate task for `loc`
	time.Sleep(80 * time.Millisecond)
	d.Stop()
	d.Wait()

	mu.Lock()
	n := calls
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected at least one repair call")
	}
	active := 0
	for _, task := range d.Tasks() {
		if task.Location == loc && (task.Status == TaskPending || task.Status == TaskInProgress) {
			active++
		}
	}
	if active > 1 {
		t.Fatalf("expected at most one pending/in-progress task for %v, got %d", loc, active)
	}
}
