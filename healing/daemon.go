package healing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	shortid "github.com/teris-io/shortid"
	"golang.org/x/time/rate"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// LoadVATFunc loads the current VAT (spec §4.9 step 1: "on failure, skip
// cycle").
type LoadVATFunc func() (*vat.VAT, error)

// DetectCorruptedFunc asks the Integrity layer for corrupted coordinates
// (spec §4.9 step 3); typically a thin wrapper around Store.Scan that
// returns report.CorruptedLocations().
type DetectCorruptedFunc func(v *vat.VAT) ([]vio.Location, error)

// RepairFunc attempts to repair a single cluster location, returning
// whether it succeeded.
type RepairFunc func(loc vio.Location) (bool, error)

// Stats are the daemon's strictly monotonic counters plus moving averages
// (spec §4.9 "Statistics").
type Stats struct {
	CyclesRun       int64
	TasksCreated    int64
	TasksCompleted  int64
	TasksFailed     int64
	AvgScanDuration time.Duration
	AvgRepairDuration time.Duration
}

// Daemon is the Self-Healing Daemon.
type Daemon struct {
	loadVAT   LoadVATFunc
	detect    DetectCorruptedFunc
	repair    RepairFunc
	interval  time.Duration
	limiter   *rate.Limiter

	mu      sync.Mutex
	tasks   map[string]*Task
	byCoord map[vio.Location]*Task
	stats   Stats

	forceScan chan struct{}
	stop      *cmn.StopCh
	doneCh    chan struct{}
}

// New constructs a Daemon. repairsPerSec paces the repair-drain loop
// (spec §B "prevents a burst of corruption from starving the scan
// interval"); zero or negative disables pacing.
func New(loadVAT LoadVATFunc, detect DetectCorruptedFunc, repair RepairFunc, interval time.Duration, repairsPerSec float64) *Daemon {
	var limiter *rate.Limiter
	if repairsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(repairsPerSec), 1)
	}
	return &Daemon{
		loadVAT:   loadVAT,
		detect:    detect,
		repair:    repair,
		interval:  interval,
		limiter:   limiter,
		tasks:     make(map[string]*Task),
		byCoord:   make(map[vio.Location]*Task),
		forceScan: make(chan struct{}, 1),
		stop:      cmn.NewStopCh(),
		doneCh:    make(chan struct{}),
	}
}

// Run drives the scan/repair loop until Stop is called. It is meant to run
// in its own goroutine.
func (d *Daemon) Run() {
	defer close(d.doneCh)
	tck := time.NewTicker(d.interval)
	defer tck.Stop()

	for {
		select {
		case <-d.stop.Listen():
			return
		case <-tck.C:
			d.cycle()
		case <-d.forceScan:
			d.cycle()
		}
	}
}

// ForceScan short-circuits the interval wait (spec §4.9 "external
// force_scan() short-circuits the interval wait").
func (d *Daemon) ForceScan() {
	select {
	case d.forceScan <- struct{}{}:
	default: // a scan is already pending; coalesce
	}
}

// Stop cancels the loop; idempotent (spec §4.9 "stop() ... is idempotent").
func (d *Daemon) Stop() {
	d.stop.Close()
}

// Wait blocks until Run has returned.
func (d *Daemon) Wait() { <-d.doneCh }

func (d *Daemon) cycle() {
	scanStart := time.Now()
	v, err := d.loadVAT()
	if err != nil {
		glog.Warningf("healing: load_vat failed, skipping cycle: %v", err)
		return
	}

	corrupted, err := d.detect(v)
	if err != nil {
		glog.Warningf("healing: detect corrupted failed, skipping cycle: %v", err)
		return
	}
	d.recordScanDuration(time.Since(scanStart))

	center := v.Center()
	d.mu.Lock()
	for _, loc := range corrupted {
		if existing, ok := d.byCoord[loc]; ok && (existing.Status == TaskPending || existing.Status == TaskInProgress) {
			continue
		}
		id, genErr := shortid.Generate()
		if genErr != nil {
			id = loc.ID()
		}
		t := &Task{
			ID:        id,
			Location:  loc,
			Priority:  loc.DistanceTo(center),
			Status:    TaskPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		d.tasks[t.ID] = t
		d.byCoord[loc] = t
		d.stats.TasksCreated++
	}
	pending := d.pendingTasksLocked()
	d.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].Priority < pending[j].Priority })

	for _, t := range pending {
		select {
		case <-d.stop.Listen():
			return
		default:
		}
		if d.limiter != nil {
			_ = d.limiter.Wait(context.Background())
		}
		d.runTask(t)
	}
	d.mu.Lock()
	d.stats.CyclesRun++
	d.mu.Unlock()
}

func (d *Daemon) pendingTasksLocked() []*Task {
	out := make([]*Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		if t.Status == TaskPending {
			out = append(out, t)
		}
	}
	return out
}

func (d *Daemon) runTask(t *Task) {
	d.mu.Lock()
	t.Status = TaskInProgress
	t.UpdatedAt = time.Now()
	d.mu.Unlock()

	start := time.Now()
	ok, err := d.repair(t.Location)
	duration := time.Since(start)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordRepairDurationLocked(duration)
	t.UpdatedAt = time.Now()
	if err != nil || !ok {
		t.Status = TaskFailed
		d.stats.TasksFailed++
		if err != nil {
			glog.Warningf("healing: repair %s failed: %v", t.Location, err)
		}
		return
	}
	t.Status = TaskCompleted
	d.stats.TasksCompleted++
	delete(d.byCoord, t.Location)
}

func (d *Daemon) recordScanDuration(dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.AvgScanDuration = movingAverage(d.stats.AvgScanDuration, dur)
}

func (d *Daemon) recordRepairDurationLocked(dur time.Duration) {
	d.stats.AvgRepairDuration = movingAverage(d.stats.AvgRepairDuration, dur)
}

// movingAverage is a simple exponential moving average with smoothing 0.2,
// matching spec §4.9's "moving averages of scan and repair duration"
// without requiring an unbounded sample history.
func movingAverage(prev, sample time.Duration) time.Duration {
	if prev == 0 {
		return sample
	}
	const alpha = 0.2
	return time.Duration(float64(prev)*(1-alpha) + float64(sample)*alpha)
}

// Stats returns a snapshot of the daemon's counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Tasks returns a snapshot of every tracked task.
func (d *Daemon) Tasks() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, *t)
	}
	return out
}
