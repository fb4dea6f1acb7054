package engine

import (
	"bytes"
	"testing"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/jobs"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

func newTestEngine(t *testing.T, gridSize int) *Engine {
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
	e, err := New(config.Default(gridSize), v, im, Deps{SnapshotsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestWriteReadRoundTrip(t *testing.T) {
	e := newTestEngine(t, 64)
	payload := []byte("important configuration payload")

	if _, _, err := e.WriteFile("etc/config.yaml", payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := e.ReadFile("etc/config.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestReadMissingFileReturnsNotFound(t *testing.T) {
	e := newTestEngine(t, 64)
	if _, err := e.ReadFile("nope"); !ecode.Is(err, ecode.NotFound) {
		t.Fatalf("expected NotFound for an unknown path, got %v", err)
	}
}

func TestDeleteFileFreesClustersAndBlocksFurtherReads(t *testing.T) {
	e := newTestEngine(t, 64)
	if _, _, err := e.WriteFile("tmp/scratch.bin", []byte("disposable")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := e.DeleteFile("tmp/scratch.bin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.ReadFile("tmp/scratch.bin"); err == nil {
		t.Fatal("expected read of a deleted file to fail")
	}
}

func TestRSProtectedRoundTrip(t *testing.T) {
	e := newTestEngine(t, 64)
	if err := e.SetRSProtection("critical/boot.img", true); err != nil {
		t.Fatalf("set rs protection: %v", err)
	}
	payload := make([]byte, cmn.ClusterSize*2+37)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if _, _, err := e.WriteFile("critical/boot.img", payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	e.cache.Clear() // force the read path through RS decode, not the whole-file cache entry
	got, err := e.ReadFile("critical/boot.img")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("rs round trip mismatch: got %d bytes want %d", len(got), len(payload))
	}
}

func TestUnprotectedRoundTripSurvivesColdCache(t *testing.T) {
	e := newTestEngine(t, 64)
	payload := []byte("unprotected payload that is not RS-encoded")
	if _, _, err := e.WriteFile("etc/plain.conf", payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	e.cache.Clear() // force the read path through rs.UnwrapUnprotected, not the cache
	got, err := e.ReadFile("etc/plain.conf")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("unprotected round trip mismatch: got %q want %q", got, payload)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEngine(t, 64)
	if _, _, err := e.WriteFile("a.txt", []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	meta, err := e.Snapshot("before delete")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := e.DeleteFile("a.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.RestoreSnapshot(meta.SnapshotID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := e.ReadFile("a.txt"); err != nil {
		t.Fatalf("expected a.txt to reappear after restore: %v", err)
	}
}

func TestScanReportsCleanImage(t *testing.T) {
	e := newTestEngine(t, 64)
	if _, _, err := e.WriteFile("b.txt", []byte("clean bytes")); err != nil {
		t.Fatalf("write: %v", err)
	}
	report, err := e.Scan(nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.Corrupted != 0 {
		t.Fatalf("expected no corruption on a freshly written file, got %d", report.Corrupted)
	}
}

func TestValidateAcceptsFreshVAT(t *testing.T) {
	e := newTestEngine(t, 64)
	if err := e.Validate(); err != nil {
		t.Fatalf("expected a fresh VAT to validate cleanly: %v", err)
	}
}

func TestRunTuneAllAsyncTracksJob(t *testing.T) {
	e := newTestEngine(t, 64)
	if _, _, err := e.WriteFile("a.txt", []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	job := e.RunTuneAllAsync(5)
	if job.Wait() != jobs.Done {
		t.Fatalf("expected tune_all job to finish Done, got %v (%v)", job.Status(), job.Err)
	}
	if _, ok := e.Jobs().Get(job.ID); !ok {
		t.Fatalf("expected job %s to remain listed in the registry", job.ID)
	}
}

func TestRunTuneAllAsyncCoalescesConcurrentCalls(t *testing.T) {
	e := newTestEngine(t, 64)
	j1 := e.RunTuneAllAsync(5)
	j2 := e.RunTuneAllAsync(5)
	if j1.ID != j2.ID {
		t.Fatalf("expected a second call while one is in flight to return the same job, got %s and %s", j1.ID, j2.ID)
	}
	j1.Wait()
}
