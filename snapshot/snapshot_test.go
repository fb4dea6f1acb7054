package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/vat"
)

func newTestVAT(t *testing.T) *vat.VAT {
	t.Helper()
	v := vat.New(64, hilbert.New(6))
	if _, err := v.Allocate("a/b", 4096, nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return v
}

func TestCreateListRestoreDelete(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	v := newTestVAT(t)

	meta, err := m.Create(v, "test snapshot")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if meta.VATDigest == "" {
		t.Fatal("expected non-empty digest")
	}

	metas, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 1 || metas[0].SnapshotID != meta.SnapshotID {
		t.Fatalf("unexpected list result: %+v", metas)
	}

	restored, err := m.Restore(meta.SnapshotID, hilbert.New(6))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := restored.Lookup("a/b"); !ok {
		t.Fatal("expected restored VAT to contain a/b")
	}

	ok, err := m.Delete(meta.SnapshotID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	metas, _ = m.List()
	if len(metas) != 0 {
		t.Fatal("expected no snapshots after delete")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	v := newTestVAT(t)
	meta, err := m.Create(v, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bundlePath := filepath.Join(dir, "bundle.lz4")
	if err := m.Export(meta.SnapshotID, bundlePath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := m.Delete(meta.SnapshotID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	imported, err := m.Import(bundlePath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.SnapshotID != meta.SnapshotID {
		t.Fatalf("expected snapshot id %s, got %s", meta.SnapshotID, imported.SnapshotID)
	}
	metas, _ := m.List()
	if len(metas) != 1 {
		t.Fatal("expected imported snapshot to appear in List")
	}
}
