package snapshot

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v3"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/jsp"
)

// bundle is the portable single-file export format: metadata + the raw
// VAT document, combined so Import doesn't depend on StorageDir layout.
type bundle struct {
	Metadata Metadata    `json:"metadata"`
	VAT      interface{} `json:"vat"`
}

// Export writes snapshotID as an lz4-compressed single-file bundle to
// file (spec §4.5 `export`). lz4 is used here rather than jsp's gzip so
// the two compression paths in the engine never collide on a shared
// buffer pool or magic byte.
func (m *Manager) Export(snapshotID, file string) error {
	metaPath := filepath.Join(m.StorageDir, snapshotID, "metadata.json")
	vatPath := filepath.Join(m.StorageDir, snapshotID, "vat.json")

	var meta Metadata
	if err := jsp.Load(metaPath, &meta); err != nil {
		return err
	}
	var doc interface{}
	if err := jsp.Load(vatPath, &doc); err != nil {
		return err
	}

	payload, err := cmn.JSON.Marshal(bundle{Metadata: meta, VAT: doc})
	if err != nil {
		return ecode.Wrap(ecode.Corrupt, "snapshot.export", "marshal bundle", err)
	}

	dir := filepath.Dir(file)
	tmp, err := os.CreateTemp(dir, ".snapshot-export-*")
	if err != nil {
		return ecode.Wrap(ecode.IoError, "snapshot.export", "create temp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	zw := lz4.NewWriter(tmp)
	if _, err := zw.Write(payload); err != nil {
		tmp.Close()
		return ecode.Wrap(ecode.IoError, "snapshot.export", "compress", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return ecode.Wrap(ecode.IoError, "snapshot.export", "compress", err)
	}
	if err := tmp.Close(); err != nil {
		return ecode.Wrap(ecode.IoError, "snapshot.export", "close temp", err)
	}
	if err := os.Rename(tmpName, file); err != nil {
		return ecode.Wrap(ecode.IoError, "snapshot.export", "rename", err)
	}
	return nil
}

// Import reads an Export-produced bundle from file and publishes it as a
// new snapshot directory (spec §4.5 `import`), returning its metadata.
func (m *Manager) Import(file string) (Metadata, error) {
	f, err := os.Open(file)
	if err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.import", "open", err)
	}
	defer f.Close()

	zr := lz4.NewReader(f)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return Metadata{}, ecode.Wrap(ecode.Corrupt, "snapshot.import", "decompress", err)
	}

	var b bundle
	if err := cmn.JSON.Unmarshal(buf.Bytes(), &b); err != nil {
		return Metadata{}, ecode.Wrap(ecode.Corrupt, "snapshot.import", "unmarshal bundle", err)
	}

	dir := filepath.Join(m.StorageDir, b.Metadata.SnapshotID)
	stagingDir := dir + ".staging"
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.import", "mkdir staging", err)
	}
	defer os.RemoveAll(stagingDir)

	if err := jsp.Save(filepath.Join(stagingDir, "metadata.json"), &b.Metadata, jsp.Plain); err != nil {
		return Metadata{}, err
	}
	if err := jsp.Save(filepath.Join(stagingDir, "vat.json"), b.VAT, jsp.Plain); err != nil {
		return Metadata{}, err
	}
	if err := os.Rename(stagingDir, dir); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.import", "publish snapshot dir", err)
	}
	return b.Metadata, nil
}
