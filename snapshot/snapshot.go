// Package snapshot implements the Snapshot Manager (spec §4.5, L5):
// point-in-time VAT captures under storage_dir/<snapshot_id>/, plus a
// portable single-file export/import bundle. Persistence follows the
// aistore's jsp-style "write-to-temp, rename" durability contract used
// throughout the engine (cmn/jsp doc comment, carried into our jsp
// package).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/jsp"
	"github.com/infinite-map/imap/vat"
)

// Metadata is the per-snapshot metadata.json record.
type Metadata struct {
	SnapshotID  string `json:"snapshot_id"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	VATDigest   string `json:"vat_digest"`
	Size        int64  `json:"size"`
}

// Manager roots every snapshot under StorageDir (spec §6.6).
type Manager struct {
	StorageDir string
}

// New constructs a Manager rooted at storageDir, creating it if absent.
func New(storageDir string) (*Manager, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, ecode.Wrap(ecode.IoError, "snapshot.new", "mkdir storage dir", err)
	}
	return &Manager{StorageDir: storageDir}, nil
}

// newSnapshotID mints an id matching spec §6.6: snap-<unix_seconds>-<8 hex chars>.
func newSnapshotID(now time.Time) string {
	return fmt.Sprintf("snap-%d-%s", now.Unix(), randHex(8))
}

func randHex(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failing means the OS entropy source is broken
	}
	return hex.EncodeToString(b)[:n]
}

// Create serializes v, computes its digest, and atomically writes
// metadata.json + vat.json under a fresh snapshot directory (spec §4.5
// `create`). Atomicity requirement: after any crash, either both files
// exist with a matching digest, or the id never appears in List.
func (m *Manager) Create(v *vat.VAT, description string) (Metadata, error) {
	doc := v.ToSerialized()
	payload, err := cmn.JSON.Marshal(doc)
	if err != nil {
		return Metadata{}, ecode.Wrap(ecode.Corrupt, "snapshot.create", "marshal vat", err)
	}
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	id := newSnapshotID(time.Now())
	dir := filepath.Join(m.StorageDir, id)
	stagingDir := dir + ".staging"
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.create", "mkdir staging", err)
	}
	defer os.RemoveAll(stagingDir)

	vatPath := filepath.Join(stagingDir, "vat.json")
	if err := jsp.Save(vatPath, doc, jsp.Plain); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.create", "write vat.json", err)
	}

	meta := Metadata{
		SnapshotID:  id,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		VATDigest:   digest,
	}
	metaPath := filepath.Join(stagingDir, "metadata.json")
	if err := jsp.Save(metaPath, &meta, jsp.Plain); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.create", "write metadata.json", err)
	}

	size, err := dirSize(stagingDir)
	if err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.create", "stat staging dir", err)
	}
	meta.Size = size
	if err := jsp.Save(metaPath, &meta, jsp.Plain); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.create", "rewrite metadata.json", err)
	}

	// The staging-dir-then-rename step is the atomicity boundary named in
	// spec §4.5: until this Rename lands, id cannot appear in List.
	if err := os.Rename(stagingDir, dir); err != nil {
		return Metadata{}, ecode.Wrap(ecode.IoError, "snapshot.create", "publish snapshot dir", err)
	}
	return meta, nil
}

// Restore reads snapshotID's vat.json back into a live VAT.
func (m *Manager) Restore(snapshotID string, curve *hilbert.Curve) (*vat.VAT, error) {
	var doc vat.Document
	path := filepath.Join(m.StorageDir, snapshotID, "vat.json")
	if err := jsp.Load(path, &doc); err != nil {
		return nil, err
	}
	return vat.FromSerialized(doc, curve)
}

// List returns every snapshot's metadata, newest first by CreatedAt.
func (m *Manager) List() ([]Metadata, error) {
	dirEntries, err := os.ReadDir(m.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ecode.Wrap(ecode.IoError, "snapshot.list", "readdir", err)
	}
	var metas []Metadata
	for _, de := range dirEntries {
		if !de.IsDir() || filepath.Ext(de.Name()) == ".staging" {
			continue
		}
		var meta Metadata
		metaPath := filepath.Join(m.StorageDir, de.Name(), "metadata.json")
		if err := jsp.Load(metaPath, &meta); err != nil {
			continue // staging leftovers or corrupt entries are invisible to List
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt > metas[j].CreatedAt })
	return metas, nil
}

// Delete recursively removes snapshotID's directory.
func (m *Manager) Delete(snapshotID string) (bool, error) {
	dir := filepath.Join(m.StorageDir, snapshotID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, ecode.Wrap(ecode.IoError, "snapshot.delete", snapshotID, err)
	}
	return true, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
