package engine

import (
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/snapshot"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// Save persists the backing image to path. The VAT itself is not
// embedded here (that is the Image Builder's job at construction time);
// callers that need a durable VAT alongside the image should also call
// Snapshot with a description, or re-run the Builder.
func (e *Engine) Save(path string) error {
	return e.im.Save(path)
}

// Snapshot captures the live VAT under the Snapshot Manager (spec §4.5
// `create`).
func (e *Engine) Snapshot(description string) (snapshot.Metadata, error) {
	return e.snapshots.Create(e.v, description)
}

// RestoreSnapshot rebuilds the VAT from snapshotID and swaps it in as the
// Engine's live VAT. Per spec §5 ordering guarantee (b) "cache
// invalidation happens-after snapshot restore", every cached entry is
// cleared before the new VAT becomes visible to readers.
func (e *Engine) RestoreSnapshot(snapshotID string) error {
	restored, err := e.snapshots.Restore(snapshotID, e.im.Curve())
	if err != nil {
		return err
	}
	e.cache.Clear()
	e.v = restored
	return nil
}

// Rebind swaps in a freshly loaded VAT + Image pair (e.g. after
// vio.Load + vat.FromSerialized from an on-disk image), clearing the
// cache the same way RestoreSnapshot does.
func (e *Engine) Rebind(v *vat.VAT, im *vio.Image) {
	e.cache.Clear()
	e.v = v
	e.im = im
}

// Validate checks the live VAT's invariants (spec §3 "VAT state
// (invariants)").
func (e *Engine) Validate() error {
	if err := e.v.Validate(); err != nil {
		return ecode.Wrap(ecode.InvariantViolated, "engine.validate", "vat", err)
	}
	return nil
}
