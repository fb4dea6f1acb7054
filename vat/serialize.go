package vat

import (
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/hilbert"
	"github.com/infinite-map/imap/vio"
)

// Document is the VAT's self-describing wire format, spec §6.4.
type Document struct {
	Format           string             `json:"format"`
	Version          string             `json:"version"`
	GridSize         int                `json:"grid_size"`
	Center           [2]uint32          `json:"center"`
	Entries          map[string][][2]uint32 `json:"entries"`
	DirectoryEntries []string           `json:"directory_entries"`
	RSProtected      map[string]bool    `json:"rs_protected"`
}

const (
	DocFormat  = "visual-allocation-table-v2"
	DocVersion = "2.0"
)

// ToSerialized renders the VAT to its wire-format document (§6.4).
func (v *VAT) ToSerialized() Document {
	v.mu.RLock()
	defer v.mu.RUnlock()

	entries := make(map[string][][2]uint32, len(v.entries))
	for path, chain := range v.entries {
		pts := make([][2]uint32, len(chain))
		for i, loc := range chain {
			pts[i] = [2]uint32{loc.X, loc.Y}
		}
		entries[path] = pts
	}
	dirs := make([]string, 0, len(v.directoryEntries))
	for d := range v.directoryEntries {
		dirs = append(dirs, d)
	}
	rs := make(map[string]bool, len(v.rsProtected))
	for p, b := range v.rsProtected {
		rs[p] = b
	}
	return Document{
		Format:           DocFormat,
		Version:          DocVersion,
		GridSize:         v.gridSize,
		Center:           [2]uint32{v.center.X, v.center.Y},
		Entries:          entries,
		DirectoryEntries: dirs,
		RSProtected:      rs,
	}
}

// FromSerialized rebuilds a VAT from a Document, reconstructing the free
// set and reverse index. curve must match doc.GridSize.
func FromSerialized(doc Document, curve *hilbert.Curve) (*VAT, error) {
	if doc.Format != DocFormat {
		return nil, ecode.New(ecode.Corrupt, "vat.from_serialized", "unrecognized format: "+doc.Format)
	}
	if doc.GridSize <= 0 {
		return nil, ecode.New(ecode.Corrupt, "vat.from_serialized", "invalid grid_size")
	}

	v := New(doc.GridSize, curve)
	v.center = vio.Location{X: doc.Center[0], Y: doc.Center[1]}

	for path, pts := range doc.Entries {
		chain := make([]vio.Location, len(pts))
		for i, p := range pts {
			loc := vio.Location{X: p[0], Y: p[1]}
			chain[i] = loc
			if _, isFree := v.free[loc]; !isFree {
				return nil, ecode.New(ecode.Corrupt, "vat.from_serialized", "duplicate or invalid cluster in "+path)
			}
			delete(v.free, loc)
			v.reverseIndex[loc] = path
		}
		v.entries[path] = chain
	}
	for _, d := range doc.DirectoryEntries {
		v.directoryEntries[d] = struct{}{}
	}
	for p, b := range doc.RSProtected {
		v.rsProtected[p] = b
	}
	return v, nil
}
