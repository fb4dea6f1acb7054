package integrity

import (
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// Status classifies one cluster's outcome in a scan (spec §4.4).
type Status string

const (
	StatusValid     Status = "VALID"
	StatusCorrupted Status = "CORRUPTED"
	StatusMissing   Status = "MISSING"
	StatusUnknown   Status = "UNKNOWN"
)

// ClusterReport is one cluster's scan result. Path is the owning file's VAT
// path, when known -- a cluster that outlived its file (or was never
// claimed) reports it empty.
type ClusterReport struct {
	Location vio.Location
	Status   Status
	Pattern  Pattern
	BitRot   bool
	Path     string
}

// IntegrityReport is the aggregate result of Scan (spec §4.4 `scan`).
type IntegrityReport struct {
	Total     int
	Valid     int
	Corrupted int
	Missing   int
	Unknown   int
	Clusters  []ClusterReport
}

// ProgressFunc is called after each cluster; returning false aborts the
// scan (spec §5 "Scanner progress callbacks may return false to abort").
type ProgressFunc func(done, total int, r ClusterReport) bool

// Scan iterates every cluster reachable from v's allocated chains, reads
// each from im, and compares against the Store's stored digest. It never
// mutates im (spec §4.4 "verification never mutates the image").
func (s *Store) Scan(v *vat.VAT, im *vio.Image, progress ProgressFunc) (IntegrityReport, error) {
	locs := allClusterLocations(v)
	report := IntegrityReport{Total: len(locs)}

	for i, loc := range locs {
		cr := s.scanOne(im, loc)
		if path, ok := v.OwnerOf(loc); ok {
			cr.Path = path
		}
		report.Clusters = append(report.Clusters, cr)
		switch cr.Status {
		case StatusValid:
			report.Valid++
		case StatusCorrupted:
			report.Corrupted++
		case StatusMissing:
			report.Missing++
		case StatusUnknown:
			report.Unknown++
		}
		if progress != nil && !progress(i+1, len(locs), cr) {
			break
		}
	}
	return report, nil
}

func (s *Store) scanOne(im *vio.Image, loc vio.Location) ClusterReport {
	data, err := vio.ReadCluster(im, loc)
	if err != nil {
		return ClusterReport{Location: loc, Status: StatusMissing}
	}

	entry, found := s.Lookup(loc.ID())
	if !found {
		return ClusterReport{Location: loc, Status: StatusUnknown, Pattern: DetectPattern(data)}
	}

	if entry.matches(data) {
		return ClusterReport{Location: loc, Status: StatusValid}
	}

	got := digest(data, entry.Algorithm)
	return ClusterReport{
		Location: loc,
		Status:   StatusCorrupted,
		Pattern:  DetectPattern(data),
		BitRot:   detectBitRot(got, entry.Checksum),
	}
}

// allClusterLocations enumerates every unique cluster start referenced by
// v's chains, deduplicated (spec §4.9 step 2 reuses the same enumeration
// for the Self-Healing Daemon).
func allClusterLocations(v *vat.VAT) []vio.Location {
	seen := make(map[vio.Location]struct{})
	var out []vio.Location
	for _, path := range v.Paths() {
		chain, ok := v.Chain(path)
		if !ok {
			continue
		}
		for _, loc := range chain {
			if _, dup := seen[loc]; dup {
				continue
			}
			seen[loc] = struct{}{}
			out = append(out, loc)
		}
	}
	return out
}

// CorruptedLocations returns every cluster the most recent Scan classified
// CORRUPTED, for the Self-Healing Daemon (spec §4.9 step 3).
func (r IntegrityReport) CorruptedLocations() []vio.Location {
	var out []vio.Location
	for _, c := range r.Clusters {
		if c.Status == StatusCorrupted {
			out = append(out, c.Location)
		}
	}
	return out
}
