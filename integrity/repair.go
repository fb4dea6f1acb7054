package integrity

import (
	"os"
	"path/filepath"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/vio"
)

// RepairSources names where repair may pull a replacement cluster from,
// in the order spec §4.4 requires: "a write-ahead log if present, then a
// backup directory if present".
type RepairSources struct {
	WALDir    string // <dir>/<cluster-id>.wal holds the last-known-good bytes
	BackupDir string // <dir>/<cluster-id> holds a periodic backup copy
}

// RepairOutcome is one cluster's repair attempt result.
type RepairOutcome struct {
	Location vio.Location
	Repaired bool
	Source   string // "wal", "backup", or "" on failure
}

// RepairResult is the aggregate result of Repair (spec §4.4 `repair`).
type RepairResult struct {
	Attempted int
	Repaired  int
	Outcomes  []RepairOutcome
}

// Repair attempts to restore each of locs from, in order, the write-ahead
// log then the backup directory, rewriting the image and refreshing the
// stored checksum on success.
func (s *Store) Repair(im *vio.Image, locs []vio.Location, sources RepairSources, progress ProgressFunc) (RepairResult, error) {
	result := RepairResult{Attempted: len(locs)}
	for i, loc := range locs {
		outcome := s.repairOne(im, loc, sources)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Repaired {
			result.Repaired++
		}
		if progress != nil {
			cr := ClusterReport{Location: loc, Status: StatusValid}
			if !outcome.Repaired {
				cr.Status = StatusCorrupted
			}
			if !progress(i+1, len(locs), cr) {
				break
			}
		}
	}
	return result, nil
}

func (s *Store) repairOne(im *vio.Image, loc vio.Location, sources RepairSources) RepairOutcome {
	if sources.WALDir != "" {
		if data, ok := readRecoveryFile(sources.WALDir, loc.ID()); ok {
			if s.applyRecovery(im, loc, data) {
				return RepairOutcome{Location: loc, Repaired: true, Source: "wal"}
			}
		}
	}
	if sources.BackupDir != "" {
		if data, ok := readRecoveryFile(sources.BackupDir, loc.ID()); ok {
			if s.applyRecovery(im, loc, data) {
				return RepairOutcome{Location: loc, Repaired: true, Source: "backup"}
			}
		}
	}
	return RepairOutcome{Location: loc, Repaired: false}
}

func readRecoveryFile(dir, clusterID string) ([]byte, bool) {
	candidates := []string{
		filepath.Join(dir, clusterID+".wal"),
		filepath.Join(dir, clusterID),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, true
		}
	}
	return nil, false
}

func (s *Store) applyRecovery(im *vio.Image, loc vio.Location, data []byte) bool {
	if len(data) != cmn.ClusterSize {
		return false
	}
	if err := vio.WriteCluster(im, loc, data); err != nil {
		return false
	}
	if _, err := s.ComputeChecksum(data, loc.ID()); err != nil {
		return false
	}
	return true
}
