package integrity

import (
	"strings"
	"sync"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/infinite-map/imap/dbdriver"
	"github.com/infinite-map/imap/ecode"
)

const (
	collection   = "checksums"
	filterKey    = "__checksum_store__"
	defaultFilterCapacity = 1 << 20
)

// Store is the §6.5 checksum sidecar: compute_checksum/verify_checksum
// backed by a BuntDB-driven collection, with a cuckoo filter pre-filter in
// front of verify_checksum so a scan over mostly-untouched clusters
// doesn't pay a Get for every one (spec §4.4: "unknown ≠ corrupt" means a
// filter miss must short-circuit to "no stored entry", never to "corrupt").
type Store struct {
	mu     sync.RWMutex
	db     dbdriver.Driver
	filter *cuckoo.Filter
	algo   Algorithm
}

// NewStore opens a checksum store over db (typically a *dbdriver.BuntDriver).
func NewStore(db dbdriver.Driver, algo Algorithm) *Store {
	if algo == "" {
		algo = SHA256
	}
	s := &Store{
		db:     db,
		filter: cuckoo.NewFilter(defaultFilterCapacity),
		algo:   algo,
	}
	// Seed the filter from entries already in db, so a Store opened over a
	// populated sidecar does not report recorded clusters as unknown.
	if keys, err := db.List(collection, ""); err == nil {
		for _, k := range keys {
			s.filter.InsertUnique([]byte(strings.TrimPrefix(k, collection+"##")))
		}
	}
	return s
}

// ComputeChecksum writes/overwrites the sidecar entry for clusterID (spec
// §4.4 compute_checksum).
func (s *Store) ComputeChecksum(data []byte, clusterID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := computeEntry(data, s.algo, time.Now())
	if err := s.db.Set(collection, clusterID, e); err != nil {
		return Entry{}, ecode.Wrap(ecode.IoError, "integrity.compute_checksum", clusterID, err)
	}
	s.filter.InsertUnique([]byte(clusterID))
	return e, nil
}

// VerifyChecksum reports whether data matches the stored entry for
// clusterID. Per spec §4.4 this is true when no stored entry exists
// ("unknown ≠ corrupt").
func (s *Store) VerifyChecksum(data []byte, clusterID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.filter.Lookup([]byte(clusterID)) {
		return true, nil // definitely never recorded: unknown, treated as valid
	}
	var e Entry
	err := s.db.Get(collection, clusterID, &e)
	if err != nil {
		if ecode.Is(err, ecode.NotFound) {
			return true, nil // filter false positive, or entry since deleted
		}
		return false, ecode.Wrap(ecode.IoError, "integrity.verify_checksum", clusterID, err)
	}
	return e.matches(data), nil
}

// Lookup returns the stored entry for clusterID, if any.
func (s *Store) Lookup(clusterID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.filter.Lookup([]byte(clusterID)) {
		return Entry{}, false
	}
	var e Entry
	if err := s.db.Get(collection, clusterID, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

// Delete removes the sidecar entry for clusterID.
func (s *Store) Delete(clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Delete([]byte(clusterID))
	err := s.db.Delete(collection, clusterID)
	if err != nil && !ecode.Is(err, ecode.NotFound) {
		return ecode.Wrap(ecode.IoError, "integrity.delete", clusterID, err)
	}
	return nil
}

// Close releases the underlying driver.
func (s *Store) Close() error { return s.db.Close() }
