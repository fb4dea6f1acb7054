// Package integrity implements the Checksum & Integrity layer (spec §4.4,
// L4): per-cluster checksum sidecar, whole-image scanning, corruption
// classification, and repair. The sidecar store is grounded on the
// aistore's dbdriver/bunt.go; the checksum entry shape follows spec §6.5.
package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
	"time"

	"github.com/infinite-map/imap/ecode"
)

// Algorithm names a digest algorithm, matching spec §6.5's allowed values.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
	CRC32  Algorithm = "crc32"
)

// Entry is one sidecar record, per spec §6.5.
type Entry struct {
	Algorithm  Algorithm `json:"algorithm"`
	Checksum   string    `json:"checksum"`
	ComputedAt string    `json:"computed_at"`
	Size       int       `json:"size"`
}

// digest computes data's hex digest under algo.
func digest(data []byte, algo Algorithm) string {
	switch algo {
	case MD5:
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])
	case CRC32:
		sum := crc32.ChecksumIEEE(data)
		return hex.EncodeToString([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// computeEntry builds an Entry for data under algo, stamped at now.
func computeEntry(data []byte, algo Algorithm, now time.Time) Entry {
	return Entry{
		Algorithm:  algo,
		Checksum:   digest(data, algo),
		ComputedAt: now.UTC().Format(time.RFC3339),
		Size:       len(data),
	}
}

// matches reports whether data's digest under e.Algorithm equals e.Checksum.
func (e Entry) matches(data []byte) bool {
	return digest(data, e.Algorithm) == e.Checksum
}

// detectBitRot signals when got and want differ by at most two hex
// characters -- spec §4.4 "plausible single-bit rot" heuristic.
func detectBitRot(got, want string) bool {
	if len(got) != len(want) {
		return false
	}
	diff := 0
	for i := range got {
		if got[i] != want[i] {
			diff++
			if diff > 2 {
				return false
			}
		}
	}
	return diff > 0 && diff <= 2
}

// DetectBitRot exposes detectBitRot for expectedDigest comparisons against
// freshly computed data under SHA256 (spec §4.4 `detect_bit_rot`).
func DetectBitRot(data []byte, expectedDigest string) bool {
	return detectBitRot(digest(data, SHA256), expectedDigest)
}

// errAlgo reports an unsupported algorithm request.
func errAlgo(algo Algorithm) error {
	return ecode.New(ecode.InvariantViolated, "integrity.algorithm", string(algo)+" is not a supported digest algorithm")
}
