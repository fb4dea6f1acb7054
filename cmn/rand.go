package cmn

import (
	"math/rand"

	"github.com/OneOfOne/xxhash"
)

const randChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandString returns a random alphanumeric string of length n.
func RandString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randChars[rand.Intn(len(randChars))]
	}
	return string(b)
}

// PathSeed deterministically derives an int64 seed from path so that
// placement (§4.3 step 3, §9 design note) is reproducible across runs
// given an identical input set.
func PathSeed(path string) int64 {
	h := xxhash.ChecksumString64(path)
	return int64(h)
}
