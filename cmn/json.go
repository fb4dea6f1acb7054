package cmn

import jsoniter "github.com/json-iterator/go"

// JSON is the shared jsoniter engine used everywhere a spec §6 document
// (VAT, checksum store, snapshot metadata) is encoded or decoded, grounded
// on aistore's dbdriver/bunt.go use of json-iterator.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal marshals v and panics on error; reserved for types this
// package fully controls (no user-supplied cyclic data ever reaches it).
func MustMarshal(v interface{}) []byte {
	b, err := JSON.Marshal(v)
	AssertNoErr(err)
	return b
}
