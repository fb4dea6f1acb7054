package e2e_test

import (
	"github.com/infinite-map/imap/cache"
	"github.com/infinite-map/imap/cmn"
)

func decodeJSON(raw []byte, v interface{}) error {
	return cmn.JSON.Unmarshal(raw, v)
}

func newTestCache(maxSizeBytes int64) *cache.Cache {
	return cache.New(maxSizeBytes)
}
