// Package prevout caches previous-output records behind a PrevoutLookup.
//
// Funding data usually comes from a remote index or node, so lookups are
// memoized in an LRU cache sized by the memory the records occupy rather
// than by entry count.
package prevout

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/neutrino/cache"
	"github.com/lightninglabs/neutrino/cache/lru"

	"github.com/suffix-labs/cashtx/pkg/tx"
)

// DefaultCacheSize is the default cache capacity in bytes.
const DefaultCacheSize = 4 << 20

// Fetcher retrieves the output funding an outpoint from its backing store.
// A nil record with a nil error means the outpoint is unknown.
type Fetcher interface {
	Fetch(hash chainhash.Hash, n uint32) (*tx.PrevOut, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(hash chainhash.Hash, n uint32) (*tx.PrevOut, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(hash chainhash.Hash, n uint32) (*tx.PrevOut, error) {
	return f(hash, n)
}

type outpointKey struct {
	hash chainhash.Hash
	n    uint32
}

// cacheEntry wraps a record so the cache can weigh it.
type cacheEntry struct {
	rec *tx.PrevOut
}

// Size returns the approximate memory footprint of the record in bytes.
func (e *cacheEntry) Size() (uint64, error) {
	size := uint64(len(e.rec.ScriptPubKey)) + 8 + 36
	if e.rec.TokenData != nil {
		size += 41
		if e.rec.TokenData.Nft != nil {
			size += uint64(len(e.rec.TokenData.Nft.Commitment)) + 1
		}
	}
	return size, nil
}

// Cache memoizes a Fetcher and satisfies tx.PrevoutLookup.
type Cache struct {
	fetcher Fetcher
	entries *lru.Cache[outpointKey, *cacheEntry]
}

// NewCache wraps fetcher with an LRU cache holding up to sizeBytes of
// records. A zero size falls back to DefaultCacheSize.
func NewCache(fetcher Fetcher, sizeBytes uint64) *Cache {
	if sizeBytes == 0 {
		sizeBytes = DefaultCacheSize
	}
	return &Cache{
		fetcher: fetcher,
		entries: lru.NewCache[outpointKey, *cacheEntry](sizeBytes),
	}
}

// Lookup returns the output funding the given outpoint, consulting the
// cache before the fetcher. Unknown outpoints return (nil, nil).
func (c *Cache) Lookup(hash chainhash.Hash, n uint32) (*tx.PrevOut, error) {
	key := outpointKey{hash: hash, n: n}
	if e, err := c.entries.Get(key); err == nil {
		return e.rec, nil
	} else if !errors.Is(err, cache.ErrElementNotFound) {
		return nil, err
	}

	rec, err := c.fetcher.Fetch(hash, n)
	if err != nil {
		return nil, fmt.Errorf("fetching prevout %s:%d: %w", hash, n, err)
	}
	if rec == nil {
		return nil, nil
	}
	if _, err := c.entries.Put(key, &cacheEntry{rec: rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get implements tx.PrevoutLookup. Fetch failures read as a miss; callers
// that need the cause use Lookup.
func (c *Cache) Get(hash chainhash.Hash, n uint32) (*tx.PrevOut, bool) {
	rec, err := c.Lookup(hash, n)
	if err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

// Static is a fixed prevout table, convenient for offline signing where the
// caller already holds the funding outputs.
type Static map[string]*tx.PrevOut

// StaticKey builds the map key for an outpoint.
func StaticKey(hash chainhash.Hash, n uint32) string {
	return fmt.Sprintf("%s:%d", hash, n)
}

// Get implements tx.PrevoutLookup.
func (s Static) Get(hash chainhash.Hash, n uint32) (*tx.PrevOut, bool) {
	rec, ok := s[StaticKey(hash, n)]
	return rec, ok
}
