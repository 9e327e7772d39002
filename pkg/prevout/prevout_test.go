package prevout

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cashtx/pkg/tx"
)

func testHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

// countingFetcher records how often each outpoint is fetched.
type countingFetcher struct {
	records map[string]*tx.PrevOut
	calls   int
	err     error
}

func (f *countingFetcher) Fetch(hash chainhash.Hash, n uint32) (*tx.PrevOut, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[StaticKey(hash, n)], nil
}

// TestCacheMemoizesFetches checks that repeated lookups hit the fetcher
// once.
func TestCacheMemoizesFetches(t *testing.T) {
	fetcher := &countingFetcher{records: map[string]*tx.PrevOut{
		StaticKey(testHash(0x01), 0): {Value: 1000, ScriptPubKey: []byte{0x51}},
	}}
	cache := NewCache(fetcher, 0)

	rec, err := cache.Lookup(testHash(0x01), 0)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(1000), rec.Value)
	assert.Equal(t, 1, fetcher.calls)

	rec2, err := cache.Lookup(testHash(0x01), 0)
	require.NoError(t, err)
	assert.Equal(t, rec, rec2)
	assert.Equal(t, 1, fetcher.calls, "second lookup served from cache")

	// A different output index of the same transaction is a distinct key.
	rec3, err := cache.Lookup(testHash(0x01), 1)
	require.NoError(t, err)
	assert.Nil(t, rec3)
	assert.Equal(t, 2, fetcher.calls)
}

// TestCacheGetInterface checks the PrevoutLookup view, including its
// miss-on-error behavior.
func TestCacheGetInterface(t *testing.T) {
	fetcher := &countingFetcher{records: map[string]*tx.PrevOut{
		StaticKey(testHash(0x02), 3): {Value: 42},
	}}
	cache := NewCache(fetcher, 0)

	var lookup tx.PrevoutLookup = cache
	rec, ok := lookup.Get(testHash(0x02), 3)
	require.True(t, ok)
	assert.Equal(t, uint64(42), rec.Value)

	_, ok = lookup.Get(testHash(0x02), 4)
	assert.False(t, ok)

	failing := NewCache(&countingFetcher{err: errors.New("backend down")}, 0)
	_, ok = failing.Get(testHash(0x02), 3)
	assert.False(t, ok, "fetch failure reads as a miss")

	_, err := failing.Lookup(testHash(0x02), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

// TestFetcherFunc checks the function adapter.
func TestFetcherFunc(t *testing.T) {
	f := FetcherFunc(func(hash chainhash.Hash, n uint32) (*tx.PrevOut, error) {
		return &tx.PrevOut{Value: uint64(n)}, nil
	})
	rec, err := f.Fetch(testHash(0x01), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Value)
}

// TestStaticLookup checks the fixed-table lookup used for offline signing.
func TestStaticLookup(t *testing.T) {
	static := Static{
		StaticKey(testHash(0x03), 1): {Value: 777, TokenData: &tx.TokenData{Amount: 5}},
	}

	rec, ok := static.Get(testHash(0x03), 1)
	require.True(t, ok)
	assert.Equal(t, uint64(777), rec.Value)
	require.NotNil(t, rec.TokenData)

	_, ok = static.Get(testHash(0x03), 2)
	assert.False(t, ok)
}

// TestCacheEntrySize checks the byte weighing of records.
func TestCacheEntrySize(t *testing.T) {
	plain := &cacheEntry{rec: &tx.PrevOut{Value: 1, ScriptPubKey: make([]byte, 25)}}
	size, err := plain.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(25+8+36), size)

	withToken := &cacheEntry{rec: &tx.PrevOut{
		Value:     1,
		TokenData: &tx.TokenData{Amount: 2, Nft: &tx.NFTData{Commitment: make([]byte, 10)}},
	}}
	size, err = withToken.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(8+36+41+10+1), size)
}
