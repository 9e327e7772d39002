package keys

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cashtx/pkg/crypto"
	"github.com/suffix-labs/cashtx/pkg/tx"
)

func testKey(t *testing.T, b byte) *crypto.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[31] = b
	key, err := crypto.PrivateKeyFromBytes(raw)
	require.NoError(t, err)
	return key
}

// TestMemoryProviderResolve checks resolution under both public key
// encodings.
func TestMemoryProviderResolve(t *testing.T) {
	key := testKey(t, 1)
	provider := NewMemoryProvider()
	provider.Add(key, true)
	assert.Equal(t, 1, provider.Len())

	for _, desc := range [][]byte{
		key.PublicKey().SerializeCompressed(),
		key.PublicKey().SerializeUncompressed(),
	} {
		priv, compressed, ok := provider.Resolve(desc)
		require.True(t, ok)
		assert.Equal(t, key.Bytes(), priv.Bytes())
		assert.True(t, compressed)
	}

	other := testKey(t, 2)
	_, _, ok := provider.Resolve(other.PublicKey().SerializeCompressed())
	assert.False(t, ok)
}

// TestMemoryProviderAddWIF checks loading from WIF, preserving the
// compression flag.
func TestMemoryProviderAddWIF(t *testing.T) {
	key := testKey(t, 3)
	wif, err := crypto.EncodeWIF(key.Bytes(), false, false)
	require.NoError(t, err)

	provider := NewMemoryProvider()
	require.NoError(t, provider.AddWIF(wif))

	priv, compressed, ok := provider.Resolve(key.PublicKey().SerializeCompressed())
	require.True(t, ok)
	assert.Equal(t, key.Bytes(), priv.Bytes())
	assert.False(t, compressed)

	assert.Error(t, provider.AddWIF("not-a-wif"))
}

// TestPubKeyAddress checks hash160 address derivation.
func TestPubKeyAddress(t *testing.T) {
	key := testKey(t, 4)
	pubkey := key.PublicKey().SerializeCompressed()

	addr, err := PubKeyAddress(pubkey)
	require.NoError(t, err)
	assert.Equal(t, tx.AddrP2PKH, addr.Kind)
	assert.Equal(t, btcutil.Hash160(pubkey), addr.Hash[:])

	// The derived address locks with the canonical P2PKH script.
	script := addr.Script()
	out := &tx.TxOutput{ScriptPubKey: script}
	tx.ClassifyOutput(out)
	assert.Equal(t, tx.OutputP2PKH, out.Kind)

	_, err = PubKeyAddress([]byte{0x02})
	assert.Error(t, err)
}

// TestScriptAddress checks P2SH address derivation from a redeem script.
func TestScriptAddress(t *testing.T) {
	redeem, err := tx.BuildRedeemScript([][]byte{
		testKey(t, 5).PublicKey().SerializeCompressed(),
		testKey(t, 6).PublicKey().SerializeCompressed(),
	}, 2)
	require.NoError(t, err)

	addr := ScriptAddress(redeem)
	assert.Equal(t, tx.AddrP2SH, addr.Kind)
	assert.Equal(t, btcutil.Hash160(redeem), addr.Hash[:])
}

// TestParsePubKeyHex checks hex decoding plus curve validation.
func TestParsePubKeyHex(t *testing.T) {
	key := testKey(t, 7)
	pubkey := key.PublicKey().SerializeCompressed()

	got, err := ParsePubKeyHex(hex.EncodeToString(pubkey))
	require.NoError(t, err)
	assert.Equal(t, pubkey, got)

	_, err = ParsePubKeyHex("zz")
	assert.Error(t, err)

	// Valid hex, not a public key: 0x05 is no point-encoding prefix.
	_, err = ParsePubKeyHex("05" + "00000000000000000000000000000000000000000000000000000000000000ff")
	assert.Error(t, err)
}
