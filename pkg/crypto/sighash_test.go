package crypto

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cashtx/pkg/tx"
)

func testKey(t *testing.T, b byte) *PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[31] = b // small scalar, always on the curve
	key, err := PrivateKeyFromBytes(raw)
	require.NoError(t, err)
	return key
}

func testHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func buildTestTx(t *testing.T, pubkey []byte, value uint64) *tx.Transaction {
	t.Helper()
	in := tx.NewInput(testHash(0x01), 0)
	in.Type = tx.InputP2PKH
	in.NumSig = 1
	in.PubKeys = [][]byte{pubkey}
	in.Signatures = make([][]byte, 1)
	if value > 0 {
		in.Value = &value
	}
	out := &tx.TxOutput{Value: 900, ScriptPubKey: tx.P2PKHScript([20]byte{0x02})}
	return tx.FromIO([]*tx.TxInput{in}, []*tx.TxOutput{out}, 0)
}

// TestCommonComponentsCaching checks cache hit, miss-on-mutation, and the
// uncached path.
func TestCommonComponentsCaching(t *testing.T) {
	key := testKey(t, 1)
	txn := buildTestTx(t, key.PublicKey().SerializeCompressed(), 1000)

	first, err := CommonComponents(txn, true)
	require.NoError(t, err)
	require.NotNil(t, txn.SigHashCache())

	second, err := CommonComponents(txn, true)
	require.NoError(t, err)
	assert.Same(t, first, second, "matching counts reuse the cached value")

	// A no-op recompute equals the cached value.
	forced, err := CommonComponents(txn, false)
	require.NoError(t, err)
	assert.Equal(t, first.HashOutputs, forced.HashOutputs)
	assert.Equal(t, first.HashPrevouts, forced.HashPrevouts)
	assert.Equal(t, first.HashSequence, forced.HashSequence)

	// Structural mutation drops the cache and changes hashOutputs.
	require.NoError(t, txn.AddOutputs(&tx.TxOutput{Value: 1, ScriptPubKey: []byte{0x6a}}))
	assert.Nil(t, txn.SigHashCache())

	third, err := CommonComponents(txn, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.HashOutputs, third.HashOutputs)
	assert.Equal(t, first.HashPrevouts, third.HashPrevouts, "inputs unchanged")

	// The recomputed value matches a forced recompute, so no staleness.
	forced2, err := CommonComponents(txn, false)
	require.NoError(t, err)
	assert.Equal(t, third.HashOutputs, forced2.HashOutputs)
}

// TestCommonComponentsUncachedDoesNotStore checks that a forced recompute
// leaves no cache behind.
func TestCommonComponentsUncachedDoesNotStore(t *testing.T) {
	key := testKey(t, 2)
	txn := buildTestTx(t, key.PublicKey().SerializeCompressed(), 1000)

	_, err := CommonComponents(txn, false)
	require.NoError(t, err)
	assert.Nil(t, txn.SigHashCache())
}

// TestPreimageLayout checks the preimage field layout for a P2PKH input.
func TestPreimageLayout(t *testing.T) {
	key := testKey(t, 3)
	pubkey := key.PublicKey().SerializeCompressed()
	txn := buildTestTx(t, pubkey, 1000)

	preimage, err := Preimage(txn, 0, tx.SighashAllForkID)
	require.NoError(t, err)

	// version(4) + hashPrevouts(32) + hashSequence(32) + outpoint(36) +
	// scriptCode(1+25) + value(8) + sequence(4) + hashOutputs(32) +
	// locktime(4) + sighashType(4)
	require.Len(t, preimage, 4+32+32+36+1+25+8+4+32+4+4)

	common, err := CommonComponents(txn, true)
	require.NoError(t, err)
	assert.Equal(t, common.HashPrevouts[:], preimage[4:36])
	assert.Equal(t, common.HashSequence[:], preimage[36:68])

	// Trailing sighash type, little-endian.
	assert.Equal(t, []byte{0x41, 0x00, 0x00, 0x00}, preimage[len(preimage)-4:])

	// Deterministic.
	again, err := Preimage(txn, 0, tx.SighashAllForkID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(preimage, again))
}

// TestPreimageWithTokenData checks that the spent output's token prefix is
// committed right after the outpoint.
func TestPreimageWithTokenData(t *testing.T) {
	key := testKey(t, 4)
	pubkey := key.PublicKey().SerializeCompressed()

	plain := buildTestTx(t, pubkey, 1000)
	plainPreimage, err := Preimage(plain, 0, tx.SighashAllForkID)
	require.NoError(t, err)

	withToken := buildTestTx(t, pubkey, 1000)
	ins, err := withToken.Inputs()
	require.NoError(t, err)
	token := &tx.TokenData{Amount: 55}
	token.Category[0] = 0x10
	ins[0].TokenData = token

	tokenPreimage, err := Preimage(withToken, 0, tx.SighashAllForkID)
	require.NoError(t, err)

	blob, err := tx.WrapTokenScript(token, nil)
	require.NoError(t, err)
	assert.Len(t, tokenPreimage, len(plainPreimage)+len(blob))

	// Same prefix through the outpoint, then the token blob.
	assert.Equal(t, plainPreimage[:104], tokenPreimage[:104])
	assert.Equal(t, blob, tokenPreimage[104:104+len(blob)])
}

// TestPreimageRejectsUnsupportedSighashTypes checks the fail-fast on
// anything but ALL|FORKID.
func TestPreimageRejectsUnsupportedSighashTypes(t *testing.T) {
	key := testKey(t, 5)
	txn := buildTestTx(t, key.PublicKey().SerializeCompressed(), 1000)

	for _, hashType := range []uint32{0x01, 0x02, 0x03, 0x81, 0x42, 0xc1} {
		_, err := Preimage(txn, 0, hashType)
		require.Error(t, err, "sighash type 0x%02x", hashType)
		var unsupported *tx.UnsupportedSighashTypeError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, hashType, unsupported.Requested)
	}
}

// TestPreimageErrors covers the coinbase, bounds, and missing-value
// failures.
func TestPreimageErrors(t *testing.T) {
	key := testKey(t, 6)
	pubkey := key.PublicKey().SerializeCompressed()

	noValue := buildTestTx(t, pubkey, 0)
	_, err := Preimage(noValue, 0, tx.SighashAllForkID)
	require.Error(t, err)
	var missing *tx.InputValueMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 0, missing.InputIndex)

	txn := buildTestTx(t, pubkey, 1000)
	_, err = Preimage(txn, 1, tx.SighashAllForkID)
	assert.Error(t, err, "index out of range")
	_, err = Preimage(txn, -1, tx.SighashAllForkID)
	assert.Error(t, err)

	cb := tx.NewInput(chainhash.Hash{}, 0xffffffff)
	cb.ScriptSig = []byte{0x01, 0x00}
	cbTx := tx.FromIO([]*tx.TxInput{cb}, nil, 0)
	_, err = Preimage(cbTx, 0, tx.SighashAllForkID)
	assert.Error(t, err, "coinbase has no preimage")
}

// TestSignatureHashMatchesPreimage checks that the digest is the
// double-SHA256 of the preimage.
func TestSignatureHashMatchesPreimage(t *testing.T) {
	key := testKey(t, 7)
	txn := buildTestTx(t, key.PublicKey().SerializeCompressed(), 1000)

	preimage, err := Preimage(txn, 0, tx.SighashAllForkID)
	require.NoError(t, err)
	digest, err := SignatureHash(txn, 0, tx.SighashAllForkID)
	require.NoError(t, err)
	assert.Equal(t, chainhash.DoubleHashH(preimage), digest)
}
