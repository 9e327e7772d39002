package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDigest(seed string) [32]byte {
	return sha256.Sum256([]byte(seed))
}

// TestSignVerifyECDSA checks a DER ECDSA sign/verify round trip and that a
// different digest fails.
func TestSignVerifyECDSA(t *testing.T) {
	key := testKey(t, 0x11)
	digest := testDigest("ecdsa")

	sig := key.SignECDSA(digest)
	require.NotEmpty(t, sig)
	assert.NotEqual(t, SchnorrSigLength, len(sig), "DER signatures are never 64 bytes")

	pub := key.PublicKey().SerializeCompressed()
	ok, reason, err := Verify(pub, sig, digest[:])
	require.NoError(t, err)
	assert.True(t, ok, reason)

	// Deterministic nonces make signing reproducible.
	assert.Equal(t, sig, key.SignECDSA(digest))

	other := testDigest("other")
	ok, reason, err = Verify(pub, sig, other[:])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

// TestSignVerifySchnorr checks the 64-byte Schnorr path, including the
// length-based dispatch in Verify.
func TestSignVerifySchnorr(t *testing.T) {
	key := testKey(t, 0x22)
	digest := testDigest("schnorr")

	sig, err := key.SignSchnorr(digest, nil)
	require.NoError(t, err)
	require.Len(t, sig, SchnorrSigLength)

	pub := key.PublicKey().SerializeCompressed()
	ok, reason, err := Verify(pub, sig, digest[:])
	require.NoError(t, err)
	assert.True(t, ok, reason)

	// Auxiliary randomness changes the nonce but the result still
	// verifies.
	aux := testDigest("aux")
	sig2, err := key.SignSchnorr(digest, &aux)
	require.NoError(t, err)
	ok, reason, err = Verify(pub, sig2, digest[:])
	require.NoError(t, err)
	assert.True(t, ok, reason)

	other := testDigest("other")
	ok, _, err = Verify(pub, sig, other[:])
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestVerifyArgumentErrors checks that bad call arguments are errors while
// malformed material is a verification failure with a reason.
func TestVerifyArgumentErrors(t *testing.T) {
	key := testKey(t, 0x33)
	digest := testDigest("args")
	sig := key.SignECDSA(digest)
	pub := key.PublicKey().SerializeCompressed()

	_, _, err := Verify(nil, sig, digest[:])
	assert.Error(t, err, "empty pubkey is a caller bug")

	_, _, err = Verify(pub, sig, digest[:31])
	assert.Error(t, err, "short digest is a caller bug")

	ok, reason, err := Verify([]byte{0x02, 0x01}, sig, digest[:])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "public key")

	ok, reason, err = Verify(pub, []byte{0xde, 0xad}, digest[:])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "DER")
}

// TestWIFRoundTrip checks encode/parse for both compression flags and both
// networks.
func TestWIFRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}

	for _, compressed := range []bool{true, false} {
		for _, testnet := range []bool{true, false} {
			wif, err := EncodeWIF(raw, compressed, testnet)
			require.NoError(t, err)

			key, gotCompressed, err := ParsePrivateKeyWIF(wif)
			require.NoError(t, err)
			assert.Equal(t, raw, key.Bytes())
			assert.Equal(t, compressed, gotCompressed)
		}
	}
}

// TestWIFRejectsGarbage checks the malformed-input failures.
func TestWIFRejectsGarbage(t *testing.T) {
	_, _, err := ParsePrivateKeyWIF("")
	assert.Error(t, err)

	_, _, err = ParsePrivateKeyWIF("abc")
	assert.Error(t, err)

	_, err = EncodeWIF(make([]byte, 31), true, false)
	assert.Error(t, err)
}

// TestParsePublicKey checks both encodings and rejection of junk.
func TestParsePublicKey(t *testing.T) {
	key := testKey(t, 0x44)

	compressed := key.PublicKey().SerializeCompressed()
	require.Len(t, compressed, 33)
	parsed, err := ParsePublicKey(compressed)
	require.NoError(t, err)
	assert.Equal(t, compressed, parsed.SerializeCompressed())

	uncompressed := key.PublicKey().SerializeUncompressed()
	require.Len(t, uncompressed, 65)
	_, err = ParsePublicKey(uncompressed)
	require.NoError(t, err)

	assert.Equal(t, compressed, key.PublicKey().Serialize(true))
	assert.Equal(t, uncompressed, key.PublicKey().Serialize(false))

	_, err = ParsePublicKey([]byte{0x05, 0x01})
	assert.Error(t, err)
}
