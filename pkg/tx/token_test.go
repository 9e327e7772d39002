package tx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCategory(b byte) [32]byte {
	var cat [32]byte
	for i := range cat {
		cat[i] = b
	}
	return cat
}

// TestWrapUnwrapFungible round-trips a fungible-only token.
func TestWrapUnwrapFungible(t *testing.T) {
	token := &TokenData{Category: testCategory(0xaa), Amount: 1000}
	script := []byte{OpDup, OpHash160}

	wrapped, err := WrapTokenScript(token, script)
	require.NoError(t, err)
	require.Equal(t, TokenPrefix, wrapped[0])

	got, gotScript, err := UnwrapTokenScript(wrapped)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, token.Equal(got))
	assert.Equal(t, script, gotScript)
}

// TestWrapUnwrapNFT round-trips an NFT with a commitment and an amount.
func TestWrapUnwrapNFT(t *testing.T) {
	token := &TokenData{
		Category: testCategory(0x01),
		Amount:   5,
		Nft: &NFTData{
			Capability: CapabilityMinting,
			Commitment: []byte("hello-token"),
		},
	}

	wrapped, err := WrapTokenScript(token, []byte{OpReturn})
	require.NoError(t, err)

	// prefix | category | bitfield: commitment+NFT+amount with the minting
	// capability in the low nibble
	assert.Equal(t, TokenPrefix, wrapped[0])
	assert.Equal(t, byte(0x40|0x20|0x10|0x02), wrapped[33])

	got, script, err := UnwrapTokenScript(wrapped)
	require.NoError(t, err)
	assert.True(t, token.Equal(got))
	assert.Equal(t, []byte{OpReturn}, script)
}

// TestWrapNilTokenPassThrough checks that an absent token leaves the script
// untouched.
func TestWrapNilTokenPassThrough(t *testing.T) {
	script := []byte{0x51, 0x52}
	wrapped, err := WrapTokenScript(nil, script)
	require.NoError(t, err)
	assert.Equal(t, script, wrapped)

	token, unwrapped, err := UnwrapTokenScript(script)
	require.NoError(t, err)
	assert.Nil(t, token)
	assert.Equal(t, script, unwrapped)
}

// TestUnwrapRejectsMalformedBitfields covers the reserved and inconsistent
// bitfield combinations.
func TestUnwrapRejectsMalformedBitfields(t *testing.T) {
	cat := testCategory(0x02)

	build := func(bitfield byte, rest ...byte) []byte {
		var buf bytes.Buffer
		buf.WriteByte(TokenPrefix)
		buf.Write(cat[:])
		buf.WriteByte(bitfield)
		buf.Write(rest)
		return buf.Bytes()
	}

	tests := []struct {
		name string
		blob []byte
	}{
		{"reserved bit", build(0x90, 0x01)},
		{"capability 3", build(0x23)},
		{"capability without NFT", build(0x11, 0x01)},
		{"commitment without NFT", build(0x50, 0x01)},
		{"neither amount nor NFT", build(0x00)},
		{"zero amount", build(0x10, 0x00)},
		{"oversized commitment", build(0x60, append([]byte{41}, make([]byte, 41)...)...)},
		{"zero-length commitment", build(0x60, 0x00)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := UnwrapTokenScript(tc.blob)
			require.Error(t, err)
			var serr *SerializationError
			assert.ErrorAs(t, err, &serr)
		})
	}
}

// TestUnwrapRejectsExcessiveAmount checks the 2^63 exclusive upper bound.
func TestUnwrapRejectsExcessiveAmount(t *testing.T) {
	cat := testCategory(0x03)

	var buf bytes.Buffer
	buf.WriteByte(TokenPrefix)
	buf.Write(cat[:])
	buf.WriteByte(0x10)
	WriteCompactSize(&buf, MaxTokenAmount) // exactly 2^63, one past the maximum

	_, _, err := UnwrapTokenScript(buf.Bytes())
	require.Error(t, err)

	// One below the bound is fine.
	buf.Reset()
	buf.WriteByte(TokenPrefix)
	buf.Write(cat[:])
	buf.WriteByte(0x10)
	WriteCompactSize(&buf, MaxTokenAmount-1)

	token, _, err := UnwrapTokenScript(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, MaxTokenAmount-1, token.Amount)
}

// TestWrapValidatesToken checks that invalid tokens refuse to serialize.
func TestWrapValidatesToken(t *testing.T) {
	tests := []struct {
		name  string
		token *TokenData
	}{
		{"amount too large", &TokenData{Category: testCategory(1), Amount: MaxTokenAmount}},
		{"empty token", &TokenData{Category: testCategory(1)}},
		{"bad capability", &TokenData{
			Category: testCategory(1),
			Nft:      &NFTData{Capability: 3},
		}},
		{"oversized commitment", &TokenData{
			Category: testCategory(1),
			Nft:      &NFTData{Commitment: make([]byte, MaxCommitmentLength+1)},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := WrapTokenScript(tc.token, nil)
			require.Error(t, err)
		})
	}
}

// TestTokenCompare checks the ordering used by the deterministic output
// sort.
func TestTokenCompare(t *testing.T) {
	a := &TokenData{Category: testCategory(0x01), Amount: 10}
	b := &TokenData{Category: testCategory(0x02), Amount: 10}
	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))

	c := &TokenData{Category: testCategory(0x01), Amount: 20}
	assert.Negative(t, a.Compare(c))

	d := &TokenData{Category: testCategory(0x01), Amount: 10, Nft: &NFTData{}}
	assert.Negative(t, a.Compare(d), "fungible-only sorts before NFT-carrying")

	e := &TokenData{Category: testCategory(0x01), Amount: 10, Nft: &NFTData{Capability: CapabilityMutable}}
	assert.Negative(t, d.Compare(e))

	assert.Zero(t, a.Compare(a))
}
