// CashToken wrapping and unwrapping of output scripts.
//
// A token-carrying output serializes its locking script with a token prefix:
//
//	PREFIX_TOKEN(0xef) | category(32) | bitfield(1) | [amount] | [commitment] | script
//
// The bitfield packs {has-commitment, has-NFT, has-amount} flags and a
// two-bit NFT capability. Reserved combinations are rejected so that token
// semantics can never be silently misread.

package tx

import (
	"bytes"
	"fmt"
	"io"
)

// TokenPrefix is the marker byte that introduces token data in a serialized
// output script. A locking script can never start with this byte, which is
// what makes the wrapping unambiguous.
const TokenPrefix byte = 0xef

// MaxCommitmentLength is the consensus limit on an NFT commitment.
const MaxCommitmentLength = 40

// MaxTokenAmount is the exclusive upper bound on a fungible token amount.
const MaxTokenAmount uint64 = 1 << 63

// Token bitfield bits. The low nibble holds the NFT capability.
const (
	tokenBitReserved      byte = 0x80
	tokenBitHasCommitment byte = 0x40
	tokenBitHasNFT        byte = 0x20
	tokenBitHasAmount     byte = 0x10
)

// Capability is the mutation power of an NFT.
type Capability byte

const (
	CapabilityNone    Capability = 0x00 // immutable
	CapabilityMutable Capability = 0x01
	CapabilityMinting Capability = 0x02
)

func (c Capability) String() string {
	switch c {
	case CapabilityNone:
		return "none"
	case CapabilityMutable:
		return "mutable"
	case CapabilityMinting:
		return "minting"
	default:
		return fmt.Sprintf("capability(%d)", byte(c))
	}
}

// NFTData is the non-fungible part of a token: its capability and an
// arbitrary commitment of at most MaxCommitmentLength bytes.
type NFTData struct {
	Capability Capability
	Commitment []byte
}

// TokenData is the CashToken metadata wrapped around an output's locking
// script: a 32-byte category, a fungible amount below 2^63, and an optional
// NFT.
type TokenData struct {
	Category [32]byte
	Amount   uint64
	Nft      *NFTData
}

// validate checks the token against its consensus constraints.
func (t *TokenData) validate() error {
	if t.Amount >= MaxTokenAmount {
		return fmt.Errorf("token amount %d exceeds maximum", t.Amount)
	}
	if t.Nft == nil && t.Amount == 0 {
		return fmt.Errorf("token carries neither an amount nor an NFT")
	}
	if t.Nft != nil {
		if t.Nft.Capability > CapabilityMinting {
			return fmt.Errorf("invalid NFT capability %d", t.Nft.Capability)
		}
		if len(t.Nft.Commitment) > MaxCommitmentLength {
			return fmt.Errorf("NFT commitment is %d bytes, maximum is %d",
				len(t.Nft.Commitment), MaxCommitmentLength)
		}
	}
	return nil
}

// Equal reports deep equality of two token payloads.
func (t *TokenData) Equal(other *TokenData) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Category != other.Category || t.Amount != other.Amount {
		return false
	}
	if (t.Nft == nil) != (other.Nft == nil) {
		return false
	}
	if t.Nft != nil {
		return t.Nft.Capability == other.Nft.Capability &&
			bytes.Equal(t.Nft.Commitment, other.Nft.Commitment)
	}
	return true
}

// Compare orders token payloads for the deterministic output sort: by
// category, then amount, then NFT presence, capability, and commitment.
// Callers order an absent token strictly before any present one.
func (t *TokenData) Compare(other *TokenData) int {
	if c := bytes.Compare(t.Category[:], other.Category[:]); c != 0 {
		return c
	}
	switch {
	case t.Amount < other.Amount:
		return -1
	case t.Amount > other.Amount:
		return 1
	}
	switch {
	case t.Nft == nil && other.Nft == nil:
		return 0
	case t.Nft == nil:
		return -1
	case other.Nft == nil:
		return 1
	}
	switch {
	case t.Nft.Capability < other.Nft.Capability:
		return -1
	case t.Nft.Capability > other.Nft.Capability:
		return 1
	}
	return bytes.Compare(t.Nft.Commitment, other.Nft.Commitment)
}

// WrapTokenScript serializes the token prefix followed by the unmodified
// locking script. A nil token is a pass-through.
func WrapTokenScript(token *TokenData, script []byte) ([]byte, error) {
	if token == nil {
		return script, nil
	}
	if err := token.validate(); err != nil {
		return nil, &SerializationError{Field: "token prefix", Message: err.Error()}
	}

	var buf bytes.Buffer
	buf.WriteByte(TokenPrefix)
	buf.Write(token.Category[:])

	var bitfield byte
	if token.Amount > 0 {
		bitfield |= tokenBitHasAmount
	}
	if token.Nft != nil {
		bitfield |= tokenBitHasNFT
		bitfield |= byte(token.Nft.Capability)
		if len(token.Nft.Commitment) > 0 {
			bitfield |= tokenBitHasCommitment
		}
	}
	buf.WriteByte(bitfield)

	if token.Amount > 0 {
		WriteCompactSize(&buf, token.Amount)
	}
	if token.Nft != nil && len(token.Nft.Commitment) > 0 {
		WriteCompactSize(&buf, uint64(len(token.Nft.Commitment)))
		buf.Write(token.Nft.Commitment)
	}

	buf.Write(script)
	return buf.Bytes(), nil
}

// UnwrapTokenScript splits a serialized output script into its token data
// (nil when the script carries none) and the bare locking script. Reserved
// bitfield combinations and oversized commitments are malformed.
func UnwrapTokenScript(wrapped []byte) (*TokenData, []byte, error) {
	if len(wrapped) == 0 || wrapped[0] != TokenPrefix {
		return nil, wrapped, nil
	}

	r := bytes.NewReader(wrapped[1:])
	token := &TokenData{}
	if _, err := io.ReadFull(r, token.Category[:]); err != nil {
		return nil, nil, &SerializationError{Field: "token category", Message: "truncated", Cause: err}
	}

	bitfield, err := r.ReadByte()
	if err != nil {
		return nil, nil, &SerializationError{Field: "token bitfield", Message: "truncated", Cause: err}
	}

	hasCommitment := bitfield&tokenBitHasCommitment != 0
	hasNFT := bitfield&tokenBitHasNFT != 0
	hasAmount := bitfield&tokenBitHasAmount != 0
	capability := Capability(bitfield & 0x0f)

	switch {
	case bitfield&tokenBitReserved != 0:
		return nil, nil, serializationErrorf("token bitfield", "reserved bit set in 0x%02x", bitfield)
	case capability > CapabilityMinting:
		return nil, nil, serializationErrorf("token bitfield", "invalid NFT capability %d", capability)
	case !hasNFT && capability != CapabilityNone:
		return nil, nil, serializationErrorf("token bitfield", "capability without NFT in 0x%02x", bitfield)
	case !hasNFT && hasCommitment:
		return nil, nil, serializationErrorf("token bitfield", "commitment without NFT in 0x%02x", bitfield)
	case !hasNFT && !hasAmount:
		return nil, nil, serializationErrorf("token bitfield", "token carries neither amount nor NFT")
	}

	if hasAmount {
		amount, err := readCompactSize(r)
		if err != nil {
			return nil, nil, &SerializationError{Field: "token amount", Message: "truncated", Cause: err}
		}
		if amount == 0 || amount >= MaxTokenAmount {
			return nil, nil, serializationErrorf("token amount", "amount %d out of range", amount)
		}
		token.Amount = amount
	}

	if hasNFT {
		nft := &NFTData{Capability: capability}
		if hasCommitment {
			length, err := readCompactSize(r)
			if err != nil {
				return nil, nil, &SerializationError{Field: "token commitment", Message: "truncated", Cause: err}
			}
			if length == 0 || length > MaxCommitmentLength {
				return nil, nil, serializationErrorf("token commitment", "length %d out of range", length)
			}
			nft.Commitment = make([]byte, length)
			if _, err := io.ReadFull(r, nft.Commitment); err != nil {
				return nil, nil, &SerializationError{Field: "token commitment", Message: "truncated", Cause: err}
			}
		}
		token.Nft = nft
	}

	script := make([]byte, r.Len())
	if _, err := io.ReadFull(r, script); err != nil {
		return nil, nil, &SerializationError{Field: "token-wrapped script", Message: "truncated", Cause: err}
	}
	return token, script, nil
}
