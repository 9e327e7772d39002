// secp256k1 key handling and signature operations.
//
// Both signature algorithms of the chain are supported: deterministic-nonce
// DER-encoded ECDSA and 64-byte Schnorr. Verification dispatches on the
// signature length: exactly 64 bytes means Schnorr, anything else is tried
// as DER ECDSA.
//
// Key formats:
//   - Private keys: WIF (Wallet Import Format) or raw 32 bytes
//   - Public keys: compressed 33-byte or uncompressed 65-byte encoding
//   - ECDSA signatures: DER; Schnorr signatures: fixed 64 bytes
package crypto

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SchnorrSigLength is the length that makes Verify treat a signature as
// Schnorr rather than DER ECDSA.
const SchnorrSigLength = 64

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// PrivateKeyFromBytes creates a private key from raw bytes.
func PrivateKeyFromBytes(keyBytes []byte) (*PrivateKey, error) {
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(keyBytes))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(keyBytes)}, nil
}

// ParsePrivateKeyWIF parses a WIF-encoded private key, returning the key
// and whether the WIF requests the compressed public key encoding.
func ParsePrivateKeyWIF(wif string) (*PrivateKey, bool, error) {
	decoded, compressed, err := decodeWIF(wif)
	if err != nil {
		return nil, false, err
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(decoded)}, compressed, nil
}

// SignECDSA creates a deterministic-nonce DER-encoded ECDSA signature over
// the 32-byte digest.
func (pk *PrivateKey) SignECDSA(digest [32]byte) []byte {
	return ecdsa.Sign(pk.key, digest[:]).Serialize()
}

// SignSchnorr creates a 64-byte Schnorr signature over the 32-byte digest.
// The optional aux bytes feed the nonce generation as auxiliary randomness.
func (pk *PrivateKey) SignSchnorr(digest [32]byte, aux *[32]byte) ([]byte, error) {
	var opts []schnorr.SignOption
	if aux != nil {
		opts = append(opts, schnorr.CustomNonce(*aux))
	}
	// btcec key types alias the decred ones, so the key passes straight
	// through.
	sig, err := schnorr.Sign(pk.key, digest[:], opts...)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey derives the public key.
func (pk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: pk.key.PubKey()}
}

// Bytes returns the raw 32-byte private key.
func (pk *PrivateKey) Bytes() []byte {
	return pk.key.Serialize()
}

// ParsePublicKey parses a compressed or uncompressed public key.
func ParsePublicKey(pubKeyBytes []byte) (*PublicKey, error) {
	key, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// SerializeCompressed returns the 33-byte compressed encoding.
func (pub *PublicKey) SerializeCompressed() []byte {
	return pub.key.SerializeCompressed()
}

// SerializeUncompressed returns the 65-byte uncompressed encoding.
func (pub *PublicKey) SerializeUncompressed() []byte {
	return pub.key.SerializeUncompressed()
}

// Serialize returns the encoding selected by compressed.
func (pub *PublicKey) Serialize(compressed bool) []byte {
	if compressed {
		return pub.key.SerializeCompressed()
	}
	return pub.key.SerializeUncompressed()
}

// Verify checks a signature over a digest made by the holder of pubKey.
//
// The algorithm is picked by signature length: exactly 64 bytes is Schnorr,
// anything else is tried as DER ECDSA. Malformed material (an off-curve
// point, broken DER) is reported as a verification failure with a reason,
// never as an error; the error return is reserved for genuinely invalid
// call arguments (empty pubkey, wrong digest length).
func Verify(pubKey, sig, digest []byte) (bool, string, error) {
	if len(pubKey) == 0 {
		return false, "", errors.New("empty public key")
	}
	if len(digest) != 32 {
		return false, "", fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	key, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false, fmt.Sprintf("parsing public key: %v", err), nil
	}

	if len(sig) == SchnorrSigLength {
		schnorrSig, err := schnorr.ParseSignature(sig)
		if err != nil {
			return false, fmt.Sprintf("parsing schnorr signature: %v", err), nil
		}
		if !schnorrSig.Verify(digest, key) {
			return false, "schnorr signature does not verify", nil
		}
		return true, "", nil
	}

	derSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, fmt.Sprintf("parsing DER signature: %v", err), nil
	}
	if !derSig.Verify(digest, key) {
		return false, "ecdsa signature does not verify", nil
	}
	return true, "", nil
}

// decodeWIF decodes a WIF-encoded private key.
// WIF format: version || private_key (32 bytes) || [compression_flag] || checksum (4 bytes)
func decodeWIF(wif string) ([]byte, bool, error) {
	decoded := base58.Decode(wif)
	if len(decoded) != 37 && len(decoded) != 38 {
		return nil, false, errors.New("invalid WIF length")
	}

	version := decoded[0]
	if version != 0x80 && version != 0xef {
		return nil, false, fmt.Errorf("invalid WIF version byte: 0x%02x", version)
	}

	checksumOffset := len(decoded) - 4
	payload := decoded[:checksumOffset]

	hash1 := sha256.Sum256(payload)
	hash2 := sha256.Sum256(hash1[:])
	if !bytes.Equal(decoded[checksumOffset:], hash2[:4]) {
		return nil, false, errors.New("WIF checksum mismatch")
	}

	compressed := len(decoded) == 38 && payload[len(payload)-1] == 0x01
	return payload[1:33], compressed, nil
}

// EncodeWIF encodes a private key to WIF format.
func EncodeWIF(privateKey []byte, compressed, testnet bool) (string, error) {
	if len(privateKey) != 32 {
		return "", errors.New("private key must be 32 bytes")
	}

	version := byte(0x80)
	if testnet {
		version = 0xef
	}

	payload := make([]byte, 0, 38)
	payload = append(payload, version)
	payload = append(payload, privateKey...)
	if compressed {
		payload = append(payload, 0x01)
	}

	hash1 := sha256.Sum256(payload)
	hash2 := sha256.Sum256(hash1[:])
	payload = append(payload, hash2[:4]...)

	return base58.Encode(payload), nil
}
