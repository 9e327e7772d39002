// Package keys provides an in-memory KeyProvider and helpers for turning
// keys into addresses.
package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/suffix-labs/cashtx/pkg/crypto"
	"github.com/suffix-labs/cashtx/pkg/tx"
)

// MemoryProvider holds private keys in memory, indexed by the serialized
// public key they answer for. It satisfies signer.KeyProvider.
type MemoryProvider struct {
	keys map[string]entry
}

type entry struct {
	priv       *crypto.PrivateKey
	compressed bool
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{keys: make(map[string]entry)}
}

// Add registers a private key. The key is indexed under both its compressed
// and uncompressed public key so descriptors in either encoding resolve;
// compressed records which encoding the key's addresses use.
func (p *MemoryProvider) Add(priv *crypto.PrivateKey, compressed bool) {
	pub := priv.PublicKey()
	p.keys[string(pub.SerializeCompressed())] = entry{priv: priv, compressed: compressed}
	p.keys[string(pub.SerializeUncompressed())] = entry{priv: priv, compressed: compressed}
}

// AddWIF decodes a WIF-encoded private key and registers it.
func (p *MemoryProvider) AddWIF(wif string) error {
	priv, compressed, err := crypto.ParsePrivateKeyWIF(wif)
	if err != nil {
		return fmt.Errorf("decoding WIF key: %w", err)
	}
	p.Add(priv, compressed)
	return nil
}

// Resolve implements signer.KeyProvider.
func (p *MemoryProvider) Resolve(pubKey []byte) (priv *crypto.PrivateKey, compressed bool, ok bool) {
	e, ok := p.keys[string(pubKey)]
	if !ok {
		return nil, false, false
	}
	return e.priv, e.compressed, true
}

// Len reports how many distinct keys the provider holds. Each key is
// indexed twice, once per public key encoding.
func (p *MemoryProvider) Len() int {
	return len(p.keys) / 2
}

// PubKeyAddress derives the pay-to-pubkey-hash address of a serialized
// public key.
func PubKeyAddress(pubKey []byte) (tx.Address, error) {
	if len(pubKey) != 33 && len(pubKey) != 65 {
		return tx.Address{}, fmt.Errorf("bad public key length %d", len(pubKey))
	}
	var a tx.Address
	a.Kind = tx.AddrP2PKH
	copy(a.Hash[:], btcutil.Hash160(pubKey))
	return a, nil
}

// ScriptAddress derives the pay-to-script-hash address of a redeem script.
func ScriptAddress(redeem []byte) tx.Address {
	var a tx.Address
	a.Kind = tx.AddrP2SH
	copy(a.Hash[:], btcutil.Hash160(redeem))
	return a
}

// ParsePubKeyHex decodes a hex public key and checks it parses as a point
// on the curve.
func ParsePubKeyHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding public key hex: %w", err)
	}
	if _, err := crypto.ParsePublicKey(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
