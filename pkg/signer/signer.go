// Package signer adds signatures to a transaction's inputs.
//
// The Signer walks every incomplete input, computes its signature hash,
// signs each pubkey slot its key provider can satisfy, self-verifies the
// fresh signature before storing it, and writes it into the slot aligned
// with that pubkey, never append-only, since multisig slot order was fixed
// when the input was classified.
//
// Signing fans out across inputs: the shared aggregate hashes are computed
// once up front, after which each input's preimage and signatures depend
// only on that input. Failures are per-input and never abort the pass over
// the remaining inputs.
package signer

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/suffix-labs/cashtx/pkg/crypto"
	"github.com/suffix-labs/cashtx/pkg/tx"
)

// KeyProvider maps pubkey descriptors to signing keys. Implementations are
// external (pkg/keys has an in-memory one); key storage and derivation are
// their concern, not this package's.
type KeyProvider interface {
	// Resolve returns the private key for a pubkey descriptor and whether
	// the corresponding public key uses the compressed encoding. ok is
	// false when the provider cannot satisfy the descriptor.
	Resolve(pubKey []byte) (priv *crypto.PrivateKey, compressed bool, ok bool)
}

// Signer signs a transaction with keys from a KeyProvider.
type Signer struct {
	tx         *tx.Transaction
	provider   KeyProvider
	useSchnorr bool
	aux        *[32]byte
}

// New creates a Signer. With useSchnorr set, signatures are 64-byte
// Schnorr instead of DER ECDSA; aux optionally feeds the Schnorr nonce
// generation as auxiliary randomness.
func New(t *tx.Transaction, provider KeyProvider, useSchnorr bool, aux *[32]byte) *Signer {
	return &Signer{tx: t, provider: provider, useSchnorr: useSchnorr, aux: aux}
}

// Result reports the outcome of a signing pass.
type Result struct {
	// SignaturesAdded is the number of signatures written.
	SignaturesAdded int

	// InputErrors holds per-input failures (a missing value, a signature
	// that failed self-verification). The pass continues past them.
	InputErrors map[int]error
}

// slotSig is one freshly produced signature destined for a pubkey slot.
type slotSig struct {
	slot int
	sig  []byte
}

// inputResult is the outcome of signing one input, written only by that
// input's goroutine.
type inputResult struct {
	sigs []slotSig
	err  error
}

// SignAll signs every incomplete, non-coinbase input the provider has keys
// for. Inputs are processed in parallel once the shared aggregate hashes
// are fixed; signatures are applied to the transaction afterwards, on the
// calling goroutine.
//
// The returned error is reserved for structural failures (an undecodable
// transaction); per-input problems land in Result.InputErrors.
func (s *Signer) SignAll() (*Result, error) {
	// Fix the aggregate hashes before fanning out so every input reuses
	// them instead of racing to compute them.
	if _, err := crypto.CommonComponents(s.tx, true); err != nil {
		return nil, err
	}
	ins, err := s.tx.Inputs()
	if err != nil {
		return nil, err
	}

	results := make([]inputResult, len(ins))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, in := range ins {
		if in.IsCoinbase() || in.IsComplete() {
			continue
		}
		i, in := i, in
		g.Go(func() error {
			results[i] = s.signInput(i, in)
			return nil
		})
	}
	// Goroutines report through their results slot; Wait only synchronizes.
	_ = g.Wait()

	res := &Result{InputErrors: make(map[int]error)}
	for i, r := range results {
		if r.err != nil {
			res.InputErrors[i] = r.err
			continue
		}
		for _, ss := range r.sigs {
			if err := s.tx.SetSignature(i, ss.slot, ss.sig); err != nil {
				return nil, err
			}
			res.SignaturesAdded++
		}
	}
	return res, nil
}

// signInput produces signatures for every slot of one input that the
// provider can satisfy, stopping once the input has enough. Nothing is
// written to the transaction here; the caller applies the result.
func (s *Signer) signInput(idx int, in *tx.TxInput) inputResult {
	digest, err := crypto.SignatureHash(s.tx, idx, tx.SighashAllForkID)
	if err != nil {
		return inputResult{err: err}
	}

	var res inputResult
	have := in.SignatureCount()
	for slot, pubKey := range in.PubKeys {
		if have+len(res.sigs) >= in.NumSig {
			break
		}
		if slot < len(in.Signatures) && in.Signatures[slot] != nil {
			continue
		}
		priv, compressed, ok := s.provider.Resolve(pubKey)
		if !ok {
			continue
		}

		var sig []byte
		if s.useSchnorr {
			sig, err = priv.SignSchnorr([32]byte(digest), s.aux)
			if err != nil {
				return inputResult{err: fmt.Errorf("input %d slot %d: %w", idx, slot, err)}
			}
		} else {
			sig = priv.SignECDSA([32]byte(digest))
		}

		// Self-verify before storing: a signature that does not verify
		// against its own key must never reach the transaction.
		verifyKey := priv.PublicKey().Serialize(compressed)
		valid, reason, err := crypto.Verify(verifyKey, sig, digest[:])
		if err != nil {
			return inputResult{err: fmt.Errorf("input %d slot %d: %w", idx, slot, err)}
		}
		if !valid {
			return inputResult{err: fmt.Errorf("input %d slot %d: self-verification failed: %s", idx, slot, reason)}
		}

		res.sigs = append(res.sigs, slotSig{slot: slot, sig: append(sig, byte(tx.SighashAllForkID))})
	}
	return res
}

// UpdateSignatures merges externally produced signatures into the
// transaction. sigs carries at most one candidate per input (with trailing
// sighash byte, nil to skip an input); each candidate is matched to its
// pubkey slot by verification against the input's digest, so callers need
// not know which cosigner produced it.
func UpdateSignatures(t *tx.Transaction, sigs [][]byte) (int, error) {
	ins, err := t.Inputs()
	if err != nil {
		return 0, err
	}
	if len(sigs) != len(ins) {
		return 0, fmt.Errorf("got %d signatures for %d inputs", len(sigs), len(ins))
	}

	added := 0
	for i, in := range ins {
		candidate := sigs[i]
		if candidate == nil || in.IsCoinbase() || in.IsComplete() {
			continue
		}
		if len(candidate) < 2 {
			return added, fmt.Errorf("input %d: signature too short", i)
		}
		digest, err := crypto.SignatureHash(t, i, tx.SighashAllForkID)
		if err != nil {
			return added, fmt.Errorf("input %d: %w", i, err)
		}

		raw := candidate[:len(candidate)-1] // strip sighash byte
		for slot, pubKey := range in.PubKeys {
			if slot < len(in.Signatures) && in.Signatures[slot] != nil {
				continue
			}
			valid, _, verr := crypto.Verify(pubKey, raw, digest[:])
			if verr != nil || !valid {
				continue
			}
			if err := t.SetSignature(i, slot, candidate); err != nil {
				return added, err
			}
			added++
			break
		}
	}
	return added, nil
}
