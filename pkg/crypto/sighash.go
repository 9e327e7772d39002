// Package crypto implements signature-hash computation and the secp256k1
// signing operations for the transaction engine.
//
// The signature hash follows the BIP143-derived scheme used since the
// FORKID hard fork: three aggregate double-SHA256 hashes (over all
// outpoints, all sequence numbers, and all serialized outputs) are shared
// by every input's preimage, so hashing a whole transaction is linear in
// its size rather than quadratic. The aggregates are cached on the
// transaction and recomputed when its shape changes.
package crypto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/suffix-labs/cashtx/pkg/tx"
)

// CommonComponents returns the aggregate hashes shared by every input's
// sighash preimage: hashPrevouts, hashSequence and hashOutputs.
//
// With useCache set, a cached value is returned only when its input and
// output counts match the transaction's current counts; any mismatch (or a
// prior structural mutation, which drops the cache) forces a recompute, and
// the fresh value is stored back on the transaction.
func CommonComponents(t *tx.Transaction, useCache bool) (*tx.TxSigHashes, error) {
	ins, err := t.Inputs()
	if err != nil {
		return nil, err
	}
	outs, err := t.Outputs()
	if err != nil {
		return nil, err
	}

	if useCache {
		if cached := t.SigHashCache(); cached.Valid(len(ins), len(outs)) {
			return cached, nil
		}
	}

	var prevouts, sequences, outputs bytes.Buffer
	for _, in := range ins {
		prevouts.Write(in.OutpointBytes())
		if err := binary.Write(&sequences, binary.LittleEndian, in.Sequence); err != nil {
			return nil, err
		}
	}
	for i, out := range outs {
		wire, err := out.WireBytes()
		if err != nil {
			return nil, fmt.Errorf("serializing output %d: %w", i, err)
		}
		outputs.Write(wire)
	}

	hashes := &tx.TxSigHashes{
		HashPrevouts: chainhash.DoubleHashH(prevouts.Bytes()),
		HashSequence: chainhash.DoubleHashH(sequences.Bytes()),
		HashOutputs:  chainhash.DoubleHashH(outputs.Bytes()),
		NumInputs:    len(ins),
		NumOutputs:   len(outs),
	}
	if useCache {
		t.StoreSigHashCache(hashes)
	}
	return hashes, nil
}

// Preimage builds the byte string whose double-SHA256 is signed for the
// given input:
//
//	version | hashPrevouts | hashSequence | outpoint | [token data] |
//	scriptCode (compact-size prefixed) | value | sequence |
//	hashOutputs | locktime | sighash type
//
// Only ALL|FORKID is supported; any other sighash type fails fast rather
// than silently signing a different scope. The input's value is required
// and must have been supplied externally.
func Preimage(t *tx.Transaction, idx int, hashType uint32) ([]byte, error) {
	if hashType != tx.SighashAllForkID {
		return nil, &tx.UnsupportedSighashTypeError{Requested: hashType}
	}

	ins, err := t.Inputs()
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(ins) {
		return nil, fmt.Errorf("input index %d out of range (have %d inputs)", idx, len(ins))
	}
	in := ins[idx]
	if in.IsCoinbase() {
		return nil, fmt.Errorf("coinbase inputs have no sighash preimage")
	}
	if in.Value == nil {
		return nil, &tx.InputValueMissingError{InputIndex: idx}
	}

	scriptCode, err := in.ScriptCode()
	if err != nil {
		return nil, fmt.Errorf("input %d: %w", idx, err)
	}

	common, err := CommonComponents(t, true)
	if err != nil {
		return nil, err
	}
	version, err := t.Version()
	if err != nil {
		return nil, err
	}
	lockTime, err := t.LockTime()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, version); err != nil {
		return nil, err
	}
	buf.Write(common.HashPrevouts[:])
	buf.Write(common.HashSequence[:])
	buf.Write(in.OutpointBytes())

	if in.TokenData != nil {
		blob, err := tx.WrapTokenScript(in.TokenData, nil)
		if err != nil {
			return nil, err
		}
		buf.Write(blob)
	}

	tx.WriteCompactSize(&buf, uint64(len(scriptCode)))
	buf.Write(scriptCode)

	if err := binary.Write(&buf, binary.LittleEndian, *in.Value); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, in.Sequence); err != nil {
		return nil, err
	}
	buf.Write(common.HashOutputs[:])
	if err := binary.Write(&buf, binary.LittleEndian, lockTime); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, hashType); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SignatureHash returns the 32-byte digest signed for the given input:
// the double-SHA256 of its preimage.
func SignatureHash(t *tx.Transaction, idx int, hashType uint32) (chainhash.Hash, error) {
	preimage, err := Preimage(t, idx, hashType)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(preimage), nil
}
