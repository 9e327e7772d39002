// Transaction lifecycle, mutation and queries.
//
// A Transaction moves between two representations: raw wire bytes and the
// decoded structure. Decoding is lazy (a transaction created from bytes is
// not parsed until something needs its structure) and every mutation drops
// the cached raw bytes, so the two can never disagree. Structural mutations
// (adding inputs or outputs, sorting) additionally drop the sighash
// aggregate cache; writing a signature does not, since the aggregate hashes
// do not commit to scriptSigs.
//
// A Transaction is not safe for concurrent mutation. The sanctioned
// parallelism is in pkg/signer: once the aggregate hashes are fixed, each
// input's signature can be produced independently.

package tx

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Transaction is a mutable UTXO transaction.
type Transaction struct {
	version  int32
	lockTime uint32
	inputs   []*TxInput
	outputs  []*TxOutput

	raw       []byte // cached serialization, nil after any mutation
	decoded   bool
	sigHashes *TxSigHashes
}

// DefaultTxVersion is the version given to transactions built in memory.
const DefaultTxVersion int32 = 2

// FromBytes wraps raw wire bytes in a Transaction without parsing them.
// The structure is decoded on first access; a malformed stream surfaces as
// a SerializationError from whichever accessor touches it first.
func FromBytes(raw []byte) *Transaction {
	return &Transaction{raw: raw}
}

// Decode parses raw wire bytes eagerly.
func Decode(raw []byte) (*Transaction, error) {
	t := FromBytes(raw)
	if err := t.ensureDecoded(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromIO builds a transaction from inputs and outputs.
func FromIO(inputs []*TxInput, outputs []*TxOutput, lockTime uint32) *Transaction {
	return &Transaction{
		version:  DefaultTxVersion,
		lockTime: lockTime,
		inputs:   inputs,
		outputs:  outputs,
		decoded:  true,
	}
}

// NewInput builds an input spending the given outpoint, with the default
// sequence and no signature data. Callers fill the template fields or let
// decoding classify them.
func NewInput(prevoutHash chainhash.Hash, prevoutN uint32) *TxInput {
	return &TxInput{
		PrevoutHash: prevoutHash,
		PrevoutN:    prevoutN,
		Sequence:    SequenceFinal,
	}
}

func (t *Transaction) ensureDecoded() error {
	if t.decoded {
		return nil
	}
	version, lockTime, ins, outs, err := decode(t.raw)
	if err != nil {
		return err
	}
	t.version = version
	t.lockTime = lockTime
	t.inputs = ins
	t.outputs = outs
	t.decoded = true
	return nil
}

// invalidate drops every cache after a structural mutation.
func (t *Transaction) invalidate() {
	t.raw = nil
	t.sigHashes = nil
}

// Version returns the transaction version.
func (t *Transaction) Version() (int32, error) {
	if err := t.ensureDecoded(); err != nil {
		return 0, err
	}
	return t.version, nil
}

// LockTime returns the transaction locktime.
func (t *Transaction) LockTime() (uint32, error) {
	if err := t.ensureDecoded(); err != nil {
		return 0, err
	}
	return t.lockTime, nil
}

// Inputs returns the transaction's inputs. The slice and the inputs it
// holds are owned by the transaction.
func (t *Transaction) Inputs() ([]*TxInput, error) {
	if err := t.ensureDecoded(); err != nil {
		return nil, err
	}
	return t.inputs, nil
}

// Outputs returns the transaction's outputs, owned by the transaction.
func (t *Transaction) Outputs() ([]*TxOutput, error) {
	if err := t.ensureDecoded(); err != nil {
		return nil, err
	}
	return t.outputs, nil
}

// AddInputs appends inputs and drops all caches.
func (t *Transaction) AddInputs(ins ...*TxInput) error {
	if err := t.ensureDecoded(); err != nil {
		return err
	}
	t.inputs = append(t.inputs, ins...)
	t.invalidate()
	return nil
}

// AddOutputs appends outputs and drops all caches.
func (t *Transaction) AddOutputs(outs ...*TxOutput) error {
	if err := t.ensureDecoded(); err != nil {
		return err
	}
	t.outputs = append(t.outputs, outs...)
	t.invalidate()
	return nil
}

// SetSignature writes a signature into the given pubkey slot of the given
// input and drops the cached raw bytes. The sighash aggregate cache stays:
// the aggregate hashes do not commit to scriptSigs.
func (t *Transaction) SetSignature(inputIdx, slot int, sig []byte) error {
	if err := t.ensureDecoded(); err != nil {
		return err
	}
	if inputIdx < 0 || inputIdx >= len(t.inputs) {
		return serializationErrorf("input", "index %d out of range (have %d inputs)", inputIdx, len(t.inputs))
	}
	in := t.inputs[inputIdx]
	if slot < 0 || slot >= len(in.Signatures) {
		return serializationErrorf("signature slot", "index %d out of range (have %d slots)", slot, len(in.Signatures))
	}
	in.Signatures[slot] = sig
	// The verbatim scriptSig predates this signature; the next encode must
	// rebuild the script from the slots.
	in.ScriptSig = nil
	t.raw = nil
	return nil
}

// SigHashCache returns the cached sighash aggregates, or nil.
func (t *Transaction) SigHashCache() *TxSigHashes {
	return t.sigHashes
}

// StoreSigHashCache installs freshly computed sighash aggregates.
func (t *Transaction) StoreSigHashCache(h *TxSigHashes) {
	t.sigHashes = h
}

// IsComplete reports whether every non-coinbase input has all required
// signatures. Completeness is a property, not a lifecycle state: a
// transaction may be mutated after becoming complete (and stops being so).
func (t *Transaction) IsComplete() (bool, error) {
	if err := t.ensureDecoded(); err != nil {
		return false, err
	}
	for _, in := range t.inputs {
		if !in.IsComplete() {
			return false, nil
		}
	}
	return true, nil
}

// Serialize encodes the transaction to wire bytes, caching the result until
// the next mutation. Known scriptSigs are emitted verbatim; pending inputs
// are serialized in their partial form.
func (t *Transaction) Serialize() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	if err := t.ensureDecoded(); err != nil {
		return nil, err
	}
	raw, err := encode(t.version, t.lockTime, t.inputs, t.outputs, false, false)
	if err != nil {
		return nil, err
	}
	t.raw = raw
	return raw, nil
}

// EstimatedSize returns the serialized size the transaction will have once
// fully signed, with zero-filled placeholders standing in for the missing
// signatures (maximal ECDSA by default, Schnorr-sized when useSchnorr is
// set). Used for fee estimation before signing.
func (t *Transaction) EstimatedSize(useSchnorr bool) (int, error) {
	if err := t.ensureDecoded(); err != nil {
		return 0, err
	}
	raw, err := encode(t.version, t.lockTime, t.inputs, t.outputs, true, useSchnorr)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// Txid returns the reversed-hex transaction id, or an empty string while
// the transaction is incomplete: an id computed before all signatures are
// in would change under malleation and mislead its caller.
func (t *Transaction) Txid() (string, error) {
	complete, err := t.IsComplete()
	if err != nil {
		return "", err
	}
	if !complete {
		return "", nil
	}
	return t.TxidFast()
}

// TxidFast hashes the serialized bytes without a completeness check. The
// caller asserts the transaction is complete; on an incomplete transaction
// the returned id is meaningless.
func (t *Transaction) TxidFast() (string, error) {
	raw, err := t.Serialize()
	if err != nil {
		return "", err
	}
	return chainhash.DoubleHashH(raw).String(), nil
}

// InputValue sums the values of the spent outputs. Every non-coinbase
// input's value must have been supplied via a PrevoutLookup.
func (t *Transaction) InputValue() (uint64, error) {
	if err := t.ensureDecoded(); err != nil {
		return 0, err
	}
	var sum uint64
	for i, in := range t.inputs {
		if in.IsCoinbase() {
			continue
		}
		if in.Value == nil {
			return 0, &InputValueMissingError{InputIndex: i}
		}
		sum += *in.Value
	}
	return sum, nil
}

// OutputValue sums the values of the created outputs.
func (t *Transaction) OutputValue() (int64, error) {
	if err := t.ensureDecoded(); err != nil {
		return 0, err
	}
	var sum int64
	for _, out := range t.outputs {
		sum += out.Value
	}
	return sum, nil
}

// Fee returns input value minus output value. A coinbase transaction has no
// fee by definition and short-circuits to zero. Fails with
// InputValueMissingError when a spent value was never supplied.
func (t *Transaction) Fee() (int64, error) {
	if err := t.ensureDecoded(); err != nil {
		return 0, err
	}
	if len(t.inputs) > 0 && t.inputs[0].IsCoinbase() {
		return 0, nil
	}
	in, err := t.InputValue()
	if err != nil {
		return 0, err
	}
	out, err := t.OutputValue()
	if err != nil {
		return 0, err
	}
	return int64(in) - out, nil
}

// ApplyPrevouts fills in missing input values (and token data) from the
// lookup. Inputs the lookup does not know stay as they are. The cached raw
// bytes are dropped because the partial serialization carries values; the
// sighash aggregates are unaffected.
func (t *Transaction) ApplyPrevouts(lookup PrevoutLookup) error {
	if err := t.ensureDecoded(); err != nil {
		return err
	}
	for _, in := range t.inputs {
		if in.IsCoinbase() || in.Value != nil {
			continue
		}
		pv, ok := lookup.Get(in.PrevoutHash, in.PrevoutN)
		if !ok {
			continue
		}
		value := pv.Value
		in.Value = &value
		if in.TokenData == nil {
			in.TokenData = pv.TokenData
		}
		if in.Type == InputUnknown && in.ScriptCodeOverride == nil {
			in.ScriptCodeOverride = pv.ScriptPubKey
		}
	}
	t.raw = nil
	return nil
}

// SortBIP69 sorts inputs and outputs into the canonical deterministic
// order: inputs ascending by (txid, output index), outputs ascending by
// (value, locking script, token data) with token-less outputs before any
// token-carrying one. Sorting is idempotent.
//
// Sort before signing: the aggregate hashes and every signature commit to
// the ordering, so sorting afterwards silently breaks the signatures. All
// caches are dropped accordingly.
func (t *Transaction) SortBIP69() error {
	if err := t.ensureDecoded(); err != nil {
		return err
	}

	sort.SliceStable(t.inputs, func(i, j int) bool {
		a, b := t.inputs[i], t.inputs[j]
		if c := compareTxids(a.PrevoutHash, b.PrevoutHash); c != 0 {
			return c < 0
		}
		return a.PrevoutN < b.PrevoutN
	})

	sort.SliceStable(t.outputs, func(i, j int) bool {
		a, b := t.outputs[i], t.outputs[j]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		if c := bytes.Compare(a.ScriptPubKey, b.ScriptPubKey); c != 0 {
			return c < 0
		}
		switch {
		case a.TokenData == nil && b.TokenData == nil:
			return false
		case a.TokenData == nil:
			return true
		case b.TokenData == nil:
			return false
		default:
			return a.TokenData.Compare(b.TokenData) < 0
		}
	})

	t.invalidate()
	return nil
}

// compareTxids orders hashes by their display (byte-reversed hex, i.e.
// big-endian) representation, which is the ordering BIP69 specifies.
func compareTxids(a, b chainhash.Hash) int {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Script returns the canonical locking script for the address.
func (a Address) Script() []byte {
	if a.Kind == AddrP2SH {
		return P2SHScript(a.Hash)
	}
	return P2PKHScript(a.Hash)
}
