// Package tx implements the transaction model for a Bitcoin-Cash-style
// UTXO chain with the CashTokens extension.
//
// A Transaction is decoded lazily from raw wire bytes (or built from inputs
// and outputs directly), mutated in memory, and re-serialized back to the
// exact network format, including the legacy-vs-extended 8-byte input value
// encoding used for offline signing and the CashToken output wrapping.
//
// The package covers the wire codec, the token codec, and script
// classification/construction. Signature hashing and the secp256k1
// operations live in pkg/crypto; transaction-level signing orchestration
// lives in pkg/signer.
package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Sighash type constants. Only ALL|FORKID is supported for signing; the
// FORKID bit is what separates this chain's signatures from pre-fork ones.
const (
	SighashAll       uint32 = 0x01
	SighashForkID    uint32 = 0x40
	SighashAllForkID uint32 = SighashAll | SighashForkID
)

// NoSignature is the one-byte placeholder pushed into a scriptSig slot whose
// signature has not been collected yet. Keeping a push per slot preserves the
// instruction count of partially-signed multisig scripts.
const NoSignature byte = 0xff

// SequenceFinal is the default sequence number for new inputs.
const SequenceFinal uint32 = 0xffffffff

// Signature placeholder sizes used when serializing for fee estimation:
// a maximal DER ECDSA signature plus sighash byte, and a Schnorr signature
// plus sighash byte.
const (
	EstimatedSigSizeECDSA   = 0x48
	EstimatedSigSizeSchnorr = 0x41
)

// InputType identifies the spending-script template of an input.
type InputType int

const (
	InputUnknown InputType = iota // unrecognized template, scriptSig kept opaque
	InputCoinbase
	InputP2PK
	InputP2PKH
	InputP2SH // P2SH-wrapped multisig
)

// String returns the conventional short name for the input type.
func (t InputType) String() string {
	switch t {
	case InputCoinbase:
		return "coinbase"
	case InputP2PK:
		return "p2pk"
	case InputP2PKH:
		return "p2pkh"
	case InputP2SH:
		return "p2sh"
	default:
		return "unknown"
	}
}

// TxInput represents a coin being spent.
//
// PubKeys holds the public keys in the canonical order fixed when the input
// was classified; it is never re-sorted afterwards. Signatures is slot-aligned
// with PubKeys: Signatures[i] is either nil or a signature (with trailing
// sighash byte) made by PubKeys[i]. The exception is an input classified from
// a final multisig scriptSig, whose signatures occupy the leading slots
// positionally; see alignSignatures.
type TxInput struct {
	// PrevoutHash is the txid of the UTXO being spent, held in chainhash's
	// internal (wire) order; its String form is the familiar byte-reversed
	// hex txid.
	PrevoutHash chainhash.Hash
	PrevoutN    uint32         // output index in that transaction
	Sequence    uint32

	// ScriptSig is the verbatim unlocking script when already known. It is
	// re-emitted untouched on encode so that signed transactions round-trip
	// byte for byte, non-minimal pushes included.
	ScriptSig []byte

	Type         InputType
	NumSig       int      // signatures required (1 for P2PK/P2PKH, m for m-of-n P2SH)
	PubKeys      [][]byte // canonical order, fixed at classification time
	Signatures   [][]byte // slot-aligned with PubKeys, nil = missing
	RedeemScript []byte   // P2SH only

	// Value is the amount of the spent output. It is not part of the signed
	// wire format for complete inputs and must be supplied externally (via a
	// PrevoutLookup) before a sighash preimage or a fee can be computed.
	Value *uint64

	// TokenData is the CashToken carried by the spent output, if any.
	TokenData *TokenData

	// ScriptCodeOverride supplies the sighash scriptCode for Unknown inputs,
	// whose spending template cannot be reconstructed from the classification.
	ScriptCodeOverride []byte
}

// IsCoinbase reports whether the input spends the null outpoint.
func (in *TxInput) IsCoinbase() bool {
	return in.PrevoutHash == chainhash.Hash{}
}

// SignatureCount returns the number of collected signatures.
func (in *TxInput) SignatureCount() int {
	n := 0
	for _, sig := range in.Signatures {
		if sig != nil {
			n++
		}
	}
	return n
}

// IsComplete reports whether the input has all required signatures. Coinbase
// and Unknown inputs are complete exactly when their scriptSig is present.
func (in *TxInput) IsComplete() bool {
	switch in.Type {
	case InputCoinbase, InputUnknown:
		return in.ScriptSig != nil
	default:
		return in.SignatureCount() >= in.NumSig
	}
}

// OutputKind identifies the locking-script template of an output.
type OutputKind int

const (
	OutputScript OutputKind = iota // unrecognized template, script kept opaque
	OutputP2PKH
	OutputP2SH
	OutputP2PK
)

// AddressKind distinguishes the two hash-based address forms.
type AddressKind int

const (
	AddrP2PKH AddressKind = iota
	AddrP2SH
)

// Address is a 20-byte hash destination: the hash160 of a public key
// (P2PKH) or of a redeem script (P2SH). String formatting into cashaddr or
// legacy form is the key provider's concern, not this package's.
type Address struct {
	Kind AddressKind
	Hash [20]byte
}

// TxOutput represents a coin being created.
type TxOutput struct {
	Value        int64
	ScriptPubKey []byte // locking script, without any token wrapping

	// TokenData is the CashToken wrapped around ScriptPubKey on the wire,
	// if any.
	TokenData *TokenData

	// Classification of ScriptPubKey, filled by ClassifyOutput.
	Kind   OutputKind
	Addr   Address // valid for OutputP2PKH and OutputP2SH
	PubKey []byte  // valid for OutputP2PK
}

// Address returns the hash destination of the output and whether it has one.
func (out *TxOutput) Address() (Address, bool) {
	if out.Kind == OutputP2PKH || out.Kind == OutputP2SH {
		return out.Addr, true
	}
	return Address{}, false
}

// TxSigHashes houses the aggregate hashes shared by every input's sighash
// preimage: the double-SHA256 of all serialized outpoints, of all sequence
// numbers, and of all serialized outputs. Reusing them across inputs makes
// whole-transaction signing O(inputs+outputs) instead of
// O(inputs*(inputs+outputs)).
//
// A cached value is only valid while the input and output counts it was
// computed for still match the transaction; any structural mutation drops it.
type TxSigHashes struct {
	HashPrevouts chainhash.Hash
	HashSequence chainhash.Hash
	HashOutputs  chainhash.Hash

	NumInputs  int
	NumOutputs int
}

// Valid reports whether the cached hashes may be used for a transaction with
// the given input and output counts.
func (s *TxSigHashes) Valid(numInputs, numOutputs int) bool {
	return s != nil && s.NumInputs == numInputs && s.NumOutputs == numOutputs
}

// PrevOut is the externally-looked-up data of a spent output: its value and,
// when present, its token data and locking script.
type PrevOut struct {
	Value        uint64
	TokenData    *TokenData
	ScriptPubKey []byte
}

// PrevoutLookup supplies previous-output data for inputs whose values are
// not carried on the wire. Implementations are external to this package
// (a wallet or network layer, possibly caching); lookups are synchronous.
type PrevoutLookup interface {
	// Get returns the spent output for (txid, n), or false if unknown.
	Get(hash chainhash.Hash, n uint32) (*PrevOut, bool)
}
