// Package api provides the high-level public API for transaction operations.
//
// This is the main entry point for applications using the cashtx library.
// All functions speak hex strings at the boundary so callers in any host
// environment (RPC bridges, wallets, tooling) can use them without touching
// the binary wire format:
//
//  1. DecodeTransaction - Parses a raw transaction into a summary
//  2. SignTransaction   - Signs with a set of WIF keys
//  3. MergeSignatures   - Folds externally produced signatures in
//  4. Txid              - Computes the transaction ID
//  5. EstimateSize      - Sizes the transaction with placeholder signatures
package api

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/suffix-labs/cashtx/pkg/crypto"
	"github.com/suffix-labs/cashtx/pkg/keys"
	"github.com/suffix-labs/cashtx/pkg/prevout"
	"github.com/suffix-labs/cashtx/pkg/signer"
	"github.com/suffix-labs/cashtx/pkg/tx"
)

// InputSummary describes one input of a decoded transaction.
type InputSummary struct {
	PrevoutHash string  // funding txid, display (reversed-hex) order
	PrevoutN    uint32  // funding output index
	Type        string  // coinbase, p2pk, p2pkh, p2sh, unknown
	Sequence    uint32  // nSequence
	NumSig      int     // signatures required
	NumHave     int     // signatures present
	Value       *uint64 // funding value in satoshis, nil when unknown
	HasToken    bool    // input carries token data
}

// OutputSummary describes one output of a decoded transaction.
type OutputSummary struct {
	Value    int64  // value in satoshis
	Script   string // locking script, hex
	Address  string // hash160 for p2pkh/p2sh outputs, hex; empty otherwise
	HasToken bool   // output carries a token prefix
}

// TransactionSummary is the decoded view of a raw transaction.
type TransactionSummary struct {
	Version  int32
	LockTime uint32
	Txid     string // empty while the transaction is incomplete
	Complete bool
	Inputs   []InputSummary
	Outputs  []OutputSummary
}

// ============================================================================
// DecodeTransaction
// ============================================================================

// DecodeTransaction parses a hex-encoded raw transaction and returns a
// structural summary. Partially signed transactions decode too; their Txid
// field stays empty until every input is complete.
func DecodeTransaction(rawHex string) (*TransactionSummary, error) {
	t, err := parseTx(rawHex)
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
	ins, err := t.Inputs()
	if err != nil {
		return nil, err
	}
	outs, err := t.Outputs()
	if err != nil {
		return nil, err
	}

	summary := &TransactionSummary{
		Version:  version,
		LockTime: lockTime,
		Inputs:   make([]InputSummary, 0, len(ins)),
		Outputs:  make([]OutputSummary, 0, len(outs)),
	}

	for _, in := range ins {
		summary.Inputs = append(summary.Inputs, InputSummary{
			PrevoutHash: in.PrevoutHash.String(),
			PrevoutN:    in.PrevoutN,
			Type:        in.Type.String(),
			Sequence:    in.Sequence,
			NumSig:      in.NumSig,
			NumHave:     in.SignatureCount(),
			Value:       in.Value,
			HasToken:    in.TokenData != nil,
		})
	}
	for _, out := range outs {
		s := OutputSummary{
			Value:    out.Value,
			Script:   hex.EncodeToString(out.ScriptPubKey),
			HasToken: out.TokenData != nil,
		}
		if addr, ok := out.Address(); ok {
			s.Address = hex.EncodeToString(addr.Hash[:])
		}
		summary.Outputs = append(summary.Outputs, s)
	}

	complete, err := t.IsComplete()
	if err != nil {
		return nil, err
	}
	summary.Complete = complete
	if complete {
		txid, err := t.Txid()
		if err != nil {
			return nil, err
		}
		summary.Txid = txid
	}
	return summary, nil
}

// ============================================================================
// SignTransaction
// ============================================================================

// SignResult reports the outcome of a signing call.
type SignResult struct {
	RawHex          string         // re-serialized transaction
	SignaturesAdded int            // signatures written by this call
	Complete        bool           // every input fully signed
	Txid            string         // set once complete
	InputErrors     map[int]string // per-input failures, keyed by input index
}

// PrevoutValue supplies the value of a spent output at the hex boundary,
// for inputs whose value is not carried on the wire. The txid is in display
// (reversed-hex) order as everywhere else.
type PrevoutValue struct {
	Txid  string
	Vout  uint32
	Value uint64
}

// SignTransaction signs a hex-encoded transaction with the supplied WIF
// private keys and returns the re-serialized result. With useSchnorr set
// the signatures are 64-byte Schnorr instead of DER ECDSA.
//
// Inputs the keys cannot satisfy are left untouched, so several parties
// holding different keys can call this in turn on the same transaction.
// Every input being signed needs its spent value, either carried on the
// wire or supplied through SignTransactionWithPrevouts.
func SignTransaction(rawHex string, wifKeys []string, useSchnorr bool) (*SignResult, error) {
	return SignTransactionWithPrevouts(rawHex, wifKeys, useSchnorr, nil)
}

// SignTransactionWithPrevouts is SignTransaction with spent-output values
// supplied by the caller, for transactions whose serialization does not
// carry them.
func SignTransactionWithPrevouts(rawHex string, wifKeys []string, useSchnorr bool, prevouts []PrevoutValue) (*SignResult, error) {
	t, err := parseTx(rawHex)
	if err != nil {
		return nil, err
	}

	if err := applyPrevouts(t, prevouts); err != nil {
		return nil, err
	}

	provider := keys.NewMemoryProvider()
	for i, wif := range wifKeys {
		if err := provider.AddWIF(wif); err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
	}

	res, err := signer.New(t, provider, useSchnorr, nil).SignAll()
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return buildSignResult(t, res.SignaturesAdded, res.InputErrors)
}

// ============================================================================
// MergeSignatures
// ============================================================================

// MergeSignatures folds externally produced signatures into a transaction.
// sigHex holds one hex signature per input (trailing sighash byte included,
// empty string to skip an input); each is matched to its pubkey slot by
// verification, so callers need not know which cosigner produced it.
//
// Matching verifies against the input's signature digest, which needs the
// spent value; use MergeSignaturesWithPrevouts when the serialization does
// not carry it.
func MergeSignatures(rawHex string, sigHex []string) (*SignResult, error) {
	return MergeSignaturesWithPrevouts(rawHex, sigHex, nil)
}

// MergeSignaturesWithPrevouts is MergeSignatures with spent-output values
// supplied by the caller.
func MergeSignaturesWithPrevouts(rawHex string, sigHex []string, prevouts []PrevoutValue) (*SignResult, error) {
	t, err := parseTx(rawHex)
	if err != nil {
		return nil, err
	}
	if err := applyPrevouts(t, prevouts); err != nil {
		return nil, err
	}

	sigs := make([][]byte, len(sigHex))
	for i, s := range sigHex {
		if s == "" {
			continue
		}
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		sigs[i] = raw
	}

	added, err := signer.UpdateSignatures(t, sigs)
	if err != nil {
		return nil, fmt.Errorf("merging signatures: %w", err)
	}
	return buildSignResult(t, added, nil)
}

// ============================================================================
// Txid
// ============================================================================

// Txid computes the transaction ID of a hex-encoded transaction. The ID is
// only defined once every input is fully signed; before that the empty
// string is returned, since signing still malleates the serialization.
func Txid(rawHex string) (string, error) {
	t, err := parseTx(rawHex)
	if err != nil {
		return "", err
	}
	return t.Txid()
}

// ============================================================================
// EstimateSize
// ============================================================================

// EstimateSize returns the serialized size the transaction will have once
// fully signed, using placeholder signatures for the missing ones.
func EstimateSize(rawHex string, useSchnorr bool) (int, error) {
	t, err := parseTx(rawHex)
	if err != nil {
		return 0, err
	}
	return t.EstimatedSize(useSchnorr)
}

// ============================================================================
// Helper functions
// ============================================================================

func applyPrevouts(t *tx.Transaction, prevouts []PrevoutValue) error {
	if len(prevouts) == 0 {
		return nil
	}
	static := prevout.Static{}
	for _, p := range prevouts {
		h, err := chainhash.NewHashFromStr(p.Txid)
		if err != nil {
			return fmt.Errorf("prevout txid %q: %w", p.Txid, err)
		}
		static[prevout.StaticKey(*h, p.Vout)] = &tx.PrevOut{Value: p.Value}
	}
	return t.ApplyPrevouts(static)
}

func parseTx(rawHex string) (*tx.Transaction, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("decoding transaction hex: %w", err)
	}
	t, err := tx.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return t, nil
}

func buildSignResult(t *tx.Transaction, added int, inputErrs map[int]error) (*SignResult, error) {
	raw, err := t.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	complete, err := t.IsComplete()
	if err != nil {
		return nil, err
	}

	res := &SignResult{
		RawHex:          hex.EncodeToString(raw),
		SignaturesAdded: added,
		Complete:        complete,
	}
	if complete {
		txid, err := t.Txid()
		if err != nil {
			return nil, err
		}
		res.Txid = txid
	}
	if len(inputErrs) > 0 {
		res.InputErrors = make(map[int]string, len(inputErrs))
		for i, e := range inputErrs {
			res.InputErrors[i] = e.Error()
		}
	}
	return res, nil
}

// SighashHex computes the signature digest for one input and returns it as
// hex. External signers use this to produce a signature out of process and
// feed it back through MergeSignatures.
func SighashHex(rawHex string, inputIndex int) (string, error) {
	t, err := parseTx(rawHex)
	if err != nil {
		return "", err
	}
	digest, err := crypto.SignatureHash(t, inputIndex, tx.SighashAllForkID)
	if err != nil {
		return "", fmt.Errorf("failed to compute sighash: %w", err)
	}
	// Raw byte order, not the reversed display order used for txids.
	return hex.EncodeToString(digest[:]), nil
}
