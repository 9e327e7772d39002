// Script classification and construction.
//
// Input scripts are classified into {Coinbase, P2PK, P2PKH, P2SH multisig,
// Unknown}. Classification is deliberately relaxed: plenty of legitimate
// nonstandard and bare-multisig scripts exist on the network, so anything
// that does not match a known template degrades to Unknown with the
// scriptSig kept opaque. Classification never returns an error.
//
// Partially-signed inputs are serialized with the pubkeys in their canonical
// slots and a one-byte NoSignature placeholder per missing signature, so the
// structure survives an encode/decode round trip before signing completes.

package tx

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// Script opcodes used by the recognized templates.
const (
	OpFalse         byte = 0x00 // OP_0
	OpPushData1     byte = 0x4c
	OpPushData2     byte = 0x4d
	OpPushData4     byte = 0x4e
	Op1             byte = 0x51
	Op16            byte = 0x60
	OpReturn        byte = 0x6a
	OpDup           byte = 0x76
	OpEqual         byte = 0x87
	OpEqualVerify   byte = 0x88
	OpHash160       byte = 0xa9
	OpCheckSig      byte = 0xac
	OpCheckMultiSig byte = 0xae
)

// scriptOp is a single decoded script instruction: an opcode and, for data
// pushes, its payload.
type scriptOp struct {
	opcode byte
	data   []byte
}

// isDataPush reports whether the instruction pushes a non-empty payload.
func (op scriptOp) isDataPush() bool {
	return op.opcode >= 0x01 && op.opcode <= OpPushData4 && len(op.data) > 0
}

// parseScriptOps decodes a script into its instructions. A truncated push
// yields an error; callers classifying scripts treat that as Unknown rather
// than failing.
func parseScriptOps(script []byte) ([]scriptOp, error) {
	var ops []scriptOp
	for i := 0; i < len(script); {
		opcode := script[i]
		i++

		var length int
		switch {
		case opcode < OpPushData1:
			length = int(opcode)
		case opcode == OpPushData1:
			if i+1 > len(script) {
				return nil, fmt.Errorf("truncated OP_PUSHDATA1 at offset %d", i-1)
			}
			length = int(script[i])
			i++
		case opcode == OpPushData2:
			if i+2 > len(script) {
				return nil, fmt.Errorf("truncated OP_PUSHDATA2 at offset %d", i-1)
			}
			length = int(binary.LittleEndian.Uint16(script[i : i+2]))
			i += 2
		case opcode == OpPushData4:
			if i+4 > len(script) {
				return nil, fmt.Errorf("truncated OP_PUSHDATA4 at offset %d", i-1)
			}
			length = int(binary.LittleEndian.Uint32(script[i : i+4]))
			i += 4
		default:
			ops = append(ops, scriptOp{opcode: opcode})
			continue
		}

		if i+length > len(script) {
			return nil, fmt.Errorf("push of %d bytes overruns script at offset %d", length, i)
		}
		ops = append(ops, scriptOp{opcode: opcode, data: script[i : i+length]})
		i += length
	}
	return ops, nil
}

// pushData appends a minimal push of data to buf.
func pushData(buf *bytes.Buffer, data []byte) {
	switch {
	case len(data) < int(OpPushData1):
		buf.WriteByte(byte(len(data)))
	case len(data) <= 0xff:
		buf.WriteByte(OpPushData1)
		buf.WriteByte(byte(len(data)))
	case len(data) <= 0xffff:
		buf.WriteByte(OpPushData2)
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(data)))
		buf.Write(l[:])
	default:
		buf.WriteByte(OpPushData4)
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(data)))
		buf.Write(l[:])
	}
	buf.Write(data)
}

// isSmallInt reports whether the opcode is OP_1 through OP_16 and returns
// its value.
func isSmallInt(opcode byte) (int, bool) {
	if opcode >= Op1 && opcode <= Op16 {
		return int(opcode-Op1) + 1, true
	}
	return 0, false
}

// ClassifyInput classifies the input's scriptSig and fills the template
// fields: type, required signature count, canonical pubkey order, aligned
// signature slots, and the redeem script for P2SH.
//
// A push of the single byte NoSignature marks an empty signature slot. The
// pubkey order captured here is canonical for all later slot alignment and
// is never re-sorted.
func ClassifyInput(in *TxInput) {
	in.Type = InputUnknown

	if in.IsCoinbase() {
		in.Type = InputCoinbase
		return
	}

	ops, err := parseScriptOps(in.ScriptSig)
	if err != nil {
		return
	}

	// <pubkey>: a pay-to-pubkey spend pending its signature. The pushed
	// bytes are the pubkey descriptor, not a signature; signed inputs keep
	// their scriptSig verbatim and are never rebuilt from this form.
	if len(ops) == 1 && ops[0].isDataPush() {
		in.NumSig = 1
		in.PubKeys = [][]byte{ops[0].data}
		in.Signatures = make([][]byte, 1)
		in.Type = InputP2PK
		return
	}

	// <sig> <pubkey>: pay-to-pubkey-hash.
	if len(ops) == 2 && ops[0].isDataPush() && ops[1].isDataPush() {
		in.NumSig = 1
		in.PubKeys = [][]byte{ops[1].data}
		in.Signatures = [][]byte{signatureOrNil(ops[0].data)}
		in.Type = InputP2PKH
		return
	}

	// OP_0 <sig>... <redeemScript>: P2SH-wrapped multisig.
	if len(ops) >= 2 && ops[0].opcode == OpFalse && len(ops[0].data) == 0 {
		last := ops[len(ops)-1]
		if !last.isDataPush() {
			return
		}
		m, pubkeys, ok := MatchMultisigRedeem(last.data)
		if !ok {
			return
		}
		mid := ops[1 : len(ops)-1]
		sigs := make([][]byte, 0, len(mid))
		for _, op := range mid {
			if !op.isDataPush() {
				return
			}
			sigs = append(sigs, signatureOrNil(op.data))
		}

		in.NumSig = m
		in.PubKeys = pubkeys
		in.RedeemScript = last.data
		in.Signatures = alignSignatures(sigs, len(pubkeys))
		in.Type = InputP2SH
		return
	}
}

// signatureOrNil maps the NoSignature placeholder to an empty slot.
func signatureOrNil(data []byte) []byte {
	if len(data) == 1 && data[0] == NoSignature {
		return nil
	}
	return data
}

// alignSignatures fits a parsed signature list onto n pubkey slots. The
// partial serialization carries exactly one element per slot, so alignment
// is positional; a final serialization carries only the real signatures,
// which land in the leading slots.
//
// In the final form a leading slot's signature need not have been made by
// that slot's pubkey. Matching them up would need the sighash digest, which
// classification does not have. The pairing is never consulted for such an
// input: it counts as complete, signing skips it, and encoding re-emits the
// verbatim scriptSig.
func alignSignatures(sigs [][]byte, n int) [][]byte {
	aligned := make([][]byte, n)
	if len(sigs) == n {
		copy(aligned, sigs)
		return aligned
	}
	slot := 0
	for _, sig := range sigs {
		if sig == nil || slot >= n {
			continue
		}
		aligned[slot] = sig
		slot++
	}
	return aligned
}

// MatchMultisigRedeem parses a script of the form
//
//	OP_m <pubkey>... OP_n OP_CHECKMULTISIG
//
// returning the threshold m and the pubkeys in script order. Returns
// ok=false for anything else.
func MatchMultisigRedeem(script []byte) (m int, pubkeys [][]byte, ok bool) {
	ops, err := parseScriptOps(script)
	if err != nil || len(ops) < 4 {
		return 0, nil, false
	}

	m, ok = isSmallInt(ops[0].opcode)
	if !ok {
		return 0, nil, false
	}
	n, ok := isSmallInt(ops[len(ops)-2].opcode)
	if !ok || ops[len(ops)-1].opcode != OpCheckMultiSig {
		return 0, nil, false
	}

	mid := ops[1 : len(ops)-2]
	if len(mid) != n || m > n || m < 1 {
		return 0, nil, false
	}
	pubkeys = make([][]byte, 0, n)
	for _, op := range mid {
		if !op.isDataPush() {
			return 0, nil, false
		}
		pubkeys = append(pubkeys, op.data)
	}
	return m, pubkeys, true
}

// BuildRedeemScript builds an m-of-n multisig redeem script with the
// pubkeys in their stored order. The order is never re-sorted here: it was
// fixed when the input was classified (or the wallet created it) and the
// signature slots are aligned to it.
func BuildRedeemScript(pubkeys [][]byte, m int) ([]byte, error) {
	n := len(pubkeys)
	if m < 1 || m > n || n > 16 {
		return nil, fmt.Errorf("invalid multisig %d-of-%d", m, n)
	}
	var buf bytes.Buffer
	buf.WriteByte(Op1 + byte(m-1))
	for _, pk := range pubkeys {
		pushData(&buf, pk)
	}
	buf.WriteByte(Op1 + byte(n-1))
	buf.WriteByte(OpCheckMultiSig)
	return buf.Bytes(), nil
}

// BuildScriptSig assembles the unlocking script for the input from its
// current signature slots.
//
// When estimate is set, missing signatures become zero-filled placeholders
// sized for a maximal ECDSA (or Schnorr) signature so the serialized length
// matches the eventual fully-signed input; exactly NumSig signature elements
// are emitted, since that is what the final script will carry.
//
// Without estimate, a complete input emits its real signatures only, and a
// partial input emits one element per pubkey slot (signature or NoSignature
// placeholder) to keep the slots aligned across serializations.
func BuildScriptSig(in *TxInput, estimate, useSchnorr bool) ([]byte, error) {
	switch in.Type {
	case InputCoinbase, InputUnknown:
		// Opaque; emitted as-is.
		return in.ScriptSig, nil
	case InputP2PK:
		var buf bytes.Buffer
		pushData(&buf, p2pkElement(in, estimate, useSchnorr))
		return buf.Bytes(), nil
	case InputP2PKH:
		if len(in.PubKeys) != 1 {
			return nil, fmt.Errorf("p2pkh input has %d pubkeys, want 1", len(in.PubKeys))
		}
		var buf bytes.Buffer
		pushData(&buf, sigElement(sigAt(in, 0), estimate, useSchnorr))
		pushData(&buf, in.PubKeys[0])
		return buf.Bytes(), nil
	case InputP2SH:
		return buildMultisigScriptSig(in, estimate, useSchnorr)
	default:
		return nil, fmt.Errorf("cannot build scriptSig for input type %v", in.Type)
	}
}

// p2pkElement picks the single pushed element of a P2PK scriptSig: the
// signature when collected, otherwise the pubkey descriptor (the pending
// form recognized by ClassifyInput).
func p2pkElement(in *TxInput, estimate, useSchnorr bool) []byte {
	if sig := sigAt(in, 0); sig != nil {
		return sig
	}
	if estimate {
		return make([]byte, placeholderSize(useSchnorr))
	}
	if len(in.PubKeys) == 1 {
		return in.PubKeys[0]
	}
	return []byte{NoSignature}
}

func buildMultisigScriptSig(in *TxInput, estimate, useSchnorr bool) ([]byte, error) {
	redeem := in.RedeemScript
	if redeem == nil {
		var err error
		redeem, err = BuildRedeemScript(in.PubKeys, in.NumSig)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(OpFalse) // CHECKMULTISIG pops one extra element

	switch {
	case estimate:
		// Exactly NumSig elements: collected signatures first, then
		// maximal placeholders for the rest.
		emitted := 0
		for _, sig := range in.Signatures {
			if sig != nil && emitted < in.NumSig {
				pushData(&buf, sig)
				emitted++
			}
		}
		for ; emitted < in.NumSig; emitted++ {
			pushData(&buf, make([]byte, placeholderSize(useSchnorr)))
		}
	case in.IsComplete():
		emitted := 0
		for _, sig := range in.Signatures {
			if sig != nil && emitted < in.NumSig {
				pushData(&buf, sig)
				emitted++
			}
		}
	default:
		// One element per slot keeps alignment for later signers.
		for _, sig := range in.Signatures {
			if sig != nil {
				pushData(&buf, sig)
			} else {
				pushData(&buf, []byte{NoSignature})
			}
		}
	}

	pushData(&buf, redeem)
	return buf.Bytes(), nil
}

func sigAt(in *TxInput, i int) []byte {
	if i < len(in.Signatures) {
		return in.Signatures[i]
	}
	return nil
}

func sigElement(sig []byte, estimate, useSchnorr bool) []byte {
	if sig != nil {
		return sig
	}
	if estimate {
		return make([]byte, placeholderSize(useSchnorr))
	}
	return []byte{NoSignature}
}

func placeholderSize(useSchnorr bool) int {
	if useSchnorr {
		return EstimatedSigSizeSchnorr
	}
	return EstimatedSigSizeECDSA
}

// ScriptCode returns the script committed to by this input's sighash
// preimage: the full locking script for P2PKH, the redeem script for P2SH,
// and the pay-to-pubkey script for P2PK. Unknown inputs need a
// caller-supplied override since their template cannot be reconstructed.
func (in *TxInput) ScriptCode() ([]byte, error) {
	switch in.Type {
	case InputP2PKH:
		if len(in.PubKeys) != 1 {
			return nil, fmt.Errorf("p2pkh input has %d pubkeys, want 1", len(in.PubKeys))
		}
		var hash [20]byte
		copy(hash[:], btcutil.Hash160(in.PubKeys[0]))
		return P2PKHScript(hash), nil
	case InputP2SH:
		if in.RedeemScript != nil {
			return in.RedeemScript, nil
		}
		return BuildRedeemScript(in.PubKeys, in.NumSig)
	case InputP2PK:
		if len(in.PubKeys) != 1 {
			return nil, fmt.Errorf("p2pk input has %d pubkeys, want 1", len(in.PubKeys))
		}
		return P2PKScript(in.PubKeys[0]), nil
	case InputUnknown:
		if in.ScriptCodeOverride != nil {
			return in.ScriptCodeOverride, nil
		}
		return nil, fmt.Errorf("unknown input type requires a scriptCode override")
	default:
		return nil, fmt.Errorf("no scriptCode for input type %v", in.Type)
	}
}

// P2PKHScript builds the canonical pay-to-pubkey-hash locking script.
func P2PKHScript(hash [20]byte) []byte {
	script := make([]byte, 0, 25)
	script = append(script, OpDup, OpHash160, 0x14)
	script = append(script, hash[:]...)
	script = append(script, OpEqualVerify, OpCheckSig)
	return script
}

// P2SHScript builds the canonical pay-to-script-hash locking script.
func P2SHScript(hash [20]byte) []byte {
	script := make([]byte, 0, 23)
	script = append(script, OpHash160, 0x14)
	script = append(script, hash[:]...)
	script = append(script, OpEqual)
	return script
}

// P2PKScript builds the pay-to-pubkey locking script.
func P2PKScript(pubkey []byte) []byte {
	var buf bytes.Buffer
	pushData(&buf, pubkey)
	buf.WriteByte(OpCheckSig)
	return buf.Bytes()
}

// ClassifyOutput classifies the output's locking script into its
// address-like form. Unrecognized scripts are kept opaque as OutputScript;
// like input classification this never fails.
func ClassifyOutput(out *TxOutput) {
	out.Kind = OutputScript
	script := out.ScriptPubKey

	// OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG
	if len(script) == 25 && script[0] == OpDup && script[1] == OpHash160 &&
		script[2] == 0x14 && script[23] == OpEqualVerify && script[24] == OpCheckSig {
		out.Kind = OutputP2PKH
		out.Addr.Kind = AddrP2PKH
		copy(out.Addr.Hash[:], script[3:23])
		return
	}

	// OP_HASH160 <20> OP_EQUAL
	if len(script) == 23 && script[0] == OpHash160 && script[1] == 0x14 &&
		script[22] == OpEqual {
		out.Kind = OutputP2SH
		out.Addr.Kind = AddrP2SH
		copy(out.Addr.Hash[:], script[2:22])
		return
	}

	// <pubkey> OP_CHECKSIG
	ops, err := parseScriptOps(script)
	if err != nil {
		return
	}
	if len(ops) == 2 && ops[0].isDataPush() && ops[1].opcode == OpCheckSig {
		pk := ops[0].data
		if len(pk) == 33 && (pk[0] == 0x02 || pk[0] == 0x03) || len(pk) == 65 && pk[0] == 0x04 {
			out.Kind = OutputP2PK
			out.PubKey = pk
		}
	}
}
