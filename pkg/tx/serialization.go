// Transaction wire codec.
//
// The serialized form is the network format:
//
//	version(i32) | #inputs | inputs... | #outputs | outputs... | locktime(u32)
//
// with one backward-compatibility wrinkle on inputs: when an input has no
// scriptSig and is not yet signed, the encoding carries the value of the
// spent output after the sequence number so offline signers can compute fees
// and sighashes. Legacy serializations store the value as a plain u64; the
// extended format marks itself by a u64 at or above extendedValueThreshold
// whose low nibble is an extension version. Version 0xf carries a
// compact-size amount followed by a token-wrapped script blob. This
// threshold is a wire-compatibility hack with no forward-versioning
// guarantee beyond nibble 0xf and is preserved exactly; changing it would
// break existing signing devices.

package tx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Compact-size encoding thresholds (the standard 1/3/5/9-byte convention).
const (
	compactSizeTag16 = 0xfd
	compactSize32Min = 0x10000
	compactSize64Min = 0x100000000
)

// Extended input-value format constants. See the package comment above.
const (
	extendedValueThreshold uint64 = 0xfffffffffffffff0
	extendedVersionToken   byte   = 0x0f
	extendedMarkerToken    uint64 = 0xffffffffffffffff
)

// readCompactSize reads a Bitcoin-style variable-length integer.
func readCompactSize(r *bytes.Reader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	switch first {
	case 0xfd:
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xfe:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xff:
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return uint64(first), nil
	}
}

// WriteCompactSize writes a Bitcoin-style variable-length integer using
// the standard 1/3/5/9-byte convention.
func WriteCompactSize(buf *bytes.Buffer, v uint64) {
	switch {
	case v < compactSizeTag16:
		buf.WriteByte(byte(v))
	case v < compactSize32Min:
		buf.WriteByte(0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	case v < compactSize64Min:
		buf.WriteByte(0xfe)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xff)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}
}

// readByteSlice reads a compact-size length prefix followed by that many
// bytes. The length is sanity-checked against the remaining stream so a
// corrupt prefix cannot ask for an absurd allocation.
func readByteSlice(r *bytes.Reader, field string) ([]byte, error) {
	length, err := readCompactSize(r)
	if err != nil {
		return nil, &SerializationError{Field: field, Message: "reading length", Cause: err}
	}
	if length > uint64(r.Len()) {
		return nil, serializationErrorf(field, "length %d exceeds remaining %d bytes", length, r.Len())
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, &SerializationError{Field: field, Message: "truncated", Cause: err}
	}
	return b, nil
}

// decode parses raw wire bytes into inputs, outputs, version and locktime.
// Any structural error aborts the whole decode; no partial transaction is
// ever produced.
func decode(raw []byte) (version int32, locktime uint32, ins []*TxInput, outs []*TxOutput, err error) {
	r := bytes.NewReader(raw)

	if err = binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, 0, nil, nil, &SerializationError{Field: "version", Message: "truncated", Cause: err}
	}

	numIn, err := readCompactSize(r)
	if err != nil {
		return 0, 0, nil, nil, &SerializationError{Field: "input count", Message: "truncated", Cause: err}
	}
	ins = make([]*TxInput, 0, capHint(numIn))
	for i := uint64(0); i < numIn; i++ {
		in, err := readInput(r, int(i))
		if err != nil {
			return 0, 0, nil, nil, err
		}
		ins = append(ins, in)
	}

	numOut, err := readCompactSize(r)
	if err != nil {
		return 0, 0, nil, nil, &SerializationError{Field: "output count", Message: "truncated", Cause: err}
	}
	outs = make([]*TxOutput, 0, capHint(numOut))
	for i := uint64(0); i < numOut; i++ {
		out, err := readOutput(r, int(i))
		if err != nil {
			return 0, 0, nil, nil, err
		}
		outs = append(outs, out)
	}

	if err = binary.Read(r, binary.LittleEndian, &locktime); err != nil {
		return 0, 0, nil, nil, &SerializationError{Field: "locktime", Message: "truncated", Cause: err}
	}

	if r.Len() != 0 {
		return 0, 0, nil, nil, serializationErrorf("transaction", "%d trailing bytes after locktime", r.Len())
	}
	return version, locktime, ins, outs, nil
}

// capHint bounds a pre-allocation by what the stream could plausibly hold.
func capHint(n uint64) uint64 {
	const max = 1 << 16
	if n > max {
		return max
	}
	return n
}

// readInput reads one input, including the extended value branch used by
// offline-signing serializations.
func readInput(r *bytes.Reader, idx int) (*TxInput, error) {
	in := &TxInput{}
	field := func(what string) string { return fmt.Sprintf("input %d %s", idx, what) }

	if _, err := io.ReadFull(r, in.PrevoutHash[:]); err != nil {
		return nil, &SerializationError{Field: field("outpoint hash"), Message: "truncated", Cause: err}
	}
	if err := binary.Read(r, binary.LittleEndian, &in.PrevoutN); err != nil {
		return nil, &SerializationError{Field: field("outpoint index"), Message: "truncated", Cause: err}
	}

	scriptSig, err := readByteSlice(r, field("scriptSig"))
	if err != nil {
		return nil, err
	}
	// An empty scriptSig means pending, not "an empty script": the input
	// stays incomplete and re-encodes through the template builder.
	if len(scriptSig) > 0 {
		in.ScriptSig = scriptSig
	}

	if err := binary.Read(r, binary.LittleEndian, &in.Sequence); err != nil {
		return nil, &SerializationError{Field: field("sequence"), Message: "truncated", Cause: err}
	}

	ClassifyInput(in)

	// An absent scriptSig on a non-coinbase input means this serialization
	// was produced for offline signing and carries the spent value.
	if len(in.ScriptSig) == 0 && !in.IsCoinbase() {
		if err := readInputValue(r, in, field); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// readInputValue reads the legacy or extended value encoding of an
// incomplete input.
func readInputValue(r *bytes.Reader, in *TxInput, field func(string) string) error {
	var raw uint64
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return &SerializationError{Field: field("value"), Message: "truncated", Cause: err}
	}

	if raw < extendedValueThreshold {
		// Legacy format: the eight bytes are the value itself.
		in.Value = &raw
		return nil
	}

	version := byte(raw & 0x0f)
	if version != extendedVersionToken {
		return serializationErrorf(field("value"), "unknown extended-format version 0x%x", version)
	}

	amount, err := readCompactSize(r)
	if err != nil {
		return &SerializationError{Field: field("extended value"), Message: "truncated", Cause: err}
	}
	in.Value = &amount

	blob, err := readByteSlice(r, field("extended token blob"))
	if err != nil {
		return err
	}
	token, script, err := UnwrapTokenScript(blob)
	if err != nil {
		return err
	}
	in.TokenData = token
	if len(script) > 0 {
		// The blob may carry the spent output's locking script, which is
		// exactly the sighash scriptCode for inputs we cannot classify.
		in.ScriptCodeOverride = script
	}
	return nil
}

// readOutput reads one output and unwraps any token prefix.
func readOutput(r *bytes.Reader, idx int) (*TxOutput, error) {
	out := &TxOutput{}
	field := func(what string) string { return fmt.Sprintf("output %d %s", idx, what) }

	if err := binary.Read(r, binary.LittleEndian, &out.Value); err != nil {
		return nil, &SerializationError{Field: field("value"), Message: "truncated", Cause: err}
	}

	wrapped, err := readByteSlice(r, field("script"))
	if err != nil {
		return nil, err
	}
	token, script, err := UnwrapTokenScript(wrapped)
	if err != nil {
		return nil, err
	}
	out.TokenData = token
	out.ScriptPubKey = script
	ClassifyOutput(out)
	return out, nil
}

// encode serializes the transaction. With estimate set, missing signatures
// become zero-filled placeholders so the result has the length of the
// eventual fully-signed transaction.
func encode(version int32, locktime uint32, ins []*TxInput, outs []*TxOutput, estimate, useSchnorr bool) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, version); err != nil {
		return nil, err
	}

	WriteCompactSize(&buf, uint64(len(ins)))
	for i, in := range ins {
		if err := writeInput(&buf, in, estimate, useSchnorr); err != nil {
			return nil, fmt.Errorf("encoding input %d: %w", i, err)
		}
	}

	WriteCompactSize(&buf, uint64(len(outs)))
	for i, out := range outs {
		wire, err := out.WireBytes()
		if err != nil {
			return nil, fmt.Errorf("encoding output %d: %w", i, err)
		}
		buf.Write(wire)
	}

	if err := binary.Write(&buf, binary.LittleEndian, locktime); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInput(buf *bytes.Buffer, in *TxInput, estimate, useSchnorr bool) error {
	buf.Write(in.PrevoutHash[:])
	if err := binary.Write(buf, binary.LittleEndian, in.PrevoutN); err != nil {
		return err
	}

	// A known scriptSig is emitted verbatim, never re-derived, so that
	// already-signed transactions round-trip byte for byte even when they
	// contain non-minimal pushes.
	script := in.ScriptSig
	if script == nil {
		var err error
		script, err = BuildScriptSig(in, estimate, useSchnorr)
		if err != nil {
			return err
		}
	}
	WriteCompactSize(buf, uint64(len(script)))
	buf.Write(script)

	if err := binary.Write(buf, binary.LittleEndian, in.Sequence); err != nil {
		return err
	}

	if len(script) == 0 && !in.IsCoinbase() {
		return writeInputValue(buf, in)
	}
	return nil
}

// writeInputValue emits the value branch for an input whose scriptSig came
// out empty: the extended token format when token data is present, the
// legacy plain u64 otherwise. An unknown value serializes as zero; such a
// serialization exists only for size estimation and is not a supported
// decode round trip.
func writeInputValue(buf *bytes.Buffer, in *TxInput) error {
	var value uint64
	if in.Value != nil {
		value = *in.Value
	}

	if in.TokenData == nil {
		return binary.Write(buf, binary.LittleEndian, value)
	}

	if err := binary.Write(buf, binary.LittleEndian, extendedMarkerToken); err != nil {
		return err
	}
	WriteCompactSize(buf, value)
	blob, err := WrapTokenScript(in.TokenData, in.ScriptCodeOverride)
	if err != nil {
		return err
	}
	WriteCompactSize(buf, uint64(len(blob)))
	buf.Write(blob)
	return nil
}

// OutpointBytes returns the 36-byte serialized outpoint of the input as it
// appears on the wire and in sighash preimages.
func (in *TxInput) OutpointBytes() []byte {
	b := make([]byte, 36)
	copy(b, in.PrevoutHash[:])
	binary.LittleEndian.PutUint32(b[32:], in.PrevoutN)
	return b
}

// WireBytes returns the output exactly as serialized on the wire: the
// 8-byte value followed by the compact-size-prefixed token-wrapped script.
// This is also the per-output unit hashed into hashOutputs.
func (out *TxOutput) WireBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, out.Value); err != nil {
		return nil, err
	}
	wrapped, err := WrapTokenScript(out.TokenData, out.ScriptPubKey)
	if err != nil {
		return nil, err
	}
	WriteCompactSize(&buf, uint64(len(wrapped)))
	buf.Write(wrapped)
	return buf.Bytes(), nil
}
