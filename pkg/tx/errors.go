// Package tx error types.
//
// Structural and wire errors abort the decode of the whole transaction: a
// malformed byte stream never yields a partial Transaction. Signing and
// verification errors are per-input and are reported by pkg/signer without
// aborting the overall signing pass.
package tx

import "fmt"

// SerializationError is returned when transaction bytes cannot be decoded
// or a transaction cannot be encoded.
//
// Common causes: truncated streams, malformed compact-size integers,
// trailing bytes after the locktime, an unknown extended-input version, or
// a malformed token bitfield.
type SerializationError struct {
	Field   string // what was being read or written (e.g. "input 2 scriptSig")
	Message string // human-readable description
	Cause   error  // underlying error (if any)
}

func (e *SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serialization error: %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("serialization error: %s: %s", e.Field, e.Message)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// serializationErrorf builds a SerializationError for the given field.
func serializationErrorf(field, format string, args ...interface{}) *SerializationError {
	return &SerializationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InputValueMissingError is returned when a sighash preimage or a fee
// computation needs the value of a spent output that was never supplied by
// the prevout lookup collaborator.
type InputValueMissingError struct {
	InputIndex int
}

func (e *InputValueMissingError) Error() string {
	return fmt.Sprintf("value of input %d is unknown; supply it via a prevout lookup", e.InputIndex)
}

// UnsupportedSighashTypeError is returned when a sighash preimage is
// requested for any type other than ALL|FORKID. The engine refuses rather
// than silently signing a different scope.
type UnsupportedSighashTypeError struct {
	Requested uint32
}

func (e *UnsupportedSighashTypeError) Error() string {
	return fmt.Sprintf("unsupported sighash type 0x%02x (only ALL|FORKID 0x%02x is supported)",
		e.Requested, SighashAllForkID)
}
