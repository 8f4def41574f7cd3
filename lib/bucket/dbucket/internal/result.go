package internal

import (
	"encoding/binary"
	"fmt"
)

// RetCSuccess is the sm.Result.Value for a successful command. Any other
// value is 1 + the bucket.ErrorKind of the failure, with the message in
// sm.Result.Data.
const RetCSuccess uint64 = 0

// resultHeaderSize is the fixed-size prefix of a serialized result:
// Cas + Aux + flags.
const resultHeaderSize = 8 + 8 + 1

// Result is the payload a successful command carries back through
// sm.Result.Data. Cas is the token of the committed mutation; Aux holds the
// counter value for counter commands and the remaining TTL (in nanoseconds)
// for GetAndLock; Value is only set for commands that return document
// content.
type Result struct {
	Cas      uint64
	Aux      uint64
	HasValue bool
	Value    []byte
}

// Serialize encodes the result into a byte array with the format:
// 8 bytes for cas,
// 8 bytes for aux,
// 1 byte for flags,
// N bytes for value data (only if HasValue is set)
func (r *Result) Serialize() []byte {
	size := resultHeaderSize
	if r.HasValue {
		size += len(r.Value)
	}
	result := make([]byte, size)

	binary.BigEndian.PutUint64(result[0:8], r.Cas)
	binary.BigEndian.PutUint64(result[8:16], r.Aux)
	if r.HasValue {
		result[16] = 1
		copy(result[resultHeaderSize:], r.Value)
	}

	return result
}

// Deserialize extracts all Result fields from a byte array.
func (r *Result) Deserialize(data []byte) error {
	if len(data) < resultHeaderSize {
		return fmt.Errorf("data too short for result")
	}

	r.Cas = binary.BigEndian.Uint64(data[0:8])
	r.Aux = binary.BigEndian.Uint64(data[8:16])
	r.HasValue = data[16] == 1
	if r.HasValue {
		r.Value = make([]byte, len(data)-resultHeaderSize)
		copy(r.Value, data[resultHeaderSize:])
	} else {
		r.Value = nil
	}

	return nil
}
