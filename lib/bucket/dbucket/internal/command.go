package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible mutations for the state machine.
type CommandType uint8

const (
	CommandTInsert      CommandType = iota // Create a document, fail if present.
	CommandTUpsert                         // Create or overwrite a document.
	CommandTReplace                        // Overwrite an existing document, optionally CAS-qualified.
	CommandTRemove                         // Delete a document, optionally CAS-qualified.
	CommandTCounter                        // Apply a delta to an existing counter.
	CommandTCounterInit                    // Apply a delta, creating the counter with an initial value.
	CommandTAppend                         // Concatenate after the stored value.
	CommandTPrepend                        // Concatenate before the stored value.
	CommandTTouch                          // Reset a document's expiry.
	CommandTGetAndTouch                    // Reset the expiry and return the document.
	CommandTGetAndLock                     // Lock a document and return it.
	CommandTUnlock                         // Release a lock.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTInsert:
		return "Insert"
	case CommandTUpsert:
		return "Upsert"
	case CommandTReplace:
		return "Replace"
	case CommandTRemove:
		return "Remove"
	case CommandTCounter:
		return "Counter"
	case CommandTCounterInit:
		return "CounterInit"
	case CommandTAppend:
		return "Append"
	case CommandTPrepend:
		return "Prepend"
	case CommandTTouch:
		return "Touch"
	case CommandTGetAndTouch:
		return "GetAndTouch"
	case CommandTGetAndLock:
		return "GetAndLock"
	case CommandTUnlock:
		return "Unlock"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(ct))
	}
}

// commandHeaderSize is the fixed-size prefix of a serialized command:
// Type + Timestamp + Cas + Expiry + LockFor + Delta + Initial + KeyLen.
const commandHeaderSize = 1 + 8 + 8 + 8 + 8 + 8 + 8 + 4

// Command represents a mutation to be executed by the state machine (a
// single entry in the raft log). Timestamp carries the proposer's wall
// clock so every replica evaluates TTLs and lock deadlines against the
// same instant.
type Command struct {
	Type      CommandType
	Timestamp int64  // proposer wall clock, unix nanoseconds
	Cas       uint64 // CAS qualifier (0 = unconditional)
	Expiry    int64  // requested TTL in nanoseconds (0 = none)
	LockFor   int64  // requested lock duration in nanoseconds
	Delta     int64  // counter delta
	Initial   uint64 // counter initial value
	Key       string
	Value     []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this
// command.
func (command *Command) SizeBytes() int {
	return commandHeaderSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for timestamp,
// 8 bytes for cas,
// 8 bytes for expiry,
// 8 bytes for lockFor,
// 8 bytes for delta,
// 8 bytes for initial,
// 4 bytes for key length (big endian),
// N bytes for key data,
// M bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], uint64(command.Timestamp))
	binary.BigEndian.PutUint64(result[9:17], command.Cas)
	binary.BigEndian.PutUint64(result[17:25], uint64(command.Expiry))
	binary.BigEndian.PutUint64(result[25:33], uint64(command.LockFor))
	binary.BigEndian.PutUint64(result[33:41], uint64(command.Delta))
	binary.BigEndian.PutUint64(result[41:49], command.Initial)
	binary.BigEndian.PutUint32(result[49:53], uint32(len(command.Key)))

	copy(result[commandHeaderSize:], command.Key)
	if command.Value != nil {
		copy(result[commandHeaderSize+len(command.Key):], command.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Timestamp = int64(binary.BigEndian.Uint64(data[1:9]))
	command.Cas = binary.BigEndian.Uint64(data[9:17])
	command.Expiry = int64(binary.BigEndian.Uint64(data[17:25]))
	command.LockFor = int64(binary.BigEndian.Uint64(data[25:33]))
	command.Delta = int64(binary.BigEndian.Uint64(data[33:41]))
	command.Initial = binary.BigEndian.Uint64(data[41:49])

	keyLen := binary.BigEndian.Uint32(data[49:53])
	if len(data) < commandHeaderSize+int(keyLen) {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[commandHeaderSize : commandHeaderSize+keyLen])

	if len(data) > commandHeaderSize+int(keyLen) {
		valueLen := len(data) - (commandHeaderSize + int(keyLen))
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[commandHeaderSize+int(keyLen):])
	} else {
		command.Value = nil
	}

	return nil
}
