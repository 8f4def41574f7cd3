package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/caskdb/cask/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey        uint16 = 1 << 0
	hasValue      uint16 = 1 << 1
	hasCas        uint16 = 1 << 2
	hasExpiry     uint16 = 1 << 3
	hasLockFor    uint16 = 1 << 4
	hasDelta      uint16 = 1 << 5
	hasNum        uint16 = 1 << 6
	hasDurability uint16 = 1 << 7 // PersistTo and ReplicateTo travel together
	hasOk         uint16 = 1 << 8
	hasErr        uint16 = 1 << 9 // Err string and ErrKind travel together
	hasMeta       uint16 = 1 << 10
)

// header = 1 byte MsgType + 2 bytes flags
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags word
	var flags uint16 = 0

	// Set position for writing
	pos := headerSize // Start after MsgType and flags

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		keyBytes := []byte(msg.Key)
		keyLen := len(keyBytes)

		// Write key length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(keyLen))
		pos += 4

		// Write key data
		copy(result[pos:pos+keyLen], keyBytes)
		pos += keyLen
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		valueLen := len(msg.Value)

		// Write value length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(valueLen))
		pos += 4

		// Write value data
		if valueLen > 0 {
			copy(result[pos:pos+valueLen], msg.Value)
			pos += valueLen
		}
	}

	// Handle Cas
	if msg.Cas > 0 {
		flags |= hasCas
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Cas)
		pos += 8
	}

	// Handle Expiry (signed, two's complement)
	if msg.Expiry != 0 {
		flags |= hasExpiry
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Expiry))
		pos += 8
	}

	// Handle LockFor (signed, two's complement)
	if msg.LockFor != 0 {
		flags |= hasLockFor
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.LockFor))
		pos += 8
	}

	// Handle Delta (signed, two's complement)
	if msg.Delta != 0 {
		flags |= hasDelta
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Delta))
		pos += 8
	}

	// Handle Num
	if msg.Num > 0 {
		flags |= hasNum
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Num)
		pos += 8
	}

	// Handle PersistTo / ReplicateTo
	if msg.PersistTo > 0 || msg.ReplicateTo > 0 {
		flags |= hasDurability
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(msg.PersistTo))
		pos += 4
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(msg.ReplicateTo))
		pos += 4
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos += 1
	}

	// Handle Err (message string followed by the error kind)
	if msg.Err != "" {
		flags |= hasErr
		errBytes := []byte(msg.Err)
		errLen := len(errBytes)

		// Write error length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(errLen))
		pos += 4

		// Write error data
		copy(result[pos:pos+errLen], errBytes)
		pos += errLen

		// Write error kind
		result[pos] = msg.ErrKind
		pos += 1
	}

	// Handle Meta
	if msg.Meta != nil {
		flags |= hasMeta
		metaLen := len(msg.Meta)

		// Write meta length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(metaLen))
		pos += 4

		// Write meta data
		if metaLen > 0 {
			copy(result[pos:pos+metaLen], msg.Meta)
			pos += metaLen
		}
	}

	// Set flags word after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := binary.BigEndian.Uint16(data[1:3])

	// Initialize read position
	pos := headerSize

	// Read Key if present
	if flags&hasKey != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for key length")
		}

		// Read key length
		keyLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(keyLen) > len(data) {
			return fmt.Errorf("data too short for key data")
		}

		// Read key data
		msg.Key = string(data[pos : pos+int(keyLen)])
		pos += int(keyLen)
	} else {
		msg.Key = ""
	}

	// Read Value if present
	if flags&hasValue != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for value length")
		}

		// Read value length
		valueLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(valueLen) > len(data) {
			return fmt.Errorf("data too short for value data")
		}

		// Read value data - create an empty slice (not nil) if length is 0
		// Allocate only if needed
		if msg.Value == nil || cap(msg.Value) < int(valueLen) {
			msg.Value = make([]byte, valueLen)
		} else {
			msg.Value = msg.Value[:valueLen]
		}

		if valueLen > 0 {
			copy(msg.Value, data[pos:pos+int(valueLen)])
		}
		pos += int(valueLen)
	} else {
		msg.Value = nil
	}

	// Read Cas if present
	if flags&hasCas != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for Cas")
		}

		msg.Cas = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.Cas = 0
	}

	// Read Expiry if present
	if flags&hasExpiry != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for Expiry")
		}

		msg.Expiry = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	} else {
		msg.Expiry = 0
	}

	// Read LockFor if present
	if flags&hasLockFor != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for LockFor")
		}

		msg.LockFor = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	} else {
		msg.LockFor = 0
	}

	// Read Delta if present
	if flags&hasDelta != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for Delta")
		}

		msg.Delta = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	} else {
		msg.Delta = 0
	}

	// Read Num if present
	if flags&hasNum != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for Num")
		}

		msg.Num = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.Num = 0
	}

	// Read PersistTo / ReplicateTo if present
	if flags&hasDurability != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for durability requirement")
		}

		msg.PersistTo = int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		msg.ReplicateTo = int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
	} else {
		msg.PersistTo = 0
		msg.ReplicateTo = 0
	}

	// Read Ok if present
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for Ok flag")
		}

		msg.Ok = data[pos] != 0
		pos += 1
	} else {
		msg.Ok = false
	}

	// Read Err if present
	if flags&hasErr != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for error length")
		}

		// Read error length
		errLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(errLen)+1 > len(data) {
			return fmt.Errorf("data too short for error data")
		}

		// Read error data
		msg.Err = string(data[pos : pos+int(errLen)])
		pos += int(errLen)

		// Read error kind
		msg.ErrKind = data[pos]
		pos += 1
	} else {
		msg.Err = ""
		msg.ErrKind = 0
	}

	// Read Meta if present
	if flags&hasMeta != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for meta length")
		}

		// Read meta length
		metaLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(metaLen) > len(data) {
			return fmt.Errorf("data too short for meta data")
		}

		// Read metadata - create an empty slice (not nil) if length is 0
		// Allocate only if needed
		if msg.Meta == nil || cap(msg.Meta) < int(metaLen) {
			msg.Meta = make([]byte, metaLen)
		} else {
			msg.Meta = msg.Meta[:metaLen]
		}

		if metaLen > 0 {
			copy(msg.Meta, data[pos:pos+int(metaLen)])
		}
		pos += int(metaLen)
	} else {
		msg.Meta = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 2 bytes for flags
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Key != "" {
		size += 4 + len(msg.Key) // 4 bytes for length + key string
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value) // 4 bytes for length + value bytes
	}
	if msg.Cas > 0 {
		size += 8 // uint64
	}
	if msg.Expiry != 0 {
		size += 8 // int64
	}
	if msg.LockFor != 0 {
		size += 8 // int64
	}
	if msg.Delta != 0 {
		size += 8 // int64
	}
	if msg.Num > 0 {
		size += 8 // uint64
	}
	if msg.PersistTo > 0 || msg.ReplicateTo > 0 {
		size += 8 // two uint32
	}
	if msg.Ok {
		size += 1 // 1 byte for boolean
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) + 1 // 4 bytes for length + error string + 1 byte kind
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta) // 4 bytes for length + meta bytes
	}

	return size
}
