package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

// frame header after the bucket name:
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
const frameHeaderSize = 12

// writeFrame writes a frame to the connection with the format:
// - 2 bytes: bucket name length (uint16, big endian)
// - N bytes: bucket name
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, bucket string, requestID uint64, data []byte) error {
	if len(bucket) > math.MaxUint16 {
		return fmt.Errorf("bucket name too long: %d bytes", len(bucket))
	}

	// Create the header (2 bytes name length + name + 8 bytes requestID + 4 bytes content length)
	header := make([]byte, 2+len(bucket)+frameHeaderSize)
	binary.BigEndian.PutUint16(header[:2], uint16(len(bucket)))
	copy(header[2:2+len(bucket)], bucket)
	binary.BigEndian.PutUint64(header[2+len(bucket):10+len(bucket)], requestID)
	binary.BigEndian.PutUint32(header[10+len(bucket):14+len(bucket)], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer
// If the buffer is too small, it will allocate a new temporary buffer for the data
func readFrame(conn net.Conn, buf []byte) (string, uint64, []byte, error) {
	// Check if buffer is large enough for the fixed header parts
	if buf == nil || len(buf) < frameHeaderSize {
		buf = make([]byte, frameHeaderSize)
	}

	// Read bucket name length
	if _, err := io.ReadFull(conn, buf[:2]); err != nil {
		return "", 0, nil, err
	}
	nameLen := binary.BigEndian.Uint16(buf[:2])

	// Read bucket name
	if len(buf) < int(nameLen) {
		buf = make([]byte, nameLen)
	}
	if _, err := io.ReadFull(conn, buf[:nameLen]); err != nil {
		return "", 0, nil, err
	}
	bucket := string(buf[:nameLen])

	// Read requestID and content length
	if _, err := io.ReadFull(conn, buf[:frameHeaderSize]); err != nil {
		return "", 0, nil, err
	}
	requestID := binary.BigEndian.Uint64(buf[:8])
	contentLength := binary.BigEndian.Uint32(buf[8:12])

	// If no data, return empty slice
	if contentLength == 0 {
		return bucket, requestID, []byte{}, nil
	}

	// Check if buffer is large enough for data
	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	// Read data
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return "", 0, nil, err
	}

	// Return data
	return bucket, requestID, buf[:contentLength], nil
}
