package lbucket

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

const (
	snapshotMagic   = "CASKSNAP"
	snapshotVersion = 1
)

// Save persists the bucket contents to the writer. Expired documents are
// skipped; live lock deadlines are carried over so a restored replica keeps
// honoring locks granted before the snapshot.
//
// Thread-safety: This function allows concurrent operations with all other
// functions except Load. It takes a fuzzy snapshot of the data without
// blocking modifications.
func (s *storeImpl) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Collect a snapshot of all live documents
	type entryToSave struct {
		key string
		doc document
	}

	var entries []entryToSave
	now := s.clock()

	s.data.Range(func(key string, doc document) bool {
		if doc.expired(now) {
			return true
		}

		// Create deep copy
		docCopy := document{
			value:         make([]byte, len(doc.value)),
			cas:           doc.cas,
			expiresAt:     doc.expiresAt,
			lockExpiresAt: doc.lockExpiresAt,
		}
		copy(docCopy.value, doc.value)

		entries = append(entries, entryToSave{key, docCopy})
		return true
	})

	// Write file header
	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Write documents
	for _, item := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.doc.cas); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, timeToNanos(item.doc.expiresAt)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, timeToNanos(item.doc.lockExpiresAt)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.doc.value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.doc.value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores the bucket contents from the reader.
//
// Thread-safety: This function is not thread-safe and must only be called
// on a fresh bucket before it serves requests.
func (s *storeImpl) Load(r io.Reader) error {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != snapshotMagic {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	var maxCas uint64
	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}

		var doc document
		var expiresAt, lockExpiresAt int64
		if err := binary.Read(br, binary.LittleEndian, &doc.cas); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &expiresAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &lockExpiresAt); err != nil {
			return err
		}
		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		doc.value = make([]byte, valueLen)
		if _, err := io.ReadFull(br, doc.value); err != nil {
			return err
		}

		doc.expiresAt = nanosToTime(expiresAt)
		doc.lockExpiresAt = nanosToTime(lockExpiresAt)

		key := string(keyBytes)
		s.data.Store(key, doc)
		s.sweeper.schedule(key, doc.expiresAt, doc.lockExpiresAt)
		if doc.cas > maxCas {
			maxCas = doc.cas
		}
	}

	// The internal counter must not re-issue a restored token
	if s.casSource == nil && maxCas > s.casCounter.Load() {
		s.casCounter.Store(maxCas)
	}

	return nil
}

// timeToNanos maps the zero time to 0 and everything else to unix nanos.
func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
