package lbucket

import (
	"time"

	"github.com/caskdb/cask/lib/bucket"
)

// --------------------------------------------------------------------------
// Interface Methods - Locking (docu see bucket/interface.go)
// --------------------------------------------------------------------------

// Lock state is a field on the document, not a separate lock table. Lock
// transitions therefore run inside the same key slot as data transitions,
// which rules out the lock/write races a standalone lock manager would have
// to re-synchronize.

func (s *storeImpl) GetAndLock(key string, lockFor time.Duration) (bucket.Document, error) {
	if lockFor <= 0 {
		lockFor = defaultLockTime
	}
	if lockFor > s.maxLockTime {
		lockFor = s.maxLockTime
	}

	var result bucket.Document
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		if !exists {
			return doc, false, bucket.ErrNotExists(key)
		}
		if doc.locked(now) {
			return doc, false, bucket.ErrLocked(key)
		}

		doc.lockExpiresAt = now.Add(lockFor)
		// acquiring a lock does not rotate the CAS: the caller gets the
		// pre-lock token, which doubles as the unlock credential and as
		// the CAS for the owner's unlocking write
		result = s.snapshot(key, doc, now)
		return doc, false, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}

func (s *storeImpl) Unlock(key string, cas uint64) (bool, error) {
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		if !exists {
			return doc, false, bucket.ErrNotExists(key)
		}
		// unlocking an unlocked document and unlocking with the wrong
		// token are the same transient failure to the caller
		if !doc.locked(now) {
			return doc, false, bucket.ErrLocked(key)
		}
		if cas != doc.cas {
			return doc, false, bucket.ErrLocked(key)
		}

		doc.lockExpiresAt = time.Time{}
		return doc, false, nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
