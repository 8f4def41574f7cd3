package lbucket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caskdb/cask/lib/bucket"
)

// --------------------------------------------------------------------------
// Interface Methods - Counters (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Counter(key string, delta int64) (bucket.CounterResult, error) {
	return s.counter(key, delta, 0, 0, false)
}

func (s *storeImpl) CounterWithInitial(key string, delta int64, initial uint64, expiry time.Duration) (bucket.CounterResult, error) {
	return s.counter(key, delta, initial, expiry, true)
}

// counter implements both counter entry points. With create=false an absent
// key is an error; with create=true an absent key is initialized to initial
// (the delta is NOT applied on creation).
func (s *storeImpl) counter(key string, delta int64, initial uint64, expiry time.Duration, create bool) (bucket.CounterResult, error) {
	var result bucket.CounterResult
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		if !exists {
			if !create {
				return doc, false, bucket.ErrNotExists(key)
			}

			fresh := document{
				value: []byte(strconv.FormatUint(initial, 10)),
				cas:   s.nextCas(),
			}
			if expiry > 0 {
				fresh.expiresAt = now.Add(expiry)
			}
			result = bucket.CounterResult{Key: key, Value: initial, Cas: fresh.cas}
			return fresh, false, nil
		}

		if doc.locked(now) {
			return doc, false, bucket.ErrLocked(key)
		}

		// counters are stored as ASCII decimal
		current, parseErr := strconv.ParseUint(string(doc.value), 10, 64)
		if parseErr != nil {
			return doc, false, bucket.NewError(bucket.KindInvalidValue,
				fmt.Sprintf("document %q does not hold a counter value", key))
		}

		next := applyDelta(current, delta)

		doc.value = []byte(strconv.FormatUint(next, 10))
		doc.cas = s.nextCas()
		result = bucket.CounterResult{Key: key, Value: next, Cas: doc.cas}
		return doc, false, nil
	})
	if err != nil {
		return bucket.CounterResult{}, err
	}
	return result, nil
}

// applyDelta adds delta to current. Decrements floor at zero, increments
// wrap per uint64 arithmetic.
func applyDelta(current uint64, delta int64) uint64 {
	if delta >= 0 {
		return current + uint64(delta)
	}
	dec := uint64(-delta)
	if dec >= current {
		return 0
	}
	return current - dec
}

// --------------------------------------------------------------------------
// Interface Methods - Append / Prepend (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Append(key string, payload []byte, cas uint64) (bucket.Document, error) {
	return s.concat(key, payload, cas, false)
}

func (s *storeImpl) Prepend(key string, payload []byte, cas uint64) (bucket.Document, error) {
	return s.concat(key, payload, cas, true)
}

// concat implements append and prepend. The admission guard is evaluated
// against the resulting concatenated size, so repeated appends cannot creep
// past the ceiling.
func (s *storeImpl) concat(key string, payload []byte, cas uint64, front bool) (bucket.Document, error) {
	if err := s.admit(key, len(payload)); err != nil {
		return bucket.Document{}, err
	}

	var result bucket.Document
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		if !exists {
			return doc, false, bucket.ErrNotExists(key)
		}
		if cas != 0 && cas != doc.cas {
			return doc, false, bucket.ErrCasMismatch(key)
		}
		if doc.locked(now) && cas == 0 {
			return doc, false, bucket.ErrLocked(key)
		}
		if resulting := len(doc.value) + len(payload); resulting > s.maxValueSize {
			return doc, false, bucket.ErrTooBig(key, resulting, s.maxValueSize)
		}

		combined := make([]byte, 0, len(doc.value)+len(payload))
		if front {
			combined = append(combined, payload...)
			combined = append(combined, doc.value...)
		} else {
			combined = append(combined, doc.value...)
			combined = append(combined, payload...)
		}

		doc.value = combined
		doc.cas = s.nextCas()
		// a concat carrying the pre-lock CAS is the unlocking write; the
		// lock must not survive it under a rotated token
		doc.lockExpiresAt = time.Time{}
		// metadata-only result, mirrors the remove tombstone shape
		result = bucket.Document{Key: key, Cas: doc.cas}
		return doc, false, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Touch (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Touch(key string, expiry time.Duration) (bool, error) {
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		if !exists {
			return doc, false, bucket.ErrNotExists(key)
		}
		// touch rotates the CAS, so letting it through would orphan the
		// owner's lock token
		if doc.locked(now) {
			return doc, false, bucket.ErrLocked(key)
		}

		if expiry > 0 {
			doc.expiresAt = now.Add(expiry)
		} else {
			doc.expiresAt = time.Time{}
		}
		doc.cas = s.nextCas()
		return doc, false, nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *storeImpl) GetAndTouch(key string, expiry time.Duration) (bucket.Document, error) {
	var result bucket.Document
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		if !exists {
			return doc, false, bucket.ErrNotExists(key)
		}
		if doc.locked(now) {
			return doc, false, bucket.ErrLocked(key)
		}

		if expiry > 0 {
			doc.expiresAt = now.Add(expiry)
		} else {
			doc.expiresAt = time.Time{}
		}
		// the read-touch combination hands back the value as-is: same
		// bytes, same CAS
		result = s.snapshot(key, doc, now)
		result.Expiry = expiry
		return doc, false, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}
