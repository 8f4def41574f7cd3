package bucket

import (
	"context"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Document Type
// --------------------------------------------------------------------------

// Document is the result of a bucket operation. Value may be nil for
// metadata-only results (remove, append, prepend). Cas is an opaque version
// token: it is unique per committed mutation and only equality comparison
// is meaningful.
type Document struct {
	Key    string
	Value  []byte
	Cas    uint64
	Expiry time.Duration // remaining TTL at read time, 0 = never expires
}

// CounterResult is the outcome of a counter mutation.
type CounterResult struct {
	Key   string
	Value uint64
	Cas   uint64
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IBucket is the generic interface for a single key-value document
// namespace. All mutating operations return the fresh Document metadata
// (at minimum the new CAS), read operations return the requested data.
// Every error is a *Error; see the errors file for the taxonomy.
//
// Implementations serialize concurrent mutators per key: at most one
// transition is in flight for a key at any time, operations on different
// keys proceed fully in parallel.
type IBucket interface {
	// Get returns the document for a key. The boolean return value
	// indicates whether a live (not expired) document was found.
	Get(key string) (doc Document, found bool, err error)
	// Exists reports whether a live document exists for the key.
	Exists(key string) (found bool, err error)

	// Insert creates a document. It fails with KindAlreadyExists if the key
	// is present, including a locked but not yet expired document.
	Insert(key string, value []byte, expiry time.Duration) (Document, error)
	// Upsert creates or unconditionally overwrites a document. An upsert
	// against an actively locked document fails with KindCasMismatch; the
	// lock-respecting path is Replace with the pre-lock CAS.
	Upsert(key string, value []byte, expiry time.Duration) (Document, error)
	// Replace overwrites an existing document. cas=0 means unconditional
	// (but still refused with KindLocked while a lock is active); a nonzero
	// cas must equal the stored token or the call fails with
	// KindCasMismatch. A cas equal to a locked document's pre-lock token is
	// the valid unlocking write.
	Replace(key string, value []byte, expiry time.Duration, cas uint64) (Document, error)
	// Remove deletes a document. The returned Document is a tombstone:
	// nil value, fresh terminal CAS.
	Remove(key string, cas uint64) (Document, error)

	// Counter adds delta to an existing numeric document. It fails with
	// KindNotExists if the key is absent. Decrements floor at zero.
	Counter(key string, delta int64) (CounterResult, error)
	// CounterWithInitial behaves like Counter but creates the document with
	// the initial value (and expiry) if the key is absent, returning initial.
	CounterWithInitial(key string, delta int64, initial uint64, expiry time.Duration) (CounterResult, error)

	// Append concatenates payload after the stored value. The result is
	// metadata-only (nil value, fresh CAS).
	Append(key string, payload []byte, cas uint64) (Document, error)
	// Prepend concatenates payload before the stored value.
	Prepend(key string, payload []byte, cas uint64) (Document, error)

	// Touch updates only the expiry of an existing document. It rotates the
	// CAS but returns just a success flag.
	Touch(key string, expiry time.Duration) (bool, error)
	// GetAndTouch returns the current document unchanged (same value, same
	// CAS) while resetting its expiry.
	GetAndTouch(key string, expiry time.Duration) (Document, error)

	// GetAndLock locks the document for lockFor (clamped to the
	// implementation maximum) and returns the value with the pre-lock CAS.
	// It fails with KindLocked if an unexpired lock is already held.
	GetAndLock(key string, lockFor time.Duration) (Document, error)
	// Unlock releases a lock. The cas must equal the token returned by
	// GetAndLock; a mismatch or an unlocked document fails with KindLocked.
	Unlock(key string, cas uint64) (bool, error)

	// AwaitDurability blocks until the mutation identified by (key, cas) is
	// persisted to disk on persistTo nodes and replicated in memory to
	// replicateTo replicas, or until ctx expires. Failure is reported as
	// KindDurabilityTimeout and never undoes the mutation itself.
	AwaitDurability(ctx context.Context, key string, cas uint64, persistTo, replicateTo int) error

	// Close releases background resources (sweeper, journal worker).
	Close() error
}

// ISnapshotter is implemented by buckets that can serialize their full
// state. Save may run concurrently with mutations (fuzzy snapshot); Load
// must only be called on a fresh, empty bucket.
type ISnapshotter interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}
