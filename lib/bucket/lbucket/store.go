package lbucket

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/lib/bucket/durability"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultMaxValueSize  = 20_000_000             // admission ceiling for a stored value
	defaultMaxLockTime   = 30 * time.Second       // upper bound for a lock duration
	defaultLockTime      = 15 * time.Second       // lock duration when the caller passes zero
	defaultSweepInterval = 100 * time.Millisecond // interval between sweeper runs
)

// --------------------------------------------------------------------------
// Core Types
// --------------------------------------------------------------------------

// document is the per-key state held by the kernel. Lock state lives on the
// document itself, so lock transitions and data transitions are serialized
// by the same key slot and cannot race each other.
type document struct {
	value         []byte
	cas           uint64
	expiresAt     time.Time // zero = never expires
	lockExpiresAt time.Time // zero = not locked
}

// expired reports whether the document's TTL has passed.
func (d document) expired(now time.Time) bool {
	return !d.expiresAt.IsZero() && !now.Before(d.expiresAt)
}

// locked reports whether an unexpired lock is held.
func (d document) locked(now time.Time) bool {
	return !d.lockExpiresAt.IsZero() && now.Before(d.lockExpiresAt)
}

// Options configures the local bucket.
type Options struct {
	MaxValueSize  int           // admission ceiling in bytes (0 = default 20MB)
	MaxLockTime   time.Duration // longest permitted lock duration (0 = default 30s)
	SweepInterval time.Duration // eager expiry sweep interval (0 = default 100ms)
	JournalWriter io.Writer     // optional append-only commit journal target
	Clock         func() time.Time

	// CasSource overrides the internal CAS counter. A distributed bucket
	// injects a source derived from the raft log index so every replica
	// assigns the same token to the same mutation. The source must return
	// a distinct value per call site invocation of a single mutation.
	CasSource func() uint64
}

// DefaultOptions returns the default local bucket options.
func DefaultOptions() *Options {
	return &Options{
		MaxValueSize:  defaultMaxValueSize,
		MaxLockTime:   defaultMaxLockTime,
		SweepInterval: defaultSweepInterval,
	}
}

// storeImpl is the local, non-distributed IBucket implementation. One
// xsync map holds all documents; Compute on that map is the per-key slot
// that serializes concurrent mutators.
type storeImpl struct {
	data       *xsync.MapOf[string, document]
	casCounter atomic.Uint64
	casSource  func() uint64
	clock      func() time.Time

	maxValueSize int
	maxLockTime  time.Duration

	tracker *durability.Tracker
	journal *durability.Journal
	coord   *durability.Coordinator
	sweeper *sweeper
}

// NewLocalBucket creates a new local bucket instance with the specified
// options (optional). This implementation is not distributed and only works
// on a single node: durability can acknowledge persistTo=1 via the commit
// journal, replication requirements can never be met.
func NewLocalBucket(opts *Options) bucket.IBucket {
	if opts == nil {
		opts = DefaultOptions()
	}

	s := &storeImpl{
		data:         xsync.NewMapOf[string, document](),
		casSource:    opts.CasSource,
		clock:        opts.Clock,
		maxValueSize: opts.MaxValueSize,
		maxLockTime:  opts.MaxLockTime,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.maxValueSize <= 0 {
		s.maxValueSize = defaultMaxValueSize
	}
	if s.maxLockTime <= 0 {
		s.maxLockTime = defaultMaxLockTime
	}

	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	// CAS tokens are opaque and never reused. Seeding the counter with the
	// wall clock keeps tokens from repeating across process restarts.
	s.casCounter.Store(uint64(time.Now().UnixNano()))

	s.tracker = durability.NewTracker()
	s.journal = durability.NewJournal(s.tracker, opts.JournalWriter)
	s.coord = durability.NewCoordinator(s.tracker, durability.SingleNode)
	s.sweeper = newSweeper(s, sweepInterval)

	return s
}

// nextCas returns a fresh, never-before-used CAS token.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) nextCas() uint64 {
	if s.casSource != nil {
		return s.casSource()
	}
	return s.casCounter.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods - Reads (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (bucket.Document, bool, error) {
	var (
		result bucket.Document
		found  bool
	)
	now := s.clock()

	s.data.Compute(key, func(doc document, loaded bool) (document, bool) {
		// case the key doesn't exist
		if !loaded {
			return doc, true // delete=true so no empty entry is created
		}

		// case expired -> lazy eviction
		if doc.expired(now) {
			return doc, true
		}

		found = true
		result = s.snapshot(key, doc, now)
		return doc, false
	})

	return result, found, nil
}

func (s *storeImpl) Exists(key string) (bool, error) {
	var found bool
	now := s.clock()

	s.data.Compute(key, func(doc document, loaded bool) (document, bool) {
		if !loaded {
			return doc, true
		}
		if doc.expired(now) {
			return doc, true
		}
		found = true
		return doc, false
	})

	return found, nil
}

// snapshot copies a live document into its externally visible shape.
func (s *storeImpl) snapshot(key string, doc document, now time.Time) bucket.Document {
	out := bucket.Document{
		Key: key,
		Cas: doc.cas,
	}
	out.Value = make([]byte, len(doc.value))
	copy(out.Value, doc.value)
	if !doc.expiresAt.IsZero() {
		out.Expiry = doc.expiresAt.Sub(now)
	}
	return out
}

// --------------------------------------------------------------------------
// Interface Methods - Writes (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Insert(key string, value []byte, expiry time.Duration) (bucket.Document, error) {
	if err := s.admit(key, len(value)); err != nil {
		return bucket.Document{}, err
	}

	var result bucket.Document
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		// a locked but unexpired document still exists for insert purposes
		if exists {
			return doc, false, bucket.ErrAlreadyExists(key)
		}

		fresh := document{
			value: copyBytes(value),
			cas:   s.nextCas(),
		}
		if expiry > 0 {
			fresh.expiresAt = now.Add(expiry)
		}
		result = bucket.Document{Key: key, Cas: fresh.cas, Expiry: expiry}
		return fresh, false, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}

func (s *storeImpl) Upsert(key string, value []byte, expiry time.Duration) (bucket.Document, error) {
	if err := s.admit(key, len(value)); err != nil {
		return bucket.Document{}, err
	}

	var result bucket.Document
	err := s.mutate(key, func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error) {
		// An unconditional write does not carry the pre-lock CAS, so it
		// loses the race against an active lock.
		if exists && doc.locked(now) {
			return doc, false, bucket.ErrCasMismatch(key)
		}

		fresh := document{
			value: copyBytes(value),
			cas:   s.nextCas(),
		}
		if expiry > 0 {
			fresh.expiresAt = now.Add(expiry)
		}
		result = bucket.Document{Key: key, Cas: fresh.cas, Expiry: expiry}
		return fresh, false, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}

func (s *storeImpl) Replace(key string, value []byte, expiry time.Duration, cas uint64) (bucket.Document, error) {
	if err := s.admit(key, len(value)); err != nil {
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
		// Carrying the pre-lock CAS is the valid unlocking write; without a
		// CAS the write must wait for the lock.
		if doc.locked(now) && cas == 0 {
			return doc, false, bucket.ErrLocked(key)
		}

		fresh := document{
			value: copyBytes(value),
			cas:   s.nextCas(),
		}
		if expiry > 0 {
			fresh.expiresAt = now.Add(expiry)
		}
		result = bucket.Document{Key: key, Cas: fresh.cas, Expiry: expiry}
		return fresh, false, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}

func (s *storeImpl) Remove(key string, cas uint64) (bucket.Document, error) {
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

		// tombstone: metadata-only result with a fresh terminal CAS; the
		// returned document only carries that CAS into the commit journal,
		// the key itself becomes absent
		result = bucket.Document{Key: key, Cas: s.nextCas()}
		return document{cas: result.Cas}, true, nil
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Durability
// --------------------------------------------------------------------------

func (s *storeImpl) AwaitDurability(ctx context.Context, key string, cas uint64, persistTo, replicateTo int) error {
	return s.coord.Await(ctx, key, cas, persistTo, replicateTo)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (s *storeImpl) Close() error {
	s.sweeper.stop()
	s.journal.Close()
	s.tracker.Close()
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// admit is the admission guard: it rejects a value that would exceed on the
// size ceiling before the mutation engine is entered.
func (s *storeImpl) admit(key string, size int) *bucket.Error {
	if size > s.maxValueSize {
		return bucket.ErrTooBig(key, size, s.maxValueSize)
	}
	return nil
}

// mutate runs fn inside the key's slot and, iff fn commits, publishes the
// transition: the commit is journaled for durability tracking and any new
// TTL or lock deadline is scheduled with the sweeper.
//
// The stored state is normalized before fn runs: an expired document is
// presented as absent and a lapsed lock as released, so no transition ever
// observes logically-dead state. On error the prior state is kept.
func (s *storeImpl) mutate(key string, fn func(doc document, exists bool, now time.Time) (document, bool, *bucket.Error)) *bucket.Error {
	var (
		opErr     *bucket.Error
		committed document
		removed   bool
	)
	now := s.clock()

	s.data.Compute(key, func(old document, loaded bool) (document, bool) {
		exists := loaded
		if loaded && old.expired(now) {
			exists = false
			old = document{}
		}
		if exists && !old.lockExpiresAt.IsZero() && !old.locked(now) {
			old.lockExpiresAt = time.Time{}
		}

		next, remove, err := fn(old, exists, now)
		if err != nil {
			opErr = err
			// keep the normalized prior state; evict if it expired
			return old, !exists
		}

		committed = next
		removed = remove
		return next, remove
	})

	if opErr != nil {
		return opErr
	}

	// post-commit bookkeeping, outside the key slot
	if removed {
		s.sweeper.cancel(key)
	} else {
		s.sweeper.schedule(key, committed.expiresAt, committed.lockExpiresAt)
	}
	s.journal.Commit(key, committed.cas)

	return nil
}

// reap re-checks a key whose TTL or lock deadline came due. All decisions
// are made inside the key slot against the current state, so a deadline
// that was superseded in the meantime is a no-op. The returned time is the
// document's next remaining deadline (zero if none or the document is
// gone), letting the sweeper re-arm after e.g. a lock lapses on a document
// that still carries a TTL.
func (s *storeImpl) reap(key string) time.Time {
	var next time.Time
	now := s.clock()
	s.data.Compute(key, func(doc document, loaded bool) (document, bool) {
		if !loaded {
			return doc, true
		}
		if doc.expired(now) {
			return doc, true
		}
		if !doc.lockExpiresAt.IsZero() && !doc.locked(now) {
			doc.lockExpiresAt = time.Time{}
		}
		next = doc.expiresAt
		if !doc.lockExpiresAt.IsZero() && (next.IsZero() || doc.lockExpiresAt.Before(next)) {
			next = doc.lockExpiresAt
		}
		return doc, false
	})
	return next
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
