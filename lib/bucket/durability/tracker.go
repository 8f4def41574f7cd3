package durability

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Acknowledgment Tracker
// --------------------------------------------------------------------------

const (
	defaultRetention       = 5 * time.Minute
	defaultJanitorInterval = 30 * time.Second
)

// ackKey identifies one committed mutation.
type ackKey struct {
	key string
	cas uint64
}

// ackState is the acknowledgment progress for one mutation.
type ackState struct {
	persisted  int
	replicated int
	recordedAt time.Time
}

// Tracker collects durability acknowledgment signals per (key, cas) pair.
// Storage and replication report progress via Record; the coordinator polls
// it via Status. Entries are evicted after a retention window so the
// tracker's memory stays bounded regardless of write volume.
type Tracker struct {
	acks      *xsync.MapOf[ackKey, ackState]
	retention time.Duration
	clock     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker and starts its eviction janitor.
func NewTracker() *Tracker {
	t := &Tracker{
		acks:      xsync.NewMapOf[ackKey, ackState](),
		retention: defaultRetention,
		clock:     time.Now,
		stopCh:    make(chan struct{}),
	}

	go t.janitor()

	return t
}

// Record merges an acknowledgment for the mutation (key, cas). Counts only
// ever increase: a late or duplicate signal can never lower progress that
// was already observed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tracker) Record(key string, cas uint64, persisted, replicated int) {
	now := t.clock()
	t.acks.Compute(ackKey{key: key, cas: cas}, func(old ackState, loaded bool) (ackState, bool) {
		if !loaded {
			return ackState{persisted: persisted, replicated: replicated, recordedAt: now}, false
		}
		if persisted > old.persisted {
			old.persisted = persisted
		}
		if replicated > old.replicated {
			old.replicated = replicated
		}
		return old, false
	})
}

// Status returns the acknowledgment progress for the mutation (key, cas).
// A mutation the tracker has never heard of reports zero progress.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tracker) Status(key string, cas uint64) (persisted, replicated int) {
	state, ok := t.acks.Load(ackKey{key: key, cas: cas})
	if !ok {
		return 0, 0
	}
	return state.persisted, state.replicated
}

// Close stops the eviction janitor.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// janitor periodically evicts acknowledgment entries older than the
// retention window.
func (t *Tracker) janitor() {
	ticker := time.NewTicker(defaultJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			cutoff := t.clock().Add(-t.retention)
			t.acks.Range(func(k ackKey, state ackState) bool {
				if state.recordedAt.Before(cutoff) {
					t.acks.Delete(k)
				}
				return true
			})
		}
	}
}
