package lbucket

import (
	"time"

	"github.com/caskdb/cask/lib/bucket/util"
)

// --------------------------------------------------------------------------
// Expiry Sweeper
// --------------------------------------------------------------------------

// event tells the sweeper that a key's next deadline changed. at is the
// earlier of the document's TTL and its lock deadline; a zero at cancels
// the schedule.
type event struct {
	key string
	at  time.Time
}

// sweeper eagerly retires lapsed TTLs and locks so that idle documents do
// not linger until the next access. Correctness never depends on it - every
// transition re-checks expiry lazily inside the key slot - the sweeper only
// bounds how long dead state survives.
//
// Writers publish deadline changes through a lock-free MPSC queue; a single
// goroutine folds them into a deadline heap and reaps due keys on a fixed
// interval. Reaping goes back through the key slot and re-checks the
// current state there, so a stale heap entry is harmless.
type sweeper struct {
	store    *storeImpl
	events   *util.MPSC[event]
	interval time.Duration
	done     chan struct{}
}

func newSweeper(store *storeImpl, interval time.Duration) *sweeper {
	sw := &sweeper{
		store:    store,
		events:   util.NewMPSC[event](),
		interval: interval,
		done:     make(chan struct{}),
	}

	go sw.run()

	return sw
}

// schedule registers the key's next deadline with the sweeper. Documents
// with neither a TTL nor a lock are not tracked.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sw *sweeper) schedule(key string, expiresAt, lockExpiresAt time.Time) {
	at := expiresAt
	if !lockExpiresAt.IsZero() && (at.IsZero() || lockExpiresAt.Before(at)) {
		at = lockExpiresAt
	}
	sw.events.Push(&event{key: key, at: at})
}

// cancel drops the key from the sweeper's schedule.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sw *sweeper) cancel(key string) {
	sw.events.Push(&event{key: key})
}

// stop shuts the sweeper down. Pending events are discarded; lazy expiry
// still covers any state they would have reaped.
func (sw *sweeper) stop() {
	sw.events.Close()
	<-sw.done
}

// run is the sweeper loop: drain deadline events into the heap, then reap
// everything that has come due.
func (sw *sweeper) run() {
	defer close(sw.done)

	heap := util.NewDeadlineHeap()
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sw.events.Recv():
			if !ok {
				return
			}
			if ev.at.IsZero() {
				heap.Cancel(ev.key)
			} else {
				heap.Schedule(ev.key, ev.at)
			}

		case <-ticker.C:
			now := sw.store.clock()
			for {
				key, due := heap.PopDue(now)
				if !due {
					break
				}
				if next := sw.store.reap(key); !next.IsZero() {
					heap.Schedule(key, next)
				}
			}
		}
	}
}
