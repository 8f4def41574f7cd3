package durability

import (
	"context"
	"fmt"
	"time"

	"github.com/caskdb/cask/lib/bucket"
)

// --------------------------------------------------------------------------
// Coordinator
// --------------------------------------------------------------------------

const defaultPollInterval = 5 * time.Millisecond

// Observer exposes acknowledgment progress per (key, cas) pair. *Tracker is
// the canonical implementation; dbucket substitutes its raft-derived view.
type Observer interface {
	Status(key string, cas uint64) (persisted, replicated int)
}

// Topology describes how many nodes can ever acknowledge persistence and
// how many replicas can ever acknowledge replication. The coordinator uses
// it to fail a requirement that can never be met instead of burning the
// caller's whole deadline.
type Topology struct {
	Nodes    int // nodes that persist to disk, including the active one
	Replicas int // replicas holding the value in memory, excluding the active node
}

// SingleNode is the topology of a standalone bucket: one persisting node,
// no replicas.
var SingleNode = Topology{Nodes: 1, Replicas: 0}

// Coordinator waits for durability acknowledgments after a local mutation
// has committed. It deliberately knows nothing about the key-serialization
// inside the store: waiting here never holds a key slot, so replica latency
// cannot block other operations on the same key.
type Coordinator struct {
	observer Observer
	topo     Topology
	poll     time.Duration
}

// NewCoordinator creates a coordinator polling the given observer.
func NewCoordinator(observer Observer, topo Topology) *Coordinator {
	return &Coordinator{
		observer: observer,
		topo:     topo,
		poll:     defaultPollInterval,
	}
}

// Await blocks until persistTo nodes have persisted and replicateTo
// replicas hold the mutation (key, cas), or until ctx is done. The error on
// failure is always of kind KindDurabilityTimeout: the mutation itself has
// committed and stays committed.
func (c *Coordinator) Await(ctx context.Context, key string, cas uint64, persistTo, replicateTo int) error {
	if persistTo <= 0 && replicateTo <= 0 {
		return nil
	}

	// A requirement beyond the topology's capacity can never be satisfied.
	if persistTo > c.topo.Nodes || replicateTo > c.topo.Replicas {
		return bucket.NewError(bucket.KindDurabilityTimeout,
			fmt.Sprintf("durability requirement (persistTo=%d, replicateTo=%d) exceeds topology (%d nodes, %d replicas) for document %q",
				persistTo, replicateTo, c.topo.Nodes, c.topo.Replicas, key))
	}

	if c.satisfied(key, cas, persistTo, replicateTo) {
		return nil
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return bucket.ErrDurabilityTimeout(key, cas)
		case <-ticker.C:
			if c.satisfied(key, cas, persistTo, replicateTo) {
				return nil
			}
		}
	}
}

func (c *Coordinator) satisfied(key string, cas uint64, persistTo, replicateTo int) bool {
	persisted, replicated := c.observer.Status(key, cas)
	return persisted >= persistTo && replicated >= replicateTo
}
