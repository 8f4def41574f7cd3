// Package durability implements the post-commit durability protocol: after
// a mutation has committed locally, callers may wait until the mutation is
// persisted on a quorum of nodes and replicated to a quorum of replicas.
//
// Key Components:
//
//   - Tracker: collects acknowledgment signals per (key, cas) pair from
//     whatever storage/replication machinery the bucket runs on, with
//     bounded retention.
//
//   - Coordinator: polls an Observer until the requested quorum is reached
//     or the caller's deadline expires. A requirement that exceeds the
//     topology's capacity fails immediately. The coordinator runs entirely
//     outside the store's per-key serialization point.
//
//   - Journal: the single-node persistence worker. It receives committed
//     mutations over a channel, optionally appends them to an append-only
//     log (synced when the writer supports it), and then acknowledges
//     persisted=1 to the tracker.
//
// The central design property is the decoupling of mutation and
// acknowledgment: a durability failure is reported as its own error kind
// and never rolls back the committed mutation.
package durability
