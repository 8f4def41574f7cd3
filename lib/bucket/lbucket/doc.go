// Package lbucket provides the local, single-node implementation of
// bucket.IBucket: an in-memory document store with per-key serialization of
// concurrent mutators.
//
// Architecture:
//
//   - The document map is a single xsync.MapOf. Its Compute method is the
//     per-key slot: at most one state transition runs for a key at any
//     time, operations on different keys proceed fully in parallel, and no
//     global lock exists anywhere in the store.
//
//   - Lock state is part of the document, covered by the same slot as data
//     mutations. Expired documents and lapsed locks are normalized away
//     before any transition function sees the state, so logically-dead
//     state is unobservable regardless of sweeper timing.
//
//   - A sweeper goroutine eagerly retires lapsed TTLs and locks. Writers
//     hand it deadline changes over a lock-free queue; it keeps a
//     deadline-ordered heap and re-validates every candidate inside the
//     key slot before acting.
//
//   - Durability acknowledgment is decoupled from mutation: commits are
//     journaled by a background worker which acknowledges local
//     persistence to the durability tracker, and AwaitDurability polls the
//     tracker without ever holding a key slot.
package lbucket
