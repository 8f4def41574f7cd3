// Package bucket defines the operation set and error taxonomy of a cask
// key-value document namespace ("bucket"). It is the contract shared by the
// local in-memory implementation (lbucket), the raft-replicated
// implementation (dbucket) and the RPC client.
//
// The package focuses on:
//   - A unified interface (IBucket) covering optimistic (CAS) and
//     pessimistic (explicit lock) concurrency, atomic counters, byte-level
//     append/prepend, TTL lifecycle and durability acknowledgment
//   - A structured error system with typed failure kinds, so callers can
//     distinguish e.g. a CAS conflict from lock contention without string
//     matching
//   - Durable write helpers that compose a local mutation with a
//     post-commit durability wait
//
// Concurrency contract:
//
// Implementations guarantee at-most-one in-flight transition per key. A
// committed mutation always publishes a strictly fresh CAS token; a failed
// precondition leaves the document untouched. Durability waiting happens
// strictly after the local commit and outside the key's serialization
// point, so replica acknowledgment latency never blocks other operations
// on the same key.
//
// The durability failure mode deserves emphasis: an operation that returns
// a KindDurabilityTimeout error HAS mutated the store. The primary effect
// of the write and the strength of its durability guarantee are independent
// concerns with independent failure modes.
package bucket
