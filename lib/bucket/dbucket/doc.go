// Package dbucket implements a distributed, fault-tolerant document bucket
// using the Dragonboat RAFT consensus library. It provides a strongly
// consistent implementation of the bucket.IBucket interface that can
// operate across multiple nodes while maintaining linearizable consistency.
//
// Architecture:
//
// The dbucket implementation consists of three main components:
//
//   - Bucket Client: Implements the bucket.IBucket interface and
//     communicates with the RAFT cluster. It serializes operations into
//     commands, sends them to the consensus layer, and processes responses.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine implementation
//     that processes commands and queries on each node. The state machine
//     embeds a local bucket kernel (lbucket) and applies operations to it.
//
//   - Communication Protocol: Defined in the internal package, this
//     consists of Command, Result and Query structures with serialization
//     logic for transmitting operations across the network.
//
// Determinism:
//
//	A replicated state machine must produce identical state from an
//	identical command sequence. The bucket kernel has two inputs that are
//	naturally non-deterministic, and both are pinned per command:
//
//	- Time: every command carries the proposer's wall clock timestamp.
//	  Replicas evaluate TTLs and lock deadlines against that timestamp, so
//	  a slow follower reaches the same expiry decisions as the leader. The
//	  clock only moves forward, so delayed proposals cannot rewind time.
//
//	- CAS tokens: the kernel's CAS source is the RAFT log index of the
//	  command being applied. Each mutation rotates the token at most once,
//	  so the log index is unique per token and every replica assigns the
//	  same token to the same mutation.
//
// Write Operations:
//
//	All mutations (Insert, Upsert, Replace, Remove, the counter and
//	concatenation operations, Touch, GetAndLock, Unlock) follow this flow:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. The leader node replicates the command to a majority of followers
//	4. Once committed, the command is executed on the state machine on each
//	   node (Update method in statemachine.go)
//	5. The committed CAS (and operation payload) is returned to the client
//
//	Note that GetAndLock and GetAndTouch are writes in this model: they
//	mutate lock or expiry state and must be ordered through the log.
//
// Read Operations:
//
//	Read operations (Get, Exists) use SyncRead, which ensures that the node
//	processing the read has applied all committed log entries locally
//	before processing the request. This guarantees the operation sees the
//	latest committed state of the bucket, regardless of which node in the
//	cluster processes the read.
//
// Durability Acknowledgment:
//
//	AwaitDurability derives its answer from the consensus protocol itself:
//	a CAS token only reaches a caller after its entry was committed, i.e.
//	accepted by a majority. Requirements up to the majority quorum are
//	therefore acknowledged immediately; requirements beyond the topology's
//	capacity fail fast; requirements within the topology but beyond the
//	quorum cannot be confirmed without per-node acknowledgment transport
//	and report a durability timeout at the caller's deadline.
//
// Error Handling and Retries:
//
//	The bucket implements automatic retry logic for transient failures:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is
//	  retried after a short delay, up to a configurable number of attempts.
//
//	- Timeouts: All operations have a configurable timeout. If consensus
//	  cannot be reached within this period, the operation fails.
//
//	- Operation failures (CAS mismatch, lock contention, absent documents)
//	  travel through the sm.Result value as shifted bucket error kinds and
//	  are reconstructed as *bucket.Error on the client side.
//
// Snapshotting and Recovery:
//
//	The state machine creates fuzzy snapshots of the kernel without pausing
//	operations and restores them on recovery. After restoring a snapshot, a
//	node replays the log entries committed after the snapshot was taken,
//	reaching the same state as every other node. Live lock deadlines and
//	TTLs survive the snapshot, so a restored replica keeps honoring locks
//	granted before it went down.
//
// Usage:
//
//	Example:
//
//	  // Create NodeHost (RAFT client)
//	  nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	  if err != nil { ... }
//
//	  // Create and start shard (RAFT server)
//	  err = nh.StartConcurrentReplica(
//	      clusterMembers,
//	      false,
//	      dbucket.CreateStateMachineFactory(nil),
//	      shardConfig)
//	  if err != nil { ... }
//
//	  // Create the bucket client with the shard's topology
//	  topo := durability.Topology{Nodes: 3, Replicas: 2}
//	  bkt := dbucket.NewDistributedBucket(nh, shardID, 5*time.Second, topo)
//
//	  // Wait for shard readiness then begin operations
//	  // ...
//
// Deployment Recommendations:
//
//   - Node Count: Deploy with an odd number of nodes (typically 3, 5, or 7)
//     to ensure majority consensus is always possible.
//
//   - Network Quality: Ensure low-latency connections between nodes;
//     operation latency is dominated by consensus round trips.
//
// Limitations:
//
//   - Majority Requirement: Operations cannot proceed if a majority of
//     nodes are unavailable
//   - Leader Dependency: Write operations require the leader to be available
//   - Consistency vs. Performance: The strong consistency model introduces
//     performance overhead
//
// For scenarios where distributed consensus is not required, consider using
// the simpler and faster lbucket package, which provides a single-node
// implementation of the same interface.
package dbucket
