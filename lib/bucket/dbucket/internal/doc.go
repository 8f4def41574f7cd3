// Package internal provides the communication protocol structures and
// serialization logic for the dbucket package. It defines the wire format
// used to transmit operations between the bucket client and the distributed
// state machine.
//
// This package is intended for internal use by the dbucket implementation
// and should not be imported directly by external code.
//
// The package consists of three main components:
//
//   - Command System: Defines write operations (Insert, Upsert, Counter,
//     GetAndLock, etc.) that modify the state of the bucket. Commands are
//     serialized and proposed to the RAFT cluster, executed on the state
//     machine, and produce results that are returned to the client.
//
//   - Result System: Defines the compact payload a successful command
//     carries back to the client (the committed CAS token, counter values,
//     document content for the read-write combinations).
//
//   - Query System: Defines read operations (Get, Exists) that retrieve
//     data without modifying state. Queries are executed locally on the
//     state machine and therefore do not require serialization.
//
// Command Format:
//
//	Commands are serialized into a binary format with the following
//	structure:
//
//	- 1 byte:  Command type
//	- 8 bytes: Timestamp (proposer wall clock, unix nanoseconds)
//	- 8 bytes: CAS qualifier (0 = unconditional)
//	- 8 bytes: Expiry in nanoseconds (0 = none)
//	- 8 bytes: Lock duration in nanoseconds
//	- 8 bytes: Counter delta
//	- 8 bytes: Counter initial value
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data
//	- M bytes: Value data (optional)
//
//	The timestamp is the protocol's determinism anchor: every replica
//	applies the command against the proposer's clock, so TTL and lock
//	deadline decisions come out identical everywhere regardless of local
//	clock skew or apply latency.
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization. However, this is not
//	typically an issue as the RAFT protocol ensures sequential processing of
//	commands on the state machine.
package internal
