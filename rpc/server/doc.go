// Package server implements the RPC server for the document store system.
// It provides an adapter for handling RPC requests against bucket implementations,
// along with the core server implementation that manages hosted buckets and
// request routing.
//
// The package focuses on:
//   - Server-side RPC request handling for all bucket operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - Flexible bucket configuration with support for local and replicated buckets
//   - Dynamic creation of buckets based on the server configuration
//   - Per-bucket, per-operation request and error counters
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a
//     bucket.IBucket.
//
//   - NewBucketServerAdapter: Factory function creating an adapter that translates
//     RPC messages into bucket.IBucket method calls, including durability waits.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Buckets: []common.ServerBucket{
//	    {Name: "default", Type: common.BucketTypeLocal},
//	    {Name: "sessions", Type: common.BucketTypeLocal},
//	  },
//	  Endpoint: "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel: "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server supports two types of buckets, which can be mixed within a single server:
//
//   - BucketTypeLocal: An in-process bucket, suitable for single-node deployments
//     or development environments. When a journal directory is configured, every
//     committed mutation is additionally recorded in a per-bucket commit journal.
//
//   - BucketTypeRemote: A replicated bucket using Raft consensus, providing strong
//     consistency across multiple nodes. When using this type, RAFT configuration
//     (RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir, ReplicaID,
//     and ClusterMembers) must be properly configured and the bucket needs a
//     ShardID that is consistent across all cluster members.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	The Listen method is not thread-safe and should be called only once.
package server
