// Package client implements the RPC client for the document store.
// It provides an implementation of the bucket.IBucket interface that
// forwards all operations to a named bucket on a remote server.
//
// The package focuses on:
//   - Transparent RPC access to local and replicated buckets
//   - Integration with the transport and serialization layers
//   - Reconstruction of typed bucket errors from wire responses, so
//     remote callers can dispatch on error kinds exactly like local ones
//
// Key Components:
//
//   - NewRPCBucket: Factory function that creates a client implementing the
//     bucket.IBucket interface. All operations are forwarded to the server
//     bucket registered under the given name.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:5000"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	// Create a serializer
//	serializer := serializer.NewBinarySerializer()
//
//	// Create the bucket client
//	bkt, _ := client.NewRPCBucket("default", config, tcp.NewTCPClientTransport(), serializer)
//
//	// Use the bucket
//	doc, _ := bkt.Insert("mykey", []byte("myvalue"), 0)
//	doc, _ = bkt.Replace("mykey", []byte("newvalue"), 0, doc.Cas)
//
//	// Lock, mutate, unlock
//	locked, _ := bkt.GetAndLock("mykey", 15*time.Second)
//	bkt.Replace("mykey", []byte("final"), 0, locked.Cas)
//
// Error Handling:
//
//	Typed errors raised by the server-side bucket travel the wire as a
//	message plus an error kind and are rebuilt client-side as *bucket.Error.
//	Use bucket.IsKind to check for conditions such as bucket.KindCasMismatch
//	or bucket.KindLocked.
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing
//     ConnectionsPerEndpoint can improve throughput by allowing parallel
//     requests.
//
//   - For small messages, a single connection per endpoint is often more
//     efficient due to reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary
//     serializer provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently
//	from multiple goroutines without additional synchronization.
package client
