// Package rpc provides the remote procedure call framework for the
// document store. It acts as the communication layer between clients and
// servers, routing requests to named buckets across network boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The RPC client implementation of bucket.IBucket, allowing
//     applications to interact with remote buckets transparently.
//
//   - server: RPC server components that host local and replicated buckets
//     and dispatch incoming requests to them.
package rpc
