// Package testing provides standardised tests and benchmarks for
// bucket implementations that satisfy the bucket.IBucket interface.
//
// The package contains:
//   - testing: A conformance suite covering the full interface contract,
//     including CAS semantics, expiry, pessimistic locking and counters
//   - benchmark: Performance tests for measuring throughput of common
//     bucket operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() bucket.IBucket {
//		return NewMyBucket()
//	}
//
//	// Running the standard test suite
//	testing.RunBucketTests(t, "MyBucket", factory)
//
//	// Running performance benchmarks
//	testing.RunBucketBenchmarks(b, "MyBucket", factory)
package testing
