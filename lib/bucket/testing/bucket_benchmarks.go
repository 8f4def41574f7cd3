package testing

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/caskdb/cask/lib/bucket"
)

// RunBucketBenchmarks runs all benchmarks for a bucket implementation
func RunBucketBenchmarks(b *testing.B, name string, factory BucketFactory) {

	b.Run("Upsert", func(b *testing.B) {
		benchmarkUpsert(b, factory())
	})

	b.Run("UpsertExisting", func(b *testing.B) {
		benchmarkUpsertExisting(b, factory())
	})

	b.Run("UpsertLargeValue", func(b *testing.B) {
		benchmarkUpsertLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Exists(not)", func(b *testing.B) {
		benchmarkExistsNot(b, factory())
	})

	b.Run("Counter", func(b *testing.B) {
		benchmarkCounter(b, factory())
	})

	b.Run("Remove", func(b *testing.B) {
		benchmarkRemove(b, factory())
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkUpsert(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter)
			value := []byte(fmt.Sprintf("bench-value-%d", counter))
			bk.Upsert(key, value, 0)
			counter++
		}
	})
}

func benchmarkUpsertExisting(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	// Prepare data
	numKeys := b.N
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("bench-key-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		bk.Upsert(key, value, 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%numKeys)
			value := []byte(fmt.Sprintf("bench-value-%d", counter))
			bk.Upsert(key, value, 0)
			counter++
		}
	})
}

func benchmarkUpsertLargeValue(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	largeValue := make([]byte, 1*1024*1024) // 1MB

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter)
			bk.Upsert(key, largeValue, 0)
			counter++
		}
	})
}

func benchmarkGet(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	// Prepare data
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("bench-key-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		bk.Upsert(key, value, 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%numKeys)
			bk.Get(key)
			counter++
		}
	})
}

func benchmarkExistsNot(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	const key = "bench-key"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			bk.Exists(key)
		}
	})
}

func benchmarkCounter(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	bk.CounterWithInitial("bench-counter", 0, 0, 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			bk.Counter("bench-counter", 1)
		}
	})
}

func benchmarkRemove(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	// Prepare data
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		bk.Upsert(keys[i], value, 0)
	}

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys
			bk.Remove(keys[idx], 0)
		}
	})
}

func benchmarkMixedUsage(b *testing.B, bk bucket.IBucket) {
	b.Cleanup(func() {
		bk.Close()
	})

	// Number of pre-populated keys
	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	// Prepare initial data
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		bk.Upsert(keys[i], value, 0)
	}

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		localCounter := 0

		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys

			// For every 10th operation, use a completely new key
			var key string
			if localCounter%10 == 0 {
				key = fmt.Sprintf("bench-new-key-%d", localCounter)
			} else {
				key = keys[idx]
			}

			switch localCounter % 4 {
			case 0:
				bk.Get(key)
			case 1:
				value := []byte(fmt.Sprintf("bench-mixed-value-%d", localCounter))
				bk.Upsert(key, value, 0)
			case 2:
				bk.Remove(key, 0)
			case 3:
				bk.Exists(key)
			}

			localCounter++
		}
	})
}
