package lbucket

import (
	"testing"

	"github.com/caskdb/cask/lib/bucket"
	buckettesting "github.com/caskdb/cask/lib/bucket/testing"
)

func Test(t *testing.T) {
	buckettesting.RunBucketTests(t, "LocalBucket", func() bucket.IBucket {
		return NewLocalBucket(nil)
	})
}

func Benchmark(t *testing.B) {
	buckettesting.RunBucketBenchmarks(t, "LocalBucket", func() bucket.IBucket {
		return NewLocalBucket(nil)
	})
}
