package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caskdb/cask/cmd/util"
	"github.com/caskdb/cask/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for cask servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOpsPerTest       = 10000
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. upsert,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How large the value for the upsert-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("How many operations each benchmark performs"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfOpsPerTest = viper.GetInt("ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for cask servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Ops per test: %d\n", perfOpsPerTest)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]metrics.Timer)

	record := func(name string, timer metrics.Timer) {
		results[name] = timer
		printResult(name, timer)
	}

	record("upsert", runWorkload("upsert", nil, func(key string) error {
		_, err := rpcBucket.Upsert(key, []byte("test"), 0)
		return err
	}))

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	record("upsert-large", runWorkload("upsert-large", nil, func(key string) error {
		_, err := rpcBucket.Upsert(key, largeValue, 0)
		return err
	}))

	seed := func(key string) error {
		_, err := rpcBucket.Upsert(key, []byte("test"), 0)
		return err
	}

	record("get", runWorkload("get", seed, func(key string) error {
		_, _, err := rpcBucket.Get(key)
		return err
	}))

	record("exists", runWorkload("exists", seed, func(key string) error {
		_, err := rpcBucket.Exists(key)
		return err
	}))

	record("exists-not", runWorkload("exists-not", nil, func(key string) error {
		_, err := rpcBucket.Exists(key + "-missing")
		return err
	}))

	record("remove", runWorkload("remove", seed, func(key string) error {
		// recreate so every iteration has something to delete
		if _, err := rpcBucket.Upsert(key, []byte("test"), 0); err != nil {
			return err
		}
		_, err := rpcBucket.Remove(key, 0)
		return err
	}))

	mixedCounter := 0
	var mixedMu sync.Mutex
	record("mixed", runWorkload("mixed", seed, func(key string) error {
		mixedMu.Lock()
		op := mixedCounter % 4
		mixedCounter++
		mixedMu.Unlock()

		var err error
		switch op {
		case 0: // upsert
			_, err = rpcBucket.Upsert(key, []byte("test"), 0)
		case 1: // get
			_, _, err = rpcBucket.Get(key)
		case 2: // exists
			_, err = rpcBucket.Exists(key)
		case 3: // replace
			_, err = rpcBucket.Replace(key, []byte("test"), 0, 0)
		}
		return err
	}))

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// runWorkload runs fn perfOpsPerTest times spread over perfNumThreads
// goroutines and records every call in a timer. If setup is non-nil it is
// applied to each key before the measured phase; all test keys are removed
// afterwards.
func runWorkload(name string, setup func(key string) error, fn func(key string) error) metrics.Timer {
	timer := metrics.NewTimer()
	if shouldSkip(name) {
		return timer
	}

	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, name, i)
	}

	if setup != nil {
		for _, k := range keys {
			if err := setup(k); err != nil {
				log.Printf("(%s) - error preparing key: %v\n", name, err)
			}
		}
	}

	opsPerThread := perfOpsPerTest / perfNumThreads
	if opsPerThread < 1 {
		opsPerThread = 1
	}

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < opsPerThread; i++ {
				key := keys[(offset+i)%perfKeySpread]
				start := time.Now()
				err := fn(key)
				timer.UpdateSince(start)
				if err != nil {
					log.Printf("(%s) - operation error: %v\n", name, err)
				}
			}
		}(t * opsPerThread)
	}
	wg.Wait()

	// cleanup
	for _, k := range keys {
		_, _ = rpcBucket.Remove(k, 0)
	}

	return timer
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, timer metrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	mean := time.Duration(int64(timer.Mean()))
	p95 := time.Duration(int64(timer.Percentile(0.95)))
	p99 := time.Duration(int64(timer.Percentile(0.99)))

	fmt.Printf("%-20smean=%s\tp95=%s\tp99=%s\t%.0f ops/sec\n", test, mean, p95, p99, timer.RateMean())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]metrics.Timer, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "MeanNs", "P95Ns", "P99Ns", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Bucket", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		skipped := strconv.FormatBool(timer.Count() == 0)

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", timer.Percentile(0.95)),
			fmt.Sprintf("%.0f", timer.Percentile(0.99)),
			fmt.Sprintf("%.0f", timer.RateMean()),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			util.GetBucketName(),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
