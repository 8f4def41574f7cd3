package util

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestMPSCBasicOperations tests basic push and consume functionality
func TestMPSCBasicOperations(t *testing.T) {
	q := NewMPSC[int]()
	defer q.Close()

	// Push 10 items
	for i := 0; i < 10; i++ {
		if !q.Push(&i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	// Consume 10 items
	for i := 0; i < 10; i++ {
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Errorf("Expected %d, got %v", i, *val)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	// Make sure queue is empty
	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", val)
	case <-time.After(10 * time.Millisecond):
		// Expected timeout, queue is empty
	}
}

// TestMPSCConcurrentProducers verifies the queue works correctly with
// multiple producers
func TestMPSCConcurrentProducers(t *testing.T) {
	q := NewMPSC[int]()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	// Use a map to track received items
	var mu sync.Mutex
	received := make(map[int]bool)

	// Start a consumer goroutine
	done := make(chan struct{})
	receivedCount := 0

	go func() {
		defer close(done)

		for receivedCount < totalItems {
			select {
			case val := <-q.Recv():
				if val == nil {
					t.Errorf("Received nil item")
					return
				}

				mu.Lock()
				if received[*val] {
					t.Errorf("Duplicate item received: %d", *val)
				}
				received[*val] = true
				receivedCount++
				mu.Unlock()
			case <-time.After(2 * time.Second):
				t.Errorf("Timeout waiting for items, received %d of %d", receivedCount, totalItems)
				return
			}
		}
	}()

	// Start producers
	var wg sync.WaitGroup
	wg.Add(numProducers)

	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()

			base := producerID * itemsPerProducer
			for i := 0; i < itemsPerProducer; i++ {
				val := base + i
				if !q.Push(&val) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
				}

				// Add some randomness to producer timing
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	// Wait for all producers to finish
	wg.Wait()

	// Wait for consumer to process all items
	select {
	case <-done:
		// Consumer finished
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}

	// All values must have arrived exactly once
	mu.Lock()
	defer mu.Unlock()
	if len(received) != totalItems {
		t.Errorf("Expected %d distinct items, got %d", totalItems, len(received))
	}
}

// TestMPSCClose verifies that pending items are still delivered after Close
// and that pushes are refused afterwards
func TestMPSCClose(t *testing.T) {
	q := NewMPSC[string]()

	pending := []string{"a", "b", "c"}
	for i := range pending {
		if !q.Push(&pending[i]) {
			t.Fatalf("Failed to push item %q", pending[i])
		}
	}

	q.Close()

	if !q.IsClosed() {
		t.Errorf("Expected queue to report closed")
	}

	value := "late"
	if q.Push(&value) {
		t.Errorf("Push after close must be refused")
	}

	// Items pushed before Close are still delivered, then the channel closes
	var got []string
	for val := range q.Recv() {
		got = append(got, *val)
	}
	if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", pending) {
		t.Errorf("Expected %v after close, got %v", pending, got)
	}
}

// TestMPSCNilPush verifies that nil values are refused
func TestMPSCNilPush(t *testing.T) {
	q := NewMPSC[int]()
	defer q.Close()

	if q.Push(nil) {
		t.Errorf("Expected nil push to be refused")
	}
}
