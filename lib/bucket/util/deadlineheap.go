// Package util
//
// This file provides a deadline-ordered priority queue for the expiry
// sweeper.
//
// The implementation combines a binary min-heap (ordered by deadline) with
// a key-indexed map, giving both efficient "what fires next" access and
// direct per-key updates:
//
//   - O(log n) for Push/Pop/deadline updates
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// A key appears at most once: scheduling an already-scheduled key replaces
// its deadline. This matters for documents whose TTL is rewritten (touch,
// upsert with a new expiry) - the sweeper must fire at the latest schedule,
// not at every deadline the document ever had.
//
// Note: this implementation is not thread-safe. The sweeper owns it from a
// single goroutine; producers hand deadlines over through the MPSC queue.
package util

import (
	"container/heap"
	"time"
)

// deadlineItem is one scheduled key in the queue.
type deadlineItem struct {
	Key   string    // Document key
	At    time.Time // When the entry becomes due
	index int       // Index in the heap, maintained by the heap package
}

// DeadlineHeap is a deadline-ordered queue with key-based access.
type DeadlineHeap struct {
	items    []*deadlineItem
	itemsMap map[string]*deadlineItem
}

// NewDeadlineHeap creates an empty queue.
func NewDeadlineHeap() *DeadlineHeap {
	return &DeadlineHeap{
		items:    make([]*deadlineItem, 0),
		itemsMap: make(map[string]*deadlineItem),
	}
}

// Len returns the number of scheduled keys (part of heap.Interface).
func (dh *DeadlineHeap) Len() int { return len(dh.items) }

// Less orders by deadline, earliest first (part of heap.Interface).
func (dh *DeadlineHeap) Less(i, j int) bool {
	return dh.items[i].At.Before(dh.items[j].At)
}

// Swap exchanges items at positions i and j (part of heap.Interface).
func (dh *DeadlineHeap) Swap(i, j int) {
	dh.items[i], dh.items[j] = dh.items[j], dh.items[i]
	dh.items[i].index = i
	dh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface).
func (dh *DeadlineHeap) Push(x interface{}) {
	n := len(dh.items)
	item := x.(*deadlineItem)
	item.index = n
	dh.items = append(dh.items, item)
	dh.itemsMap[item.Key] = item
}

// Pop removes and returns the earliest item (part of heap.Interface).
func (dh *DeadlineHeap) Pop() interface{} {
	old := dh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	dh.items = old[:n-1]
	delete(dh.itemsMap, item.Key)
	return item
}

// Schedule adds a key with a deadline, or moves an existing key to the new
// deadline.
func (dh *DeadlineHeap) Schedule(key string, at time.Time) {
	if item, exists := dh.itemsMap[key]; exists {
		item.At = at
		heap.Fix(dh, item.index)
		return
	}

	heap.Push(dh, &deadlineItem{Key: key, At: at})
}

// Cancel removes a key from the queue. It returns the deadline the key was
// scheduled for and whether it was scheduled at all.
func (dh *DeadlineHeap) Cancel(key string) (time.Time, bool) {
	item, exists := dh.itemsMap[key]
	if !exists {
		return time.Time{}, false
	}

	heap.Remove(dh, item.index)
	return item.At, true
}

// PopDue removes and returns the earliest key if its deadline has passed.
func (dh *DeadlineHeap) PopDue(now time.Time) (string, bool) {
	if len(dh.items) == 0 || dh.items[0].At.After(now) {
		return "", false
	}
	item := heap.Pop(dh).(*deadlineItem)
	return item.Key, true
}

// Next returns the earliest scheduled deadline without removing it.
func (dh *DeadlineHeap) Next() (time.Time, bool) {
	if len(dh.items) == 0 {
		return time.Time{}, false
	}
	return dh.items[0].At, true
}

// Contains checks if a key is scheduled.
func (dh *DeadlineHeap) Contains(key string) bool {
	_, exists := dh.itemsMap[key]
	return exists
}
