package util

import (
	"fmt"
	"testing"
	"time"
)

func TestDeadlineHeapBasicOperations(t *testing.T) {
	dh := NewDeadlineHeap()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if dh.Len() != 0 {
		t.Fatalf("Expected empty heap, got len %d", dh.Len())
	}
	if _, ok := dh.Next(); ok {
		t.Errorf("Expected no next deadline on an empty heap")
	}

	dh.Schedule("b", base.Add(2*time.Second))
	dh.Schedule("a", base.Add(1*time.Second))
	dh.Schedule("c", base.Add(3*time.Second))

	if dh.Len() != 3 {
		t.Fatalf("Expected 3 scheduled keys, got %d", dh.Len())
	}
	if !dh.Contains("a") || dh.Contains("x") {
		t.Errorf("Contains gave wrong answers")
	}

	next, ok := dh.Next()
	if !ok || !next.Equal(base.Add(1*time.Second)) {
		t.Errorf("Expected next deadline at +1s, got %v (ok=%t)", next, ok)
	}
}

func TestDeadlineHeapPopDueOrder(t *testing.T) {
	dh := NewDeadlineHeap()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Schedule out of order
	for i, key := range []string{"d", "b", "a", "c"} {
		offsets := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
		dh.Schedule(key, base.Add(time.Duration(offsets[key])*time.Second))
		_ = i
	}

	// Nothing is due before the first deadline
	if key, due := dh.PopDue(base); due {
		t.Fatalf("Expected nothing due at base, got %q", key)
	}

	// At +2s exactly the first two keys are due, in deadline order
	now := base.Add(2 * time.Second)
	for _, want := range []string{"a", "b"} {
		key, due := dh.PopDue(now)
		if !due || key != want {
			t.Fatalf("Expected %q due at +2s, got %q (due=%t)", want, key, due)
		}
	}
	if key, due := dh.PopDue(now); due {
		t.Fatalf("Expected nothing more due at +2s, got %q", key)
	}

	// The rest becomes due later
	now = base.Add(time.Minute)
	for _, want := range []string{"c", "d"} {
		key, due := dh.PopDue(now)
		if !due || key != want {
			t.Fatalf("Expected %q due, got %q (due=%t)", want, key, due)
		}
	}
	if dh.Len() != 0 {
		t.Errorf("Expected empty heap after draining, got len %d", dh.Len())
	}
}

func TestDeadlineHeapReschedule(t *testing.T) {
	dh := NewDeadlineHeap()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	dh.Schedule("key", base.Add(1*time.Second))
	dh.Schedule("other", base.Add(2*time.Second))

	// Rescheduling replaces the deadline, the key appears only once
	dh.Schedule("key", base.Add(10*time.Second))
	if dh.Len() != 2 {
		t.Fatalf("Expected 2 entries after reschedule, got %d", dh.Len())
	}

	// The old deadline must not fire
	if key, due := dh.PopDue(base.Add(1 * time.Second)); due {
		t.Fatalf("Expected nothing due at the superseded deadline, got %q", key)
	}

	key, due := dh.PopDue(base.Add(5 * time.Second))
	if !due || key != "other" {
		t.Fatalf("Expected %q first, got %q (due=%t)", "other", key, due)
	}
	key, due = dh.PopDue(base.Add(10 * time.Second))
	if !due || key != "key" {
		t.Fatalf("Expected rescheduled key at +10s, got %q (due=%t)", key, due)
	}

	// Rescheduling to an earlier deadline works too
	dh.Schedule("late", base.Add(time.Hour))
	dh.Schedule("late", base.Add(time.Second))
	if key, due := dh.PopDue(base.Add(time.Second)); !due || key != "late" {
		t.Errorf("Expected key moved forward to be due, got %q (due=%t)", key, due)
	}
}

func TestDeadlineHeapCancel(t *testing.T) {
	dh := NewDeadlineHeap()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	dh.Schedule("keep", base.Add(1*time.Second))
	dh.Schedule("drop", base.Add(2*time.Second))

	at, ok := dh.Cancel("drop")
	if !ok || !at.Equal(base.Add(2*time.Second)) {
		t.Fatalf("Expected cancel to return the scheduled deadline, got %v (ok=%t)", at, ok)
	}
	if dh.Contains("drop") {
		t.Errorf("Expected cancelled key to be gone")
	}

	if _, ok := dh.Cancel("never-there"); ok {
		t.Errorf("Expected cancel of an unknown key to report false")
	}

	// Only the kept key fires
	key, due := dh.PopDue(base.Add(time.Minute))
	if !due || key != "keep" {
		t.Fatalf("Expected %q, got %q (due=%t)", "keep", key, due)
	}
	if _, due := dh.PopDue(base.Add(time.Minute)); due {
		t.Errorf("Expected heap to be empty")
	}
}

func TestDeadlineHeapManyKeys(t *testing.T) {
	dh := NewDeadlineHeap()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	const numKeys = 1000

	// Schedule with descending deadlines so the heap has to reorder
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		dh.Schedule(key, base.Add(time.Duration(numKeys-i)*time.Millisecond))
	}
	if dh.Len() != numKeys {
		t.Fatalf("Expected %d entries, got %d", numKeys, dh.Len())
	}

	// Draining must come out in deadline order
	now := base.Add(time.Hour)
	var last time.Time
	for i := 0; i < numKeys; i++ {
		next, _ := dh.Next()
		key, due := dh.PopDue(now)
		if !due {
			t.Fatalf("Expected %d more due keys", numKeys-i)
		}
		if next.Before(last) {
			t.Fatalf("Deadline order violated at %q", key)
		}
		last = next
	}
}
