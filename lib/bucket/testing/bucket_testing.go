package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/caskdb/cask/lib/bucket"
)

// BucketFactory is a function that creates a fresh instance of a
// bucket.IBucket implementation.
type BucketFactory func() bucket.IBucket

// RunBucketTests runs the shared conformance suite against a bucket
// implementation. Every implementation of the interface is expected to pass
// the full suite.
func RunBucketTests(t *testing.T, name string, factory BucketFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("GetMissing", func(t *testing.T) {
			testGetMissing(t, factory())
		})

		t.Run("InsertAndGet", func(t *testing.T) {
			testInsertAndGet(t, factory())
		})

		t.Run("DoubleInsert", func(t *testing.T) {
			testDoubleInsert(t, factory())
		})

		t.Run("UpsertGetRemove", func(t *testing.T) {
			testUpsertGetRemove(t, factory())
		})

		t.Run("RemoveRespectsCas", func(t *testing.T) {
			testRemoveRespectsCas(t, factory())
		})

		t.Run("ReplaceRespectsCas", func(t *testing.T) {
			testReplaceRespectsCas(t, factory())
		})

		t.Run("Counter", func(t *testing.T) {
			testCounter(t, factory())
		})

		t.Run("CounterMustExist", func(t *testing.T) {
			testCounterMustExist(t, factory())
		})

		t.Run("CounterFloorsAtZero", func(t *testing.T) {
			testCounterFloorsAtZero(t, factory())
		})

		t.Run("AppendPrepend", func(t *testing.T) {
			testAppendPrepend(t, factory())
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, factory())
		})

		t.Run("TouchExtendsLifetime", func(t *testing.T) {
			testTouchExtendsLifetime(t, factory())
		})

		t.Run("GetAndLock", func(t *testing.T) {
			testGetAndLock(t, factory())
		})

		t.Run("LockExpires", func(t *testing.T) {
			testLockExpires(t, factory())
		})

		t.Run("Unlock", func(t *testing.T) {
			testUnlock(t, factory())
		})

		t.Run("LockBlocksMutations", func(t *testing.T) {
			testLockBlocksMutations(t, factory())
		})

		t.Run("QualifiedConcatUnlocks", func(t *testing.T) {
			testQualifiedConcatUnlocks(t, factory())
		})

		t.Run("ConcurrentCounters", func(t *testing.T) {
			testConcurrentCounters(t, factory())
		})

		t.Run("IndependentKeys", func(t *testing.T) {
			testIndependentKeys(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireKind fails the test unless err is a bucket error of the wanted
// kind.
func requireKind(t testing.TB, err error, kind bucket.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !bucket.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// requireNoError fails the test if err is non-nil.
func requireNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testGetMissing(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, found, err := b.Get("i-dont-exist")
	requireNoError(t, err)
	if found {
		t.Errorf("expected absent key to report found=false")
	}

	exists, err := b.Exists("i-dont-exist")
	requireNoError(t, err)
	if exists {
		t.Errorf("expected absent key to report exists=false")
	}
}

func testInsertAndGet(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	value := []byte(`{"hello":"world"}`)
	doc, err := b.Insert("insert", value, 0)
	requireNoError(t, err)
	if doc.Cas == 0 {
		t.Errorf("expected nonzero cas after insert")
	}

	got, found, err := b.Get("insert")
	requireNoError(t, err)
	if !found {
		t.Fatalf("expected key to exist after insert")
	}
	if !bytes.Equal(got.Value, value) {
		t.Errorf("expected value %s, got %s", value, got.Value)
	}
	if got.Cas != doc.Cas {
		t.Errorf("expected get to return the insert cas")
	}
}

func testDoubleInsert(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	first, err := b.Insert("double-insert", []byte("a"), 0)
	requireNoError(t, err)

	_, err = b.Insert("double-insert", []byte("b"), 0)
	requireKind(t, err, bucket.KindAlreadyExists)

	// the failed insert must not have touched the document
	got, found, err := b.Get("double-insert")
	requireNoError(t, err)
	if !found || got.Cas != first.Cas || !bytes.Equal(got.Value, []byte("a")) {
		t.Errorf("failed insert mutated the document: %+v", got)
	}
}

func testUpsertGetRemove(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	first, err := b.Upsert("upsert", []byte("one"), 0)
	requireNoError(t, err)

	second, err := b.Upsert("upsert", []byte("two"), 0)
	requireNoError(t, err)
	if second.Cas == first.Cas {
		t.Errorf("expected a fresh cas per upsert")
	}

	got, found, err := b.Get("upsert")
	requireNoError(t, err)
	if !found || !bytes.Equal(got.Value, []byte("two")) {
		t.Fatalf("expected upserted value, got %+v", got)
	}

	removed, err := b.Remove("upsert", 0)
	requireNoError(t, err)
	if removed.Value != nil {
		t.Errorf("expected tombstone with nil value, got %q", removed.Value)
	}
	if removed.Cas == 0 || removed.Cas == second.Cas {
		t.Errorf("expected a fresh terminal cas, got %d", removed.Cas)
	}

	_, found, err = b.Get("upsert")
	requireNoError(t, err)
	if found {
		t.Errorf("expected key to be absent after remove")
	}

	_, err = b.Remove("upsert", 0)
	requireKind(t, err, bucket.KindNotExists)
}

func testRemoveRespectsCas(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	doc, err := b.Upsert("remove-cas", []byte("keep"), 0)
	requireNoError(t, err)

	_, err = b.Remove("remove-cas", doc.Cas+1)
	requireKind(t, err, bucket.KindCasMismatch)

	got, found, err := b.Get("remove-cas")
	requireNoError(t, err)
	if !found || !bytes.Equal(got.Value, []byte("keep")) {
		t.Fatalf("failed remove mutated the document")
	}

	removed, err := b.Remove("remove-cas", doc.Cas)
	requireNoError(t, err)
	if removed.Cas == doc.Cas {
		t.Errorf("expected the tombstone cas to differ from the document cas")
	}
}

func testReplaceRespectsCas(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Replace("replace", []byte("x"), 0, 0)
	requireKind(t, err, bucket.KindNotExists)

	doc, err := b.Upsert("replace", []byte("original"), 0)
	requireNoError(t, err)

	_, err = b.Replace("replace", []byte("nope"), 0, doc.Cas+1)
	requireKind(t, err, bucket.KindCasMismatch)

	replaced, err := b.Replace("replace", []byte("replaced"), 0, doc.Cas)
	requireNoError(t, err)
	if replaced.Cas == doc.Cas {
		t.Errorf("expected replace to rotate the cas")
	}

	got, _, err := b.Get("replace")
	requireNoError(t, err)
	if !bytes.Equal(got.Value, []byte("replaced")) {
		t.Errorf("expected replaced value, got %s", got.Value)
	}
}

func testCounter(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	// creation returns the initial value, the delta is not applied
	casSeen := map[uint64]bool{}
	for i, want := range []uint64{0, 10, 20} {
		res, err := b.CounterWithInitial("incr-key", 10, 0, 0)
		requireNoError(t, err)
		if res.Value != want {
			t.Errorf("call %d: expected %d, got %d", i, want, res.Value)
		}
		if casSeen[res.Cas] {
			t.Errorf("call %d: cas %d was already used", i, res.Cas)
		}
		casSeen[res.Cas] = true
	}

	// counters interoperate with plain documents holding decimal values
	_, err := b.Upsert("incrdecr-key", []byte("30"), 0)
	requireNoError(t, err)

	res, err := b.Counter("incrdecr-key", 10)
	requireNoError(t, err)
	if res.Value != 40 {
		t.Errorf("expected 40, got %d", res.Value)
	}

	res, err = b.Counter("incrdecr-key", -20)
	requireNoError(t, err)
	if res.Value != 20 {
		t.Errorf("expected 20, got %d", res.Value)
	}

	got, _, err := b.Get("incrdecr-key")
	requireNoError(t, err)
	if !bytes.Equal(got.Value, []byte("20")) {
		t.Errorf("expected stored counter %q, got %q", "20", got.Value)
	}
	if got.Cas != res.Cas {
		t.Errorf("expected get to observe the last counter cas")
	}
}

func testCounterMustExist(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Counter("defincr-key", 10)
	requireKind(t, err, bucket.KindNotExists)

	_, err = b.Counter("defdecr-key", -10)
	requireKind(t, err, bucket.KindNotExists)
}

func testCounterFloorsAtZero(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	res, err := b.CounterWithInitial("decr-key", -10, 100, 0)
	requireNoError(t, err)
	if res.Value != 100 {
		t.Fatalf("expected initial 100, got %d", res.Value)
	}

	res, err = b.CounterWithInitial("decr-key", -10, 100, 0)
	requireNoError(t, err)
	if res.Value != 90 {
		t.Errorf("expected 90, got %d", res.Value)
	}

	res, err = b.Counter("decr-key", -100)
	requireNoError(t, err)
	if res.Value != 0 {
		t.Errorf("expected decrement below zero to clamp to 0, got %d", res.Value)
	}
}

func testAppendPrepend(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Append("appendfail", []byte("fail"), 0)
	requireKind(t, err, bucket.KindNotExists)
	_, err = b.Prepend("prependfail", []byte("fail"), 0)
	requireKind(t, err, bucket.KindNotExists)

	doc, err := b.Upsert("append1", []byte("foo"), 0)
	requireNoError(t, err)

	stored, err := b.Append("append1", []byte("bar"), 0)
	requireNoError(t, err)
	if stored.Value != nil {
		t.Errorf("expected metadata-only append result, got %q", stored.Value)
	}
	if stored.Cas == 0 || stored.Cas == doc.Cas {
		t.Errorf("expected a fresh cas from append")
	}

	got, _, err := b.Get("append1")
	requireNoError(t, err)
	if !bytes.Equal(got.Value, []byte("foobar")) {
		t.Errorf("expected %q, got %q", "foobar", got.Value)
	}

	_, err = b.Upsert("prepend1", []byte("bar"), 0)
	requireNoError(t, err)
	_, err = b.Prepend("prepend1", []byte("foo"), 0)
	requireNoError(t, err)

	got, _, err = b.Get("prepend1")
	requireNoError(t, err)
	if !bytes.Equal(got.Value, []byte("foobar")) {
		t.Errorf("expected %q, got %q", "foobar", got.Value)
	}

	// a stale cas is rejected on both paths
	cur, _, err := b.Get("append1")
	requireNoError(t, err)
	_, err = b.Append("append1", []byte("x"), cur.Cas+1)
	requireKind(t, err, bucket.KindCasMismatch)
	_, err = b.Prepend("append1", []byte("x"), cur.Cas+1)
	requireKind(t, err, bucket.KindCasMismatch)
}

func testExpiry(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Insert("expiring", []byte("v"), 300*time.Millisecond)
	requireNoError(t, err)

	_, found, err := b.Get("expiring")
	requireNoError(t, err)
	if !found {
		t.Fatalf("expected key to exist before expiry")
	}

	time.Sleep(500 * time.Millisecond)

	_, found, err = b.Get("expiring")
	requireNoError(t, err)
	if found {
		t.Errorf("expected key to be absent after expiry")
	}

	// an expired key behaves like an absent one for every operation
	_, err = b.Replace("expiring", []byte("x"), 0, 0)
	requireKind(t, err, bucket.KindNotExists)
	_, err = b.Insert("expiring", []byte("again"), 0)
	requireNoError(t, err)
}

func testTouchExtendsLifetime(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	doc, err := b.Upsert("touch", []byte("v"), 500*time.Millisecond)
	requireNoError(t, err)

	_, err = b.Touch("touchFail", time.Second)
	requireKind(t, err, bucket.KindNotExists)
	_, err = b.GetAndTouch("touchFail", time.Second)
	requireKind(t, err, bucket.KindNotExists)

	time.Sleep(300 * time.Millisecond)

	touched, err := b.GetAndTouch("touch", time.Second)
	requireNoError(t, err)
	if !bytes.Equal(touched.Value, []byte("v")) {
		t.Errorf("expected getAndTouch to return the value unchanged")
	}
	if touched.Cas != doc.Cas {
		t.Errorf("expected getAndTouch to keep the cas")
	}

	// past the original deadline, alive thanks to the touch
	time.Sleep(400 * time.Millisecond)

	ok, err := b.Touch("touch", time.Second)
	requireNoError(t, err)
	if !ok {
		t.Errorf("expected touch to succeed on a live document")
	}

	_, found, err := b.Get("touch")
	requireNoError(t, err)
	if !found {
		t.Errorf("expected touched key to still exist")
	}
}

func testGetAndLock(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.GetAndLock("lock-missing", time.Second)
	requireKind(t, err, bucket.KindNotExists)

	doc, err := b.Upsert("get-and-lock", []byte("v"), 0)
	requireNoError(t, err)

	locked, err := b.GetAndLock("get-and-lock", time.Second)
	requireNoError(t, err)
	if !bytes.Equal(locked.Value, []byte("v")) {
		t.Errorf("expected the locked read to return the value")
	}
	if locked.Cas != doc.Cas {
		t.Errorf("expected the pre-lock cas, got %d", locked.Cas)
	}

	// double locking is lock contention
	_, err = b.GetAndLock("get-and-lock", time.Second)
	requireKind(t, err, bucket.KindLocked)

	// an unconditional write loses the race against the lock
	_, err = b.Upsert("get-and-lock", []byte("steal"), 0)
	requireKind(t, err, bucket.KindCasMismatch)

	// the lock-aware write without the token is told to back off
	_, err = b.Replace("get-and-lock", []byte("steal"), 0, 0)
	requireKind(t, err, bucket.KindLocked)

	// the pre-lock cas is the valid unlocking write
	written, err := b.Replace("get-and-lock", []byte("owned"), 0, locked.Cas)
	requireNoError(t, err)
	if written.Cas == locked.Cas {
		t.Errorf("expected the unlocking write to rotate the cas")
	}

	// the lock is gone now
	_, err = b.Upsert("get-and-lock", []byte("free"), 0)
	requireNoError(t, err)
}

func testLockExpires(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Upsert("lock-expiry", []byte("v"), 0)
	requireNoError(t, err)

	_, err = b.GetAndLock("lock-expiry", 300*time.Millisecond)
	requireNoError(t, err)

	_, err = b.Upsert("lock-expiry", []byte("blocked"), 0)
	requireKind(t, err, bucket.KindCasMismatch)

	time.Sleep(500 * time.Millisecond)

	_, err = b.Upsert("lock-expiry", []byte("unblocked"), 0)
	requireNoError(t, err)
}

func testUnlock(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Unlock("thisDocDoesNotExist", 1234)
	requireKind(t, err, bucket.KindNotExists)

	_, err = b.Upsert("unlock", []byte("v"), 0)
	requireNoError(t, err)

	// unlocking an unlocked document is lock contention, not success
	_, err = b.Unlock("unlock", 1)
	requireKind(t, err, bucket.KindLocked)

	locked, err := b.GetAndLock("unlock", 15*time.Second)
	requireNoError(t, err)

	_, err = b.Unlock("unlock", locked.Cas+1)
	requireKind(t, err, bucket.KindLocked)

	ok, err := b.Unlock("unlock", locked.Cas)
	requireNoError(t, err)
	if !ok {
		t.Fatalf("expected unlock with the matching cas to succeed")
	}

	// an immediate write is possible after unlock
	_, err = b.Upsert("unlock", []byte("after"), 0)
	requireNoError(t, err)
}

func testLockBlocksMutations(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	doc, err := b.Upsert("lock-mutations", []byte("v"), 0)
	requireNoError(t, err)

	locked, err := b.GetAndLock("lock-mutations", 15*time.Second)
	requireNoError(t, err)

	// every mutation without the token must back off while the lock holds
	_, err = b.Touch("lock-mutations", time.Minute)
	requireKind(t, err, bucket.KindLocked)

	_, err = b.GetAndTouch("lock-mutations", time.Minute)
	requireKind(t, err, bucket.KindLocked)

	_, err = b.Append("lock-mutations", []byte("x"), 0)
	requireKind(t, err, bucket.KindLocked)

	_, err = b.Prepend("lock-mutations", []byte("x"), 0)
	requireKind(t, err, bucket.KindLocked)

	_, err = b.Remove("lock-mutations", 0)
	requireKind(t, err, bucket.KindLocked)

	// a locked counter document refuses adjustment as well
	_, err = b.CounterWithInitial("lock-counter", 0, 7, 0)
	requireNoError(t, err)
	_, err = b.GetAndLock("lock-counter", 15*time.Second)
	requireNoError(t, err)
	_, err = b.Counter("lock-counter", 1)
	requireKind(t, err, bucket.KindLocked)

	// none of the refused mutations may have rotated the cas: the owner's
	// token still unlocks
	ok, err := b.Unlock("lock-mutations", locked.Cas)
	requireNoError(t, err)
	if !ok {
		t.Fatalf("expected unlock with the pre-lock cas to succeed")
	}

	got, found, err := b.Get("lock-mutations")
	requireNoError(t, err)
	if !found || got.Cas != doc.Cas || !bytes.Equal(got.Value, []byte("v")) {
		t.Errorf("refused mutations altered the document: %+v", got)
	}

	// the document is writable again
	ok, err = b.Touch("lock-mutations", time.Minute)
	requireNoError(t, err)
	if !ok {
		t.Errorf("expected touch to succeed after unlock")
	}
}

func testQualifiedConcatUnlocks(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	_, err := b.Upsert("concat-unlock", []byte("foo"), 0)
	requireNoError(t, err)

	locked, err := b.GetAndLock("concat-unlock", 15*time.Second)
	requireNoError(t, err)

	// the pre-lock cas qualifies the concat as the unlocking write
	appended, err := b.Append("concat-unlock", []byte("bar"), locked.Cas)
	requireNoError(t, err)
	if appended.Cas == locked.Cas {
		t.Errorf("expected the unlocking append to rotate the cas")
	}

	got, found, err := b.Get("concat-unlock")
	requireNoError(t, err)
	if !found || !bytes.Equal(got.Value, []byte("foobar")) {
		t.Fatalf("expected appended value, got %+v", got)
	}

	// the lock must not survive the write: an unconditional upsert goes
	// straight through
	_, err = b.Upsert("concat-unlock", []byte("free"), 0)
	requireNoError(t, err)

	// same contract for prepend
	first, err := b.Upsert("prepend-unlock", []byte("bar"), 0)
	requireNoError(t, err)
	_, err = b.GetAndLock("prepend-unlock", 15*time.Second)
	requireNoError(t, err)
	_, err = b.Prepend("prepend-unlock", []byte("foo"), first.Cas)
	requireNoError(t, err)
	_, err = b.Upsert("prepend-unlock", []byte("free"), 0)
	requireNoError(t, err)
}

func testConcurrentCounters(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	const workers = 50

	_, err := b.CounterWithInitial("shared-counter", 0, 0, 0)
	requireNoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		cases = map[uint64]bool{}
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := b.Counter("shared-counter", 1)
			if err != nil {
				t.Errorf("concurrent counter failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if cases[res.Cas] {
				t.Errorf("cas %d observed twice", res.Cas)
			}
			cases[res.Cas] = true
		}()
	}
	wg.Wait()

	res, err := b.Counter("shared-counter", 0)
	requireNoError(t, err)
	if res.Value != workers {
		t.Errorf("expected %d after %d concurrent increments, got %d", workers, workers, res.Value)
	}
}

func testIndependentKeys(t *testing.T, b bucket.IBucket) {
	defer b.Close()

	const keys = 20

	var wg sync.WaitGroup
	wg.Add(keys)
	for i := 0; i < keys; i++ {
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("parallel-%d", i)
			value := []byte(fmt.Sprintf("value-%d", i))

			if _, err := b.Insert(key, value, 0); err != nil {
				t.Errorf("insert %s: %v", key, err)
				return
			}
			got, found, err := b.Get(key)
			if err != nil || !found || !bytes.Equal(got.Value, value) {
				t.Errorf("get %s: found=%t err=%v", key, found, err)
			}
		}(i)
	}
	wg.Wait()
}
