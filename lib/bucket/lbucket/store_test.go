package lbucket

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/caskdb/cask/lib/bucket"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// fakeClock is a manually advanced clock for expiry and lock tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newClockedBucket creates a bucket on a fake clock. The sweep interval is
// set high so expiry is exercised through the lazy path only, independent of
// sweeper timing.
func newClockedBucket(t *testing.T) (bucket.IBucket, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	b := NewLocalBucket(&Options{
		Clock:         clock.Now,
		SweepInterval: time.Hour,
	})
	t.Cleanup(func() { b.Close() })
	return b, clock
}

func wantKind(t *testing.T, err error, kind bucket.ErrorKind) {
	t.Helper()
	if err == nil || !bucket.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// --------------------------------------------------------------------------
// Expiry (fake clock)
// --------------------------------------------------------------------------

func TestExpiryIsLazy(t *testing.T) {
	b, clock := newClockedBucket(t)

	doc, err := b.Insert("ttl", []byte("v"), 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(9 * time.Second)
	got, found, _ := b.Get("ttl")
	if !found || got.Cas != doc.Cas {
		t.Fatalf("expected live document one second before the deadline")
	}
	if got.Expiry <= 0 || got.Expiry > time.Second {
		t.Errorf("expected remaining ttl of about 1s, got %v", got.Expiry)
	}

	// the deadline itself counts as expired
	clock.Advance(time.Second)
	if _, found, _ := b.Get("ttl"); found {
		t.Errorf("expected document to be gone at its deadline")
	}

	// an expired document is absent for every transition
	_, err = b.Replace("ttl", []byte("x"), 0, doc.Cas)
	wantKind(t, err, bucket.KindNotExists)
	if _, err := b.Insert("ttl", []byte("again"), 0); err != nil {
		t.Errorf("expected insert over an expired document to succeed: %v", err)
	}
}

func TestTouchMovesDeadline(t *testing.T) {
	b, clock := newClockedBucket(t)

	if _, err := b.Upsert("ttl", []byte("v"), 10*time.Second); err != nil {
		t.Fatal(err)
	}

	clock.Advance(8 * time.Second)
	if ok, err := b.Touch("ttl", 10*time.Second); err != nil || !ok {
		t.Fatalf("touch failed: ok=%t err=%v", ok, err)
	}

	// past the original deadline, still alive
	clock.Advance(5 * time.Second)
	if _, found, _ := b.Get("ttl"); !found {
		t.Fatalf("expected touched document to survive its original deadline")
	}

	// a zero expiry clears the deadline entirely
	if ok, err := b.Touch("ttl", 0); err != nil || !ok {
		t.Fatalf("touch failed: ok=%t err=%v", ok, err)
	}
	clock.Advance(1000 * time.Hour)
	if _, found, _ := b.Get("ttl"); !found {
		t.Errorf("expected document without ttl to live forever")
	}
}

// --------------------------------------------------------------------------
// Locking (fake clock)
// --------------------------------------------------------------------------

func TestLockDefaultDuration(t *testing.T) {
	b, clock := newClockedBucket(t)

	if _, err := b.Upsert("doc", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	// lockFor=0 falls back to the default lock time
	if _, err := b.GetAndLock("doc", 0); err != nil {
		t.Fatal(err)
	}

	clock.Advance(defaultLockTime - time.Second)
	_, err := b.Upsert("doc", []byte("blocked"), 0)
	wantKind(t, err, bucket.KindCasMismatch)

	clock.Advance(2 * time.Second)
	if _, err := b.Upsert("doc", []byte("free"), 0); err != nil {
		t.Errorf("expected write after default lock lapse: %v", err)
	}
}

func TestLockDurationIsClamped(t *testing.T) {
	b, clock := newClockedBucket(t)

	if _, err := b.Upsert("doc", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	// a requested hour is clamped to the configured maximum
	if _, err := b.GetAndLock("doc", time.Hour); err != nil {
		t.Fatal(err)
	}

	clock.Advance(defaultMaxLockTime + time.Second)
	if _, err := b.Upsert("doc", []byte("free"), 0); err != nil {
		t.Errorf("expected write after clamped lock lapse: %v", err)
	}
}

func TestLapsedLockIsInvisible(t *testing.T) {
	b, clock := newClockedBucket(t)

	doc, err := b.Upsert("doc", []byte("v"), 0)
	if err != nil {
		t.Fatal(err)
	}

	locked, err := b.GetAndLock("doc", 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if locked.Cas != doc.Cas {
		t.Fatalf("expected the pre-lock cas from getAndLock")
	}

	clock.Advance(11 * time.Second)

	// after the lapse the document can be locked again...
	if _, err := b.GetAndLock("doc", 10*time.Second); err != nil {
		t.Fatalf("expected re-lock after lapse: %v", err)
	}
	// ...and unlocking it with the (still unchanged) cas works
	if ok, err := b.Unlock("doc", doc.Cas); err != nil || !ok {
		t.Fatalf("unlock failed: ok=%t err=%v", ok, err)
	}

	// a lapsed lock cannot be unlocked
	clock.Advance(time.Minute)
	_, err = b.Unlock("doc", doc.Cas)
	wantKind(t, err, bucket.KindLocked)
}

func TestLockOnDocumentWithTTL(t *testing.T) {
	b, clock := newClockedBucket(t)

	if _, err := b.Upsert("doc", []byte("v"), 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := b.GetAndLock("doc", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	// the lock lapses first, the ttl stays armed
	clock.Advance(6 * time.Second)
	if _, found, _ := b.Get("doc"); !found {
		t.Fatalf("expected document to outlive its lock")
	}
	if _, err := b.Upsert("doc", []byte("w"), 10*time.Second); err != nil {
		t.Fatalf("expected write after lock lapse: %v", err)
	}

	// a locked document still expires with its ttl
	if _, err := b.GetAndLock("doc", 30*time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(11 * time.Second)
	if _, found, _ := b.Get("doc"); found {
		t.Errorf("expected ttl to outrank the lock")
	}
}

// --------------------------------------------------------------------------
// Admission guard
// --------------------------------------------------------------------------

func TestValueSizeCeiling(t *testing.T) {
	b := NewLocalBucket(&Options{MaxValueSize: 10})
	defer b.Close()

	_, err := b.Insert("big", make([]byte, 11), 0)
	wantKind(t, err, bucket.KindTooBig)
	if _, found, _ := b.Get("big"); found {
		t.Fatalf("rejected insert must not leave state behind")
	}

	_, err = b.Upsert("big", make([]byte, 11), 0)
	wantKind(t, err, bucket.KindTooBig)

	// the ceiling counts the accumulated value, not the single payload
	if _, err := b.Upsert("doc", []byte("123456"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Append("doc", []byte("7890"), 0); err != nil {
		t.Fatalf("append up to the ceiling must succeed: %v", err)
	}
	_, err = b.Append("doc", []byte("x"), 0)
	wantKind(t, err, bucket.KindTooBig)
	_, err = b.Prepend("doc", []byte("x"), 0)
	wantKind(t, err, bucket.KindTooBig)

	got, _, _ := b.Get("doc")
	if string(got.Value) != "1234567890" {
		t.Errorf("rejected append mutated the value: %q", got.Value)
	}
}

// --------------------------------------------------------------------------
// Durability
// --------------------------------------------------------------------------

func TestDurabilityLocalPersistence(t *testing.T) {
	b := NewLocalBucket(nil)
	defer b.Close()

	doc, err := b.Upsert("doc", []byte("v"), 0)
	if err != nil {
		t.Fatal(err)
	}

	// no requirement is satisfied immediately
	if err := b.AwaitDurability(context.Background(), "doc", doc.Cas, 0, 0); err != nil {
		t.Fatalf("empty requirement must not fail: %v", err)
	}

	// the journal acknowledges local persistence asynchronously
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.AwaitDurability(ctx, "doc", doc.Cas, 1, 0); err != nil {
		t.Fatalf("persistTo=1 must be reachable on a single node: %v", err)
	}
}

func TestDurabilityBeyondTopologyFailsFast(t *testing.T) {
	b := NewLocalBucket(nil)
	defer b.Close()

	doc, err := b.Upsert("doc", []byte("v"), 0)
	if err != nil {
		t.Fatal(err)
	}

	// a standalone bucket has no replicas, so any replication requirement
	// is rejected without waiting for the context deadline
	start := time.Now()
	err = b.AwaitDurability(context.Background(), "doc", doc.Cas, 0, 1)
	wantKind(t, err, bucket.KindDurabilityTimeout)
	if time.Since(start) > time.Second {
		t.Errorf("impossible requirement should fail fast")
	}

	err = b.AwaitDurability(context.Background(), "doc", doc.Cas, 2, 0)
	wantKind(t, err, bucket.KindDurabilityTimeout)

	// the failed durability wait does not undo the mutation
	got, found, _ := b.Get("doc")
	if !found || string(got.Value) != "v" {
		t.Errorf("expected the mutation to stay committed, got found=%t %+v", found, got)
	}
}

func TestDurableWrappers(t *testing.T) {
	b := NewLocalBucket(nil)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doc, err := bucket.UpsertDurably(ctx, b, "doc", []byte("v"), 0, 1, 0)
	if err != nil {
		t.Fatalf("durable upsert failed: %v", err)
	}

	// a failed durability wait still reports the committed mutation
	failed, err := bucket.ReplaceDurably(ctx, b, "doc", []byte("w"), 0, doc.Cas, 0, 1)
	wantKind(t, err, bucket.KindDurabilityTimeout)
	if failed.Cas == 0 || failed.Cas == doc.Cas {
		t.Fatalf("expected the committed cas alongside the durability error")
	}
	got, _, _ := b.Get("doc")
	if string(got.Value) != "w" || got.Cas != failed.Cas {
		t.Errorf("expected the replace to stay committed, got %+v", got)
	}

	if _, err := bucket.RemoveDurably(ctx, b, "doc", failed.Cas, 1, 0); err != nil {
		t.Fatalf("durable remove failed: %v", err)
	}
	if _, found, _ := b.Get("doc"); found {
		t.Errorf("expected document to be gone after durable remove")
	}
}

// --------------------------------------------------------------------------
// Commit journal
// --------------------------------------------------------------------------

func TestJournalRecordsCommits(t *testing.T) {
	var buf bytes.Buffer
	b := NewLocalBucket(&Options{JournalWriter: &buf})

	first, err := b.Insert("a", []byte("1"), 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Upsert("bb", []byte("2"), 0)
	if err != nil {
		t.Fatal(err)
	}
	removed, err := b.Remove("a", 0)
	if err != nil {
		t.Fatal(err)
	}

	// Close drains the journal worker; only then is the buffer quiescent
	b.Close()

	type record struct {
		key string
		cas uint64
	}
	var records []record
	data := buf.Bytes()
	for len(data) > 0 {
		if len(data) < 4 {
			t.Fatalf("truncated record header")
		}
		keyLen := binary.BigEndian.Uint32(data[0:4])
		if len(data) < int(4+keyLen+8) {
			t.Fatalf("truncated record body")
		}
		records = append(records, record{
			key: string(data[4 : 4+keyLen]),
			cas: binary.BigEndian.Uint64(data[4+keyLen : 4+keyLen+8]),
		})
		data = data[4+keyLen+8:]
	}

	want := []record{
		{"a", first.Cas},
		{"bb", second.Cas},
		{"a", removed.Cas}, // the remove journals its terminal cas
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d journal records, got %d", len(want), len(records))
	}
	for i, w := range want {
		if records[i] != w {
			t.Errorf("record %d: expected %+v, got %+v", i, w, records[i])
		}
	}
}

// --------------------------------------------------------------------------
// Eager sweeper
// --------------------------------------------------------------------------

func TestSweeperEvictsIdleDocuments(t *testing.T) {
	b := NewLocalBucket(&Options{SweepInterval: 10 * time.Millisecond})
	defer b.Close()

	if _, err := b.Insert("idle", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	// without any further access the sweeper must retire the key
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if size := bucketSize(b); size == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected the sweeper to evict the expired document")
}

// bucketSize peeks at the internal map size.
func bucketSize(b bucket.IBucket) int {
	return b.(*storeImpl).data.Size()
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

func TestSnapshotRoundTrip(t *testing.T) {
	src, clock := newClockedBucket(t)

	plain, err := src.Upsert("plain", []byte("v"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Upsert("with-ttl", []byte("w"), time.Hour); err != nil {
		t.Fatal(err)
	}
	locked, err := src.Upsert("locked", []byte("x"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.GetAndLock("locked", 20*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Upsert("gone", []byte("y"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second) // "gone" expires before the snapshot

	var snap bytes.Buffer
	if err := src.(bucket.ISnapshotter).Save(&snap); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dst := NewLocalBucket(&Options{Clock: clock.Now, SweepInterval: time.Hour})
	t.Cleanup(func() { dst.Close() })
	if err := dst.(bucket.ISnapshotter).Load(&snap); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// values and cas tokens survive the round trip
	got, found, _ := dst.Get("plain")
	if !found || string(got.Value) != "v" || got.Cas != plain.Cas {
		t.Errorf("expected restored document, got found=%t %+v", found, got)
	}

	// the remaining ttl survives
	withTTL, found, _ := dst.Get("with-ttl")
	if !found || withTTL.Expiry <= 0 || withTTL.Expiry > time.Hour {
		t.Errorf("expected restored ttl, got found=%t expiry=%v", found, withTTL.Expiry)
	}

	// an active lock is still honored after the restore
	_, err = dst.Upsert("locked", []byte("steal"), 0)
	wantKind(t, err, bucket.KindCasMismatch)
	if _, err := dst.Replace("locked", []byte("owned"), 0, locked.Cas); err != nil {
		t.Errorf("expected the pre-lock cas to unlock after restore: %v", err)
	}

	// expired documents are not carried over
	if _, found, _ := dst.Get("gone"); found {
		t.Errorf("expected expired document to be dropped from the snapshot")
	}

	// the restored bucket issues fresh tokens beyond every restored one
	next, err := dst.Upsert("new", []byte("z"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if next.Cas <= plain.Cas {
		t.Errorf("expected fresh cas beyond the restored maximum")
	}
}
