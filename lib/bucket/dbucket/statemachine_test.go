package dbucket

import (
	"bytes"
	"testing"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/lib/bucket/dbucket/internal"
	"github.com/caskdb/cask/lib/bucket/lbucket"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newMachine(t *testing.T) *BucketStateMachine {
	t.Helper()
	fsm := CreateStateMachineFactory(nil)(1, 1).(*BucketStateMachine)
	t.Cleanup(func() { fsm.Close() })
	return fsm
}

// applyOne applies a single command at the given index and returns its
// result.
func applyOne(t *testing.T, fsm *BucketStateMachine, index uint64, cmd internal.Command) sm.Result {
	t.Helper()
	entries := []sm.Entry{{Index: index, Cmd: cmd.Serialize()}}
	entries, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return entries[0].Result
}

func decodeResult(t *testing.T, res sm.Result) internal.Result {
	t.Helper()
	if res.Value != internal.RetCSuccess {
		t.Fatalf("expected success, got code %d: %s", res.Value, res.Data)
	}
	var r internal.Result
	if err := r.Deserialize(res.Data); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return r
}

func TestStateMachineApplyAndLookup(t *testing.T) {
	fsm := newMachine(t)
	ts := time.Now().UnixNano()

	res := decodeResult(t, applyOne(t, fsm, 1, internal.Command{
		Type:      internal.CommandTUpsert,
		Timestamp: ts,
		Key:       "doc",
		Value:     []byte("v"),
	}))
	// the cas is the raft log index
	if res.Cas != 1 {
		t.Errorf("expected cas 1 from log index, got %d", res.Cas)
	}

	// linearizable read through Lookup
	out, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "doc"})
	if err != nil {
		t.Fatal(err)
	}
	qr := out.(internal.QueryResult)
	if !qr.Found || string(qr.Doc.Value) != "v" || qr.Doc.Cas != 1 {
		t.Errorf("unexpected lookup result: %+v", qr)
	}

	exists, err := fsm.Lookup(internal.Query{Type: internal.QueryTExists, Key: "doc"})
	if err != nil || exists != true {
		t.Errorf("expected exists=true, got %v (err=%v)", exists, err)
	}

	// a failed operation reports its error kind through the result value
	failed := applyOne(t, fsm, 2, internal.Command{
		Type:      internal.CommandTInsert,
		Timestamp: ts,
		Key:       "doc",
		Value:     []byte("dup"),
	})
	if failed.Value != retCode(bucket.KindAlreadyExists) {
		t.Errorf("expected AlreadyExists code, got %d: %s", failed.Value, failed.Data)
	}

	// counters report value and cas
	counter := decodeResult(t, applyOne(t, fsm, 3, internal.Command{
		Type:      internal.CommandTCounterInit,
		Timestamp: ts,
		Key:       "counter",
		Delta:     10,
		Initial:   100,
	}))
	if counter.Aux != 100 || counter.Cas != 3 {
		t.Errorf("expected counter (100, cas 3), got (%d, cas %d)", counter.Aux, counter.Cas)
	}

	// garbage commands are rejected, not fatal
	entries, err := fsm.Update([]sm.Entry{{Index: 4, Cmd: []byte{0xff}}})
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Result.Value != retCode(bucket.KindInternal) {
		t.Errorf("expected internal error for garbage command, got %d", entries[0].Result.Value)
	}
}

func TestStateMachineDeterminism(t *testing.T) {
	a := newMachine(t)
	b := newMachine(t)

	base := time.Now().UnixNano()
	commands := []internal.Command{
		{Type: internal.CommandTUpsert, Timestamp: base, Key: "x", Value: []byte("one")},
		{Type: internal.CommandTCounterInit, Timestamp: base + 1, Key: "c", Initial: 5},
		{Type: internal.CommandTCounter, Timestamp: base + 2, Key: "c", Delta: 7},
		{Type: internal.CommandTAppend, Timestamp: base + 3, Key: "x", Value: []byte("two")},
		{Type: internal.CommandTGetAndLock, Timestamp: base + 4, Key: "x", LockFor: int64(10 * time.Second)},
	}

	for i, cmd := range commands {
		ra := applyOne(t, a, uint64(i+1), cmd)
		rb := applyOne(t, b, uint64(i+1), cmd)
		if ra.Value != rb.Value || !bytes.Equal(ra.Data, rb.Data) {
			t.Fatalf("command %d diverged: %+v vs %+v", i, ra, rb)
		}
	}

	// both replicas hold identical observable state
	for _, key := range []string{"x", "c"} {
		qa, _ := a.Lookup(internal.Query{Type: internal.QueryTGet, Key: key})
		qb, _ := b.Lookup(internal.Query{Type: internal.QueryTGet, Key: key})
		da, db := qa.(internal.QueryResult), qb.(internal.QueryResult)
		if da.Found != db.Found || da.Doc.Cas != db.Doc.Cas || !bytes.Equal(da.Doc.Value, db.Doc.Value) {
			t.Errorf("state for %q diverged: %+v vs %+v", key, da, db)
		}
	}
}

func TestStateMachineExpiryFollowsCommandTime(t *testing.T) {
	fsm := newMachine(t)
	base := time.Now().UnixNano()

	decodeResult(t, applyOne(t, fsm, 1, internal.Command{
		Type:      internal.CommandTUpsert,
		Timestamp: base,
		Key:       "ttl",
		Value:     []byte("v"),
		Expiry:    int64(time.Second),
	}))

	// before the deadline the insert is refused
	failed := applyOne(t, fsm, 2, internal.Command{
		Type:      internal.CommandTInsert,
		Timestamp: base + int64(500*time.Millisecond),
		Key:       "ttl",
		Value:     []byte("early"),
	})
	if failed.Value != retCode(bucket.KindAlreadyExists) {
		t.Fatalf("expected AlreadyExists before the deadline, got %d", failed.Value)
	}

	// a later command timestamp expires the document, real time is
	// irrelevant
	decodeResult(t, applyOne(t, fsm, 3, internal.Command{
		Type:      internal.CommandTInsert,
		Timestamp: base + int64(2*time.Second),
		Key:       "ttl",
		Value:     []byte("late"),
	}))

	out, _ := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "ttl"})
	qr := out.(internal.QueryResult)
	if !qr.Found || string(qr.Doc.Value) != "late" {
		t.Errorf("expected the re-inserted document, got %+v", qr)
	}
}

func TestStateMachineSnapshotRecovery(t *testing.T) {
	src := newMachine(t)
	base := time.Now().UnixNano()

	decodeResult(t, applyOne(t, src, 1, internal.Command{
		Type:      internal.CommandTUpsert,
		Timestamp: base,
		Key:       "doc",
		Value:     []byte("v"),
	}))
	locked := decodeResult(t, applyOne(t, src, 2, internal.Command{
		Type:      internal.CommandTGetAndLock,
		Timestamp: base + 1,
		Key:       "doc",
		LockFor:   int64(20 * time.Second),
	}))

	var snap bytes.Buffer
	if err := src.SaveSnapshot(nil, &snap, nil, nil); err != nil {
		t.Fatalf("save snapshot failed: %v", err)
	}

	dst := newMachine(t)
	if err := dst.RecoverFromSnapshot(&snap, nil, nil); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	out, _ := dst.Lookup(internal.Query{Type: internal.QueryTGet, Key: "doc"})
	qr := out.(internal.QueryResult)
	if !qr.Found || string(qr.Doc.Value) != "v" || qr.Doc.Cas != 1 {
		t.Fatalf("unexpected restored document: %+v", qr)
	}

	// the lock granted before the snapshot is still enforced afterwards
	failed := applyOne(t, dst, 3, internal.Command{
		Type:      internal.CommandTUpsert,
		Timestamp: base + 2,
		Key:       "doc",
		Value:     []byte("steal"),
	})
	if failed.Value != retCode(bucket.KindCasMismatch) {
		t.Errorf("expected the restored lock to block the upsert, got %d", failed.Value)
	}

	// the pre-lock cas still unlocks
	decodeResult(t, applyOne(t, dst, 4, internal.Command{
		Type:      internal.CommandTReplace,
		Timestamp: base + 3,
		Key:       "doc",
		Value:     []byte("owned"),
		Cas:       locked.Cas,
	}))
}

// the options passed to the factory configure the embedded kernel
func TestStateMachineFactoryOptions(t *testing.T) {
	factory := CreateStateMachineFactory(&lbucket.Options{MaxValueSize: 4})
	fsm := factory(1, 1).(*BucketStateMachine)
	defer fsm.Close()

	res := applyOne(t, fsm, 1, internal.Command{
		Type:      internal.CommandTUpsert,
		Timestamp: time.Now().UnixNano(),
		Key:       "doc",
		Value:     []byte("too large"),
	})
	if res.Value != retCode(bucket.KindTooBig) {
		t.Errorf("expected TooBig from the configured kernel, got %d", res.Value)
	}
}
