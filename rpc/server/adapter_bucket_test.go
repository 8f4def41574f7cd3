package server

import (
	"testing"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/lib/bucket/lbucket"
	"github.com/caskdb/cask/rpc/common"
)

func newAdapterUnderTest(t *testing.T) (IRPCServerAdapter, bucket.IBucket) {
	t.Helper()
	bkt := lbucket.NewLocalBucket(nil)
	t.Cleanup(func() { _ = bkt.Close() })
	return NewBucketServerAdapter(time.Second), bkt
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

func TestAdapterHandlesNilBucket(t *testing.T) {
	adapter := NewBucketServerAdapter(time.Second)

	resp := adapter.Handle(common.NewGetRequest("k"), nil)
	if resp.Err == "" {
		t.Errorf("expected error response for nil bucket")
	}
}

func TestAdapterWriteReadCycle(t *testing.T) {
	adapter, bkt := newAdapterUnderTest(t)

	// Insert
	resp := adapter.Handle(common.NewInsertRequest("doc", []byte("v1"), 0), bkt)
	if resp.Err != "" {
		t.Fatalf("insert failed: %s", resp.Err)
	}
	if resp.Cas == 0 {
		t.Fatalf("insert response carries no cas")
	}
	insertCas := resp.Cas

	// Get
	resp = adapter.Handle(common.NewGetRequest("doc"), bkt)
	if resp.Err != "" {
		t.Fatalf("get failed: %s", resp.Err)
	}
	if !resp.Ok {
		t.Errorf("expected document to be found")
	}
	if string(resp.Value) != "v1" {
		t.Errorf("expected value 'v1', got %q", resp.Value)
	}
	if resp.Cas != insertCas {
		t.Errorf("get cas %d does not match insert cas %d", resp.Cas, insertCas)
	}

	// Replace with the stored cas
	resp = adapter.Handle(common.NewReplaceRequest("doc", []byte("v2"), 0, insertCas), bkt)
	if resp.Err != "" {
		t.Fatalf("replace failed: %s", resp.Err)
	}
	if resp.Cas == insertCas {
		t.Errorf("replace did not rotate the cas")
	}

	// Remove
	resp = adapter.Handle(common.NewRemoveRequest("doc", 0), bkt)
	if resp.Err != "" {
		t.Fatalf("remove failed: %s", resp.Err)
	}

	// Exists
	resp = adapter.Handle(common.NewExistsRequest("doc"), bkt)
	if resp.Err != "" {
		t.Fatalf("exists failed: %s", resp.Err)
	}
	if resp.Ok {
		t.Errorf("document should be gone after remove")
	}
}

func TestAdapterCarriesErrorKind(t *testing.T) {
	adapter, bkt := newAdapterUnderTest(t)

	// Insert twice, the second one must fail with the typed kind
	if resp := adapter.Handle(common.NewInsertRequest("dup", []byte("x"), 0), bkt); resp.Err != "" {
		t.Fatalf("first insert failed: %s", resp.Err)
	}
	resp := adapter.Handle(common.NewInsertRequest("dup", []byte("y"), 0), bkt)
	if resp.Err == "" {
		t.Fatalf("expected duplicate insert to fail")
	}
	if !bucket.IsKind(resp.RemoteError(), bucket.KindAlreadyExists) {
		t.Errorf("expected KindAlreadyExists, got kind %d (%s)", resp.ErrKind, resp.Err)
	}
}

func TestAdapterCounterOps(t *testing.T) {
	adapter, bkt := newAdapterUnderTest(t)

	// CounterInit creates the counter with the initial value
	resp := adapter.Handle(common.NewCounterInitRequest("hits", 5, 100, 0), bkt)
	if resp.Err != "" {
		t.Fatalf("counter init failed: %s", resp.Err)
	}
	if resp.Num != 100 {
		t.Errorf("expected initial value 100, got %d", resp.Num)
	}

	// Plain Counter applies the delta
	resp = adapter.Handle(common.NewCounterRequest("hits", 5), bkt)
	if resp.Err != "" {
		t.Fatalf("counter failed: %s", resp.Err)
	}
	if resp.Num != 105 {
		t.Errorf("expected value 105, got %d", resp.Num)
	}
}

func TestAdapterLockCycle(t *testing.T) {
	adapter, bkt := newAdapterUnderTest(t)

	resp := adapter.Handle(common.NewUpsertRequest("locked", []byte("v"), 0), bkt)
	if resp.Err != "" {
		t.Fatalf("upsert failed: %s", resp.Err)
	}

	// Lock the document
	resp = adapter.Handle(common.NewGetAndLockRequest("locked", 10*time.Second), bkt)
	if resp.Err != "" {
		t.Fatalf("getAndLock failed: %s", resp.Err)
	}
	lockCas := resp.Cas

	// A second lock attempt must report lock contention
	resp = adapter.Handle(common.NewGetAndLockRequest("locked", 10*time.Second), bkt)
	if !bucket.IsKind(resp.RemoteError(), bucket.KindLocked) {
		t.Errorf("expected KindLocked, got kind %d (%s)", resp.ErrKind, resp.Err)
	}

	// Unlock with the lock cas
	resp = adapter.Handle(common.NewUnlockRequest("locked", lockCas), bkt)
	if resp.Err != "" {
		t.Fatalf("unlock failed: %s", resp.Err)
	}
	if !resp.Ok {
		t.Errorf("unlock should report success")
	}
}

func TestAdapterDurability(t *testing.T) {
	adapter, bkt := newAdapterUnderTest(t)

	resp := adapter.Handle(common.NewUpsertRequest("d", []byte("v"), 0), bkt)
	if resp.Err != "" {
		t.Fatalf("upsert failed: %s", resp.Err)
	}
	cas := resp.Cas

	// persistTo=1 is satisfiable on a standalone bucket
	resp = adapter.Handle(common.NewDurabilityRequest("d", cas, 1, 0), bkt)
	if resp.Err != "" {
		t.Errorf("durability wait failed: %s", resp.Err)
	}

	// replicateTo=1 exceeds the standalone topology and must fail fast
	resp = adapter.Handle(common.NewDurabilityRequest("d", cas, 0, 1), bkt)
	if !bucket.IsKind(resp.RemoteError(), bucket.KindDurabilityTimeout) {
		t.Errorf("expected KindDurabilityTimeout, got kind %d (%s)", resp.ErrKind, resp.Err)
	}
}

func TestAdapterUnknownMessageType(t *testing.T) {
	adapter, bkt := newAdapterUnderTest(t)

	resp := adapter.Handle(&common.Message{MsgType: common.MsgTCustom}, bkt)
	if resp.Err == "" {
		t.Errorf("expected error response for unsupported message type")
	}
}
