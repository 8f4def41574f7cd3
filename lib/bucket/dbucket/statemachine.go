package dbucket

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/lib/bucket/dbucket/internal"
	"github.com/caskdb/cask/lib/bucket/lbucket"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// BucketStateMachine is a state machine implementation for Dragonboat RAFT.
// It applies bucket commands to an embedded local kernel.
//
// Determinism: the kernel's two non-deterministic inputs are pinned per
// command. The clock is the proposer timestamp carried in each command and
// the CAS source is the raft log index, so every replica computes the same
// expiry decisions and assigns the same token to the same mutation.
type BucketStateMachine struct {
	replicaID uint64
	shardID   uint64
	kernel    bucket.IBucket

	applyTime  atomic.Int64  // timestamp of the entry being applied, unix nanos
	applyIndex atomic.Uint64 // raft index of the entry being applied
}

// CreateStateMachineFactory returns a function that can be used by
// dragonboat to create a new state machine for a node host. The passed
// options configure the embedded kernel; its Clock and CasSource are
// overridden by the state machine.
func CreateStateMachineFactory(opts *lbucket.Options) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		fsm := &BucketStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
		}

		kernelOpts := lbucket.DefaultOptions()
		if opts != nil {
			kernelOpts = &lbucket.Options{
				MaxValueSize:  opts.MaxValueSize,
				MaxLockTime:   opts.MaxLockTime,
				SweepInterval: opts.SweepInterval,
				JournalWriter: opts.JournalWriter,
			}
		}
		kernelOpts.Clock = fsm.now
		kernelOpts.CasSource = fsm.applyIndex.Load

		fsm.kernel = lbucket.NewLocalBucket(kernelOpts)
		return fsm
	}
}

// now is the kernel's clock: the timestamp of the command currently being
// applied. Before the first command it reports the unix epoch, under which
// no document ever counts as expired.
func (fsm *BucketStateMachine) now() time.Time {
	return time.Unix(0, fsm.applyTime.Load())
}

// Lookup handles read-only queries against the kernel.
func (fsm *BucketStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, bucket.NewError(bucket.KindInternal, fmt.Sprintf("invalid query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		doc, found, err := fsm.kernel.Get(q.Key)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{Doc: doc, Found: found}, nil
	case internal.QueryTExists:
		return fsm.kernel.Exists(q.Key)
	default:
		return nil, bucket.NewError(bucket.KindInternal, fmt.Sprintf("unknown query operation: %d", q.Type))
	}
}

// Update applies write commands to the kernel. All write operations arrive
// serialized via the entries slice.
func (fsm *BucketStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{
				Value: retCode(bucket.KindInternal),
				Data:  []byte("empty command ignored"),
			}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: retCode(bucket.KindInternal),
				Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
			}
			continue
		}

		// Pin the kernel's clock and CAS source to this entry. The clock
		// only moves forward so a delayed proposal cannot rewind time.
		if ts := cmd.Timestamp; ts > fsm.applyTime.Load() {
			fsm.applyTime.Store(ts)
		}
		fsm.applyIndex.Store(e.Index)

		entries[idx].Result = fsm.apply(&cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("state machine batch of %d entries took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single command against the kernel and encodes the
// outcome.
func (fsm *BucketStateMachine) apply(cmd *internal.Command) sm.Result {
	switch cmd.Type {
	case internal.CommandTInsert:
		doc, err := fsm.kernel.Insert(cmd.Key, cmd.Value, time.Duration(cmd.Expiry))
		return encodeDoc(doc, err)

	case internal.CommandTUpsert:
		doc, err := fsm.kernel.Upsert(cmd.Key, cmd.Value, time.Duration(cmd.Expiry))
		return encodeDoc(doc, err)

	case internal.CommandTReplace:
		doc, err := fsm.kernel.Replace(cmd.Key, cmd.Value, time.Duration(cmd.Expiry), cmd.Cas)
		return encodeDoc(doc, err)

	case internal.CommandTRemove:
		doc, err := fsm.kernel.Remove(cmd.Key, cmd.Cas)
		return encodeDoc(doc, err)

	case internal.CommandTCounter:
		res, err := fsm.kernel.Counter(cmd.Key, cmd.Delta)
		return encodeCounter(res, err)

	case internal.CommandTCounterInit:
		res, err := fsm.kernel.CounterWithInitial(cmd.Key, cmd.Delta, cmd.Initial, time.Duration(cmd.Expiry))
		return encodeCounter(res, err)

	case internal.CommandTAppend:
		doc, err := fsm.kernel.Append(cmd.Key, cmd.Value, cmd.Cas)
		return encodeDoc(doc, err)

	case internal.CommandTPrepend:
		doc, err := fsm.kernel.Prepend(cmd.Key, cmd.Value, cmd.Cas)
		return encodeDoc(doc, err)

	case internal.CommandTTouch:
		_, err := fsm.kernel.Touch(cmd.Key, time.Duration(cmd.Expiry))
		if err != nil {
			return encodeErr(err)
		}
		return encodeResult(internal.Result{})

	case internal.CommandTGetAndTouch:
		doc, err := fsm.kernel.GetAndTouch(cmd.Key, time.Duration(cmd.Expiry))
		if err != nil {
			return encodeErr(err)
		}
		return encodeResult(internal.Result{Cas: doc.Cas, HasValue: true, Value: doc.Value})

	case internal.CommandTGetAndLock:
		doc, err := fsm.kernel.GetAndLock(cmd.Key, time.Duration(cmd.LockFor))
		if err != nil {
			return encodeErr(err)
		}
		return encodeResult(internal.Result{
			Cas:      doc.Cas,
			Aux:      uint64(doc.Expiry),
			HasValue: true,
			Value:    doc.Value,
		})

	case internal.CommandTUnlock:
		_, err := fsm.kernel.Unlock(cmd.Key, cmd.Cas)
		if err != nil {
			return encodeErr(err)
		}
		return encodeResult(internal.Result{})

	default:
		return sm.Result{
			Value: retCode(bucket.KindInternal),
			Data:  []byte(fmt.Sprintf("unknown command operation: %s", cmd.Type)),
		}
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we
// use fuzzy snapshotting.
func (fsm *BucketStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy kernel snapshot to the writer.
func (fsm *BucketStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snap, ok := fsm.kernel.(bucket.ISnapshotter)
	if !ok {
		return fmt.Errorf("the used bucket implementation does not support Save() operations")
	}
	return snap.Save(writer)
}

// RecoverFromSnapshot restores the kernel from a snapshot.
func (fsm *BucketStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	snap, ok := fsm.kernel.(bucket.ISnapshotter)
	if !ok {
		return fmt.Errorf("the used bucket implementation does not support Load() operations")
	}
	return snap.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *BucketStateMachine) Close() error {
	return fsm.kernel.Close()
}

// --------------------------------------------------------------------------
// Result encoding
// --------------------------------------------------------------------------

// retCode maps an error kind to an sm.Result value. 0 is success, so kinds
// are shifted by one.
func retCode(kind bucket.ErrorKind) uint64 {
	return uint64(kind) + 1
}

func encodeResult(r internal.Result) sm.Result {
	return sm.Result{Value: internal.RetCSuccess, Data: r.Serialize()}
}

func encodeErr(err error) sm.Result {
	if be, ok := err.(*bucket.Error); ok {
		return sm.Result{Value: retCode(be.Kind), Data: []byte(be.Msg)}
	}
	return sm.Result{Value: retCode(bucket.KindInternal), Data: []byte(err.Error())}
}

func encodeDoc(doc bucket.Document, err error) sm.Result {
	if err != nil {
		return encodeErr(err)
	}
	return encodeResult(internal.Result{Cas: doc.Cas})
}

func encodeCounter(res bucket.CounterResult, err error) sm.Result {
	if err != nil {
		return encodeErr(err)
	}
	return encodeResult(internal.Result{Cas: res.Cas, Aux: res.Value})
}
