package dbucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/lib/bucket/dbucket/internal"
	"github.com/caskdb/cask/lib/bucket/durability"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("dbucket")
)

// storeImpl is the distributed IBucket implementation. It encapsulates a
// Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	coord   *durability.Coordinator
}

// NewDistributedBucket creates a new distributed bucket instance which uses
// raft consensus to ensure strict linearizability across multiple nodes.
// The topology describes the shard's membership and drives durability
// acknowledgment (see AwaitDurability).
func NewDistributedBucket(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, topo durability.Topology) bucket.IBucket {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
		coord:   durability.NewCoordinator(raftObserver{topo: topo}, topo),
	}
}

// raftObserver derives acknowledgment progress from the raft commit
// guarantee: a CAS token only ever reaches a caller after its entry was
// accepted by a quorum, so every observable mutation is persisted on a
// majority of nodes and replicated to a majority of peers.
//
// The observer does not track individual tokens and reports the same
// quorum-derived progress for any (key, cas) pair. AwaitDurability
// therefore assumes the cas was obtained from a committed operation on
// this bucket; a fabricated token is acknowledged up to the quorum bound
// all the same.
type raftObserver struct {
	topo durability.Topology
}

func (o raftObserver) Status(key string, cas uint64) (persisted, replicated int) {
	quorum := o.topo.Nodes/2 + 1
	return quorum, quorum - 1
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose. It stamps the
// command with the local wall clock so every replica applies it against the
// same instant.
func (s *storeImpl) write(cmd internal.Command) (internal.Result, error) {
	cmd.Timestamp = time.Now().UnixNano()
	payload := cmd.Serialize()

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, payload)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return internal.Result{}, bucket.NewError(bucket.KindInternal, err.Error())
		}
		if res.Value != internal.RetCSuccess {
			return internal.Result{}, bucket.NewError(bucket.ErrorKind(res.Value-1), string(res.Data))
		}

		var result internal.Result
		if err := result.Deserialize(res.Data); err != nil {
			return internal.Result{}, bucket.NewError(bucket.KindInternal, err.Error())
		}
		return result, nil
	}
	return internal.Result{}, bucket.NewError(bucket.KindInternal, "timeout")
}

// read is a generic helper function that queries the state machine and
// attempts to convert the response into the expected type R.
//
// If the read operation fails due to a system busy error, the function
// retries up to 5 times.
func read[R any](s *storeImpl, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncRead(ctx, s.shardID, q)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			var be *bucket.Error
			if errors.As(err, &be) {
				return zero, be
			}
			return zero, bucket.NewError(bucket.KindInternal, err.Error())
		}

		// The state machine is expected to return the response in the
		// expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, bucket.NewError(bucket.KindInternal,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, bucket.NewError(bucket.KindInternal, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods - Reads (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (bucket.Document, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	})
	if err != nil {
		return bucket.Document{}, false, err
	}
	return res.Doc, res.Found, nil
}

func (s *storeImpl) Exists(key string) (bool, error) {
	return read[bool](s, internal.Query{
		Type: internal.QueryTExists,
		Key:  key,
	})
}

// --------------------------------------------------------------------------
// Interface Methods - Writes (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Insert(key string, value []byte, expiry time.Duration) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:   internal.CommandTInsert,
		Key:    key,
		Value:  value,
		Expiry: int64(expiry),
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Cas: res.Cas, Expiry: expiry}, nil
}

func (s *storeImpl) Upsert(key string, value []byte, expiry time.Duration) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:   internal.CommandTUpsert,
		Key:    key,
		Value:  value,
		Expiry: int64(expiry),
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Cas: res.Cas, Expiry: expiry}, nil
}

func (s *storeImpl) Replace(key string, value []byte, expiry time.Duration, cas uint64) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:   internal.CommandTReplace,
		Key:    key,
		Value:  value,
		Expiry: int64(expiry),
		Cas:    cas,
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Cas: res.Cas, Expiry: expiry}, nil
}

func (s *storeImpl) Remove(key string, cas uint64) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type: internal.CommandTRemove,
		Key:  key,
		Cas:  cas,
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Cas: res.Cas}, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Counters (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Counter(key string, delta int64) (bucket.CounterResult, error) {
	res, err := s.write(internal.Command{
		Type:  internal.CommandTCounter,
		Key:   key,
		Delta: delta,
	})
	if err != nil {
		return bucket.CounterResult{}, err
	}
	return bucket.CounterResult{Key: key, Value: res.Aux, Cas: res.Cas}, nil
}

func (s *storeImpl) CounterWithInitial(key string, delta int64, initial uint64, expiry time.Duration) (bucket.CounterResult, error) {
	res, err := s.write(internal.Command{
		Type:    internal.CommandTCounterInit,
		Key:     key,
		Delta:   delta,
		Initial: initial,
		Expiry:  int64(expiry),
	})
	if err != nil {
		return bucket.CounterResult{}, err
	}
	return bucket.CounterResult{Key: key, Value: res.Aux, Cas: res.Cas}, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Append / Prepend (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Append(key string, payload []byte, cas uint64) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:  internal.CommandTAppend,
		Key:   key,
		Value: payload,
		Cas:   cas,
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Cas: res.Cas}, nil
}

func (s *storeImpl) Prepend(key string, payload []byte, cas uint64) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:  internal.CommandTPrepend,
		Key:   key,
		Value: payload,
		Cas:   cas,
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Cas: res.Cas}, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Touch / Locking (docu see bucket/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Touch(key string, expiry time.Duration) (bool, error) {
	_, err := s.write(internal.Command{
		Type:   internal.CommandTTouch,
		Key:    key,
		Expiry: int64(expiry),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *storeImpl) GetAndTouch(key string, expiry time.Duration) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:   internal.CommandTGetAndTouch,
		Key:    key,
		Expiry: int64(expiry),
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{Key: key, Value: res.Value, Cas: res.Cas, Expiry: expiry}, nil
}

func (s *storeImpl) GetAndLock(key string, lockFor time.Duration) (bucket.Document, error) {
	res, err := s.write(internal.Command{
		Type:    internal.CommandTGetAndLock,
		Key:     key,
		LockFor: int64(lockFor),
	})
	if err != nil {
		return bucket.Document{}, err
	}
	return bucket.Document{
		Key:    key,
		Value:  res.Value,
		Cas:    res.Cas,
		Expiry: time.Duration(res.Aux),
	}, nil
}

func (s *storeImpl) Unlock(key string, cas uint64) (bool, error) {
	_, err := s.write(internal.Command{
		Type: internal.CommandTUnlock,
		Key:  key,
		Cas:  cas,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Durability
// --------------------------------------------------------------------------

func (s *storeImpl) AwaitDurability(ctx context.Context, key string, cas uint64, persistTo, replicateTo int) error {
	return s.coord.Await(ctx, key, cas, persistTo, replicateTo)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Close is a no-op: the NodeHost is owned by the caller and may serve
// other shards.
func (s *storeImpl) Close() error {
	return nil
}
