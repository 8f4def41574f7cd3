package server

import (
	"context"
	"fmt"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/rpc/common"
)

// NewBucketServerAdapter creates an adapter that translates RPC messages
// into bucket operations. The timeout bounds durability waits, all other
// operations complete without one.
func NewBucketServerAdapter(timeout time.Duration) IRPCServerAdapter {
	return &bucketServerAdapterImpl{timeout: timeout}
}

type bucketServerAdapterImpl struct {
	timeout time.Duration
}

func (adapter *bucketServerAdapterImpl) Handle(req *common.Message, bkt bucket.IBucket) *common.Message {
	// Check for nil bucket
	if bkt == nil {
		return common.NewErrorResponse("handler: bucket is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTGet:
		doc, found, err := bkt.Get(req.Key)
		return common.NewGetResponse(doc, found, err)
	case common.MsgTExists:
		found, err := bkt.Exists(req.Key)
		return common.NewExistsResponse(found, err)
	case common.MsgTInsert:
		doc, err := bkt.Insert(req.Key, req.Value, time.Duration(req.Expiry))
		return common.NewInsertResponse(doc, err)
	case common.MsgTUpsert:
		doc, err := bkt.Upsert(req.Key, req.Value, time.Duration(req.Expiry))
		return common.NewUpsertResponse(doc, err)
	case common.MsgTReplace:
		doc, err := bkt.Replace(req.Key, req.Value, time.Duration(req.Expiry), req.Cas)
		return common.NewReplaceResponse(doc, err)
	case common.MsgTRemove:
		doc, err := bkt.Remove(req.Key, req.Cas)
		return common.NewRemoveResponse(doc, err)
	case common.MsgTCounter:
		res, err := bkt.Counter(req.Key, req.Delta)
		return common.NewCounterResponse(res, err)
	case common.MsgTCounterInit:
		res, err := bkt.CounterWithInitial(req.Key, req.Delta, req.Num, time.Duration(req.Expiry))
		return common.NewCounterInitResponse(res, err)
	case common.MsgTAppend:
		doc, err := bkt.Append(req.Key, req.Value, req.Cas)
		return common.NewAppendResponse(doc, err)
	case common.MsgTPrepend:
		doc, err := bkt.Prepend(req.Key, req.Value, req.Cas)
		return common.NewPrependResponse(doc, err)
	case common.MsgTTouch:
		ok, err := bkt.Touch(req.Key, time.Duration(req.Expiry))
		return common.NewTouchResponse(ok, err)
	case common.MsgTGetAndTouch:
		doc, err := bkt.GetAndTouch(req.Key, time.Duration(req.Expiry))
		return common.NewGetAndTouchResponse(doc, err)
	case common.MsgTGetAndLock:
		doc, err := bkt.GetAndLock(req.Key, time.Duration(req.LockFor))
		return common.NewGetAndLockResponse(doc, err)
	case common.MsgTUnlock:
		ok, err := bkt.Unlock(req.Key, req.Cas)
		return common.NewUnlockResponse(ok, err)
	case common.MsgTDurability:
		ctx := context.Background()
		if adapter.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, adapter.timeout)
			defer cancel()
		}
		err := bkt.AwaitDurability(ctx, req.Key, req.Cas, req.PersistTo, req.ReplicateTo)
		return common.NewDurabilityResponse(err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC BucketAdapter - Unsuported message type: %s", req.MsgType),
		)
	}
}
