package client

import (
	"context"
	"time"

	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/rpc/common"
	"github.com/caskdb/cask/rpc/serializer"
	"github.com/caskdb/cask/rpc/transport"
)

// NewRPCBucket creates a client-side bucket.IBucket backed by a named
// bucket on a remote server. The function takes the bucket name, a config,
// a transport and a serializer as parameters.
func NewRPCBucket(
	bucketName string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (bucket.IBucket, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC bucket
	b := rpcBucket{
		rpcClientAdapter{
			bucketName: bucketName,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC bucket
	return &b, nil
}

type rpcBucket struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the bucket package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcBucket) Get(key string) (bucket.Document, bool, error) {
	req := common.NewGetRequest(key)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, false, err
	}
	if !resp.Ok {
		return bucket.Document{}, false, nil
	}
	return docFromResponse(key, resp), true, nil
}

func (i *rpcBucket) Exists(key string) (bool, error) {
	req := common.NewExistsRequest(key)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcBucket) Insert(key string, value []byte, expiry time.Duration) (bucket.Document, error) {
	req := common.NewInsertRequest(key, value, expiry)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Upsert(key string, value []byte, expiry time.Duration) (bucket.Document, error) {
	req := common.NewUpsertRequest(key, value, expiry)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Replace(key string, value []byte, expiry time.Duration, cas uint64) (bucket.Document, error) {
	req := common.NewReplaceRequest(key, value, expiry, cas)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Remove(key string, cas uint64) (bucket.Document, error) {
	req := common.NewRemoveRequest(key, cas)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Counter(key string, delta int64) (bucket.CounterResult, error) {
	req := common.NewCounterRequest(key, delta)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.CounterResult{}, err
	}
	return bucket.CounterResult{Key: key, Value: resp.Num, Cas: resp.Cas}, nil
}

func (i *rpcBucket) CounterWithInitial(key string, delta int64, initial uint64, expiry time.Duration) (bucket.CounterResult, error) {
	req := common.NewCounterInitRequest(key, delta, initial, expiry)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.CounterResult{}, err
	}
	return bucket.CounterResult{Key: key, Value: resp.Num, Cas: resp.Cas}, nil
}

func (i *rpcBucket) Append(key string, payload []byte, cas uint64) (bucket.Document, error) {
	req := common.NewAppendRequest(key, payload, cas)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Prepend(key string, payload []byte, cas uint64) (bucket.Document, error) {
	req := common.NewPrependRequest(key, payload, cas)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Touch(key string, expiry time.Duration) (bool, error) {
	req := common.NewTouchRequest(key, expiry)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcBucket) GetAndTouch(key string, expiry time.Duration) (bucket.Document, error) {
	req := common.NewGetAndTouchRequest(key, expiry)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) GetAndLock(key string, lockFor time.Duration) (bucket.Document, error) {
	req := common.NewGetAndLockRequest(key, lockFor)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return bucket.Document{}, err
	}
	return docFromResponse(key, resp), nil
}

func (i *rpcBucket) Unlock(key string, cas uint64) (bool, error) {
	req := common.NewUnlockRequest(key, cas)
	resp, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// AwaitDurability forwards the acknowledgment wait to the server, which
// applies its own configured timeout. The context is checked before the
// request is sent; a context that expires mid-flight does not cancel the
// server-side wait.
func (i *rpcBucket) AwaitDurability(ctx context.Context, key string, cas uint64, persistTo, replicateTo int) error {
	if err := ctx.Err(); err != nil {
		return bucket.ErrDurabilityTimeout(key, cas)
	}
	req := common.NewDurabilityRequest(key, cas, persistTo, replicateTo)
	_, err := invokeRPCRequest(i.bucketName, req, i.transport, i.serializer)
	return err
}

func (i *rpcBucket) Close() error {
	return i.transport.Close()
}

// docFromResponse rebuilds a Document from a response message. The key is
// echoed from the request since responses only carry metadata and value.
func docFromResponse(key string, resp *common.Message) bucket.Document {
	return bucket.Document{
		Key:    key,
		Value:  resp.Value,
		Cas:    resp.Cas,
		Expiry: time.Duration(resp.Expiry),
	}
}
