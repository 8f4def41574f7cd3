package client

import (
	"fmt"
	"github.com/caskdb/cask/rpc/common"
	"github.com/caskdb/cask/rpc/serializer"
	"github.com/caskdb/cask/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter stores everything an RPC client needs to talk to one
// named bucket on the server side.
type rpcClientAdapter struct {
	bucketName string
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is the helper all client methods funnel through.
// It serializes the request, sends it to the named bucket, deserializes
// the response and converts wire errors back into domain errors.
// It also checks that the response type matches the request type.
func invokeRPCRequest(bucketName string, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(bucketName, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, fmt.Errorf("RPC BucketClient - Error: %s", err)
	}

	// Check if the response carries an error (typed bucket errors included)
	if remoteErr := resp.RemoteError(); remoteErr != nil {
		return nil, remoteErr
	}
	if resp.MsgType == common.MsgTError {
		return nil, fmt.Errorf("RPC BucketClient - Error: %s", resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC BucketClient - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
