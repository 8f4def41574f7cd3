package server

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/lib/bucket/dbucket"
	"github.com/caskdb/cask/lib/bucket/durability"
	"github.com/caskdb/cask/lib/bucket/lbucket"
	"github.com/caskdb/cask/rpc/common"
	"github.com/caskdb/cask/rpc/serializer"
	"github.com/caskdb/cask/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverBucket is a struct that represents one hosted bucket in the RPC
// server. It contains the bucket implementation and the adapter that
// handles requests for it
type serverBucket struct {
	Bucket  bucket.IBucket
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create bucket map
	bucketMap := xsync.NewMapOf[string, serverBucket]()

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		buckets:    bucketMap,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	buckets    *xsync.MapOf[string, serverBucket]
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(bucketName string, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get appropriate bucket
		bkt, ok := s.buckets.Load(bucketName)

		// Case bucket does not exist -> error
		if !ok {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     "bucket not found",
			}
		} else {
			// Decode the request
			err := s.serializer.Deserialize(req, &msg)

			if err != nil {
				respMsg = common.Message{
					MsgType: common.MsgTError,
					Err:     fmt.Sprintf("failed to deserialize request: %s", err),
				}
			} else {
				// Count the operation before handing it to the adapter
				metrics.GetOrCreateCounter(
					fmt.Sprintf(`cask_rpc_requests_total{bucket=%q,op=%q}`, bucketName, msg.MsgType.String()),
				).Inc()

				// Let the adapter handle the request
				respMsg = *bkt.Adapter.Handle(&msg, bkt.Bucket)

				if respMsg.Err != "" {
					metrics.GetOrCreateCounter(
						fmt.Sprintf(`cask_rpc_errors_total{bucket=%q,op=%q}`, bucketName, msg.MsgType.String()),
					).Inc()
				}
			}
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			}
		}
		return val
	})
}

// bucketOptions builds the engine options for a hosted bucket. For local
// buckets an optional commit journal is opened under the configured
// journal directory, one file per bucket.
func (s *rpcServer) bucketOptions(name string, withJournal bool) (*lbucket.Options, error) {
	opts := lbucket.DefaultOptions()
	if s.config.MaxValueSize > 0 {
		opts.MaxValueSize = s.config.MaxValueSize
	}

	if withJournal && s.config.JournalDir != "" {
		if err := os.MkdirAll(s.config.JournalDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		path := filepath.Join(s.config.JournalDir, name+".journal")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
		}
		opts.JournalWriter = f
	}

	return opts, nil
}

func (s *rpcServer) init() error {

	// Init logger
	common.InitLoggers(s.config)

	// Create the Dragonboat NodeHost
	var nodeHost *dragonboat.NodeHost
	var err error
	if s.config.HasRemoteBucket() {
		// Only create the NodeHost if we have replicated buckets
		nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	// Configure the timeout for the distributed bucket and durability waits
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE BUCKETS

	/*
		Note: A single RPC Server can host any number of replicated and or
		local buckets. The following loop creates all of them and stores
		them for the RPC server, keyed by their routing name.
	*/

	for _, bucketConfig := range s.config.Buckets {

		// Case local bucket
		if bucketConfig.Type == common.BucketTypeLocal {
			opts, err := s.bucketOptions(bucketConfig.Name, true)
			if err != nil {
				return err
			}

			s.buckets.Store(bucketConfig.Name, serverBucket{
				Bucket:  lbucket.NewLocalBucket(opts),
				Adapter: NewBucketServerAdapter(timeout),
			})
			Logger.Infof("created local bucket %q", bucketConfig.Name)

			// Case replicated bucket
		} else {
			if nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create replicated bucket")
			}

			opts, err := s.bucketOptions(bucketConfig.Name, false)
			if err != nil {
				return err
			}

			// Start Raft for the shard backing this bucket
			if err := nodeHost.StartConcurrentReplica(
				s.config.ClusterMembers,
				false,
				dbucket.CreateStateMachineFactory(opts),
				s.config.ToDragonboatConfig(bucketConfig.ShardID),
			); err != nil {
				Logger.Errorf("failed to start shard %v for bucket %q: %v", bucketConfig.ShardID, bucketConfig.Name, err)
			}

			// The cluster topology bounds satisfiable durability requirements
			topo := durability.Topology{
				Nodes:    len(s.config.ClusterMembers),
				Replicas: len(s.config.ClusterMembers) - 1,
			}

			s.buckets.Store(bucketConfig.Name, serverBucket{
				Bucket:  dbucket.NewDistributedBucket(nodeHost, bucketConfig.ShardID, timeout, topo),
				Adapter: NewBucketServerAdapter(timeout),
			})
			Logger.Infof("created replicated bucket %q on shard %d", bucketConfig.Name, bucketConfig.ShardID)
		}
	}

	Logger.Infof("cask setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the buckets and start the transport layer
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}
