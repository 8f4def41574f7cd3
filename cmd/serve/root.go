package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/caskdb/cask/cmd/util"
	"github.com/caskdb/cask/rpc/common"
	"github.com/caskdb/cask/rpc/serializer"
	"github.com/caskdb/cask/rpc/server"
	"github.com/caskdb/cask/rpc/transport"
	"github.com/caskdb/cask/rpc/transport/http"
	"github.com/caskdb/cask/rpc/transport/tcp"
	"github.com/caskdb/cask/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the cask server",
		Long:    `Start the cask server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is CASK_<flag> (e.g. CASK_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "buckets"
	ServeCmd.PersistentFlags().String(key, "default=local", cmdUtil.WrapString("Comma-separated list of buckets to serve. Format: NAME=TYPE where TYPE is 'local' or 'remote:SHARDID' (e.g. 'default=local,sessions=remote:100')"))

	key = "max-value-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum size of a stored value in bytes (0 for the engine default of 20 MB)"))

	key = "journal-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Directory for the commit journals of local buckets. If empty, local buckets acknowledge persistence without writing a journal"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(Cluster Mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(Cluster Mode) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(Cluster Mode) CompactionOverhead defines the number of snapshots that should be retained in the system. When a new snapshot is generated, the system will attempt to remove older snapshots that go beyond the specified number of retained snapshots. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(Cluster Mode) DataDir is the directory used for storing the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for replicated proposals and durability waits"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. http:localhost:8080, /tmp/cask.sock, ...)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse buckets
	bucketsConfig := viper.GetString("buckets")
	serveCmdConfig.Buckets = []common.ServerBucket{}
	for _, bucketConfig := range strings.Split(bucketsConfig, ",") {
		parts := strings.Split(bucketConfig, "=")
		if len(parts) != 2 {
			return fmt.Errorf("invalid bucket format: %s (expected NAME=TYPE)", bucketConfig)
		}

		name := strings.TrimSpace(parts[0])
		if name == "" {
			return fmt.Errorf("invalid bucket format: %s (empty name)", bucketConfig)
		}

		// Parse bucket type
		bucketType := strings.TrimSpace(parts[1])
		switch {
		case bucketType == "local":
			serveCmdConfig.Buckets = append(serveCmdConfig.Buckets, common.ServerBucket{
				Name: name,
				Type: common.BucketTypeLocal,
			})
		case strings.HasPrefix(bucketType, "remote:"):
			shardID, err := strconv.ParseUint(strings.TrimPrefix(bucketType, "remote:"), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid shard ID in bucket %s: %v", bucketConfig, err)
			}
			serveCmdConfig.Buckets = append(serveCmdConfig.Buckets, common.ServerBucket{
				Name:    name,
				ShardID: shardID,
				Type:    common.BucketTypeRemote,
			})
		default:
			return fmt.Errorf("invalid bucket type: %s (expected 'local' or 'remote:SHARDID')", bucketType)
		}
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.MaxValueSize = viper.GetInt("max-value-size")
	serveCmdConfig.JournalDir = viper.GetString("journal-dir")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = cmdUtil.HashString(id)
	} else if serveCmdConfig.HasRemoteBucket() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required for remote buckets")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		serveCmdConfig.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			serveCmdConfig.ClusterMembers[cmdUtil.HashString(parts[0])] = parts[1]
		}
	} else if serveCmdConfig.HasRemoteBucket() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required for remote buckets")
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && serveCmdConfig.HasRemoteBucket() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	return nil
}

// run starts the cask server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPDefaultServerTransport()
	case "unix":
		t = unix.NewUnixDefaultServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("cask")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
