package kv

import (
	"github.com/caskdb/cask/cmd/util"
	"github.com/caskdb/cask/lib/bucket"
	"github.com/caskdb/cask/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcBucket bucket.IBucket

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform document operations on a bucket",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Select the bucket all operations are routed to
	KeyValueCommands.PersistentFlags().String("bucket", "default", util.WrapString("Name of the bucket to connect to"))

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(insertCmd)
	KeyValueCommands.AddCommand(upsertCmd)
	KeyValueCommands.AddCommand(replaceCmd)
	KeyValueCommands.AddCommand(removeCmd)
	KeyValueCommands.AddCommand(counterCmd)
	KeyValueCommands.AddCommand(appendCmd)
	KeyValueCommands.AddCommand(prependCmd)
	KeyValueCommands.AddCommand(touchCmd)
	KeyValueCommands.AddCommand(getAndTouchCmd)
	KeyValueCommands.AddCommand(lockCmd)
	KeyValueCommands.AddCommand(unlockCmd)
	KeyValueCommands.AddCommand(endureCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC bucket client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	bucketName := util.GetBucketName()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the bucket client
	rpcBucket, err = client.NewRPCBucket(
		bucketName,
		*config,
		t,
		s,
	)

	return err
}
