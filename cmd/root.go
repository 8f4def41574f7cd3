package cmd

import (
	"fmt"
	"os"

	"github.com/caskdb/cask/cmd/kv"
	"github.com/caskdb/cask/cmd/serve"
	"github.com/caskdb/cask/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cask",
		Short: "networked key-value document store",
		Long: fmt.Sprintf(`cask (v%s)

A networked key-value document store written in Go with CAS-based
optimistic concurrency, pessimistic document locks, TTL expiry and
quorum durability acknowledgment. Buckets can be served in-process
or replicated via RAFT consensus.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cask",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cask v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
