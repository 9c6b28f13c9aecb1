package cmd

import (
	"fmt"
	"os"

	"github.com/gpaciente/psync/cmd/serve"
	syncCmd "github.com/gpaciente/psync/cmd/sync"
	"github.com/gpaciente/psync/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "psync",
		Short: "LAN peer discovery and replica synchronization",
		Long: fmt.Sprintf(`psync (v%s)

Keeps the patient and appointment replicas of several PCs on the same
local network in sync: peers are found by scanning or mDNS, the peer
with the smallest address is elected leader, and replicas are merged
record by record with conflicts kept for manual resolution.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of psync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("psync v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(syncCmd.SyncCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer used towards other instances (json, msgpack)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
