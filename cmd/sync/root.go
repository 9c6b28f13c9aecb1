package sync

import (
	"github.com/gpaciente/psync/cmd/util"
	"github.com/gpaciente/psync/rpc/client"
	"github.com/spf13/cobra"
)

var (
	peerClient *client.PeerClient

	// SyncCommands represents the sync command group
	SyncCommands = &cobra.Command{
		Use:               "sync",
		Short:             "Inspect and drive the synchronization of an instance",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add connection flags
	util.SetupClientFlags(SyncCommands)

	// Add subcommands
	SyncCommands.AddCommand(discoverCmd)
	SyncCommands.AddCommand(dataCmd)
	SyncCommands.AddCommand(mergeCmd)
	SyncCommands.AddCommand(pullCmd)
	SyncCommands.AddCommand(conflictsCmd)
	SyncCommands.AddCommand(resolveCmd)
	SyncCommands.AddCommand(statusCmd)
}

// setupClient initializes the peer client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	peerClient, err = util.NewClient()
	return err
}
