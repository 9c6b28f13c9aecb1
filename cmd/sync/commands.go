package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gpaciente/psync/cmd/util"
	"github.com/gpaciente/psync/lib/conflict"
	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/syncdata"
	"github.com/gpaciente/psync/rpc/client"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// local addresses the instance behind --endpoint
var local = discovery.Peer{}

func requestContext() (context.Context, context.CancelFunc) {
	timeout := time.Duration(viper.GetInt("timeout")) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

var (
	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "Lists the peers the instance has discovered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := peerClient.Discover(ctx, local)
			if err != nil {
				return err
			}
			if resp.HostWarning != "" {
				fmt.Fprintf(os.Stderr, "warning: %s\n", resp.HostWarning)
			}
			return util.PrintJSON(resp)
		},
	}
	dataCmd = &cobra.Command{
		Use:   "data",
		Short: "Prints the snapshot exported by the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			includeRemoved, _ := cmd.Flags().GetBool("incluir-removidos")

			ctx, cancel := requestContext()
			defer cancel()

			snap, err := peerClient.FetchData(ctx, local, includeRemoved)
			if err != nil {
				return err
			}
			return util.PrintJSON(snap)
		},
	}
	mergeCmd = &cobra.Command{
		Use:   "merge [file]",
		Short: "Merges a snapshot file ({pc_id, pacientes, agendamentos}) into the instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var snap syncdata.Snapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				return fmt.Errorf("invalid snapshot file: %w", err)
			}

			ctx, cancel := requestContext()
			defer cancel()

			stats, err := peerClient.Merge(ctx, local, &snap)
			if err != nil {
				return err
			}
			return util.PrintJSON(stats)
		},
	}
	pullCmd = &cobra.Command{
		Use:   "pull [host[:port]]",
		Short: "Makes the instance pull the data of a peer and merge it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := client.PeerFromEndpoint(args[0])
			if err != nil {
				return err
			}
			bidirectional, _ := cmd.Flags().GetBool("bidirecional")

			ctx, cancel := requestContext()
			defer cancel()

			resp, err := peerClient.Pull(ctx, local, common.PullRequest{IP: peer.IP, Port: peer.Port, Bidirectional: bidirectional})
			if err != nil {
				return err
			}
			return util.PrintJSON(resp)
		},
	}
	conflictsCmd = &cobra.Command{
		Use:   "conflicts",
		Short: "Lists the records in conflict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			list, err := peerClient.Conflicts(ctx, local)
			if err != nil {
				return err
			}
			return util.PrintJSON(list)
		},
	}
	resolveCmd = &cobra.Command{
		Use:   "resolve [tipo] [id] [acao]",
		Short: "Resolves a conflict (acao: manter_local, aceitar_remoto or mesclar)",
		Long: `Resolves the conflict of a single record.

  manter_local    keep the local data and restore its previous status
  aceitar_remoto  take --remote, or the remote version captured with the conflict
  mesclar         take --remote (required), the already merged data

--remote is a JSON object (a record or only its "dados") or @file.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := record.ParseKind(args[0])
			if err != nil {
				return err
			}
			action, err := conflict.ParseAction(args[2])
			if err != nil {
				return err
			}

			req := common.ResolveRequest{RecordID: args[1], Kind: string(kind), Action: string(action)}
			if remote, _ := cmd.Flags().GetString("remote"); remote != "" {
				raw, err := readArg(remote)
				if err != nil {
					return err
				}
				if _, err := conflict.ParseRemote(raw); err != nil {
					return err
				}
				req.RemoteData = raw
			}

			ctx, cancel := requestContext()
			defer cancel()

			resp, err := peerClient.Resolve(ctx, local, req)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Prints election, discovery and sync state of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := peerClient.Status(ctx, local)
			if err != nil {
				return err
			}
			return util.PrintJSON(resp)
		},
	}
)

func init() {
	dataCmd.Flags().Bool("incluir-removidos", false, util.WrapString("Include tombstones (removed records)"))
	pullCmd.Flags().Bool("bidirecional", false, util.WrapString("Push the merged local data back to the peer"))
	resolveCmd.Flags().String("remote", "", util.WrapString("dados_remotos as JSON or @file"))
}

// readArg returns the value itself or the content of the file for @file
func readArg(v string) (json.RawMessage, error) {
	if path, ok := strings.CutPrefix(v, "@"); ok {
		return os.ReadFile(path)
	}
	return json.RawMessage(v), nil
}
