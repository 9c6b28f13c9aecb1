package serve

import (
	"fmt"
	"time"

	cmdUtil "github.com/gpaciente/psync/cmd/util"
	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/election"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/server"
	"github.com/gpaciente/psync/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a psync instance",
		Long:    `Start a psync instance with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is PSYNC_<flag> (e.g. PSYNC_SCAN_INTERVAL=30s). A .env and .env.local file in the working directory are loaded as well.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, fmt.Sprintf("0.0.0.0:%d", common.DefaultPort), cmdUtil.WrapString("The address on which the API will listen. Use 0.0.0.0 so other PCs on the network can reach this instance"))

	key = "advertise-ip"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("IPv4 address other instances reach this one at (default: detected local address)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory holding the replica file and the installation id (.pc_id)"))

	key = "pc-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Override the installation id (default: read from or created in the data dir)"))

	key = "flush-interval"
	ServeCmd.PersistentFlags().Duration(key, server.DefaultFlushInterval, cmdUtil.WrapString("How often the replica is written to disk"))

	key = "discovery"
	ServeCmd.PersistentFlags().String(key, string(discovery.ModeScan), cmdUtil.WrapString("Peer discovery strategy: scan (probe the network, elect a leader) or mdns (announce and browse)"))

	key = "scan-interval"
	ServeCmd.PersistentFlags().Duration(key, discovery.DefaultScanInterval, cmdUtil.WrapString("(scan) Time between two scan cycles"))

	key = "probe-timeout"
	ServeCmd.PersistentFlags().Duration(key, discovery.DefaultProbeTimeout, cmdUtil.WrapString("(scan) Timeout of a single GET /health probe"))

	key = "scan-workers"
	ServeCmd.PersistentFlags().Int(key, discovery.DefaultScanWorkers, cmdUtil.WrapString("(scan) Number of concurrent probes"))

	key = "targets"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(scan) Comma-separated list of hosts to probe (host or host:port). Takes precedence over scan-cidrs and the local /24"))

	key = "scan-cidrs"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(scan) Comma-separated list of IPv4 networks to probe (e.g. 192.168.0.0/24). Default is the /24 of the local address"))

	key = "max-targets"
	ServeCmd.PersistentFlags().Int(key, discovery.DefaultMaxTargets, cmdUtil.WrapString("(scan) Upper bound of probed addresses per cycle"))

	key = "register-timeout"
	ServeCmd.PersistentFlags().Duration(key, election.DefaultRegisterTimeout, cmdUtil.WrapString("(scan) Timeout of the registration with the leader"))

	key = "mdns-service"
	ServeCmd.PersistentFlags().String(key, discovery.DefaultMDNSService, cmdUtil.WrapString("(mdns) Service type announced and browsed"))

	key = "auto-sync-interval"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Pull from every discovered peer at this interval (0 disables auto sync)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.AdvertiseIP = viper.GetString("advertise-ip")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.PCID = viper.GetString("pc-id")
	serveCmdConfig.FlushInterval = viper.GetDuration("flush-interval")
	serveCmdConfig.Discovery = viper.GetString("discovery")
	serveCmdConfig.ScanInterval = viper.GetDuration("scan-interval")
	serveCmdConfig.ProbeTimeout = viper.GetDuration("probe-timeout")
	serveCmdConfig.ScanWorkers = viper.GetInt("scan-workers")
	serveCmdConfig.Targets = cmdUtil.SplitList(viper.GetString("targets"))
	serveCmdConfig.ScanCIDRs = cmdUtil.SplitList(viper.GetString("scan-cidrs"))
	serveCmdConfig.MaxTargets = viper.GetInt("max-targets")
	serveCmdConfig.RegisterTimeout = viper.GetDuration("register-timeout")
	serveCmdConfig.MDNSService = viper.GetString("mdns-service")
	serveCmdConfig.AutoSyncInterval = viper.GetDuration("auto-sync-interval")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// validate early, before anything is created
	if _, err := discovery.ParseMode(serveCmdConfig.Discovery); err != nil {
		return err
	}
	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	if serveCmdConfig.ScanInterval < time.Second && serveCmdConfig.Discovery == string(discovery.ModeScan) {
		return fmt.Errorf("scan interval %s is too short (minimum 1s)", serveCmdConfig.ScanInterval)
	}
	return serveCmdConfig.Validate()
}

// run starts the psync instance
func run(_ *cobra.Command, _ []string) error {
	serv := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(),
	)

	return serv.Serve()
}
