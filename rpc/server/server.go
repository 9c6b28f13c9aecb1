package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gpaciente/psync/lib/conflict"
	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/election"
	"github.com/gpaciente/psync/lib/identity"
	"github.com/gpaciente/psync/lib/merge"
	"github.com/gpaciente/psync/lib/store/lstore"
	"github.com/gpaciente/psync/lib/syncdata"
	"github.com/gpaciente/psync/lib/syncer"
	"github.com/gpaciente/psync/rpc/client"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/serializer"
	"github.com/gpaciente/psync/rpc/transport"
	httpTransport "github.com/gpaciente/psync/rpc/transport/http"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// ReplicaFileName is the name of the replica file in the data dir
const ReplicaFileName = "replica.msgpack"

// DefaultFlushInterval is used when the configuration has none
const DefaultFlushInterval = 5 * time.Second

// NewRPCServer creates a new server
// It takes a config and a transport as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Create the server
	return &rpcServer{
		config:    config,
		transport: transport,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// rpcServer owns every component of an instance. All of them are created
// once by init and shared by the handlers.
type rpcServer struct {
	config    common.ServerConfig
	transport transport.IRPCServerTransport

	ctx    context.Context
	cancel context.CancelFunc

	pcID       string
	self       discovery.Peer
	mode       discovery.Mode
	store      *lstore.Store
	reconciler *merge.Reconciler
	exporter   *syncdata.Exporter
	conflicts  *conflict.Manager
	client     *client.PeerClient
	discoverer discovery.IDiscoverer
	scanner    *discovery.Scanner // nil in mdns mode
	elector    *election.Elector  // nil in mdns mode
	syncer     *syncer.Syncer
}

// init creates all components. Nothing is started.
func (s *rpcServer) init() error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	mode, err := discovery.ParseMode(s.config.Discovery)
	if err != nil {
		return err
	}
	s.mode = mode

	// Identity and replica
	if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	s.pcID, err = identity.LoadOrCreate(s.config.DataDir, s.config.PCID)
	if err != nil {
		return err
	}
	s.store, err = lstore.Open(filepath.Join(s.config.DataDir, ReplicaFileName))
	if err != nil {
		return err
	}

	// Address other instances reach us at
	ip := s.config.AdvertiseIP
	if ip == "" {
		ip = discovery.LocalIP()
	}
	s.self = discovery.Peer{IP: ip, Port: s.config.Port(), Hostname: discovery.Hostname()}

	// Peer client
	codec, err := serializer.New(s.config.Serializer)
	if err != nil {
		return err
	}
	s.client, err = client.NewPeerClient(common.ClientConfig{
		TimeoutSecond: 30,
		RetryCount:    1,
		Serializer:    codec.Name(),
	}, httpTransport.NewHttpClientTransport(), codec)
	if err != nil {
		return err
	}

	// Sync components (all share the same store)
	s.reconciler = merge.NewReconciler(s.store, s.pcID)
	s.exporter = syncdata.NewExporter(s.store, s.pcID)
	s.conflicts = conflict.NewManager(s.store, s.pcID)

	// Discovery strategy (and election for scan)
	switch mode {
	case discovery.ModeMDNS:
		s.discoverer = discovery.NewMDNS(discovery.MDNSConfig{
			Self:    s.self,
			PCID:    s.pcID,
			Service: s.config.MDNSService,
		})
	case discovery.ModeScan:
		s.initScan()
	}

	s.syncer = syncer.New(s.self, s.reconciler, s.exporter, s.client, s.discoverer.Peers)

	Logger.Infof("instance %s ready at %s (%s discovery)", s.pcID, s.self.Addr(), mode)
	return nil
}

// initScan wires the scanner to the elector: every cycle start moves the
// elector to Scanning, every finished cycle triggers an election.
func (s *rpcServer) initScan() {
	resolveCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	targets := discovery.BuildTargets(resolveCtx, discovery.TargetSpec{
		Explicit:   s.config.Targets,
		CIDRs:      s.config.ScanCIDRs,
		LocalIP:    s.self.IP,
		Port:       s.self.Port,
		MaxTargets: s.config.MaxTargets,
	})
	Logger.Infof("scanning %d targets", len(targets))

	s.elector = election.NewElector(election.Config{
		Self:            s.self,
		RegisterTimeout: s.config.RegisterTimeout,
		OnBecomeLeader: func() {
			Logger.Infof("this instance is the leader")
		},
		OnBecomeFollower: func(leader discovery.Peer) {
			Logger.Infof("following leader %s", leader.Addr())
		},
	}, s.client.Register)

	s.scanner = discovery.NewScanner(discovery.ScanConfig{
		Self:         s.self,
		Targets:      targets,
		Interval:     s.config.ScanInterval,
		ProbeTimeout: s.config.ProbeTimeout,
		Workers:      s.config.ScanWorkers,
	}, s.client.Probe)
	s.scanner.OnCycle(s.elector.BeginScan, func(peers []discovery.Peer) {
		s.elector.OnScanCycle(s.ctx, peers)
	})
	s.discoverer = s.scanner
}

// Serve starts the server
// This function will also initialize all components, start discovery and the
// background loops, and block until SIGINT/SIGTERM or a listener error
func (s *rpcServer) Serve() error {
	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof(s.config.String())

	if err := s.init(); err != nil {
		return err
	}
	defer s.close()

	// Background loops
	if err := s.discoverer.Start(s.ctx); err != nil {
		return fmt.Errorf("failed to start %s discovery: %w", s.mode, err)
	}
	go s.flushLoop()
	if s.config.AutoSyncInterval > 0 {
		go s.syncer.Run(s.ctx, s.config.AutoSyncInterval)
	}

	// Listen until the transport fails or a signal arrives
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- s.transport.Listen(s.config, s.handler())
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-listenErr:
		return err
	case recv := <-sig:
		Logger.Infof("received %s, shutting down", recv)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.transport.Shutdown(shutdownCtx); err != nil {
		Logger.Warningf("http shutdown: %v", err)
	}
	if err := <-listenErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// flushLoop writes the replica to disk periodically
func (s *rpcServer) flushLoop() {
	interval := s.config.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.Flush(); err != nil {
				Logger.Errorf("failed to flush replica: %v", err)
			}
		}
	}
}

// close stops all background work and flushes the replica
func (s *rpcServer) close() {
	s.cancel()
	if s.discoverer != nil {
		s.discoverer.Stop()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			Logger.Errorf("failed to flush replica on shutdown: %v", err)
		}
	}
	Logger.Infof("instance %s stopped", s.pcID)
}
