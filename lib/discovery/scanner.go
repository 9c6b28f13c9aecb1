package discovery

import (
	"context"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// ScanConfig configures the active scanner.
type ScanConfig struct {
	Self         Peer
	Targets      []Target
	Interval     time.Duration
	ProbeTimeout time.Duration
	Workers      int
}

const (
	DefaultScanInterval = 15 * time.Second
	DefaultProbeTimeout = 600 * time.Millisecond
	DefaultScanWorkers  = 50
)

// ScanMetrics summarizes the scan cycles run so far.
type ScanMetrics struct {
	Cycles         int64   `json:"cycles"`
	LastPeers      int64   `json:"last_peers"`
	MeanCycleMs    float64 `json:"mean_cycle_ms"`
	MaxCycleMs     float64 `json:"max_cycle_ms"`
	ProbesFailed   int64   `json:"probes_failed"`
	ProbesAnswered int64   `json:"probes_answered"`
}

// Scanner is the "scan" strategy. Hooks registered with OnCycle run on the
// scan goroutine after every cycle.
type Scanner struct {
	cfg   ScanConfig
	probe ProbeFunc
	table *PeerTable

	hookMu       sync.Mutex
	onCycleStart []func()
	onCycle      []func([]Peer)

	registry   gometrics.Registry
	cycleTimer gometrics.Timer
	peersGauge gometrics.Gauge
	answered   gometrics.Counter
	failed     gometrics.Counter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanner creates a scanner. Zero config values are replaced by the
// defaults.
func NewScanner(cfg ScanConfig, probe ProbeFunc) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScanInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultScanWorkers
	}

	registry := gometrics.NewRegistry()
	s := &Scanner{
		cfg:        cfg,
		probe:      probe,
		table:      NewPeerTable(),
		registry:   registry,
		cycleTimer: gometrics.GetOrRegisterTimer("discovery.scan.cycle", registry),
		peersGauge: gometrics.GetOrRegisterGauge("discovery.scan.peers", registry),
		answered:   gometrics.GetOrRegisterCounter("discovery.probe.answered", registry),
		failed:     gometrics.GetOrRegisterCounter("discovery.probe.failed", registry),
	}
	s.table.Upsert(s.self())
	return s
}

// OnCycle registers hooks called before a cycle starts and after it ended
// with the new peer set. Either may be nil.
func (s *Scanner) OnCycle(start func(), done func([]Peer)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if start != nil {
		s.onCycleStart = append(s.onCycleStart, start)
	}
	if done != nil {
		s.onCycle = append(s.onCycle, done)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see discovery/interface.go)
// --------------------------------------------------------------------------

func (s *Scanner) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	Logger.Infof("scan discovery started: %d targets, every %s, %d workers", len(s.cfg.Targets), s.cfg.Interval, s.cfg.Workers)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			s.ScanOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scanner) Peers() []Peer {
	return s.table.Snapshot()
}

func (s *Scanner) Mode() Mode {
	return ModeScan
}

// --------------------------------------------------------------------------
// Scanning
// --------------------------------------------------------------------------

// ScanOnce runs a single cycle, replaces the peer table and returns the new
// peer set.
func (s *Scanner) ScanOnce(ctx context.Context) []Peer {
	s.hookMu.Lock()
	startHooks := append([]func(){}, s.onCycleStart...)
	doneHooks := append([]func([]Peer){}, s.onCycle...)
	s.hookMu.Unlock()

	for _, hook := range startHooks {
		hook()
	}

	started := time.Now()
	found := s.sweep(ctx)
	s.cycleTimer.UpdateSince(started)

	if ctx.Err() != nil {
		// a cancelled cycle is incomplete, keep the previous set
		return s.table.Snapshot()
	}

	s.table.Replace(append(found, s.self()))
	peers := s.table.Snapshot()
	s.peersGauge.Update(int64(len(peers)))
	Logger.Debugf("scan cycle finished in %s: %d peers", time.Since(started).Round(time.Millisecond), len(peers))

	for _, hook := range doneHooks {
		hook(peers)
	}
	return peers
}

// sweep probes all targets with a bounded pool of workers.
func (s *Scanner) sweep(ctx context.Context) []Peer {
	selfAddr := s.self().Addr()

	jobs := make(chan Target)
	results := make(chan Peer)

	workers := min(s.cfg.Workers, len(s.cfg.Targets))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				if peer, ok := s.probeOne(ctx, target); ok {
					results <- peer
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, target := range s.cfg.Targets {
			if target.Addr() == selfAddr {
				continue
			}
			select {
			case jobs <- target:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var found []Peer
	for peer := range results {
		found = append(found, peer)
	}
	return found
}

// probeOne probes a single target with the probe timeout.
func (s *Scanner) probeOne(ctx context.Context, target Target) (Peer, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	peer, err := s.probe(probeCtx, target.IP, target.Port)
	if err != nil {
		s.failed.Inc(1)
		return Peer{}, false
	}
	s.answered.Inc(1)

	// fill in what the responder left out
	if peer.IP == "" {
		peer.IP = target.IP
	}
	if peer.Port == 0 {
		peer.Port = target.Port
	}
	peer.LastSeen = time.Now()
	return peer, true
}

func (s *Scanner) self() Peer {
	p := s.cfg.Self
	p.LastSeen = time.Now()
	return p
}

// Metrics returns a summary of the scan cycles.
func (s *Scanner) Metrics() ScanMetrics {
	snap := s.cycleTimer.Snapshot()
	return ScanMetrics{
		Cycles:         snap.Count(),
		LastPeers:      s.peersGauge.Value(),
		MeanCycleMs:    snap.Mean() / float64(time.Millisecond),
		MaxCycleMs:     float64(snap.Max()) / float64(time.Millisecond),
		ProbesFailed:   s.failed.Count(),
		ProbesAnswered: s.answered.Count(),
	}
}
