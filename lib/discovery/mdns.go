package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	DefaultMDNSService  = "_gerentepaciente._http._tcp"
	DefaultMDNSInterval = 5 * time.Second
	DefaultMDNSTTL      = 3 * DefaultMDNSInterval
)

// MDNSConfig configures the announce/browse strategy.
type MDNSConfig struct {
	Self    Peer
	PCID    string
	Service string
	// Interval between two browse rounds.
	Interval time.Duration
	// TTL after which a peer that was not seen again is evicted.
	TTL time.Duration
}

// MDNS is the "mdns" strategy built on hashicorp/mdns.
type MDNS struct {
	cfg    MDNSConfig
	table  *PeerTable
	server *mdns.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMDNS(cfg MDNSConfig) *MDNS {
	if cfg.Service == "" {
		cfg.Service = DefaultMDNSService
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMDNSInterval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * cfg.Interval
	}
	m := &MDNS{cfg: cfg, table: NewPeerTable()}
	m.table.Upsert(m.self())
	return m
}

// InstanceName returns the DNS-SD instance name announced for self.
func (m *MDNS) InstanceName() string {
	return fmt.Sprintf("Gerente @ %s-%d", m.cfg.Self.Hostname, m.cfg.Self.Port)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see discovery/interface.go)
// --------------------------------------------------------------------------

func (m *MDNS) Start(ctx context.Context) error {
	ip := net.ParseIP(m.cfg.Self.IP)
	if ip == nil {
		return fmt.Errorf("invalid advertise ip %q", m.cfg.Self.IP)
	}

	txt := []string{
		"pc_id=" + m.cfg.PCID,
		"ip=" + m.cfg.Self.IP,
		"port=" + strconv.Itoa(m.cfg.Self.Port),
	}
	service, err := mdns.NewMDNSService(m.InstanceName(), m.cfg.Service, "", "", m.cfg.Self.Port, []net.IP{ip}, txt)
	if err != nil {
		return fmt.Errorf("failed to create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to start mdns responder: %w", err)
	}
	m.server = server

	ctx, m.cancel = context.WithCancel(ctx)
	Logger.Infof("mdns discovery started: announcing %q as %s", m.InstanceName(), m.cfg.Service)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			m.browse(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (m *MDNS) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	if m.server != nil {
		if err := m.server.Shutdown(); err != nil {
			Logger.Warningf("mdns shutdown: %v", err)
		}
	}
}

func (m *MDNS) Peers() []Peer {
	return m.table.Snapshot()
}

func (m *MDNS) Mode() Mode {
	return ModeMDNS
}

// --------------------------------------------------------------------------
// Browsing
// --------------------------------------------------------------------------

// browse runs one query round, refreshes the peers it saw and evicts those
// not seen within the TTL.
func (m *MDNS) browse(ctx context.Context) {
	entries := make(chan *mdns.ServiceEntry, 32)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if peer, ok := m.entryToPeer(entry); ok {
				m.table.Upsert(peer)
			}
		}
	}()

	params := mdns.DefaultParams(m.cfg.Service)
	params.Entries = entries
	params.Timeout = min(time.Second, m.cfg.Interval)
	params.DisableIPv6 = true
	if err := mdns.Query(params); err != nil && ctx.Err() == nil {
		Logger.Debugf("mdns query failed: %v", err)
	}
	close(entries)
	<-done

	m.table.Upsert(m.self())
	for _, p := range m.table.Evict(time.Now().Add(-m.cfg.TTL), m.cfg.Self.Addr()) {
		Logger.Infof("peer %s (%s) lost", p.Addr(), p.Hostname)
	}
}

// entryToPeer converts a browse answer. Answers without an IPv4 address are
// ignored.
func (m *MDNS) entryToPeer(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	peer := Peer{
		IP:       e.AddrV4.String(),
		Port:     e.Port,
		Hostname: strings.TrimSuffix(e.Host, "."),
		LastSeen: time.Now(),
	}
	if peer.Addr() == m.cfg.Self.Addr() {
		return Peer{}, false
	}
	return peer, true
}

func (m *MDNS) self() Peer {
	p := m.cfg.Self
	p.LastSeen = time.Now()
	return p
}
