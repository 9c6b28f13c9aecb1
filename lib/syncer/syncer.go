// Package syncer drives pairwise synchronization with other instances: pull
// a peer's snapshot and merge it locally, push the local snapshot to a peer,
// or both. An optional loop pulls from every discovered peer on a schedule.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/merge"
	"github.com/gpaciente/psync/lib/syncdata"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("syncer")

// Client is the part of the peer client the syncer needs.
type Client interface {
	// FetchData downloads the snapshot of peer.
	FetchData(ctx context.Context, peer discovery.Peer, includeRemoved bool) (*syncdata.Snapshot, error)
	// Merge sends snap to peer and returns the merge stats of the peer.
	Merge(ctx context.Context, peer discovery.Peer, snap *syncdata.Snapshot) (map[string]int, error)
}

// PeerState is the outcome of the last sync with a peer.
type PeerState struct {
	Peer      discovery.Peer `json:"peer"`
	LastSync  time.Time      `json:"last_sync"`
	LastError string         `json:"last_error,omitempty"`
	Stats     map[string]int `json:"stats,omitempty"`
}

// ExchangeResult combines both directions of an exchange.
type ExchangeResult struct {
	Pulled map[string]int `json:"pulled"`
	Pushed map[string]int `json:"pushed"`
}

// Syncer runs pull, push and exchange against peers.
type Syncer struct {
	self       discovery.Peer
	reconciler *merge.Reconciler
	exporter   *syncdata.Exporter
	client     Client
	peers      func() []discovery.Peer

	states *xsync.MapOf[string, PeerState]
	runMu  sync.Mutex
}

// New creates a syncer. peers returns the currently known peers and is used
// by the auto-sync loop; it may be nil.
func New(self discovery.Peer, reconciler *merge.Reconciler, exporter *syncdata.Exporter, client Client, peers func() []discovery.Peer) *Syncer {
	return &Syncer{
		self:       self,
		reconciler: reconciler,
		exporter:   exporter,
		client:     client,
		peers:      peers,
		states:     xsync.NewMapOf[string, PeerState](),
	}
}

// Pull fetches the full snapshot of peer (tombstones included) and merges it
// into the local replica.
func (s *Syncer) Pull(ctx context.Context, peer discovery.Peer) (*merge.Result, error) {
	if peer.Addr() == s.self.Addr() {
		return nil, fmt.Errorf("refusing to sync with self (%s)", peer.Addr())
	}

	snap, err := s.client.FetchData(ctx, peer, true)
	if err != nil {
		s.record(peer, nil, err)
		return nil, fmt.Errorf("failed to fetch data from %s: %w", peer.Addr(), err)
	}

	res := s.reconciler.Merge(snap.Origin, snap.Patients, snap.Appointments)
	s.record(peer, res.StatsMap(), nil)
	return res, nil
}

// Push sends the local snapshot (tombstones included) to peer and returns the
// stats reported by the peer.
func (s *Syncer) Push(ctx context.Context, peer discovery.Peer) (map[string]int, error) {
	if peer.Addr() == s.self.Addr() {
		return nil, fmt.Errorf("refusing to sync with self (%s)", peer.Addr())
	}

	snap, err := s.exporter.Export(true)
	if err != nil {
		return nil, err
	}
	stats, err := s.client.Merge(ctx, peer, snap)
	if err != nil {
		s.record(peer, nil, err)
		return nil, fmt.Errorf("failed to push data to %s: %w", peer.Addr(), err)
	}
	return stats, nil
}

// Exchange pulls from peer, then pushes the merged local state back.
func (s *Syncer) Exchange(ctx context.Context, peer discovery.Peer) (*ExchangeResult, error) {
	pulled, err := s.Pull(ctx, peer)
	if err != nil {
		return nil, err
	}
	pushed, err := s.Push(ctx, peer)
	if err != nil {
		return &ExchangeResult{Pulled: pulled.StatsMap()}, err
	}
	return &ExchangeResult{Pulled: pulled.StatsMap(), Pushed: pushed}, nil
}

// SyncAll pulls from every known peer except self. Failures are logged and
// do not stop the round. It returns the number of successful pulls.
func (s *Syncer) SyncAll(ctx context.Context) int {
	if s.peers == nil {
		return 0
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ok := 0
	for _, peer := range s.peers() {
		if ctx.Err() != nil {
			break
		}
		if peer.Addr() == s.self.Addr() {
			continue
		}
		res, err := s.Pull(ctx, peer)
		if err != nil {
			Logger.Warningf("auto-sync with %s failed: %v", peer.Addr(), err)
			continue
		}
		ok++
		if total := res.Total(); total.Changed() {
			Logger.Infof("auto-sync with %s: %d added, %d updated, %d conflicts",
				peer.Addr(), total.Added, total.Updated, total.Conflicts)
		}
	}
	return ok
}

// Run calls SyncAll every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	Logger.Infof("auto-sync every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncAll(ctx)
		}
	}
}

// States returns the last sync outcome per peer.
func (s *Syncer) States() []PeerState {
	out := make([]PeerState, 0, s.states.Size())
	s.states.Range(func(_ string, st PeerState) bool {
		out = append(out, st)
		return true
	})
	return out
}

func (s *Syncer) record(peer discovery.Peer, stats map[string]int, err error) {
	st := PeerState{Peer: peer, LastSync: time.Now(), Stats: stats}
	if err != nil {
		st.LastError = err.Error()
	}
	s.states.Store(peer.Addr(), st)
}
