package discovery

import (
	"net"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Peer is an instance that answered during the last discovery cycle.
type Peer struct {
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	Hostname string    `json:"hostname"`
	LastSeen time.Time `json:"-"`
}

// Addr returns ip:port, the key of a peer.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// --------------------------------------------------------------------------
// Peer Table
// --------------------------------------------------------------------------

// PeerTable is the set of known peers keyed by ip:port. It is safe for
// concurrent use; all reads return copies.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]Peer)}
}

// Replace swaps the whole content of the table in one step.
func (t *PeerTable) Replace(peers []Peer) {
	next := make(map[string]Peer, len(peers))
	for _, p := range peers {
		next[p.Addr()] = p
	}
	t.mu.Lock()
	t.peers = next
	t.mu.Unlock()
}

// Upsert adds a peer or refreshes an existing one.
func (t *PeerTable) Upsert(p Peer) {
	t.mu.Lock()
	t.peers[p.Addr()] = p
	t.mu.Unlock()
}

// Remove deletes the peer with the given ip:port.
func (t *PeerTable) Remove(addr string) {
	t.mu.Lock()
	delete(t.peers, addr)
	t.mu.Unlock()
}

// Evict removes all peers last seen before cutoff, except keep, and returns
// the evicted ones.
func (t *PeerTable) Evict(cutoff time.Time, keep string) []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []Peer
	for addr, p := range t.peers {
		if addr != keep && p.LastSeen.Before(cutoff) {
			evicted = append(evicted, p)
			delete(t.peers, addr)
		}
	}
	return evicted
}

// Len returns the number of peers.
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Snapshot returns the peers ordered by ip:port.
func (t *PeerTable) Snapshot() []Peer {
	t.mu.RLock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr() < out[j].Addr() })
	return out
}
