package election

import (
	"net/netip"

	"github.com/gpaciente/psync/lib/discovery"
)

// Less reports whether a ranks before b for leadership.
func Less(a, b discovery.Peer) bool {
	ipA, errA := netip.ParseAddr(a.IP)
	ipB, errB := netip.ParseAddr(b.IP)
	validA, validB := errA == nil && ipA.Is4(), errB == nil && ipB.Is4()

	switch {
	case validA && !validB:
		return true
	case !validA && validB:
		return false
	case validA && validB:
		if c := ipA.Compare(ipB); c != 0 {
			return c < 0
		}
	default:
		if a.IP != b.IP {
			return a.IP < b.IP
		}
	}
	return a.Port < b.Port
}

// Leader returns the peer ranking first, false for an empty set. The result
// does not depend on the order of peers.
func Leader(peers []discovery.Peer) (discovery.Peer, bool) {
	if len(peers) == 0 {
		return discovery.Peer{}, false
	}
	best := peers[0]
	for _, p := range peers[1:] {
		if Less(p, best) {
			best = p
		}
	}
	return best, true
}
