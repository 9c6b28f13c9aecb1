package election

import (
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registration is a follower known to the leader.
type Registration struct {
	IP           string    `json:"ip"`
	Port         int       `json:"port"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// Roster holds the followers that registered with this instance.
type Roster struct {
	entries *xsync.MapOf[string, Registration]
}

func NewRoster() *Roster {
	return &Roster{entries: xsync.NewMapOf[string, Registration]()}
}

// Register adds ip:port or refreshes its timestamp. It reports whether the
// follower was new.
func (r *Roster) Register(ip string, port int, now time.Time) bool {
	isNew := false
	r.entries.Compute(net.JoinHostPort(ip, strconv.Itoa(port)), func(old Registration, loaded bool) (Registration, bool) {
		if !loaded {
			isNew = true
			return Registration{IP: ip, Port: port, RegisteredAt: now, LastSeen: now}, false
		}
		old.LastSeen = now
		return old, false
	})
	return isNew
}

// Len returns the number of followers.
func (r *Roster) Len() int {
	return r.entries.Size()
}

// Clear forgets all followers.
func (r *Roster) Clear() {
	r.entries.Clear()
}

// Snapshot returns the followers ordered by address.
func (r *Roster) Snapshot() []Registration {
	out := make([]Registration, 0, r.entries.Size())
	r.entries.Range(func(_ string, reg Registration) bool {
		out = append(out, reg)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].Port < out[j].Port
	})
	return out
}
