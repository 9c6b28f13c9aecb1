package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("discovery")

// Mode selects the discovery strategy.
type Mode string

const (
	ModeScan Mode = "scan"
	ModeMDNS Mode = "mdns"
)

// ParseMode validates a mode name from the configuration.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeScan, ModeMDNS:
		return m, nil
	}
	return "", fmt.Errorf("invalid discovery mode %q (expected scan or mdns)", s)
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IDiscoverer is a peer discovery strategy.
type IDiscoverer interface {
	// Start launches the background discovery loop. It returns once the
	// loop is running; the loop stops when ctx is done or Stop is called.
	Start(ctx context.Context) error
	// Stop stops the loop and waits for it to exit.
	Stop()
	// Peers returns the peers found by the most recent cycle, self included.
	Peers() []Peer
	// Mode returns the strategy name.
	Mode() Mode
}

// ProbeFunc checks whether an instance is listening at ip:port. On success
// it returns the peer as the instance describes itself.
type ProbeFunc func(ctx context.Context, ip string, port int) (Peer, error)
