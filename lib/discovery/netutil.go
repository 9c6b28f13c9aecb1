package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// LocalIP returns the IPv4 address of the interface used for outbound
// traffic. No packet is sent: dialing UDP only selects a route. It falls back
// to the address of the hostname and finally to 127.0.0.1.
func LocalIP() string {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() != nil {
			return addr.IP.String()
		}
	}
	if host, err := os.Hostname(); err == nil {
		if ips, err := net.LookupIP(host); err == nil {
			for _, ip := range ips {
				if v4 := ip.To4(); v4 != nil && !v4.IsLoopback() {
					return v4.String()
				}
			}
		}
	}
	return "127.0.0.1"
}

// Hostname returns the host name or "unknown".
func Hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

// IsLoopbackHost reports whether a listen host only accepts local
// connections.
func IsLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost":
		return true
	case "", "0.0.0.0", "::":
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// --------------------------------------------------------------------------
// Scan targets
// --------------------------------------------------------------------------

// Target is an address the scanner probes.
type Target struct {
	IP   string
	Port int
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.IP, strconv.Itoa(t.Port))
}

// TargetSpec describes where to scan.
type TargetSpec struct {
	// Explicit entries are "host" or "host:port"; host names are resolved.
	Explicit []string
	// CIDRs are IPv4 prefixes, all host addresses are scanned.
	CIDRs []string
	// LocalIP is used to derive the local /24 when no other source is set.
	LocalIP string
	// Port is used for entries without an explicit port.
	Port int
	// MaxTargets caps the list (0 means 1024).
	MaxTargets int
}

// DefaultMaxTargets is the cap used when TargetSpec.MaxTargets is 0.
const DefaultMaxTargets = 1024

// BuildTargets expands a TargetSpec. The explicit list takes precedence over
// the CIDRs, which take precedence over the local /24. Entries that can not
// be parsed or resolved are skipped with a warning. Duplicates are removed.
func BuildTargets(ctx context.Context, ts TargetSpec) []Target {
	limit := ts.MaxTargets
	if limit <= 0 {
		limit = DefaultMaxTargets
	}

	seen := make(map[string]struct{})
	var out []Target
	add := func(t Target) bool {
		if len(out) >= limit {
			return false
		}
		if _, dup := seen[t.Addr()]; !dup {
			seen[t.Addr()] = struct{}{}
			out = append(out, t)
		}
		return len(out) < limit
	}

	switch {
	case len(ts.Explicit) > 0:
		for _, entry := range ts.Explicit {
			targets, err := resolveEntry(ctx, entry, ts.Port)
			if err != nil {
				Logger.Warningf("skipping scan target %q: %v", entry, err)
				continue
			}
			for _, t := range targets {
				if !add(t) {
					return out
				}
			}
		}
	case len(ts.CIDRs) > 0:
		for _, cidr := range ts.CIDRs {
			prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
			if err != nil || !prefix.Addr().Is4() {
				Logger.Warningf("skipping scan cidr %q: not an IPv4 prefix", cidr)
				continue
			}
			if !expandPrefix(prefix, ts.Port, add) {
				return out
			}
		}
	default:
		ip, err := netip.ParseAddr(ts.LocalIP)
		if err != nil || !ip.Is4() {
			Logger.Warningf("can not derive a /24 from local ip %q", ts.LocalIP)
			return out
		}
		prefix, _ := ip.Prefix(24)
		expandPrefix(prefix, ts.Port, add)
	}
	return out
}

// expandPrefix calls add for every host address of prefix. Network and
// broadcast addresses are skipped for prefixes shorter than /31.
func expandPrefix(prefix netip.Prefix, port int, add func(Target) bool) bool {
	prefix = prefix.Masked()
	skipEdges := prefix.Bits() < 31
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		if skipEdges && (addr == prefix.Addr() || !prefix.Contains(addr.Next())) {
			continue
		}
		if !add(Target{IP: addr.String(), Port: port}) {
			return false
		}
	}
	return true
}

// resolveEntry parses "host" or "host:port" and resolves host names to
// their IPv4 addresses.
func resolveEntry(ctx context.Context, entry string, defaultPort int) ([]Target, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, fmt.Errorf("empty entry")
	}

	host, port := entry, defaultPort
	if h, p, err := net.SplitHostPort(entry); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		host, port = h, n
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		if !ip.Is4() {
			return nil, fmt.Errorf("only IPv4 is supported")
		}
		return []Target{{IP: ip.String(), Port: port}}, nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Target{IP: a.Unmap().String(), Port: port})
	}
	return out, nil
}
