/*
Package discovery finds other instances on the local network.

Two strategies implement IDiscoverer and are chosen once at start-up:

  - Scanner (mode "scan") probes a list of addresses every interval with a
    bounded pool of workers. Each probe is a GET /health with a short
    timeout; addresses that answer ok join the peer set. The set is rebuilt
    on every cycle and always contains the instance itself. Failed probes are
    dropped for the cycle and not retried.

  - MDNS (mode "mdns") announces the instance with a DNS-SD service record
    and periodically browses for other announcers. Peers that are not seen
    again within a TTL are evicted.

Both strategies write only to a PeerTable, a mutex-guarded table keyed by
ip:port, and never fail as a whole: Peers always returns the best-effort set
of the last cycle.

The probe itself is injected (ProbeFunc) so this package has no dependency
on the HTTP client.

Scan cycles are measured with rcrowley/go-metrics (cycle timer, peer gauge);
see Scanner.Metrics.
*/
package discovery
