/*
Package election picks a coordinator among the peers found by a scan.

The leader is the peer with the numerically smallest IPv4 address, ties are
broken by the smallest port and unparsable addresses sort last. Every
instance computes the leader on its own after each scan cycle, so no
messages are needed to agree on it as long as the instances saw the same
peers.

A follower announces itself once per cycle with POST /register to the
leader. The leader checks that it really is the leader of its own peer set
before adding the caller to its roster; any other instance answers with
registered=false.

There is no term, lease or split-brain detection. Two instances that see
different peer sets may both consider themselves leader until their scans
converge.

Per instance the Elector moves through

	Scanning -> Electing -> Leader | Follower

and logs every transition.
*/
package election
