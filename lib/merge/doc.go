/*
Package merge applies a remote snapshot to the local replica.

Every remote record is handled on its own: the local row is read, a verdict
is computed by decide and the result is written back inside a single
store.IStore.Update call, so the read-decide-write step is atomic for that id
while other rows stay writable. There is no lock over the whole batch.

# Verdicts

For a remote record r and the local row l with the same id:

	l missing                          -> insert r as is
	l already in conflict              -> unchanged (waits for an operator)
	exactly one of l, r removed        -> conflict
	both removed                       -> unchanged
	same content (envelope ignored)    -> unchanged
	r.LastModified > l.LastModified    -> overwrite l with r
	r.LastModified < l.LastModified    -> keep l (unchanged)
	equal timestamps                   -> conflict

A conflict never discards data: the local row keeps its payload, its status
becomes conflito and the remote candidate is stored next to it until it is
resolved with package conflict.

Merging the same snapshot twice changes nothing on the second run: inserted
and overwritten rows are identical to the remote afterwards, and rows already
in conflict are left alone.

# Metrics

Each verdict increments psync_merge_records_total{collection, verdict}
(VictoriaMetrics/metrics), exposed by the server on /metrics.
*/
package merge
