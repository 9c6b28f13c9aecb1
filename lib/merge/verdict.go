package merge

import "github.com/gpaciente/psync/lib/record"

// Verdict is the outcome of comparing one remote record with the local row.
type Verdict int

const (
	VerdictInsert            Verdict = iota // no local row, remote is inserted
	VerdictOverwrite                        // remote is newer and replaces the local row
	VerdictConflict                         // local row is flagged as conflict
	VerdictKeepLocal                        // local row is newer
	VerdictIdentical                        // same content, only the envelope differs
	VerdictBothRemoved                      // both sides are tombstones
	VerdictAlreadyInConflict                // local row waits for a resolution
)

func (v Verdict) String() string {
	switch v {
	case VerdictInsert:
		return "insert"
	case VerdictOverwrite:
		return "overwrite"
	case VerdictConflict:
		return "conflict"
	case VerdictKeepLocal:
		return "keep_local"
	case VerdictIdentical:
		return "identical"
	case VerdictBothRemoved:
		return "both_removed"
	case VerdictAlreadyInConflict:
		return "already_in_conflict"
	default:
		return "unknown"
	}
}

// decide compares remote against the local row. local is nil when exists is
// false. It has no side effects.
func decide(local *record.Record, exists bool, remote *record.Record) Verdict {
	if !exists || local == nil {
		return VerdictInsert
	}
	if local.InConflict() {
		return VerdictAlreadyInConflict
	}

	localRemoved, remoteRemoved := local.IsRemoved(), remote.IsRemoved()
	switch {
	case localRemoved != remoteRemoved:
		return VerdictConflict
	case localRemoved && remoteRemoved:
		return VerdictBothRemoved
	}

	if record.SameContent(local, remote) {
		return VerdictIdentical
	}

	switch remote.LastModified.Compare(local.LastModified) {
	case 1:
		return VerdictOverwrite
	case -1:
		return VerdictKeepLocal
	default:
		return VerdictConflict
	}
}
