package merge

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("merge")

// Reconciler merges remote records into the local replica.
type Reconciler struct {
	store   store.IStore
	localID string
	now     func() record.Timestamp
}

// NewReconciler creates a reconciler writing to s on behalf of the
// installation localID.
func NewReconciler(s store.IStore, localID string) *Reconciler {
	return &Reconciler{
		store:   s,
		localID: localID,
		now:     record.Now,
	}
}

// Merge applies both collections of a remote snapshot. remoteOrigin is the
// pc_id of the sender and is used for records that carry no origin.
func (r *Reconciler) Merge(remoteOrigin string, patients, appointments []*record.Record) *Result {
	res := &Result{
		Patients:     r.MergeCollection(record.KindPatient, remoteOrigin, patients),
		Appointments: r.MergeCollection(record.KindAppointment, remoteOrigin, appointments),
	}
	total := res.Total()
	Logger.Infof("merge from %q done: %d added, %d updated, %d conflicts, %d unchanged, %d errors",
		remoteOrigin, total.Added, total.Updated, total.Conflicts, total.Unchanged, total.Errors)
	return res
}

// MergeCollection applies the records of one collection. A failing record is
// counted as error and does not stop the batch.
func (r *Reconciler) MergeCollection(kind record.Kind, remoteOrigin string, remotes []*record.Record) Stats {
	var stats Stats
	for _, remote := range remotes {
		verdict, err := r.mergeOne(kind, remoteOrigin, remote)
		if err != nil {
			stats.Errors++
			countVerdict(kind, "error")
			Logger.Warningf("merge of %s failed: %v", kind, err)
			continue
		}
		stats.count(verdict)
		countVerdict(kind, verdict.String())
	}
	return stats
}

// mergeOne runs decide and applies its verdict inside one atomic row update.
func (r *Reconciler) mergeOne(kind record.Kind, remoteOrigin string, in *record.Record) (Verdict, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	remote := in.Clone()
	remote.Normalize()
	if remote.Origin == "" {
		remote.Origin = remoteOrigin
	}

	var verdict Verdict
	_, err := r.store.Update(kind, remote.ID, func(local *record.Record, exists bool) (*record.Record, error) {
		verdict = decide(local, exists, remote)
		switch verdict {
		case VerdictInsert:
			return remote.Clone(), nil
		case VerdictOverwrite:
			next := remote.Clone()
			next.Version = max(remote.Version, local.Version+1)
			return next, nil
		case VerdictConflict:
			local.MarkConflict(remote, r.now())
			Logger.Infof("%s %s in conflict with %s", kind, local.ID, remote.Origin)
			return local, nil
		default:
			return nil, nil
		}
	})
	if err != nil {
		return verdict, fmt.Errorf("%s %s: %w", kind, remote.ID, err)
	}
	return verdict, nil
}

func countVerdict(kind record.Kind, verdict string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`psync_merge_records_total{collection=%q,verdict=%q}`,
		kind.Collection(), verdict)).Inc()
}
