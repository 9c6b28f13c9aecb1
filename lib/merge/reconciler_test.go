package merge

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
	"github.com/gpaciente/psync/lib/store/lstore"
)

const localID = "pc-local"

var (
	t1 = record.At(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	t2 = record.At(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC))
)

func rec(id, name string, ts record.Timestamp, origin string) *record.Record {
	return &record.Record{
		ID:           id,
		Payload:      map[string]any{"nome": name},
		Status:       record.StatusActive,
		Origin:       origin,
		Version:      1,
		LastModified: ts,
	}
}

func tombstone(r *record.Record) *record.Record {
	r.Status = record.StatusRemoved
	r.RemovedAt = r.LastModified
	r.RemovedBy = "tester"
	return r
}

func newReconciler(t *testing.T, local ...*record.Record) (*Reconciler, store.IStore) {
	t.Helper()
	s := lstore.NewLocalStore()
	for _, r := range local {
		if err := s.Upsert(record.KindPatient, r); err != nil {
			t.Fatal(err)
		}
	}
	rc := NewReconciler(s, localID)
	rc.now = func() record.Timestamp { return t2 }
	return rc, s
}

func get(t *testing.T, s store.IStore, id string) *record.Record {
	t.Helper()
	r, found, err := s.Get(record.KindPatient, id)
	if err != nil || !found {
		t.Fatalf("expected %s to exist (err %v)", id, err)
	}
	return r
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		local  *record.Record
		remote *record.Record
		want   Verdict
	}{
		{"missing locally", nil, rec("p", "A", t1, "b"), VerdictInsert},
		{"remote newer", rec("p", "A", t1, "a"), rec("p", "B", t2, "b"), VerdictOverwrite},
		{"local newer", rec("p", "A", t2, "a"), rec("p", "B", t1, "b"), VerdictKeepLocal},
		{"same timestamp", rec("p", "A", t1, "a"), rec("p", "B", t1, "b"), VerdictConflict},
		{"both timestamps empty", rec("p", "A", record.Timestamp{}, "a"), rec("p", "B", record.Timestamp{}, "b"), VerdictConflict},
		{"identical content, newer remote", rec("p", "A", t1, "a"), rec("p", "A", t2, "b"), VerdictIdentical},
		{"local removed", tombstone(rec("p", "A", t1, "a")), rec("p", "A", t2, "b"), VerdictConflict},
		{"remote removed", rec("p", "A", t2, "a"), tombstone(rec("p", "A", t1, "b")), VerdictConflict},
		{"both removed", tombstone(rec("p", "A", t1, "a")), tombstone(rec("p", "B", t2, "b")), VerdictBothRemoved},
		{"local in conflict", &record.Record{ID: "p", Status: record.StatusConflict}, rec("p", "B", t2, "b"), VerdictAlreadyInConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(tt.local, tt.local != nil, tt.remote); got != tt.want {
				t.Errorf("decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewerRemoteWins(t *testing.T) {
	rc, s := newReconciler(t, rec("P1", "A", t1, localID))
	remote := rec("P1", "B", t2, "pc-remote")
	remote.Version = 1

	res := rc.Merge("pc-remote", []*record.Record{remote}, nil)
	if res.Patients.Updated != 1 {
		t.Errorf("expected 1 update, got %+v", res.Patients)
	}

	got := get(t, s, "P1")
	if got.Payload["nome"] != "B" || got.Origin != "pc-remote" || got.LastModified.Compare(t2) != 0 {
		t.Errorf("remote not applied: %+v", got)
	}
	if got.Version <= 1 {
		t.Errorf("version did not grow on overwrite: %d", got.Version)
	}
}

func TestOlderRemoteIsIgnored(t *testing.T) {
	rc, s := newReconciler(t, rec("P1", "A", t2, localID))
	res := rc.Merge("pc-remote", []*record.Record{rec("P1", "B", t1, "pc-remote")}, nil)
	if res.Patients.Unchanged != 1 || res.Patients.Changed() {
		t.Errorf("expected unchanged, got %+v", res.Patients)
	}
	if got := get(t, s, "P1"); got.Payload["nome"] != "A" || got.Version != 1 {
		t.Errorf("local record changed: %+v", got)
	}
}

func TestTombstoneLearned(t *testing.T) {
	rc, s := newReconciler(t)
	remote := tombstone(rec("P2", "A", t1, ""))
	remote.Version = 4

	res := rc.Merge("pc-remote", []*record.Record{remote}, nil)
	if res.Patients.Added != 1 {
		t.Errorf("expected 1 insert, got %+v", res.Patients)
	}

	got := get(t, s, "P2")
	if !got.IsRemoved() || got.Version != 4 || got.Origin != "pc-remote" {
		t.Errorf("tombstone not learned verbatim: %+v", got)
	}
	active, _ := s.Scan(record.KindPatient, false)
	if len(active) != 0 {
		t.Errorf("tombstone visible as active data: %v", active)
	}
}

func TestTombstonePrecedence(t *testing.T) {
	t.Run("remote tombstone against active", func(t *testing.T) {
		rc, s := newReconciler(t, rec("P1", "A", t1, localID))
		res := rc.Merge("pc-remote", []*record.Record{tombstone(rec("P1", "A", t2, "pc-remote"))}, nil)
		if res.Patients.Conflicts != 1 {
			t.Errorf("expected conflict, got %+v", res.Patients)
		}
		got := get(t, s, "P1")
		if !got.InConflict() || got.Conflict.PriorStatus != record.StatusActive || got.Payload["nome"] != "A" {
			t.Errorf("expected active record flagged as conflict, got %+v", got)
		}
	})

	t.Run("remote active against tombstone", func(t *testing.T) {
		rc, s := newReconciler(t, tombstone(rec("P1", "A", t2, localID)))
		res := rc.Merge("pc-remote", []*record.Record{rec("P1", "A", t1, "pc-remote")}, nil)
		if res.Patients.Conflicts != 1 {
			t.Errorf("expected conflict, got %+v", res.Patients)
		}
		if got := get(t, s, "P1"); !got.InConflict() || got.Conflict.PriorStatus != record.StatusRemoved {
			t.Errorf("expected tombstone flagged as conflict, got %+v", got)
		}
	})
}

func TestNoSilentOverwriteOnTie(t *testing.T) {
	rc, s := newReconciler(t, rec("P1", "A", t1, localID))
	res := rc.Merge("pc-remote", []*record.Record{rec("P1", "B", t1, "pc-remote")}, nil)
	if res.Patients.Conflicts != 1 {
		t.Errorf("expected conflict, got %+v", res.Patients)
	}

	got := get(t, s, "P1")
	if !got.InConflict() || got.Payload["nome"] != "A" {
		t.Errorf("tie resolved silently: %+v", got)
	}
	if got.Version != 2 || got.LastModified.Compare(t2) != 0 {
		t.Errorf("conflict mark did not bump the envelope: %+v", got)
	}
	if got.Origin != localID {
		t.Errorf("conflict mark changed the origin to %s", got.Origin)
	}
	if got.Conflict.Remote == nil || got.Conflict.Remote.Payload["nome"] != "B" {
		t.Errorf("remote candidate not captured: %+v", got.Conflict)
	}
}

func TestIdempotence(t *testing.T) {
	rc, _ := newReconciler(t,
		rec("P1", "A", t1, localID),            // overwritten
		rec("P2", "A", t1, localID),            // conflict
		tombstone(rec("P3", "A", t1, localID)), // tombstone vs active, conflict
		rec("P4", "same", t1, localID),         // identical
	)
	patients := []*record.Record{
		rec("P1", "B", t2, "pc-remote"),
		rec("P2", "B", t1, "pc-remote"),
		rec("P3", "A", t2, "pc-remote"),
		rec("P4", "same", t2, "pc-remote"),
		rec("P5", "new", t1, "pc-remote"),
	}
	appointments := []*record.Record{rec("A1", "10:00", t1, "pc-remote")}

	first := rc.Merge("pc-remote", patients, appointments)
	if !first.Total().Changed() {
		t.Fatalf("first merge changed nothing: %+v", first)
	}

	second := rc.Merge("pc-remote", patients, appointments)
	total := second.Total()
	if total.Added != 0 || total.Updated != 0 || total.Conflicts != 0 || total.Errors != 0 {
		t.Errorf("second merge changed state: %+v", second)
	}
	if total.Unchanged != len(patients)+len(appointments) {
		t.Errorf("expected every record unchanged, got %+v", total)
	}
}

func TestMonotonicVersion(t *testing.T) {
	local := rec("P1", "A", t1, localID)
	local.Version = 7
	rc, s := newReconciler(t, local)

	remote := rec("P1", "B", t2, "pc-remote")
	remote.Version = 2
	rc.Merge("pc-remote", []*record.Record{remote}, nil)

	if got := get(t, s, "P1"); got.Version <= 7 {
		t.Errorf("version went backwards: %d", got.Version)
	}
}

func TestOriginDefaultsToSender(t *testing.T) {
	rc, s := newReconciler(t)
	remote := rec("P1", "A", t1, "")
	remote.Status = ""
	remote.Version = 0
	rc.Merge("pc-remote", []*record.Record{remote}, nil)

	got := get(t, s, "P1")
	if got.Origin != "pc-remote" || got.Status != record.StatusActive || got.Version != 1 {
		t.Errorf("defaults not applied: %+v", got)
	}
}

// failingStore fails every update of one id.
type failingStore struct {
	store.IStore
	failID string
}

func (f *failingStore) Update(kind record.Kind, id string, fn store.UpdateFunc) (*record.Record, error) {
	if id == f.failID {
		return nil, errors.New("disk full")
	}
	return f.IStore.Update(kind, id, fn)
}

func TestPerRecordErrorsDoNotAbort(t *testing.T) {
	s := &failingStore{IStore: lstore.NewLocalStore(), failID: "P2"}
	rc := NewReconciler(s, localID)

	res := rc.Merge("pc-remote", []*record.Record{
		rec("P1", "A", t1, "pc-remote"),
		rec("P2", "A", t1, "pc-remote"),
		{ID: ""},
		rec("P3", "A", t1, "pc-remote"),
	}, nil)

	if res.Patients.Added != 2 || res.Patients.Errors != 2 {
		t.Errorf("expected 2 added and 2 errors, got %+v", res.Patients)
	}
	if _, found, _ := s.Get(record.KindPatient, "P3"); !found {
		t.Error("batch stopped after a failing record")
	}
}

func TestStatsMap(t *testing.T) {
	res := &Result{
		Patients:     Stats{Added: 1, Updated: 2, Conflicts: 3, Unchanged: 4, Errors: 5},
		Appointments: Stats{Added: 10, Updated: 20, Conflicts: 30},
	}
	m := res.StatsMap()

	want := map[string]int{
		"pacientes_adicionados":    1,
		"pacientes_atualizados":    2,
		"pacientes_conflito":       3,
		"pacientes_inalterados":    4,
		"pacientes_erros":          5,
		"agendamentos_adicionados": 10,
		"agendamentos_atualizados": 20,
		"agendamentos_conflito":    30,
		"added":                    11,
		"updated":                  22,
		"conflicts":                33,
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %d, want %d", k, m[k], v)
		}
	}

	if res.Of(record.KindAppointment) != res.Appointments || res.Of(record.KindPatient) != res.Patients {
		t.Errorf("Of returned the wrong collection")
	}
}

func TestMergeConcurrentWithLocalWrites(t *testing.T) {
	const (
		existing = 50
		fresh    = 50
		writers  = 4
		rounds   = 20
		merges   = 2
	)

	var local, remotes []*record.Record
	for i := 0; i < existing; i++ {
		id := fmt.Sprintf("P%d", i)
		local = append(local, rec(id, "A", t1, localID))
		remotes = append(remotes, rec(id, "B", t2, "pc-remote"))
	}
	for i := 0; i < fresh; i++ {
		remotes = append(remotes, rec(fmt.Sprintf("N%d", i), "new", t1, "pc-remote"))
	}
	rc, s := newReconciler(t, local...)

	done := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		seen := make(map[string]uint64, existing)
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, l := range local {
				r, found, err := s.Get(record.KindPatient, l.ID)
				if err != nil || !found {
					t.Errorf("%s vanished (err %v)", l.ID, err)
					return
				}
				if r.Version < seen[l.ID] {
					t.Errorf("%s: version went from %d to %d", l.ID, seen[l.ID], r.Version)
					return
				}
				seen[l.ID] = r.Version
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				for _, l := range local {
					_, err := s.Update(record.KindPatient, l.ID, func(cur *record.Record, exists bool) (*record.Record, error) {
						if !exists {
							return nil, nil
						}
						cur.Payload["nome"] = fmt.Sprintf("edit-%d-%d", w, i)
						cur.Touch(localID, record.Now())
						return cur, nil
					})
					if err != nil {
						t.Errorf("local write of %s: %v", l.ID, err)
					}
				}
			}
		}(w)
	}

	results := make([]*Result, merges)
	for m := 0; m < merges; m++ {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			results[m] = rc.Merge("pc-remote", remotes, nil)
		}(m)
	}

	wg.Wait()
	close(done)
	watcher.Wait()

	var added int
	for _, res := range results {
		p := res.Patients
		if p.Errors != 0 || p.Conflicts != 0 {
			t.Errorf("unexpected errors or conflicts: %+v", p)
		}
		if got := p.Added + p.Updated + p.Unchanged; got != len(remotes) {
			t.Errorf("counted %d records, want %d", got, len(remotes))
		}
		added += p.Added
	}
	if added != fresh {
		t.Errorf("new records added %d times, want %d", added, fresh)
	}

	if n, _ := s.Count(record.KindPatient); n != existing+fresh {
		t.Errorf("expected %d patients, got %d", existing+fresh, n)
	}
	for _, l := range local {
		got := get(t, s, l.ID)
		if got.Version < uint64(1+writers*rounds) {
			t.Errorf("%s: version %d lost local writes", l.ID, got.Version)
		}
	}
}
