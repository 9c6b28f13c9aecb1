package testing

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
)

// StoreFactory is a function that creates a new, empty store instance
type StoreFactory func() store.IStore

// RunStoreTests runs the conformance suite for a store.IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Upsert&Get", func(t *testing.T) {
			testUpsertGet(t, factory())
		})

		t.Run("ReturnsCopies", func(t *testing.T) {
			testReturnsCopies(t, factory())
		})

		t.Run("ScanTombstones", func(t *testing.T) {
			testScanTombstones(t, factory())
		})

		t.Run("CollectionsAreIndependent", func(t *testing.T) {
			testCollectionsIndependent(t, factory())
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory())
		})

		t.Run("UpdateError", func(t *testing.T) {
			testUpdateError(t, factory())
		})

		t.Run("ConcurrentUpdates", func(t *testing.T) {
			testConcurrentUpdates(t, factory())
		})

		t.Run("UnknownCollection", func(t *testing.T) {
			testUnknownCollection(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testUpsertGet(t *testing.T, s store.IStore) {
	rec := record.New("p1", map[string]any{"nome": "Ana"}, "pc-a")
	if err := s.Upsert(record.KindPatient, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, found, err := s.Get(record.KindPatient, "p1")
	if err != nil || !found {
		t.Fatalf("expected p1 to exist after Upsert (found=%v, err=%v)", found, err)
	}
	if got.Payload["nome"] != "Ana" || got.Version != 1 {
		t.Errorf("unexpected record %+v", got)
	}

	_, found, err = s.Get(record.KindPatient, "missing")
	if err != nil || found {
		t.Errorf("expected missing record to return found=false (found=%v, err=%v)", found, err)
	}

	if err := s.Upsert(record.KindPatient, &record.Record{}); err == nil {
		t.Error("expected Upsert of a record without id to fail")
	}

	n, err := s.Count(record.KindPatient)
	if err != nil || n != 1 {
		t.Errorf("expected count 1, got %d (err %v)", n, err)
	}
}

func testReturnsCopies(t *testing.T, s store.IStore) {
	rec := record.New("p1", map[string]any{"nome": "Ana"}, "pc-a")
	if err := s.Upsert(record.KindPatient, rec); err != nil {
		t.Fatal(err)
	}
	rec.Payload["nome"] = "changed after upsert"

	got, _, _ := s.Get(record.KindPatient, "p1")
	got.Payload["nome"] = "changed after get"

	scanned, _ := s.Scan(record.KindPatient, true)
	scanned[0].Payload["nome"] = "changed after scan"

	again, _, _ := s.Get(record.KindPatient, "p1")
	if again.Payload["nome"] != "Ana" {
		t.Errorf("store leaked internal state, got %v", again.Payload["nome"])
	}
}

func testScanTombstones(t *testing.T, s store.IStore) {
	for i := 3; i >= 1; i-- {
		rec := record.New(fmt.Sprintf("p%d", i), nil, "pc-a")
		if i == 2 {
			rec.Tombstone("pc-a", "tester", record.Now())
		}
		if err := s.Upsert(record.KindPatient, rec); err != nil {
			t.Fatal(err)
		}
	}

	active, err := s.Scan(record.KindPatient, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].ID != "p1" || active[1].ID != "p3" {
		t.Errorf("expected [p1 p3] without tombstones, got %v", ids(active))
	}

	all, err := s.Scan(record.KindPatient, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[1].ID != "p2" || !all[1].IsRemoved() {
		t.Errorf("expected [p1 p2 p3] with tombstone p2, got %v", ids(all))
	}
}

func testCollectionsIndependent(t *testing.T, s store.IStore) {
	if err := s.Upsert(record.KindPatient, record.New("x", nil, "pc-a")); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.Get(record.KindAppointment, "x"); found {
		t.Error("record of one collection visible in the other")
	}
	if n, _ := s.Count(record.KindAppointment); n != 0 {
		t.Errorf("expected empty appointments, got %d", n)
	}
}

func testUpdate(t *testing.T, s store.IStore) {
	// insert through Update
	rec, err := s.Update(record.KindAppointment, "a1", func(cur *record.Record, exists bool) (*record.Record, error) {
		if exists || cur != nil {
			t.Errorf("expected no current record, got %+v", cur)
		}
		return record.New("a1", map[string]any{"hora": "10:00"}, "pc-a"), nil
	})
	if err != nil || rec == nil || rec.Version != 1 {
		t.Fatalf("insert via Update failed: rec=%+v err=%v", rec, err)
	}

	// modify through Update
	rec, err = s.Update(record.KindAppointment, "a1", func(cur *record.Record, exists bool) (*record.Record, error) {
		if !exists {
			t.Fatal("expected existing record")
		}
		cur.Payload["hora"] = "11:00"
		cur.Touch("pc-a", record.Now())
		return cur, nil
	})
	if err != nil || rec.Version != 2 || rec.Payload["hora"] != "11:00" {
		t.Fatalf("modify via Update failed: rec=%+v err=%v", rec, err)
	}

	// nil result leaves the row untouched
	rec, err = s.Update(record.KindAppointment, "a1", func(cur *record.Record, _ bool) (*record.Record, error) {
		cur.Payload["hora"] = "ignored"
		return nil, nil
	})
	if err != nil || rec.Payload["hora"] != "11:00" {
		t.Errorf("no-op Update changed the row: rec=%+v err=%v", rec, err)
	}

	// nil result on a missing row does not create it
	if _, err := s.Update(record.KindAppointment, "a2", func(*record.Record, bool) (*record.Record, error) {
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.Get(record.KindAppointment, "a2"); found {
		t.Error("no-op Update created a row")
	}

	// the id can not be changed
	if _, err := s.Update(record.KindAppointment, "a1", func(cur *record.Record, _ bool) (*record.Record, error) {
		cur.ID = "other"
		return cur, nil
	}); err == nil {
		t.Error("expected error when Update changes the id")
	}
}

func testUpdateError(t *testing.T, s store.IStore) {
	if err := s.Upsert(record.KindPatient, record.New("p1", map[string]any{"v": "a"}, "pc-a")); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	_, err := s.Update(record.KindPatient, "p1", func(cur *record.Record, _ bool) (*record.Record, error) {
		cur.Payload["v"] = "b"
		return cur, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected the update error to be returned, got %v", err)
	}
	got, _, _ := s.Get(record.KindPatient, "p1")
	if got.Payload["v"] != "a" {
		t.Errorf("failed Update changed the row: %+v", got)
	}

	_, err = s.Update(record.KindPatient, "p9", func(*record.Record, bool) (*record.Record, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected the update error for a missing row, got %v", err)
	}
	if _, found, _ := s.Get(record.KindPatient, "p9"); found {
		t.Error("failed Update created a row")
	}
}

func testConcurrentUpdates(t *testing.T, s store.IStore) {
	if err := s.Upsert(record.KindPatient, record.New("counter", nil, "pc-a")); err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.Update(record.KindPatient, "counter", func(cur *record.Record, _ bool) (*record.Record, error) {
					cur.Touch("pc-a", record.Now())
					return cur, nil
				})
				if err != nil {
					t.Errorf("update failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, _, _ := s.Get(record.KindPatient, "counter")
	if want := uint64(1 + workers*perWorker); got.Version != want {
		t.Errorf("lost updates: expected version %d, got %d", want, got.Version)
	}
}

func testUnknownCollection(t *testing.T, s store.IStore) {
	var storeErr *store.Error
	if _, _, err := s.Get("consultas", "x"); !errors.As(err, &storeErr) || storeErr.Code != store.RetCInvalidOperation {
		t.Errorf("expected InvalidOperation for unknown collection, got %v", err)
	}
	if _, err := s.Scan("consultas", true); err == nil {
		t.Error("expected error for Scan of unknown collection")
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func ids(recs []*record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
