package lstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
	storetesting "github.com/gpaciente/psync/lib/store/testing"
)

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "LocalStore", func() store.IStore {
		return NewLocalStore()
	})
}

func TestSaveLoad(t *testing.T) {
	s := NewLocalStore()
	p := record.New("p1", map[string]any{"nome": "Ana", "idade": 31}, "pc-a")
	removed := record.New("p2", nil, "pc-a")
	removed.Tombstone("pc-a", "maria", record.Now())
	conflicted := record.New("a1", map[string]any{"hora": "10:00"}, "pc-a")
	conflicted.MarkConflict(record.New("a1", map[string]any{"hora": "11:00"}, "pc-b"), record.Now())

	for _, rec := range []*record.Record{p, removed} {
		if err := s.Upsert(record.KindPatient, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Upsert(record.KindAppointment, conflicted); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewLocalStore()
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, found, _ := loaded.Get(record.KindPatient, "p1")
	if !found || !record.SameContent(got, p) || got.Version != p.Version || got.LastModified.Compare(p.LastModified) != 0 {
		t.Errorf("p1 changed after Save/Load: %+v", got)
	}
	got, found, _ = loaded.Get(record.KindPatient, "p2")
	if !found || !got.IsRemoved() || got.RemovedBy != "maria" {
		t.Errorf("tombstone p2 changed after Save/Load: %+v", got)
	}
	got, found, _ = loaded.Get(record.KindAppointment, "a1")
	if !found || !got.InConflict() || got.Conflict == nil || got.Conflict.Remote.Payload["hora"] != "11:00" {
		t.Errorf("conflict a1 changed after Save/Load: %+v", got)
	}
}

func TestLoadRejectsForeignFile(t *testing.T) {
	s := NewLocalStore()
	if err := s.Load(bytes.NewReader([]byte{0x80})); err == nil {
		t.Error("expected error when loading a file without the magic header")
	}
}

func TestOpenFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "replica.msgpack")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open on a missing file failed: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("clean store should not write a file")
	}

	if err := s.Upsert(record.KindPatient, record.New("p1", map[string]any{"nome": "Ana"}, "pc-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, found, _ := reopened.Get(record.KindPatient, "p1"); !found {
		t.Error("p1 not persisted")
	}
}
