package lstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"
)

var Logger = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum    = "PSYNCDB\x00" // File format identifier
	fileVersion = 1             // Replica file version
)

// replicaFile is the on-disk layout written by Save.
type replicaFile struct {
	Magic        string           `json:"magic"`
	Version      int              `json:"version"`
	Patients     []*record.Record `json:"pacientes"`
	Appointments []*record.Record `json:"agendamentos"`
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is an in-memory replica. Each collection is an xsync.MapOf keyed by
// record id; writes to a single row go through MapOf.Compute, which holds the
// bucket lock while the update function runs.
type Store struct {
	collections map[record.Kind]*xsync.MapOf[string, *record.Record]

	// persistence (path is empty for a purely in-memory store)
	path   string
	dirty  atomic.Bool
	saveMu sync.Mutex
}

// NewLocalStore creates an empty, non-persistent store.
func NewLocalStore() *Store {
	s := &Store{
		collections: make(map[record.Kind]*xsync.MapOf[string, *record.Record], len(record.Kinds)),
	}
	for _, kind := range record.Kinds {
		s.collections[kind] = xsync.NewMapOf[string, *record.Record]()
	}
	return s
}

// Open creates a store backed by the file at path. If the file exists it is
// loaded, otherwise the store starts empty and the file is created on the
// first Flush.
func Open(path string) (*Store, error) {
	s := NewLocalStore()
	s.path = path

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		Logger.Infof("no replica file at %s, starting empty", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open replica file: %w", err)
	}
	defer f.Close()

	if err := s.Load(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("failed to load replica file %s: %w", path, err)
	}
	Logger.Infof("loaded replica from %s", path)
	return s, nil
}

// collection returns the map of a kind or an InvalidOperation error.
func (s *Store) collection(kind record.Kind) (*xsync.MapOf[string, *record.Record], error) {
	m, ok := s.collections[kind]
	if !ok {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown collection %q", kind))
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Get(kind record.Kind, id string) (*record.Record, bool, error) {
	m, err := s.collection(kind)
	if err != nil {
		return nil, false, err
	}
	rec, ok := m.Load(id)
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *Store) Scan(kind record.Kind, includeRemoved bool) ([]*record.Record, error) {
	m, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	recs := make([]*record.Record, 0, m.Size())
	m.Range(func(_ string, rec *record.Record) bool {
		if includeRemoved || !rec.IsRemoved() {
			recs = append(recs, rec.Clone())
		}
		return true
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (s *Store) Upsert(kind record.Kind, rec *record.Record) error {
	if err := rec.Validate(); err != nil {
		return store.NewError(store.RetCInvalidOperation, err.Error())
	}
	m, err := s.collection(kind)
	if err != nil {
		return err
	}
	m.Store(rec.ID, rec.Clone())
	s.dirty.Store(true)
	return nil
}

func (s *Store) Update(kind record.Kind, id string, fn store.UpdateFunc) (*record.Record, error) {
	m, err := s.collection(kind)
	if err != nil {
		return nil, err
	}

	var (
		result *record.Record
		fnErr  error
	)
	m.Compute(id, func(old *record.Record, loaded bool) (*record.Record, bool) {
		next, err := fn(old.Clone(), loaded)
		if err == nil && next != nil && next.ID != id {
			err = store.NewError(store.RetCInvalidOperation, fmt.Sprintf("update of %s returned record %s", id, next.ID))
		}
		if err != nil {
			fnErr = err
			return old, !loaded
		}
		if next == nil {
			result = old.Clone()
			return old, !loaded
		}
		stored := next.Clone()
		result = stored.Clone()
		s.dirty.Store(true)
		return stored, false
	})
	if fnErr != nil {
		return nil, fnErr
	}
	return result, nil
}

func (s *Store) Count(kind record.Kind) (int, error) {
	m, err := s.collection(kind)
	if err != nil {
		return 0, err
	}
	return m.Size(), nil
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes all collections (tombstones and conflicts included) to w.
func (s *Store) Save(w io.Writer) error {
	patients, err := s.Scan(record.KindPatient, true)
	if err != nil {
		return err
	}
	appointments, err := s.Scan(record.KindAppointment, true)
	if err != nil {
		return err
	}

	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(&replicaFile{
		Magic:        magicNum,
		Version:      fileVersion,
		Patients:     patients,
		Appointments: appointments,
	})
}

// Load replaces the content of the store with the data read from r.
func (s *Store) Load(r io.Reader) error {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")

	var file replicaFile
	if err := dec.Decode(&file); err != nil {
		return err
	}
	if file.Magic != magicNum {
		return fmt.Errorf("invalid replica file (magic %q)", file.Magic)
	}
	if file.Version != fileVersion {
		return fmt.Errorf("unsupported replica file version %d", file.Version)
	}

	load := func(kind record.Kind, recs []*record.Record) error {
		m := s.collections[kind]
		m.Clear()
		for _, rec := range recs {
			if err := rec.Validate(); err != nil {
				return fmt.Errorf("%s: %w", kind.Collection(), err)
			}
			m.Store(rec.ID, rec)
		}
		return nil
	}
	if err := load(record.KindPatient, file.Patients); err != nil {
		return err
	}
	return load(record.KindAppointment, file.Appointments)
}

// Flush writes the replica to its file if it changed since the last flush.
// The file is replaced atomically (write to a temp file, then rename).
func (s *Store) Flush() error {
	if s.path == "" || !s.dirty.Swap(false) {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".replica-*")
	if err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := s.Save(w); err != nil {
		tmp.Close()
		s.dirty.Store(true)
		return fmt.Errorf("failed to write replica: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		s.dirty.Store(true)
		return err
	}
	if err := tmp.Close(); err != nil {
		s.dirty.Store(true)
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("failed to replace replica file: %w", err)
	}
	Logger.Debugf("replica flushed to %s", s.path)
	return nil
}

// Close flushes pending changes.
func (s *Store) Close() error {
	return s.Flush()
}
