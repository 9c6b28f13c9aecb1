// Package lstore implements store.IStore as an in-memory replica that can be
// persisted to a single file.
//
// Each collection is an xsync.MapOf keyed by record id. Reads (Get, Scan) are
// lock-free; writes to one row are serialized through MapOf.Compute, which
// runs the update function while holding the lock of the row's bucket. A
// scan therefore never blocks writers and yields a consistent-enough (not
// transactional) view of the collection.
//
// Persistence:
//
//	Save/Load encode the whole replica with msgpack (field names follow the
//	JSON wire names). A store created with Open tracks whether it changed and
//	Flush rewrites the file atomically through a temp file and a rename.
//
// Usage Example:
//
//	s, err := lstore.Open("data/replica.msgpack")
//	if err != nil {
//	    // handle error
//	}
//	defer s.Close()
//
//	_ = s.Upsert(record.KindPatient, record.New("p1", payload, pcID))
//	rec, found, _ := s.Get(record.KindPatient, "p1")
package lstore
