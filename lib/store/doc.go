// Package store provides the interface of the local record replica used by
// the synchronization subsystem, together with a unified error type.
//
// The replica itself is owned by the CRUD layer of the application. The sync
// subsystem only needs three capabilities from it:
//   - point lookups by id (Get)
//   - full scans of a collection, optionally including tombstones (Scan)
//   - atomic per-row read-modify-write (Update) so that the merge reconciler
//     and the conflict resolution never interleave with another write to the
//     same record
//
// Key Components:
//
//   - IStore Interface: the abstraction every replica implementation shares.
//     All records handed out are copies, so callers never alias stored state.
//
//   - Error System: a structured error type with typed return codes
//     (RetCInvalidOperation for an unknown collection or a mismatched id) so
//     callers can tell a bad request from a storage failure. A missing record
//     is not an error: Get reports it with found=false.
//
// Implementations:
//
//   - Local Store (lstore): an in-memory replica built on xsync.MapOf, with
//     msgpack file persistence. Available in the
//     "github.com/gpaciente/psync/lib/store/lstore" package.
//
// A reusable conformance suite for implementations lives in
// "github.com/gpaciente/psync/lib/store/testing".
package store
