// Package record defines the replicated record envelope shared by the two
// collections of a psync replica (patients and appointments).
//
// Every record carries, next to its free-form payload, the envelope used by
// synchronization:
//
//   - ID: stable, globally unique identifier, never reused
//   - Status: active, removed (tombstone) or conflict
//   - Origin: the pc_id of the installation that last wrote the record
//   - Version: a counter that only ever increases
//   - LastModified: the timestamp of the last local mutation, used as the
//     tie-breaker when two replicas disagree
//
// Removal is always a tombstone (status removed plus RemovedAt/RemovedBy),
// never a physical deletion, so that peers can detect the deletion when they
// merge. The helpers in this package (Touch, Tombstone, MarkConflict) are the
// only places where envelope fields are mutated; they keep the invariants
// (monotonic version, removed implies RemovedAt) in one place.
//
// Payload equality is computed on the canonical JSON form of the payload so
// that records decoded from JSON (numbers as float64) and from msgpack
// (numbers as sized integers) compare equal when they carry the same data.
package record
