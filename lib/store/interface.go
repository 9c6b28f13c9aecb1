package store

import (
	"fmt"

	"github.com/gpaciente/psync/lib/record"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// UpdateFunc computes the next state of one row. It receives a private copy of
// the current record (nil if the row does not exist). Returning a nil record
// leaves the row untouched; returning an error aborts the update and the error
// is passed on to the caller of Update.
type UpdateFunc func(current *record.Record, exists bool) (next *record.Record, err error)

// IStore is the interface of the local replica. It is owned by the CRUD layer;
// the sync subsystem only relies on point lookups, full scans and atomic
// per-row updates. All returned records are copies, callers may modify them.
type IStore interface {
	// Get returns the record with the given id. The boolean reports whether it was found.
	Get(kind record.Kind, id string) (rec *record.Record, found bool, err error)
	// Scan returns all records of a collection ordered by id.
	// Tombstones are only included if includeRemoved is true.
	Scan(kind record.Kind, includeRemoved bool) (recs []*record.Record, err error)
	// Upsert inserts or replaces a record as is.
	Upsert(kind record.Kind, rec *record.Record) (err error)
	// Update atomically reads, transforms and writes a single row. No other
	// write to the same row can interleave with fn. It returns the stored record.
	Update(kind record.Kind, id string, fn UpdateFunc) (rec *record.Record, err error)
	// Count returns the number of rows (tombstones included) of a collection.
	Count(kind record.Kind) (n int, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInvalidOperation                // 1: Invalid operation (e.g. unknown collection).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}
