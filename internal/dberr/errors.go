// Package dberr defines the error taxonomy of the storage and execution
// core (spec §7): CorruptData, Resource, Conflict, NotFound, Schema,
// Expression and IO. Every package-boundary error in the engine is wrapped
// in one of these kinds so that callers can branch on Kind without
// depending on any package's internal sentinel errors.
package dberr

import "fmt"

// Kind classifies why an operation failed.
type Kind int

const (
	// Unknown is never returned by the engine; it exists only as the
	// zero value so a missed assignment is easy to spot in tests.
	Unknown Kind = iota
	// CorruptData: on-disk state violates a structural invariant (file
	// size not a multiple of PAGE_SIZE, slot pointing outside the page,
	// an impossible status byte, a missing transaction log after bootstrap).
	CorruptData
	// Resource: a bounded resource is exhausted (buffer pool fully pinned,
	// TID space exhausted, table id space exhausted).
	Resource
	// Conflict: a RepeatableRead transaction lost a write race.
	Conflict
	// NotFound: no such table, column, or tuple slot.
	NotFound
	// Schema: a value doesn't fit its column (type mismatch, NULL into
	// NOT NULL, row width mismatch).
	Schema
	// Expression: an expression failed to evaluate (division by zero).
	Expression
	// IO: the underlying file system returned an error.
	IO
)

func (k Kind) String() string {
	switch k {
	case CorruptData:
		return "corrupt_data"
	case Resource:
		return "resource"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Schema:
		return "schema"
	case Expression:
		return "expression"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the concrete error type raised across package boundaries in the
// engine. Op names the operation that failed (e.g. "heap.InsertTuple").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind wrapping err (which may be nil).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == k {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
