package shared

import (
	"errors"
	"fmt"
)

// Kind classifies ledger errors so callers and the HTTP layer can react
// without string matching.
type Kind string

const (
	// KindValidation indicates malformed or out-of-range input.
	KindValidation Kind = "validation"
	// KindNotFound indicates a referenced entity is absent in this tenant.
	KindNotFound Kind = "not_found"
	// KindConflict indicates a duplicate document number within a tenant.
	KindConflict Kind = "conflict"
	// KindInvariant indicates an operation would break a ledger invariant,
	// e.g. applying more than an invoice's grand total.
	KindInvariant Kind = "invariant_violation"
	// KindLocked indicates an edit or delete on an invoice that already has
	// payments or credits attached.
	KindLocked Kind = "locked"
	// KindStorage wraps persistence failures. Retry policy is the caller's.
	KindStorage Kind = "storage"
)

// Error is the error type returned by every ledger operation.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	if e.Err != nil && e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a field-level validation error.
func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not_found error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Invariantf builds an invariant_violation error.
func Invariantf(format string, args ...any) *Error {
	return &Error{Kind: KindInvariant, Msg: fmt.Sprintf(format, args...)}
}

// Lockedf builds a locked error.
func Lockedf(format string, args ...any) *Error {
	return &Error{Kind: KindLocked, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a persistence failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Msg: op, Err: err}
}

// KindOf extracts the Kind from err, or KindStorage for unclassified errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
