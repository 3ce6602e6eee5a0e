package numbering

import (
	"errors"
	"fmt"
	"time"
)

// Kind enumerates the document families that receive sequential numbers.
type Kind string

const (
	KindInvoice    Kind = "invoice"
	KindReceipt    Kind = "receipt"
	KindCreditNote Kind = "credit_note"
)

// Prefix returns the printable prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindInvoice:
		return "INV"
	case KindReceipt:
		return "RCT"
	case KindCreditNote:
		return "CN"
	}
	return ""
}

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k.Prefix() != ""
}

// PeriodOf derives the numbering period from a document date. Sequences
// restart per calendar year.
func PeriodOf(date time.Time) string {
	return fmt.Sprintf("%04d", date.Year())
}

// Format renders a document number: prefix, period, zero-padded sequence.
func Format(kind Kind, period string, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", kind.Prefix(), period, seq)
}

// ErrSequenceConflict is returned by compare-and-swap sequence stores when a
// concurrent caller won the increment. The service retries a bounded number
// of times before giving up.
var ErrSequenceConflict = errors.New("numbering: sequence conflict")
