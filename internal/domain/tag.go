// Package domain contains the core data types for the tag ledger.
// This package has zero external dependencies and is imported by every other
// internal package (repo, service, handler).
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Separator joins the prefix and the padded number in a full tag,
// e.g. "W12" + 17 with padding 4 → "W12-0017".
const Separator = "-"

// MaxPadding bounds the padding width accepted by FormatFullTag and the
// service layer. Twelve digits is already beyond any realistic fleet size.
const MaxPadding = 12

// TagRecord is one row of the ledger: a single issued asset tag.
// A record is created by allocation (reserved) and transitions to confirmed
// exactly once, when the external asset system reports its own identifier.
// Records are never deleted; a reservation that never confirms stays in the
// ledger and is surfaced by the stale audit instead.
type TagRecord struct {
	Prefix      string     `json:"prefix"`
	TagNumber   int        `json:"tag_number"`
	FullTag     string     `json:"full_tag"`
	ExternalID  *int64     `json:"external_id,omitempty"` // nil until confirmed
	ReservedAt  time.Time  `json:"reserved_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"` // nil while reserved
}

// Confirmed reports whether the record has been linked to an external record.
func (r TagRecord) Confirmed() bool {
	return r.ConfirmedAt != nil
}

// SequenceReset records an administrative re-seed of a prefix's sequence.
// At most one row exists per prefix; a later reset overwrites it.
type SequenceReset struct {
	Prefix      string    `json:"prefix"`
	StartNumber int       `json:"start_number"`
	Forced      bool      `json:"forced"`
	ResetAt     time.Time `json:"reset_at"`
}

// FormatFullTag renders the externally visible tag string for a number.
// The number is zero-padded to padding digits; a number wider than the
// padding is emitted in full, never truncated — padding is a display
// nicety, not a correctness property.
func FormatFullTag(prefix string, number, padding int) string {
	return fmt.Sprintf("%s%s%0*d", prefix, Separator, padding, number)
}

// ValidatePrefix rejects prefixes that would produce ambiguous or malformed
// full tags. A prefix must be non-empty, contain no whitespace, and must not
// contain the separator (the separator is what makes a full tag parse back
// into prefix and number unambiguously).
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: prefix is required", ErrValidation)
	}
	if strings.ContainsFunc(prefix, unicode.IsSpace) {
		return fmt.Errorf("%w: prefix must not contain whitespace", ErrValidation)
	}
	if strings.Contains(prefix, Separator) {
		return fmt.Errorf("%w: prefix must not contain %q", ErrValidation, Separator)
	}
	return nil
}

// ValidatePadding bounds the zero-padding width.
func ValidatePadding(padding int) error {
	if padding < 1 || padding > MaxPadding {
		return fmt.Errorf("%w: padding must be between 1 and %d", ErrValidation, MaxPadding)
	}
	return nil
}
