package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. empty prefix, non-positive start number).
// Rejected before any store round-trip. Handlers should map this to HTTP 422.
var ErrValidation = errors.New("validation error")

// ErrUnknownTag is returned by Confirm when the full tag was never issued by
// this ledger. It signals a data-entry or integration bug upstream and is
// surfaced verbatim, never retried. Handlers should map this to HTTP 404.
var ErrUnknownTag = errors.New("unknown tag")

// ErrConfirmationConflict is returned by Confirm when the tag is already
// confirmed with a different external identifier. Two external records claim
// the same tag; this is never auto-resolved. Handlers should map this to
// HTTP 409.
var ErrConfirmationConflict = errors.New("confirmation conflict")

// ErrWouldCollide is returned by Reset when the requested start number would
// allow reissuing an already-used number and force was not set.
// Handlers should map this to HTTP 409.
var ErrWouldCollide = errors.New("would cause collision")

// ErrAllocationContention is returned by Allocate when the bounded conflict
// retry loop is exhausted. The call can be retried after a short backoff;
// no tag was issued. Handlers should map this to HTTP 503.
var ErrAllocationContention = errors.New("allocation contention")
