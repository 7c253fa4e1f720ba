// Package service implements the business rules of the tag ledger: input
// validation, the allocation retry loop, confirmation outcome resolution,
// and the reset guardrail. It depends on repo interfaces only.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/assetops/tagledger/internal/domain"
	"github.com/assetops/tagledger/internal/repo"
)

const (
	// allocateMaxRetries bounds the conflict retry loop. Exhaustion means
	// pathological contention on one prefix; the caller may retry the whole
	// call after a short backoff.
	allocateMaxRetries = 5

	// allocateRetryDelay spaces out conflict retries. Conflicts resolve as
	// soon as the winning insert commits, so the delay stays short.
	allocateRetryDelay = 10 * time.Millisecond
)

// LedgerService implements the tag issuance and confirmation operations.
// It never caches counter state across calls: every allocation re-derives
// the candidate number from the store, and the store's uniqueness
// constraints are the final authority.
type LedgerService struct {
	ledger repo.LedgerRepo
}

// NewLedgerService constructs a LedgerService backed by the provided repo.
func NewLedgerService(ledger repo.LedgerRepo) *LedgerService {
	return &LedgerService{ledger: ledger}
}

// Preview returns what Allocate would currently return, without creating a
// record or touching counter state. The result is informational only — a
// concurrent Allocate can consume the number at any moment.
func (s *LedgerService) Preview(ctx context.Context, prefix string, padding int) (string, error) {
	if err := domain.ValidatePrefix(prefix); err != nil {
		return "", err
	}
	if err := domain.ValidatePadding(padding); err != nil {
		return "", err
	}

	next, err := s.ledger.NextNumber(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("service.LedgerService.Preview: %w", err)
	}
	return domain.FormatFullTag(prefix, next, padding), nil
}

// Allocate reserves the next tag number for a prefix and returns the new
// ledger record. The repo serializes allocators per prefix inside the store,
// so duplicate-key conflicts are rare; when one does occur (a concurrent
// writer outside the lock, or pre-existing rows after a forced reset) the
// reservation is retried whole, re-deriving the candidate from the store,
// bounded by allocateMaxRetries. Exhaustion is reported as
// domain.ErrAllocationContention; a duplicate tag is never returned.
func (s *LedgerService) Allocate(ctx context.Context, prefix string, padding int) (domain.TagRecord, error) {
	if err := domain.ValidatePrefix(prefix); err != nil {
		return domain.TagRecord{}, err
	}
	if err := domain.ValidatePadding(padding); err != nil {
		return domain.TagRecord{}, err
	}

	var allocated domain.TagRecord
	backoff := retry.WithMaxRetries(allocateMaxRetries, retry.NewConstant(allocateRetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := s.ledger.ReserveTag(ctx, prefix, padding)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return retry.RetryableError(err)
			}
			return err
		}
		allocated = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.TagRecord{}, fmt.Errorf("service.LedgerService.Allocate: retries exhausted for %q: %w", prefix, domain.ErrAllocationContention)
		}
		return domain.TagRecord{}, fmt.Errorf("service.LedgerService.Allocate: %w", err)
	}
	return allocated, nil
}

// Confirm links an issued tag to the external system's identifier.
// The handler is a pure function of (fullTag, externalID, ledger state) and
// is safe under at-least-once, out-of-order callback delivery:
//   - unknown tag → domain.ErrUnknownTag
//   - unconfirmed → confirmed, record returned
//   - already confirmed with the same id → no-op success (duplicate delivery)
//   - already confirmed with a different id → domain.ErrConfirmationConflict
func (s *LedgerService) Confirm(ctx context.Context, fullTag string, externalID int64) (domain.TagRecord, error) {
	if fullTag == "" {
		return domain.TagRecord{}, fmt.Errorf("%w: full_tag is required", domain.ErrValidation)
	}
	if externalID < 1 {
		return domain.TagRecord{}, fmt.Errorf("%w: external_id must be positive", domain.ErrValidation)
	}

	rec, err := s.ledger.SetConfirmation(ctx, fullTag, externalID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.TagRecord{}, fmt.Errorf("service.LedgerService.Confirm: %w", err)
	}

	// No unconfirmed row matched: the tag is either unknown or already
	// confirmed. Re-read to tell the two apart.
	existing, err := s.ledger.GetByFullTag(ctx, fullTag)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TagRecord{}, fmt.Errorf("service.LedgerService.Confirm: %q: %w", fullTag, domain.ErrUnknownTag)
		}
		return domain.TagRecord{}, fmt.Errorf("service.LedgerService.Confirm: %w", err)
	}

	if existing.ExternalID != nil && *existing.ExternalID == externalID {
		return existing, nil
	}
	return domain.TagRecord{}, fmt.Errorf("service.LedgerService.Confirm: %q already confirmed: %w", fullTag, domain.ErrConfirmationConflict)
}

// Reset re-seeds the point from which the next Allocate for a prefix resumes.
// A start number at or below the highest issued number is rejected with
// domain.ErrWouldCollide unless force is set — forcing records the operator's
// intent to rewind onto a possibly still-occupied range. Reset never deletes
// or modifies existing tag rows.
func (s *LedgerService) Reset(ctx context.Context, prefix string, newStart int, force bool) (domain.SequenceReset, error) {
	if err := domain.ValidatePrefix(prefix); err != nil {
		return domain.SequenceReset{}, err
	}
	if newStart < 1 {
		return domain.SequenceReset{}, fmt.Errorf("%w: new start number must be positive", domain.ErrValidation)
	}

	highest, err := s.ledger.MaxNumber(ctx, prefix)
	if err != nil {
		return domain.SequenceReset{}, fmt.Errorf("service.LedgerService.Reset: %w", err)
	}
	if newStart <= highest && !force {
		return domain.SequenceReset{}, fmt.Errorf("service.LedgerService.Reset: start %d <= highest issued %d: %w", newStart, highest, domain.ErrWouldCollide)
	}

	reset, err := s.ledger.UpsertReset(ctx, prefix, newStart, force && newStart <= highest)
	if err != nil {
		return domain.SequenceReset{}, fmt.Errorf("service.LedgerService.Reset: %w", err)
	}
	return reset, nil
}

// ListStale returns one page of reservations older than olderThan that were
// never confirmed, oldest first, plus the total count. A non-empty prefix
// restricts the audit to that prefix. Read-only: stale numbers stay
// consumed — the external system may still complete a creation late, so
// reuse is left to a human.
func (s *LedgerService) ListStale(ctx context.Context, olderThan time.Duration, prefix string, p domain.PaginationParams) ([]domain.TagRecord, int64, error) {
	if olderThan <= 0 {
		return nil, 0, fmt.Errorf("%w: age threshold must be positive", domain.ErrValidation)
	}
	if prefix != "" {
		if err := domain.ValidatePrefix(prefix); err != nil {
			return nil, 0, err
		}
	}

	cutoff := time.Now().Add(-olderThan)
	records, total, err := s.ledger.ListStale(ctx, cutoff, prefix, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.LedgerService.ListStale: %w", err)
	}
	if records == nil {
		records = []domain.TagRecord{}
	}
	return records, total, nil
}
