// Package repo contains all database access logic for the tag ledger.
// No business logic lives here — only SQL and type mapping. The allocation
// retry loop and confirmation outcome rules live in the service layer.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/assetops/tagledger/internal/domain"
)

// ErrDuplicate is returned by InsertTag when the store rejects the row on a
// uniqueness constraint — a concurrent allocator won the race for the same
// number. The service layer treats this as retryable, never the caller.
var ErrDuplicate = errors.New("duplicate tag")

// uniqueViolation is the Postgres error code for a unique constraint failure.
const uniqueViolation = "23505"

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerRepo defines the persistence operations for the tag ledger.
// The service layer depends on this interface, not the concrete Postgres
// implementation, which allows the service to be unit-tested with a mock.
type LedgerRepo interface {
	// NextNumber derives the next candidate tag number for a prefix from
	// the ledger and any administrative reset row. It takes no locks; the
	// returned number is a candidate only — InsertTag is the authority.
	NextNumber(ctx context.Context, prefix string) (int, error)

	// InsertTag creates a reserved (unconfirmed) ledger row and returns the
	// persisted record. Returns ErrDuplicate if either the tag number or the
	// full tag is already taken.
	InsertTag(ctx context.Context, prefix string, number int, fullTag string) (domain.TagRecord, error)

	// ReserveTag derives the next number and inserts the row in one
	// transaction, serialized per prefix by a store-side advisory lock so
	// concurrent allocators line up instead of colliding. The uniqueness
	// constraints remain the final authority: a conflict (possible against
	// rows that predate a forced reset) still surfaces as ErrDuplicate for
	// the service-level retry.
	ReserveTag(ctx context.Context, prefix string, padding int) (domain.TagRecord, error)

	// GetByFullTag retrieves a single ledger row by its full tag string.
	// Returns domain.ErrNotFound if the tag was never issued.
	GetByFullTag(ctx context.Context, fullTag string) (domain.TagRecord, error)

	// SetConfirmation links an unconfirmed row to an external identifier and
	// stamps confirmed_at. Returns domain.ErrNotFound if no row matched,
	// which means the tag is unknown or already confirmed — the service
	// distinguishes the two with a follow-up GetByFullTag.
	SetConfirmation(ctx context.Context, fullTag string, externalID int64) (domain.TagRecord, error)

	// MaxNumber returns the highest tag number ever issued for a prefix,
	// or 0 if none exists.
	MaxNumber(ctx context.Context, prefix string) (int, error)

	// UpsertReset records an administrative sequence re-seed for a prefix,
	// replacing any earlier reset row.
	UpsertReset(ctx context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error)

	// ListStale returns one page of unconfirmed rows reserved before cutoff,
	// oldest first, and the total count of matching rows. A non-empty prefix
	// restricts the audit to that prefix; pass "" for all prefixes.
	ListStale(ctx context.Context, cutoff time.Time, prefix string, p domain.PaginationParams) ([]domain.TagRecord, int64, error)
}

// pgLedgerRepo is the Postgres implementation of LedgerRepo.
type pgLedgerRepo struct {
	db db
}

// NewLedgerRepo constructs a LedgerRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewLedgerRepo(db db) LedgerRepo {
	return &pgLedgerRepo{db: db}
}

// NextNumber derives the next candidate number for a prefix.
//
// Without a reset row the candidate is max(tag_number)+1, or 1 for a fresh
// prefix. With a reset row the derivation only looks at numbers at or past
// the reset start: the candidate is one past the highest such number, or the
// start itself if none exists. That single rule covers forward jumps,
// stale reset rows the sequence has since passed, and forced rewinds onto a
// range whose rows were removed by manual cleanup.
func (r *pgLedgerRepo) NextNumber(ctx context.Context, prefix string) (int, error) {
	const q = `
		WITH reset AS (
			SELECT start_number FROM tag_sequence_resets WHERE prefix = @prefix
		)
		SELECT CASE
			WHEN (SELECT start_number FROM reset) IS NULL THEN
				COALESCE((SELECT MAX(tag_number) FROM tags WHERE prefix = @prefix), 0) + 1
			ELSE
				COALESCE(
					(SELECT MAX(tag_number) + 1 FROM tags
					 WHERE prefix = @prefix
					   AND tag_number >= (SELECT start_number FROM reset)),
					(SELECT start_number FROM reset))
		END`

	var next int
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"prefix": prefix}).Scan(&next); err != nil {
		return 0, fmt.Errorf("repo.LedgerRepo.NextNumber: %w", err)
	}
	return next, nil
}

// InsertTag creates a reserved ledger row. A unique violation on either the
// (prefix, tag_number) primary key or the full_tag column maps to ErrDuplicate.
func (r *pgLedgerRepo) InsertTag(ctx context.Context, prefix string, number int, fullTag string) (domain.TagRecord, error) {
	const q = `
		INSERT INTO tags (prefix, tag_number, full_tag)
		VALUES (@prefix, @tag_number, @full_tag)
		RETURNING prefix, tag_number, full_tag, external_id, reserved_at, confirmed_at`

	args := pgx.NamedArgs{
		"prefix":     prefix,
		"tag_number": number,
		"full_tag":   fullTag,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTagRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.InsertTag: %w: %s", ErrDuplicate, fullTag)
		}
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.InsertTag: %w", err)
	}
	return result, nil
}

// ReserveTag allocates the next tag for a prefix atomically.
//
// The advisory lock keys on the prefix and lives until the transaction ends,
// so two allocators for the same prefix never interleave between the
// derivation and the insert — across connections, processes, and instances,
// since the lock lives in the store. Different prefixes proceed in parallel.
func (r *pgLedgerRepo) ReserveTag(ctx context.Context, prefix string, padding int) (domain.TagRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.ReserveTag: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txRepo := &pgLedgerRepo{db: tx}

	const lockQ = `SELECT pg_advisory_xact_lock(hashtext(@prefix))`
	if _, err := tx.Exec(ctx, lockQ, pgx.NamedArgs{"prefix": prefix}); err != nil {
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.ReserveTag: lock: %w", err)
	}

	next, err := txRepo.NextNumber(ctx, prefix)
	if err != nil {
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.ReserveTag: %w", err)
	}

	rec, err := txRepo.InsertTag(ctx, prefix, next, domain.FormatFullTag(prefix, next, padding))
	if err != nil {
		// ErrDuplicate passes through for the caller's bounded retry.
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.ReserveTag: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.ReserveTag: commit: %w", err)
	}
	return rec, nil
}

// GetByFullTag retrieves a ledger row by full tag.
func (r *pgLedgerRepo) GetByFullTag(ctx context.Context, fullTag string) (domain.TagRecord, error) {
	const q = `
		SELECT prefix, tag_number, full_tag, external_id, reserved_at, confirmed_at
		FROM tags
		WHERE full_tag = @full_tag`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"full_tag": fullTag})
	result, err := scanTagRecord(row)
	if err != nil {
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.GetByFullTag: %w", err)
	}
	return result, nil
}

// SetConfirmation stamps external_id and confirmed_at on an unconfirmed row.
// The confirmed_at IS NULL guard makes concurrent duplicate deliveries safe:
// exactly one UPDATE matches, the rest fall through to ErrNotFound and the
// service re-reads the row to decide the outcome.
func (r *pgLedgerRepo) SetConfirmation(ctx context.Context, fullTag string, externalID int64) (domain.TagRecord, error) {
	const q = `
		UPDATE tags
		SET external_id  = @external_id,
		    confirmed_at = now()
		WHERE full_tag = @full_tag
		  AND confirmed_at IS NULL
		RETURNING prefix, tag_number, full_tag, external_id, reserved_at, confirmed_at`

	args := pgx.NamedArgs{"full_tag": fullTag, "external_id": externalID}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTagRecord(row)
	if err != nil {
		return domain.TagRecord{}, fmt.Errorf("repo.LedgerRepo.SetConfirmation: %w", err)
	}
	return result, nil
}

// MaxNumber returns the highest issued number for a prefix, 0 if none.
func (r *pgLedgerRepo) MaxNumber(ctx context.Context, prefix string) (int, error) {
	const q = `SELECT COALESCE(MAX(tag_number), 0) FROM tags WHERE prefix = @prefix`

	var highest int
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"prefix": prefix}).Scan(&highest); err != nil {
		return 0, fmt.Errorf("repo.LedgerRepo.MaxNumber: %w", err)
	}
	return highest, nil
}

// UpsertReset records a sequence re-seed, replacing any earlier row for the prefix.
func (r *pgLedgerRepo) UpsertReset(ctx context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error) {
	const q = `
		INSERT INTO tag_sequence_resets (prefix, start_number, forced)
		VALUES (@prefix, @start_number, @forced)
		ON CONFLICT (prefix) DO UPDATE
		SET start_number = EXCLUDED.start_number,
		    forced       = EXCLUDED.forced,
		    reset_at     = now()
		RETURNING prefix, start_number, forced, reset_at`

	args := pgx.NamedArgs{"prefix": prefix, "start_number": startNumber, "forced": forced}

	var reset domain.SequenceReset
	err := r.db.QueryRow(ctx, q, args).Scan(&reset.Prefix, &reset.StartNumber, &reset.Forced, &reset.ResetAt)
	if err != nil {
		return domain.SequenceReset{}, fmt.Errorf("repo.LedgerRepo.UpsertReset: %w", err)
	}
	return reset, nil
}

// ListStale returns one page of unconfirmed rows reserved before cutoff,
// oldest first, plus the total count across all pages. Pass prefix="" to
// audit all prefixes at once.
func (r *pgLedgerRepo) ListStale(ctx context.Context, cutoff time.Time, prefix string, p domain.PaginationParams) ([]domain.TagRecord, int64, error) {
	const countQ = `
		SELECT COUNT(*)
		FROM tags
		WHERE confirmed_at IS NULL
		  AND reserved_at < @cutoff
		  AND (@prefix = '' OR prefix = @prefix)`

	var total int64
	if err := r.db.QueryRow(ctx, countQ, pgx.NamedArgs{"cutoff": cutoff, "prefix": prefix}).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.ListStale: count: %w", err)
	}

	const q = `
		SELECT prefix, tag_number, full_tag, external_id, reserved_at, confirmed_at
		FROM tags
		WHERE confirmed_at IS NULL
		  AND reserved_at < @cutoff
		  AND (@prefix = '' OR prefix = @prefix)
		ORDER BY reserved_at
		LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{"cutoff": cutoff, "prefix": prefix, "limit": p.Limit, "offset": p.Offset()}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.ListStale: %w", err)
	}
	defer rows.Close()

	records := []domain.TagRecord{}
	for rows.Next() {
		rec, err := scanTagRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.LedgerRepo.ListStale: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.ListStale: rows: %w", err)
	}
	return records, total, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanTagRecord
// to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTagRecord maps a single database row into a domain.TagRecord.
// external_id and confirmed_at are nullable and scan into pointers directly.
func scanTagRecord(s scanner) (domain.TagRecord, error) {
	var rec domain.TagRecord
	err := s.Scan(&rec.Prefix, &rec.TagNumber, &rec.FullTag, &rec.ExternalID, &rec.ReservedAt, &rec.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TagRecord{}, domain.ErrNotFound
		}
		return domain.TagRecord{}, err
	}
	return rec, nil
}
