package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetops/tagledger/internal/domain"
	"github.com/assetops/tagledger/internal/repo"
	"github.com/assetops/tagledger/internal/service"
)

// ---- mock LedgerRepo --------------------------------------------------------

type mockLedgerRepo struct {
	nextNumber      func(ctx context.Context, prefix string) (int, error)
	insertTag       func(ctx context.Context, prefix string, number int, fullTag string) (domain.TagRecord, error)
	reserveTag      func(ctx context.Context, prefix string, padding int) (domain.TagRecord, error)
	getByFullTag    func(ctx context.Context, fullTag string) (domain.TagRecord, error)
	setConfirmation func(ctx context.Context, fullTag string, externalID int64) (domain.TagRecord, error)
	maxNumber       func(ctx context.Context, prefix string) (int, error)
	upsertReset     func(ctx context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error)
	listStale       func(ctx context.Context, cutoff time.Time, prefix string, p domain.PaginationParams) ([]domain.TagRecord, int64, error)
}

func (m *mockLedgerRepo) NextNumber(ctx context.Context, prefix string) (int, error) {
	return m.nextNumber(ctx, prefix)
}
func (m *mockLedgerRepo) InsertTag(ctx context.Context, prefix string, number int, fullTag string) (domain.TagRecord, error) {
	return m.insertTag(ctx, prefix, number, fullTag)
}
func (m *mockLedgerRepo) ReserveTag(ctx context.Context, prefix string, padding int) (domain.TagRecord, error) {
	return m.reserveTag(ctx, prefix, padding)
}
func (m *mockLedgerRepo) GetByFullTag(ctx context.Context, fullTag string) (domain.TagRecord, error) {
	return m.getByFullTag(ctx, fullTag)
}
func (m *mockLedgerRepo) SetConfirmation(ctx context.Context, fullTag string, externalID int64) (domain.TagRecord, error) {
	return m.setConfirmation(ctx, fullTag, externalID)
}
func (m *mockLedgerRepo) MaxNumber(ctx context.Context, prefix string) (int, error) {
	return m.maxNumber(ctx, prefix)
}
func (m *mockLedgerRepo) UpsertReset(ctx context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error) {
	return m.upsertReset(ctx, prefix, startNumber, forced)
}
func (m *mockLedgerRepo) ListStale(ctx context.Context, cutoff time.Time, prefix string, p domain.PaginationParams) ([]domain.TagRecord, int64, error) {
	return m.listStale(ctx, cutoff, prefix, p)
}

// compile-time check
var _ repo.LedgerRepo = (*mockLedgerRepo)(nil)

// reservedRecord builds the record a successful reservation would return.
func reservedRecord(prefix string, number int, fullTag string) domain.TagRecord {
	return domain.TagRecord{
		Prefix:     prefix,
		TagNumber:  number,
		FullTag:    fullTag,
		ReservedAt: time.Now().UTC(),
	}
}

// ---- Preview ---------------------------------------------------------------

func TestLedgerService_Preview_OK(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		nextNumber: func(_ context.Context, prefix string) (int, error) {
			assert.Equal(t, "W12", prefix)
			return 1, nil
		},
	})

	got, err := svc.Preview(context.Background(), "W12", 4)

	require.NoError(t, err)
	assert.Equal(t, "W12-0001", got)
}

func TestLedgerService_Preview_InvalidPrefix(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, err := svc.Preview(context.Background(), "", 4)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLedgerService_Preview_InvalidPadding(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, err := svc.Preview(context.Background(), "W12", 0)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ---- Allocate --------------------------------------------------------------

func TestLedgerService_Allocate_OK(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		reserveTag: func(_ context.Context, prefix string, padding int) (domain.TagRecord, error) {
			assert.Equal(t, "W12", prefix)
			assert.Equal(t, 4, padding)
			return reservedRecord(prefix, 1, domain.FormatFullTag(prefix, 1, padding)), nil
		},
	})

	rec, err := svc.Allocate(context.Background(), "W12", 4)

	require.NoError(t, err)
	assert.Equal(t, "W12-0001", rec.FullTag)
	assert.Nil(t, rec.ExternalID)
}

// A conflict against the store (for example pre-existing rows after a forced
// reset) must be recovered locally: the reservation is retried whole and the
// caller never sees the race.
func TestLedgerService_Allocate_RetriesOnConflict(t *testing.T) {
	var attempts int
	svc := service.NewLedgerService(&mockLedgerRepo{
		reserveTag: func(_ context.Context, prefix string, padding int) (domain.TagRecord, error) {
			attempts++
			if attempts == 1 {
				return domain.TagRecord{}, repo.ErrDuplicate
			}
			return reservedRecord(prefix, 4, domain.FormatFullTag(prefix, 4, padding)), nil
		},
	})

	rec, err := svc.Allocate(context.Background(), "W12", 4)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "W12-0004", rec.FullTag)
}

func TestLedgerService_Allocate_RetriesExhausted(t *testing.T) {
	var attempts int
	svc := service.NewLedgerService(&mockLedgerRepo{
		reserveTag: func(_ context.Context, _ string, _ int) (domain.TagRecord, error) {
			attempts++
			return domain.TagRecord{}, repo.ErrDuplicate
		},
	})

	_, err := svc.Allocate(context.Background(), "W12", 4)

	assert.ErrorIs(t, err, domain.ErrAllocationContention)
	assert.Equal(t, 6, attempts, "initial attempt plus five bounded retries")
}

// A store failure that is not a duplicate is terminal, not retried.
func TestLedgerService_Allocate_StoreErrorNotRetried(t *testing.T) {
	storeErr := errors.New("connection reset")
	var attempts int
	svc := service.NewLedgerService(&mockLedgerRepo{
		reserveTag: func(_ context.Context, _ string, _ int) (domain.TagRecord, error) {
			attempts++
			return domain.TagRecord{}, storeErr
		},
	})

	_, err := svc.Allocate(context.Background(), "W12", 4)

	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 1, attempts)
}

func TestLedgerService_Allocate_InvalidPrefix(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, err := svc.Allocate(context.Background(), "W-12", 4)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLedgerService_Allocate_InvalidPadding(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, err := svc.Allocate(context.Background(), "W12", 0)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ---- Confirm ---------------------------------------------------------------

func TestLedgerService_Confirm_OK(t *testing.T) {
	now := time.Now().UTC()
	eid := int64(555)
	svc := service.NewLedgerService(&mockLedgerRepo{
		setConfirmation: func(_ context.Context, fullTag string, externalID int64) (domain.TagRecord, error) {
			assert.Equal(t, "W12-0001", fullTag)
			assert.EqualValues(t, 555, externalID)
			return domain.TagRecord{FullTag: fullTag, ExternalID: &eid, ConfirmedAt: &now}, nil
		},
	})

	rec, err := svc.Confirm(context.Background(), "W12-0001", 555)

	require.NoError(t, err)
	assert.True(t, rec.Confirmed())
}

func TestLedgerService_Confirm_UnknownTag(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		setConfirmation: func(_ context.Context, _ string, _ int64) (domain.TagRecord, error) {
			return domain.TagRecord{}, domain.ErrNotFound
		},
		getByFullTag: func(_ context.Context, _ string) (domain.TagRecord, error) {
			return domain.TagRecord{}, domain.ErrNotFound
		},
	})

	_, err := svc.Confirm(context.Background(), "W12-9999", 555)

	assert.ErrorIs(t, err, domain.ErrUnknownTag)
}

// Duplicate delivery of the same confirmation is a no-op success.
func TestLedgerService_Confirm_IdempotentRetry(t *testing.T) {
	now := time.Now().UTC()
	eid := int64(555)
	svc := service.NewLedgerService(&mockLedgerRepo{
		setConfirmation: func(_ context.Context, _ string, _ int64) (domain.TagRecord, error) {
			return domain.TagRecord{}, domain.ErrNotFound
		},
		getByFullTag: func(_ context.Context, fullTag string) (domain.TagRecord, error) {
			return domain.TagRecord{FullTag: fullTag, ExternalID: &eid, ConfirmedAt: &now}, nil
		},
	})

	rec, err := svc.Confirm(context.Background(), "W12-0001", 555)

	require.NoError(t, err)
	require.NotNil(t, rec.ExternalID)
	assert.EqualValues(t, 555, *rec.ExternalID)
}

func TestLedgerService_Confirm_Conflict(t *testing.T) {
	now := time.Now().UTC()
	eid := int64(555)
	svc := service.NewLedgerService(&mockLedgerRepo{
		setConfirmation: func(_ context.Context, _ string, _ int64) (domain.TagRecord, error) {
			return domain.TagRecord{}, domain.ErrNotFound
		},
		getByFullTag: func(_ context.Context, fullTag string) (domain.TagRecord, error) {
			return domain.TagRecord{FullTag: fullTag, ExternalID: &eid, ConfirmedAt: &now}, nil
		},
	})

	_, err := svc.Confirm(context.Background(), "W12-0001", 777)

	assert.ErrorIs(t, err, domain.ErrConfirmationConflict)
}

func TestLedgerService_Confirm_Validation(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, err := svc.Confirm(context.Background(), "", 555)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Confirm(context.Background(), "W12-0001", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ---- Reset -----------------------------------------------------------------

func TestLedgerService_Reset_OK(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		maxNumber: func(_ context.Context, _ string) (int, error) { return 5, nil },
		upsertReset: func(_ context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error) {
			assert.False(t, forced, "a forward reset is not a forced rewind")
			return domain.SequenceReset{Prefix: prefix, StartNumber: startNumber, Forced: forced, ResetAt: time.Now()}, nil
		},
	})

	reset, err := svc.Reset(context.Background(), "W12", 6, false)

	require.NoError(t, err)
	assert.Equal(t, 6, reset.StartNumber)
}

func TestLedgerService_Reset_Guardrail(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		maxNumber: func(_ context.Context, _ string) (int, error) { return 5, nil },
	})

	_, err := svc.Reset(context.Background(), "W12", 5, false)
	assert.ErrorIs(t, err, domain.ErrWouldCollide)

	_, err = svc.Reset(context.Background(), "W12", 1, false)
	assert.ErrorIs(t, err, domain.ErrWouldCollide)
}

func TestLedgerService_Reset_ForcedRewind(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		maxNumber: func(_ context.Context, _ string) (int, error) { return 5, nil },
		upsertReset: func(_ context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error) {
			assert.True(t, forced)
			return domain.SequenceReset{Prefix: prefix, StartNumber: startNumber, Forced: forced, ResetAt: time.Now()}, nil
		},
	})

	reset, err := svc.Reset(context.Background(), "W12", 1, true)

	require.NoError(t, err)
	assert.True(t, reset.Forced)
}

// Force on a forward reset is a no-op: nothing is being rewound.
func TestLedgerService_Reset_ForceForwardNotMarkedForced(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{
		maxNumber: func(_ context.Context, _ string) (int, error) { return 5, nil },
		upsertReset: func(_ context.Context, prefix string, startNumber int, forced bool) (domain.SequenceReset, error) {
			assert.False(t, forced)
			return domain.SequenceReset{Prefix: prefix, StartNumber: startNumber, Forced: forced, ResetAt: time.Now()}, nil
		},
	})

	_, err := svc.Reset(context.Background(), "W12", 10, true)

	require.NoError(t, err)
}

func TestLedgerService_Reset_Validation(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, err := svc.Reset(context.Background(), "W12", 0, false)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Reset(context.Background(), "", 1, false)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ---- ListStale -------------------------------------------------------------

func TestLedgerService_ListStale_CutoffFromThreshold(t *testing.T) {
	var capturedCutoff time.Time
	svc := service.NewLedgerService(&mockLedgerRepo{
		listStale: func(_ context.Context, cutoff time.Time, _ string, _ domain.PaginationParams) ([]domain.TagRecord, int64, error) {
			capturedCutoff = cutoff
			return nil, 0, nil
		},
	})

	before := time.Now().Add(-24 * time.Hour)
	records, total, err := svc.ListStale(context.Background(), 24*time.Hour, "", domain.PaginationParams{Page: 1, Limit: 20})
	after := time.Now().Add(-24 * time.Hour)

	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.NotNil(t, records, "nil from the repo becomes an empty slice")
	assert.False(t, capturedCutoff.Before(before))
	assert.False(t, capturedCutoff.After(after))
}

func TestLedgerService_ListStale_Validation(t *testing.T) {
	svc := service.NewLedgerService(&mockLedgerRepo{})

	_, _, err := svc.ListStale(context.Background(), 0, "", domain.PaginationParams{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = svc.ListStale(context.Background(), time.Hour, "W-12", domain.PaginationParams{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
