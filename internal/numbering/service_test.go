package numbering

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type memorySequenceStore struct {
	mu       sync.Mutex
	counters map[string]int64
	// conflictsBefore makes the store fail with ErrSequenceConflict a fixed
	// number of times before succeeding, simulating CAS contention.
	conflictsBefore int
}

func newMemorySequenceStore() *memorySequenceStore {
	return &memorySequenceStore{counters: make(map[string]int64)}
}

func (s *memorySequenceStore) Next(ctx context.Context, tenantID uuid.UUID, kind Kind, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsBefore > 0 {
		s.conflictsBefore--
		return 0, ErrSequenceConflict
	}
	key := tenantID.String() + "|" + string(kind) + "|" + period
	s.counters[key]++
	return s.counters[key], nil
}

func TestNextFormatsNumber(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceStore())
	tenant := uuid.New()

	n1, err := svc.Next(ctx, tenant, KindInvoice, "2026")
	require.NoError(t, err)
	require.Equal(t, "INV-2026-0001", n1)

	n2, err := svc.Next(ctx, tenant, KindInvoice, "2026")
	require.NoError(t, err)
	require.Equal(t, "INV-2026-0002", n2)

	r1, err := svc.Next(ctx, tenant, KindReceipt, "2026")
	require.NoError(t, err)
	require.Equal(t, "RCT-2026-0001", r1)

	c1, err := svc.Next(ctx, tenant, KindCreditNote, "2026")
	require.NoError(t, err)
	require.Equal(t, "CN-2026-0001", c1)
}

func TestNextSequencesAreTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceStore())

	a, err := svc.Next(ctx, uuid.New(), KindInvoice, "2026")
	require.NoError(t, err)
	b, err := svc.Next(ctx, uuid.New(), KindInvoice, "2026")
	require.NoError(t, err)
	require.Equal(t, "INV-2026-0001", a)
	require.Equal(t, "INV-2026-0001", b)
}

func TestNextSequencesRestartPerPeriod(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceStore())
	tenant := uuid.New()

	_, err := svc.Next(ctx, tenant, KindInvoice, "2025")
	require.NoError(t, err)
	n, err := svc.Next(ctx, tenant, KindInvoice, "2026")
	require.NoError(t, err)
	require.Equal(t, "INV-2026-0001", n)
}

func TestNextRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceStore())

	_, err := svc.Next(ctx, uuid.Nil, KindInvoice, "2026")
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.Next(ctx, uuid.New(), Kind("journal"), "2026")
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.Next(ctx, uuid.New(), KindReceipt, "")
	require.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestNextRetriesConflictThenSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newMemorySequenceStore()
	store.conflictsBefore = maxRetries - 1
	svc := NewService(store)

	n, err := svc.Next(ctx, uuid.New(), KindInvoice, "2026")
	require.NoError(t, err)
	require.Equal(t, "INV-2026-0001", n)
}

func TestNextSurfacesConflictAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	store := newMemorySequenceStore()
	store.conflictsBefore = maxRetries
	svc := NewService(store)

	_, err := svc.Next(ctx, uuid.New(), KindInvoice, "2026")
	require.Error(t, err)
	require.True(t, shared.IsKind(err, shared.KindConflict))
}

func TestConcurrentNextYieldsDistinctContiguousSequences(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySequenceStore())
	tenant := uuid.New()

	const n = 50
	results := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.Next(ctx, tenant, KindInvoice, "2026")
			if err != nil {
				errs <- err
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	var numbers []string
	for num := range results {
		numbers = append(numbers, num)
	}
	require.Len(t, numbers, n)

	sort.Strings(numbers)
	for i := 0; i < n; i++ {
		require.Equal(t, Format(KindInvoice, "2026", int64(i+1)), numbers[i])
	}
}

func mustDate(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPeriodOf(t *testing.T) {
	require.Equal(t, "2026", PeriodOf(mustDate("2026-08-27")))
	require.Equal(t, "1999", PeriodOf(mustDate("1999-01-01")))
}
