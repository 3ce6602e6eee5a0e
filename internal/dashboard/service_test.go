package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type memoryDashboardRepo struct {
	receivables Receivables
	revenue     decimal.Decimal
	intervals   []PaidInterval
	open        []OutstandingInvoice
	byCategory  map[string]decimal.Decimal
	byMonth     map[int]map[int]decimal.Decimal
	pending     int
	creditTotal decimal.Decimal

	queries atomic.Int64
}

func (r *memoryDashboardRepo) Receivables(ctx context.Context, tenantID uuid.UUID, today time.Time) (Receivables, error) {
	r.queries.Add(1)
	return r.receivables, nil
}

func (r *memoryDashboardRepo) PaidRevenue(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	r.queries.Add(1)
	return r.revenue, nil
}

func (r *memoryDashboardRepo) PaidIntervals(ctx context.Context, tenantID uuid.UUID) ([]PaidInterval, error) {
	r.queries.Add(1)
	return r.intervals, nil
}

func (r *memoryDashboardRepo) OutstandingInvoices(ctx context.Context, tenantID uuid.UUID) ([]OutstandingInvoice, error) {
	r.queries.Add(1)
	return r.open, nil
}

func (r *memoryDashboardRepo) PaidRevenueByCategory(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error) {
	r.queries.Add(1)
	return r.byCategory, nil
}

func (r *memoryDashboardRepo) MonthlyPaidRevenue(ctx context.Context, tenantID uuid.UUID, year int) (map[int]decimal.Decimal, error) {
	r.queries.Add(1)
	return r.byMonth[year], nil
}

func (r *memoryDashboardRepo) PendingInvoiceCount(ctx context.Context, tenantID uuid.UUID) (int, error) {
	r.queries.Add(1)
	return r.pending, nil
}

func (r *memoryDashboardRepo) IssuedCreditTotal(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	r.queries.Add(1)
	return r.creditTotal, nil
}

func newTestService(t *testing.T, repo *memoryDashboardRepo) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache)
	svc.now = func() time.Time { return day("2026-03-15") }
	return svc, mr
}

func TestAgingPartitionIsExact(t *testing.T) {
	repo := &memoryDashboardRepo{
		open: []OutstandingInvoice{
			{DueDate: day("2026-04-01"), Outstanding: d("100.00")}, // not yet due
			{DueDate: day("2026-03-15"), Outstanding: d("50.00")},  // due today, 0 days
			{DueDate: day("2026-02-20"), Outstanding: d("200.00")}, // 23 days
			{DueDate: day("2026-02-13"), Outstanding: d("75.00")},  // 30 days, boundary
			{DueDate: day("2026-02-12"), Outstanding: d("25.00")},  // 31 days
			{DueDate: day("2026-01-14"), Outstanding: d("10.00")},  // 60 days, boundary
			{DueDate: day("2026-01-13"), Outstanding: d("40.00")},  // 61 days
			{DueDate: day("2025-12-15"), Outstanding: d("5.00")},   // 90 days, boundary
			{DueDate: day("2025-12-14"), Outstanding: d("60.00")},  // 91 days
			{DueDate: day("2025-06-01"), Outstanding: d("30.00")},  // very old
		},
	}
	svc, _ := newTestService(t, repo)

	report, err := svc.Aging(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, report.Buckets, 4)

	require.Equal(t, 4, report.Buckets[0].Count)
	require.True(t, report.Buckets[0].Outstanding.Equal(d("425.00")))
	require.Equal(t, 2, report.Buckets[1].Count)
	require.True(t, report.Buckets[1].Outstanding.Equal(d("35.00")))
	require.Equal(t, 2, report.Buckets[2].Count)
	require.True(t, report.Buckets[2].Outstanding.Equal(d("45.00")))
	require.Equal(t, 2, report.Buckets[3].Count)
	require.True(t, report.Buckets[3].Outstanding.Equal(d("90.00")))

	// Every invoice lands in exactly one bucket.
	totalCount := 0
	totalOutstanding := decimal.Zero
	for _, b := range report.Buckets {
		totalCount += b.Count
		totalOutstanding = totalOutstanding.Add(b.Outstanding)
	}
	require.Equal(t, len(repo.open), totalCount)
	require.True(t, totalOutstanding.Equal(d("595.00")))
}

func TestAgingZeroFilledBuckets(t *testing.T) {
	svc, _ := newTestService(t, &memoryDashboardRepo{})

	report, err := svc.Aging(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, report.Buckets, 4)
	for _, b := range report.Buckets {
		require.Zero(t, b.Count)
		require.True(t, b.Outstanding.IsZero())
	}
}

func TestAverageCollectionPeriod(t *testing.T) {
	repo := &memoryDashboardRepo{
		intervals: []PaidInterval{
			{IssueDate: day("2026-01-01"), PaidAt: day("2026-01-11")}, // 10 days
			{IssueDate: day("2026-02-01"), PaidAt: day("2026-02-21")}, // 20 days
		},
	}
	svc, _ := newTestService(t, repo)

	days, err := svc.AverageCollectionPeriod(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 15.0, days)
}

func TestAverageCollectionPeriodEmpty(t *testing.T) {
	svc, _ := newTestService(t, &memoryDashboardRepo{})

	days, err := svc.AverageCollectionPeriod(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Zero(t, days)
}

func TestRevenueByCategoryPercentages(t *testing.T) {
	repo := &memoryDashboardRepo{
		byCategory: map[string]decimal.Decimal{
			"enterprise": d("7500.00"),
			"smb":        d("2500.00"),
		},
	}
	svc, _ := newTestService(t, repo)

	out, err := svc.RevenueByCategory(context.Background(), uuid.New(), day("2026-01-01"), day("2026-12-31"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "enterprise", out[0].Category)
	require.Equal(t, 75.0, out[0].Percent)
	require.Equal(t, "smb", out[1].Category)
	require.Equal(t, 25.0, out[1].Percent)
}

func TestMonthlyTrendZeroFills(t *testing.T) {
	repo := &memoryDashboardRepo{
		byMonth: map[int]map[int]decimal.Decimal{
			2026: {1: d("100.00"), 3: d("300.00")},
			2025: {3: d("250.00")},
		},
	}
	svc, _ := newTestService(t, repo)

	points, err := svc.MonthlyRevenueTrend(context.Background(), uuid.New(), 2026)
	require.NoError(t, err)
	require.Len(t, points, 12)
	require.True(t, points[0].Current.Equal(d("100.00")))
	require.True(t, points[0].Previous.IsZero())
	require.True(t, points[2].Current.Equal(d("300.00")))
	require.True(t, points[2].Previous.Equal(d("250.00")))
	require.True(t, points[11].Current.IsZero())
}

func TestCachedReadsSkipRepository(t *testing.T) {
	repo := &memoryDashboardRepo{
		receivables: Receivables{TotalOutstanding: d("1000.00"), OpenCount: 3},
	}
	svc, _ := newTestService(t, repo)
	tenantID := uuid.New()
	ctx := context.Background()

	first, err := svc.Receivables(ctx, tenantID)
	require.NoError(t, err)
	queriesAfterFirst := repo.queries.Load()

	second, err := svc.Receivables(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, queriesAfterFirst, repo.queries.Load())
	require.True(t, first.TotalOutstanding.Equal(second.TotalOutstanding))
	require.Equal(t, first.OpenCount, second.OpenCount)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	repo := &memoryDashboardRepo{
		receivables: Receivables{TotalOutstanding: d("1000.00")},
	}
	svc, _ := newTestService(t, repo)
	tenantID := uuid.New()
	ctx := context.Background()

	_, err := svc.Receivables(ctx, tenantID)
	require.NoError(t, err)
	before := repo.queries.Load()

	require.NoError(t, svc.Invalidate(ctx, tenantID))
	repo.receivables = Receivables{TotalOutstanding: d("2000.00")}

	out, err := svc.Receivables(ctx, tenantID)
	require.NoError(t, err)
	require.Greater(t, repo.queries.Load(), before)
	require.True(t, out.TotalOutstanding.Equal(d("2000.00")))
}

func TestTenantsCacheIndependently(t *testing.T) {
	repo := &memoryDashboardRepo{
		receivables: Receivables{TotalOutstanding: d("1000.00")},
	}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	_, err := svc.Receivables(ctx, first)
	require.NoError(t, err)

	repo.receivables = Receivables{TotalOutstanding: d("9999.00")}
	out, err := svc.Receivables(ctx, second)
	require.NoError(t, err)
	require.True(t, out.TotalOutstanding.Equal(d("9999.00")))
}

func TestRevenueRejectsInvertedPeriod(t *testing.T) {
	svc, _ := newTestService(t, &memoryDashboardRepo{})

	_, err := svc.Revenue(context.Background(), uuid.New(), day("2026-06-01"), day("2026-01-01"))
	require.Error(t, err)
}

func TestSummaryAggregates(t *testing.T) {
	repo := &memoryDashboardRepo{
		receivables: Receivables{TotalOutstanding: d("500.00"), OpenCount: 2},
		revenue:     d("10000.00"),
		intervals: []PaidInterval{
			{IssueDate: day("2026-01-01"), PaidAt: day("2026-01-31")},
		},
		pending:     2,
		creditTotal: d("1180.00"),
	}
	svc, _ := newTestService(t, repo)

	summary, err := svc.Summary(context.Background(), uuid.New())
	require.NoError(t, err)
	require.True(t, summary.Receivables.TotalOutstanding.Equal(d("500.00")))
	require.True(t, summary.RevenueYear.Equal(d("10000.00")))
	require.Equal(t, 30.0, summary.AvgCollectionDays)
	require.Equal(t, 2, summary.PendingInvoiceCount)
	require.True(t, summary.CreditNoteTotal.Equal(d("1180.00")))
}
