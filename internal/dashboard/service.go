package dashboard

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RepositoryPort exposes the read-only projections the aggregator is
// computed from. Every query is scoped to one tenant.
type RepositoryPort interface {
	Receivables(ctx context.Context, tenantID uuid.UUID, today time.Time) (Receivables, error)
	PaidRevenue(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	PaidIntervals(ctx context.Context, tenantID uuid.UUID) ([]PaidInterval, error)
	OutstandingInvoices(ctx context.Context, tenantID uuid.UUID) ([]OutstandingInvoice, error)
	PaidRevenueByCategory(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error)
	MonthlyPaidRevenue(ctx context.Context, tenantID uuid.UUID, year int) (map[int]decimal.Decimal, error)
	PendingInvoiceCount(ctx context.Context, tenantID uuid.UUID) (int, error)
	IssuedCreditTotal(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
}

// Service computes tenant dashboards. Results are cached in Redis and
// concurrent identical reads are collapsed through singleflight; the
// aggregates are eventually consistent by design and take no locks.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Invalidate drops every cached aggregate for the tenant by bumping the
// version key. Exposed through the refresh endpoint for on-demand reloads;
// ordinary staleness is bounded by the cache TTL.
func (s *Service) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	return s.cache.Bump(ctx, tenantID)
}

// Receivables returns total and overdue open debt.
func (s *Service) Receivables(ctx context.Context, tenantID uuid.UUID) (Receivables, error) {
	today := s.now()
	var out Receivables
	err := s.cached(ctx, tenantID, &out,
		[]string{"receivables", today.Format(time.DateOnly)},
		func(ctx context.Context) (any, error) {
			return s.repo.Receivables(ctx, tenantID, today)
		})
	return out, err
}

// Revenue returns paid revenue for invoices issued in [from, to].
func (s *Service) Revenue(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	if to.Before(from) {
		return decimal.Zero, shared.Validationf("period", "period end precedes start")
	}
	var out decimal.Decimal
	err := s.cached(ctx, tenantID, &out,
		[]string{"revenue", from.Format(time.DateOnly), to.Format(time.DateOnly)},
		func(ctx context.Context) (any, error) {
			return s.repo.PaidRevenue(ctx, tenantID, from, to)
		})
	return out, err
}

// AverageCollectionPeriod returns the mean days from issue to payment over
// paid invoices that carry a payment date. Zero when no invoice qualifies.
func (s *Service) AverageCollectionPeriod(ctx context.Context, tenantID uuid.UUID) (float64, error) {
	var out float64
	err := s.cached(ctx, tenantID, &out,
		[]string{"collection_period"},
		func(ctx context.Context) (any, error) {
			intervals, err := s.repo.PaidIntervals(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			return averageCollectionDays(intervals), nil
		})
	return out, err
}

// Aging buckets outstanding invoices by days past due as of today.
func (s *Service) Aging(ctx context.Context, tenantID uuid.UUID) (AgingReport, error) {
	today := s.now()
	var out AgingReport
	err := s.cached(ctx, tenantID, &out,
		[]string{"aging", today.Format(time.DateOnly)},
		func(ctx context.Context) (any, error) {
			open, err := s.repo.OutstandingInvoices(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			return buildAging(open, today), nil
		})
	return out, err
}

// RevenueByCategory returns paid revenue grouped by customer category with
// each group's share of the total.
func (s *Service) RevenueByCategory(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]CategoryRevenue, error) {
	if to.Before(from) {
		return nil, shared.Validationf("period", "period end precedes start")
	}
	var out []CategoryRevenue
	err := s.cached(ctx, tenantID, &out,
		[]string{"revenue_by_category", from.Format(time.DateOnly), to.Format(time.DateOnly)},
		func(ctx context.Context) (any, error) {
			byCategory, err := s.repo.PaidRevenueByCategory(ctx, tenantID, from, to)
			if err != nil {
				return nil, err
			}
			return buildCategoryRevenue(byCategory), nil
		})
	return out, err
}

// MonthlyRevenueTrend returns twelve months of paid revenue for the given
// year next to the same months a year earlier. Months without revenue are
// zero-filled.
func (s *Service) MonthlyRevenueTrend(ctx context.Context, tenantID uuid.UUID, year int) ([]MonthlyPoint, error) {
	if year < 1970 || year > 9999 {
		return nil, shared.Validationf("year", "year out of range")
	}
	var out []MonthlyPoint
	err := s.cached(ctx, tenantID, &out,
		[]string{"monthly_trend", strconv.Itoa(year)},
		func(ctx context.Context) (any, error) {
			current, err := s.repo.MonthlyPaidRevenue(ctx, tenantID, year)
			if err != nil {
				return nil, err
			}
			previous, err := s.repo.MonthlyPaidRevenue(ctx, tenantID, year-1)
			if err != nil {
				return nil, err
			}
			points := make([]MonthlyPoint, 0, 12)
			for m := 1; m <= 12; m++ {
				points = append(points, MonthlyPoint{
					Month:    m,
					Current:  current[m],
					Previous: previous[m],
				})
			}
			return points, nil
		})
	return out, err
}

// Summary assembles the landing-view aggregate card.
func (s *Service) Summary(ctx context.Context, tenantID uuid.UUID) (Summary, error) {
	today := s.now()
	var out Summary
	err := s.cached(ctx, tenantID, &out,
		[]string{"summary", today.Format(time.DateOnly)},
		func(ctx context.Context) (any, error) {
			receivables, err := s.repo.Receivables(ctx, tenantID, today)
			if err != nil {
				return nil, err
			}
			monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
			yearStart := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
			revenueMonth, err := s.repo.PaidRevenue(ctx, tenantID, monthStart, today)
			if err != nil {
				return nil, err
			}
			revenueYear, err := s.repo.PaidRevenue(ctx, tenantID, yearStart, today)
			if err != nil {
				return nil, err
			}
			intervals, err := s.repo.PaidIntervals(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			pending, err := s.repo.PendingInvoiceCount(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			creditTotal, err := s.repo.IssuedCreditTotal(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			return Summary{
				Receivables:         receivables,
				RevenueMonth:        revenueMonth,
				RevenueYear:         revenueYear,
				AvgCollectionDays:   averageCollectionDays(intervals),
				PendingInvoiceCount: pending,
				CreditNoteTotal:     creditTotal,
			}, nil
		})
	return out, err
}

// cached runs the loader behind the versioned cache and a singleflight
// group keyed by the cache key. The group shares the raw JSON so every
// concurrent caller gets the result, not just the one whose load ran.
func (s *Service) cached(ctx context.Context, tenantID uuid.UUID, dest any, keyParts []string, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, tenantID, keyParts...)
	if err != nil {
		return shared.Storage("dashboard: cache key", err)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var raw json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &raw, loader); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.(json.RawMessage), dest)
}

func averageCollectionDays(intervals []PaidInterval) float64 {
	if len(intervals) == 0 {
		return 0
	}
	totalDays := 0.0
	for _, iv := range intervals {
		totalDays += iv.PaidAt.Sub(iv.IssueDate).Hours() / 24
	}
	return math.Round(totalDays/float64(len(intervals))*10) / 10
}

func buildAging(open []OutstandingInvoice, today time.Time) AgingReport {
	report := AgingReport{
		AsOf: today.Format(time.DateOnly),
		Buckets: []AgingBucket{
			{Label: "0-30", Outstanding: decimal.Zero},
			{Label: "31-60", Outstanding: decimal.Zero},
			{Label: "61-90", Outstanding: decimal.Zero},
			{Label: "90+", Outstanding: decimal.Zero},
		},
	}
	for _, inv := range open {
		days := int(today.Sub(inv.DueDate).Hours() / 24)
		var idx int
		switch {
		case days <= 30:
			idx = 0
		case days <= 60:
			idx = 1
		case days <= 90:
			idx = 2
		default:
			idx = 3
		}
		report.Buckets[idx].Count++
		report.Buckets[idx].Outstanding = report.Buckets[idx].Outstanding.Add(inv.Outstanding)
	}
	return report
}

func buildCategoryRevenue(byCategory map[string]decimal.Decimal) []CategoryRevenue {
	total := decimal.Zero
	for _, v := range byCategory {
		total = total.Add(v)
	}
	out := make([]CategoryRevenue, 0, len(byCategory))
	for category, revenue := range byCategory {
		percent := 0.0
		if total.IsPositive() {
			ratio, _ := revenue.Div(total).Mul(decimal.NewFromInt(100)).Round(1).Float64()
			percent = ratio
		}
		out = append(out, CategoryRevenue{Category: category, Revenue: revenue, Percent: percent})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].Category < out[j].Category
	})
	return out
}
