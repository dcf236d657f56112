package service

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"saleschat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSaleStore is an in-memory SaleStore mirroring the relational
// semantics: AND-combined filters, exact matches, case-insensitive region
// substring.
type fakeSaleStore struct {
	sales []*models.Sale
}

func (f *fakeSaleStore) matches(s *models.Sale, filter models.SaleFilter) bool {
	if filter.StartDate != nil && s.PurchaseDate.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && s.PurchaseDate.After(*filter.EndDate) {
		return false
	}
	if filter.PaymentMethod != "" && s.PaymentMethod != filter.PaymentMethod {
		return false
	}
	if filter.Invoice != "" && s.Invoice != filter.Invoice {
		return false
	}
	if filter.Customer != "" && s.Customer != filter.Customer {
		return false
	}
	if filter.Item != "" && s.Item != filter.Item {
		return false
	}
	if filter.Region != "" && !strings.Contains(strings.ToLower(s.Address), strings.ToLower(filter.Region)) {
		return false
	}
	return true
}

func (f *fakeSaleStore) filtered(filter models.SaleFilter) []*models.Sale {
	var out []*models.Sale
	for _, s := range f.sales {
		if f.matches(s, filter) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSaleStore) FilterSales(_ context.Context, filter models.SaleFilter, limit int) ([]*models.Sale, error) {
	out := f.filtered(filter)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchaseDate.After(out[j].PurchaseDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSaleStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Sale, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.Sale
	for _, s := range f.sales {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSaleStore) DistinctPaymentMethods(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, s := range f.sales {
		if !seen[s.PaymentMethod] {
			seen[s.PaymentMethod] = true
			out = append(out, s.PaymentMethod)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeSaleStore) PaymentSummary(_ context.Context, filter models.SaleFilter) ([]models.PaymentSummary, error) {
	buckets := make(map[string]*models.PaymentSummary)
	var order []string
	for _, s := range f.filtered(filter) {
		b, ok := buckets[s.PaymentMethod]
		if !ok {
			b = &models.PaymentSummary{PaymentMethod: s.PaymentMethod}
			buckets[s.PaymentMethod] = b
			order = append(order, s.PaymentMethod)
		}
		b.Count++
		b.Total += s.Total
	}
	out := make([]models.PaymentSummary, 0, len(order))
	for _, k := range order {
		out = append(out, *buckets[k])
	}
	return out, nil
}

func (f *fakeSaleStore) Totals(_ context.Context, filter models.SaleFilter) (models.SalesTotals, error) {
	var t models.SalesTotals
	for _, s := range f.filtered(filter) {
		t.Count++
		t.Sum += s.Total
	}
	return t, nil
}

func (f *fakeSaleStore) TrendPoints(_ context.Context, filter models.SaleFilter) ([]models.TrendPoint, error) {
	matched := f.filtered(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].PurchaseDate.Before(matched[j].PurchaseDate)
	})
	out := make([]models.TrendPoint, 0, len(matched))
	for _, s := range matched {
		out = append(out, models.TrendPoint{Date: s.PurchaseDate, Total: s.Total})
	}
	return out, nil
}

func (f *fakeSaleStore) GroupedSales(_ context.Context, filter models.SaleFilter, groupBy models.SaleGroupBy, sortBy models.GroupSortBy, limit int) ([]models.SaleGroup, error) {
	key := func(s *models.Sale) string {
		switch groupBy {
		case models.GroupByState:
			return s.Address
		case models.GroupByCustomer:
			return s.Customer
		case models.GroupByInvoice:
			return s.Invoice
		case models.GroupByPaymentMethod:
			return s.PaymentMethod
		default:
			return s.Item
		}
	}

	type acc struct {
		group    models.SaleGroup
		weighted float64
	}
	groups := make(map[string]*acc)
	for _, s := range f.filtered(filter) {
		k := key(s)
		a, ok := groups[k]
		if !ok {
			a = &acc{group: models.SaleGroup{Key: k}}
			groups[k] = a
		}
		a.group.Count++
		a.group.TotalSales += s.Total
		a.group.TotalQuantity += int64(s.Quantity)
		a.weighted += s.Price * float64(s.Quantity)
	}

	out := make([]models.SaleGroup, 0, len(groups))
	for _, a := range groups {
		if a.group.TotalQuantity > 0 {
			a.group.AvgUnitPrice = a.weighted / float64(a.group.TotalQuantity)
		}
		out = append(out, a.group)
	}

	sort.SliceStable(out, func(i, j int) bool {
		switch sortBy {
		case models.SortByCount:
			return out[i].Count > out[j].Count
		case models.SortByQuantity:
			return out[i].TotalQuantity > out[j].TotalQuantity
		default:
			return out[i].TotalSales > out[j].TotalSales
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSaleStore) InvoiceStats(_ context.Context, filter models.SaleFilter) (models.InvoiceStats, error) {
	perInvoice := make(map[string]float64)
	for _, s := range f.filtered(filter) {
		perInvoice[s.Invoice] += s.Total
	}
	var stats models.InvoiceStats
	for _, total := range perInvoice {
		stats.InvoiceCount++
		stats.TotalAmount += total
	}
	if stats.InvoiceCount > 0 {
		stats.AverageAmount = stats.TotalAmount / float64(stats.InvoiceCount)
	}
	return stats, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleSale(invoice, customer, item string, date string, qty int, price, total float64, payment, address string) *models.Sale {
	return &models.Sale{
		ID:            uuid.New(),
		Customer:      customer,
		Invoice:       invoice,
		PurchaseDate:  day(date),
		Address:       address,
		Item:          item,
		Quantity:      qty,
		Price:         price,
		Total:         total,
		PaymentMethod: payment,
	}
}

func sampleStore() *fakeSaleStore {
	return &fakeSaleStore{sales: []*models.Sale{
		sampleSale("J100", "Alice", "Widget", "2024-01-02", 2, 5.00, 10.00, "Cash", "12 Main St, Texas"),
		sampleSale("J100", "Alice", "Gadget", "2024-01-02", 1, 15.00, 15.00, "Cash", "12 Main St, Texas"),
		sampleSale("J101", "Bob", "Widget", "2024-01-10", 4, 4.50, 18.00, "Credit Card", "9 Oak Ave, Ohio"),
		sampleSale("J102", "Carol", "Doohickey", "2024-02-01", 1, 30.00, 30.00, "Credit Card", "3 Pine Rd, Texas"),
		sampleSale("J103", "Bob", "Widget", "2024-02-15", 3, 5.00, 15.00, "Cash", "9 Oak Ave, Ohio"),
	}}
}

func newTestAggregator(store SaleStore) *AggregationService {
	return NewAggregationService(store, zap.NewNop())
}

func TestAggregateTotalMatchesFilteredSum(t *testing.T) {
	svc := newTestAggregator(sampleStore())
	ctx := context.Background()

	out, err := svc.Aggregate(ctx, AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsTotalSales,
	})
	require.NoError(t, err)
	assert.Equal(t, "Total sales: 88.00", out)

	// The same filter through FILTER must list exactly the rows the total
	// covered.
	listing, err := svc.Aggregate(ctx, AggregateRequest{Operation: OperationFilter})
	require.NoError(t, err)
	assert.Contains(t, listing, "Found 5 sales record(s)")
}

func TestAggregateAnalyticsWithDateRange(t *testing.T) {
	svc := newTestAggregator(sampleStore())
	ctx := context.Background()

	out, err := svc.Aggregate(ctx, AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsTotalSales,
		StartDate:     "2024-01-01",
		EndDate:       "2024-01-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "Total sales: 43.00", out)

	count, err := svc.Aggregate(ctx, AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsSalesCount,
		StartDate:     "2024-01-01",
		EndDate:       "2024-01-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "Number of sales: 3", count)
}

func TestAggregateEndDateIsInclusive(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsSalesCount,
		StartDate:     "2024-01-10",
		EndDate:       "2024-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, "Number of sales: 1", out)
}

func TestAggregateAverageConsistentWithTotalAndCount(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsAverageSales,
	})
	require.NoError(t, err)
	// 88.00 / 5
	assert.Equal(t, "Average sale value: 17.60", out)
}

func TestAggregateAverageOfEmptySetIsZero(t *testing.T) {
	svc := newTestAggregator(&fakeSaleStore{})

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsAverageSales,
	})
	require.NoError(t, err)
	assert.Equal(t, "Average sale value: 0.00", out)
}

func TestAggregateUnknownPaymentMethodListsValidSet(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsTotalSales,
		PaymentMethod: "Bitcoin",
	})
	require.NoError(t, err)
	assert.Equal(t, `Payment method "Bitcoin" is not present in the sales data. Valid payment methods: Cash, Credit Card.`, out)
}

func TestAggregatePaymentMethodMatchIsCaseInsensitive(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsTotalSales,
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, "Total sales: 40.00", out)
}

func TestAggregateFilterNoMatchesReturnsSentinel(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation: OperationFilter,
		Customer:  "Nobody",
	})
	require.NoError(t, err)
	assert.Equal(t, NoRecordsMessage, out)
}

func TestAggregateInvertedDateRangeMatchesNothing(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation: OperationFilter,
		StartDate: "2024-03-01",
		EndDate:   "2024-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, NoRecordsMessage, out)
}

func TestAggregateSummaryByPaymentMethod(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{Operation: OperationSummary})
	require.NoError(t, err)
	assert.Contains(t, out, "Cash: 3 sale(s), total 40.00")
	assert.Contains(t, out, "Credit Card: 2 sale(s), total 48.00")
}

func TestAggregateValidationFailsFast(t *testing.T) {
	svc := newTestAggregator(sampleStore())
	ctx := context.Background()

	cases := []struct {
		name string
		req  AggregateRequest
	}{
		{"missing operation", AggregateRequest{}},
		{"analytics without type", AggregateRequest{Operation: OperationAnalytics}},
		{"trend without interval", AggregateRequest{Operation: OperationTrend}},
		{"bad start date", AggregateRequest{Operation: OperationFilter, StartDate: "January 1st"}},
		{"bad analytics type", AggregateRequest{Operation: OperationAnalytics, AnalyticsType: "MEDIAN"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Aggregate(ctx, tc.req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestTrendBucketsByMonth(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation: OperationTrend,
		Interval:  TrendMonth,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01: total 43.00, 3 sale(s)")
	assert.Contains(t, out, "2024-02: total 45.00, 2 sale(s)")
}

func TestTrendBucketsByDayIncludesEveryMatchedSale(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation: OperationTrend,
		Interval:  TrendDay,
	})
	require.NoError(t, err)
	// Two line items on the same day fold into one bucket.
	assert.Contains(t, out, "2024-01-02: total 25.00, 2 sale(s)")
	assert.Contains(t, out, "2024-01-10: total 18.00, 1 sale(s)")
	assert.Contains(t, out, "2024-02-01: total 30.00, 1 sale(s)")
	assert.Contains(t, out, "2024-02-15: total 15.00, 1 sale(s)")
}

func TestTrendSortByTotalDescWithLimit(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation: OperationTrend,
		Interval:  TrendDay,
		SortBy:    TrendSortTotal,
		SortDesc:  true,
		Limit:     2,
	})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2024-02-01"))
	assert.True(t, strings.HasPrefix(lines[2], "2024-01-02"))
}

func TestWeekOfYear(t *testing.T) {
	// 2024-01-01 is a Monday; the Sunday-based week count puts Jan 1-6 in
	// week 1 and Jan 7 (Sunday) in week 2.
	assert.Equal(t, 1, weekOfYear(day("2024-01-01")))
	assert.Equal(t, 1, weekOfYear(day("2024-01-06")))
	assert.Equal(t, 2, weekOfYear(day("2024-01-07")))
	assert.Equal(t, 53, weekOfYear(day("2024-12-31")))
}

func TestTrendWeekLabels(t *testing.T) {
	store := &fakeSaleStore{sales: []*models.Sale{
		sampleSale("W1", "A", "X", "2024-01-03", 1, 1, 1.00, "Cash", ""),
		sampleSale("W2", "A", "X", "2024-01-08", 1, 1, 2.00, "Cash", ""),
	}}
	svc := newTestAggregator(store)

	out, err := svc.Aggregate(context.Background(), AggregateRequest{
		Operation: OperationTrend,
		Interval:  TrendWeek,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "2024-W01: total 1.00, 1 sale(s)")
	assert.Contains(t, out, "2024-W02: total 2.00, 1 sale(s)")
}

func TestGroupedTopNByItemIncludesWeightedAvgUnitPrice(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.GroupedTopN(context.Background(), GroupedRequest{
		GroupBy: models.GroupByItem,
	})
	require.NoError(t, err)
	// Widget: totals 43.00 over 9 units, weighted avg (2*5 + 4*4.5 + 3*5)/9.
	assert.Contains(t, out, "Widget: 3 sale(s), total 43.00, quantity 9, avg unit price 4.78")
	assert.Contains(t, out, "Doohickey: 1 sale(s), total 30.00, quantity 1, avg unit price 30.00")
}

func TestGroupedTopNDefaultsAndLimit(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.GroupedTopN(context.Background(), GroupedRequest{
		GroupBy: models.GroupByCustomer,
		Limit:   2,
	})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	// Default ranking is by total sales, descending.
	assert.True(t, strings.HasPrefix(lines[1], "1. Bob"))
	assert.True(t, strings.HasPrefix(lines[2], "2. Carol"))
}

func TestGroupedTopNRejectsUnknownGroupBy(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	_, err := svc.GroupedTopN(context.Background(), GroupedRequest{GroupBy: "COLOR"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "groupBy", vErr.Field)
}

func TestGroupedTopNWithRegionAppendsInvoiceTrend(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.GroupedTopN(context.Background(), GroupedRequest{
		GroupBy: models.GroupByItem,
		Region:  "Texas",
	})
	require.NoError(t, err)
	// Texas invoices: J100 (25.00) and J102 (30.00).
	assert.Contains(t, out, `Invoice trend for region "Texas": 2 unique invoice(s), total 55.00, average invoice value 27.50`)
}

func TestInvoiceDetails(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.InvoiceDetails(context.Background(), "J100")
	require.NoError(t, err)
	assert.Contains(t, out, "Invoice J100 (2 line item(s))")
	assert.Contains(t, out, "Widget x2 @ 5.00 = 10.00")
	assert.Contains(t, out, "Gadget x1 @ 15.00 = 15.00")
	assert.True(t, strings.HasSuffix(out, "Invoice total: 25.00"))
}

func TestInvoiceDetailsUnknownInvoice(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	out, err := svc.InvoiceDetails(context.Background(), "J999")
	require.NoError(t, err)
	assert.Equal(t, `No sales records found for invoice "J999".`, out)
}

func TestInvoiceDetailsRequiresInvoice(t *testing.T) {
	svc := newTestAggregator(sampleStore())

	_, err := svc.InvoiceDetails(context.Background(), "  ")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}
