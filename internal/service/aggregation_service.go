package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"saleschat/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoRecordsMessage is the sentinel returned whenever a query executed
// successfully but matched zero rows. The model needs to relay "no matching
// record" rather than inventing data, so an empty result is never silent.
const NoRecordsMessage = "No sales records found matching the given criteria."

const dateLayout = "2006-01-02"

// ValidationError marks a caller-contract violation: a missing or malformed
// conditionally-required parameter. It fails fast, before any query runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: field %q %s", e.Field, e.Reason)
}

type Operation string

const (
	OperationFilter    Operation = "FILTER"
	OperationSummary   Operation = "SUMMARY"
	OperationAnalytics Operation = "ANALYTICS"
	OperationTrend     Operation = "TREND"
)

type AnalyticsType string

const (
	AnalyticsTotalSales   AnalyticsType = "TOTAL_SALES"
	AnalyticsAverageSales AnalyticsType = "AVERAGE_SALES"
	AnalyticsSalesCount   AnalyticsType = "SALES_COUNT"
)

type TrendInterval string

const (
	TrendDay   TrendInterval = "DAY"
	TrendWeek  TrendInterval = "WEEK"
	TrendMonth TrendInterval = "MONTH"
)

type TrendSortField string

const (
	TrendSortPeriod TrendSortField = "PERIOD"
	TrendSortTotal  TrendSortField = "TOTAL_SALES"
	TrendSortCount  TrendSortField = "COUNT"
)

// AggregateRequest is the typed, validated parameter set of the aggregation
// engine. Dates are ISO-8601; an inverted range is not an error, it simply
// matches zero rows.
type AggregateRequest struct {
	Operation     Operation
	StartDate     string
	EndDate       string
	PaymentMethod string
	Invoice       string
	Customer      string
	Item          string
	Region        string
	AnalyticsType AnalyticsType
	Interval      TrendInterval
	SortBy        TrendSortField
	SortDesc      bool
	Limit         int
}

// GroupedRequest drives the grouped top-N aggregate.
type GroupedRequest struct {
	GroupBy       models.SaleGroupBy
	SortBy        models.GroupSortBy
	Limit         int
	StartDate     string
	EndDate       string
	PaymentMethod string
	Customer      string
	Item          string
	Region        string
}

// SaleStore is the relational access the engine needs. *repository.SaleRepository
// implements it; tests use an in-memory fake.
type SaleStore interface {
	FilterSales(ctx context.Context, f models.SaleFilter, limit int) ([]*models.Sale, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Sale, error)
	DistinctPaymentMethods(ctx context.Context) ([]string, error)
	PaymentSummary(ctx context.Context, f models.SaleFilter) ([]models.PaymentSummary, error)
	Totals(ctx context.Context, f models.SaleFilter) (models.SalesTotals, error)
	TrendPoints(ctx context.Context, f models.SaleFilter) ([]models.TrendPoint, error)
	GroupedSales(ctx context.Context, f models.SaleFilter, groupBy models.SaleGroupBy, sortBy models.GroupSortBy, limit int) ([]models.SaleGroup, error)
	InvoiceStats(ctx context.Context, f models.SaleFilter) (models.InvoiceStats, error)
}

// AggregationService answers structured analytical questions over the sales
// relation. Results are always formatted strings destined for a model
// context window, never raw rows; zero-row results and unknown filter values
// come back as descriptive text, not errors.
type AggregationService struct {
	store  SaleStore
	logger *zap.Logger
}

func NewAggregationService(store SaleStore, logger *zap.Logger) *AggregationService {
	return &AggregationService{
		store:  store,
		logger: logger,
	}
}

func buildFilter(startDate, endDate, paymentMethod, invoice, customer, item, region string) (models.SaleFilter, error) {
	f := models.SaleFilter{
		PaymentMethod: paymentMethod,
		Invoice:       invoice,
		Customer:      customer,
		Item:          item,
		Region:        region,
	}

	if startDate != "" {
		t, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return f, &ValidationError{Field: "startDate", Reason: "must be an ISO-8601 date (YYYY-MM-DD)"}
		}
		f.StartDate = &t
	}
	if endDate != "" {
		t, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return f, &ValidationError{Field: "endDate", Reason: "must be an ISO-8601 date (YYYY-MM-DD)"}
		}
		// Inclusive: a bare date covers the whole day.
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.EndDate = &end
	}

	return f, nil
}

// Aggregate runs one FILTER, SUMMARY, ANALYTICS or TREND request and renders
// the result as plain text.
func (s *AggregationService) Aggregate(ctx context.Context, req AggregateRequest) (string, error) {
	f, err := buildFilter(req.StartDate, req.EndDate, req.PaymentMethod, req.Invoice, req.Customer, req.Item, req.Region)
	if err != nil {
		return "", err
	}

	switch req.Operation {
	case OperationFilter:
		return s.filter(ctx, f)
	case OperationSummary:
		return s.summary(ctx, f)
	case OperationAnalytics:
		if req.AnalyticsType == "" {
			return "", &ValidationError{Field: "analyticsType", Reason: "is required when operation is ANALYTICS"}
		}
		return s.analytics(ctx, f, req.AnalyticsType)
	case OperationTrend:
		if req.Interval == "" {
			return "", &ValidationError{Field: "groupBy", Reason: "is required when operation is TREND"}
		}
		return s.trend(ctx, f, req)
	default:
		return "", &ValidationError{Field: "operation", Reason: "must be one of FILTER, SUMMARY, ANALYTICS, TREND"}
	}
}

func (s *AggregationService) filter(ctx context.Context, f models.SaleFilter) (string, error) {
	sales, err := s.store.FilterSales(ctx, f, 0)
	if err != nil {
		return "", fmt.Errorf("failed to filter sales: %w", err)
	}
	if len(sales) == 0 {
		return NoRecordsMessage, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d sales record(s):\n", len(sales))
	for _, sale := range sales {
		b.WriteString(formatSaleLine(sale))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *AggregationService) summary(ctx context.Context, f models.SaleFilter) (string, error) {
	buckets, err := s.store.PaymentSummary(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to summarize sales: %w", err)
	}
	if len(buckets) == 0 {
		return NoRecordsMessage, nil
	}

	var b strings.Builder
	b.WriteString("Sales summary by payment method:\n")
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "%s: %d sale(s), total %s\n", bucket.PaymentMethod, bucket.Count, money(bucket.Total))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *AggregationService) analytics(ctx context.Context, f models.SaleFilter, analyticsType AnalyticsType) (string, error) {
	if f.PaymentMethod != "" {
		resolved, known, err := s.resolvePaymentMethod(ctx, f.PaymentMethod)
		if err != nil {
			return "", err
		}
		if !known {
			return resolved, nil
		}
		f.PaymentMethod = resolved
	}

	totals, err := s.store.Totals(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to compute sales analytics: %w", err)
	}

	switch analyticsType {
	case AnalyticsTotalSales:
		return fmt.Sprintf("Total sales: %s", money(totals.Sum)), nil
	case AnalyticsAverageSales:
		avg := 0.0
		if totals.Count > 0 {
			avg = totals.Sum / float64(totals.Count)
		}
		return fmt.Sprintf("Average sale value: %s", money(avg)), nil
	case AnalyticsSalesCount:
		return fmt.Sprintf("Number of sales: %d", totals.Count), nil
	default:
		return "", &ValidationError{Field: "analyticsType", Reason: "must be one of TOTAL_SALES, AVERAGE_SALES, SALES_COUNT"}
	}
}

// resolvePaymentMethod checks the requested method against the values
// actually present. An unknown method is not an error; the caller gets a
// message naming the valid set so the model can self-correct.
func (s *AggregationService) resolvePaymentMethod(ctx context.Context, requested string) (string, bool, error) {
	methods, err := s.store.DistinctPaymentMethods(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to load payment methods: %w", err)
	}

	for _, m := range methods {
		if strings.EqualFold(m, requested) {
			return m, true, nil
		}
	}

	return fmt.Sprintf(
		"Payment method %q is not present in the sales data. Valid payment methods: %s.",
		requested, strings.Join(methods, ", "),
	), false, nil
}

type trendBucket struct {
	Period     string
	TotalSales float64
	Count      int64
}

func (s *AggregationService) trend(ctx context.Context, f models.SaleFilter, req AggregateRequest) (string, error) {
	points, err := s.store.TrendPoints(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to load trend data: %w", err)
	}
	if len(points) == 0 {
		return NoRecordsMessage, nil
	}

	buckets := bucketTrend(points, req.Interval)
	sortTrendBuckets(buckets, req.SortBy, req.SortDesc)
	if req.Limit > 0 && len(buckets) > req.Limit {
		buckets = buckets[:req.Limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sales trend by %s:\n", strings.ToLower(string(req.Interval)))
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "%s: total %s, %d sale(s)\n", bucket.Period, money(bucket.TotalSales), bucket.Count)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func bucketTrend(points []models.TrendPoint, interval TrendInterval) []trendBucket {
	totals := make(map[string]*trendBucket)
	var order []string
	for _, p := range points {
		key := periodKey(p.Date, interval)
		bucket, ok := totals[key]
		if !ok {
			bucket = &trendBucket{Period: key}
			totals[key] = bucket
			order = append(order, key)
		}
		bucket.TotalSales += p.Total
		bucket.Count++
	}

	buckets := make([]trendBucket, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, *totals[key])
	}
	return buckets
}

func periodKey(t time.Time, interval TrendInterval) string {
	switch interval {
	case TrendDay:
		return t.Format(dateLayout)
	case TrendMonth:
		return t.Format("2006-01")
	default:
		return fmt.Sprintf("%d-W%02d", t.Year(), weekOfYear(t))
	}
}

// weekOfYear numbers weeks as ceil((daysSinceJan1 + jan1Weekday + 1) / 7)
// with a Sunday-based weekday. This is an ISO-like approximation, kept
// deliberately: trend buckets must stay stable across releases.
func weekOfYear(t time.Time) int {
	jan1 := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	days := t.YearDay() - 1
	return (days + int(jan1.Weekday()) + 1 + 6) / 7
}

func sortTrendBuckets(buckets []trendBucket, field TrendSortField, desc bool) {
	less := func(a, b trendBucket) bool { return a.Period < b.Period }
	switch field {
	case TrendSortTotal:
		less = func(a, b trendBucket) bool { return a.TotalSales < b.TotalSales }
	case TrendSortCount:
		less = func(a, b trendBucket) bool { return a.Count < b.Count }
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		if desc {
			return less(buckets[j], buckets[i])
		}
		return less(buckets[i], buckets[j])
	})
}

const defaultGroupLimit = 5

// GroupedTopN buckets sales by a categorical field and returns the top
// groups. ITEM grouping adds a quantity-weighted average unit price; a
// region filter appends invoice-level trend statistics over the same set.
func (s *AggregationService) GroupedTopN(ctx context.Context, req GroupedRequest) (string, error) {
	if req.GroupBy == "" {
		return "", &ValidationError{Field: "groupBy", Reason: "is required"}
	}
	switch req.GroupBy {
	case models.GroupByItem, models.GroupByState, models.GroupByCustomer, models.GroupByInvoice, models.GroupByPaymentMethod:
	default:
		return "", &ValidationError{Field: "groupBy", Reason: "must be one of ITEM, STATE, CUSTOMER, INVOICE, PAYMENT_METHOD"}
	}
	if req.SortBy == "" {
		req.SortBy = models.SortByTotalSales
	}
	if req.Limit <= 0 {
		req.Limit = defaultGroupLimit
	}

	f, err := buildFilter(req.StartDate, req.EndDate, req.PaymentMethod, "", req.Customer, req.Item, req.Region)
	if err != nil {
		return "", err
	}

	groups, err := s.store.GroupedSales(ctx, f, req.GroupBy, req.SortBy, req.Limit)
	if err != nil {
		return "", fmt.Errorf("failed to group sales: %w", err)
	}
	if len(groups) == 0 {
		return NoRecordsMessage, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d by %s:\n", len(groups), strings.ToLower(string(req.GroupBy)))
	for i, g := range groups {
		if req.GroupBy == models.GroupByItem {
			fmt.Fprintf(&b, "%d. %s: %d sale(s), total %s, quantity %d, avg unit price %s\n",
				i+1, g.Key, g.Count, money(g.TotalSales), g.TotalQuantity, money(g.AvgUnitPrice))
		} else {
			fmt.Fprintf(&b, "%d. %s: %d sale(s), total %s, quantity %d\n",
				i+1, g.Key, g.Count, money(g.TotalSales), g.TotalQuantity)
		}
	}

	if req.Region != "" {
		stats, err := s.store.InvoiceStats(ctx, f)
		if err != nil {
			return "", fmt.Errorf("failed to compute invoice statistics: %w", err)
		}
		fmt.Fprintf(&b, "Invoice trend for region %q: %d unique invoice(s), total %s, average invoice value %s\n",
			req.Region, stats.InvoiceCount, money(stats.TotalAmount), money(stats.AverageAmount))
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// InvoiceDetails lists every line item of one invoice plus the overall
// invoice total.
func (s *AggregationService) InvoiceDetails(ctx context.Context, invoice string) (string, error) {
	if strings.TrimSpace(invoice) == "" {
		return "", &ValidationError{Field: "invoice", Reason: "is required"}
	}

	sales, err := s.store.FilterSales(ctx, models.SaleFilter{Invoice: invoice}, 0)
	if err != nil {
		return "", fmt.Errorf("failed to load invoice: %w", err)
	}
	if len(sales) == 0 {
		return fmt.Sprintf("No sales records found for invoice %q.", invoice), nil
	}

	var total float64
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s (%d line item(s)):\n", invoice, len(sales))
	for _, sale := range sales {
		total += sale.Total
		b.WriteString(formatSaleLine(sale))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Invoice total: %s", money(total))

	return b.String(), nil
}

func formatSaleLine(s *models.Sale) string {
	line := fmt.Sprintf("%s | invoice %s | %s | %s x%d @ %s = %s | %s",
		s.PurchaseDate.Format(dateLayout), s.Invoice, s.Customer,
		s.Item, s.Quantity, money(s.Price), money(s.Total), s.PaymentMethod)
	if s.Address != "" {
		line += " | " + s.Address
	}
	return line
}

// money renders a monetary value with exactly two decimal places. Sums are
// plain addition over the stored numeric fields; there is no currency
// conversion.
func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
