package repository

import (
	"context"

	"saleschat/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const saleColumns = "id, customer, invoice, purchase_date, address, item, quantity, price, total, remarks, payment_method, created_at, updated_at"

type SaleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSaleRepository(db *pgxpool.Pool, logger *zap.Logger) *SaleRepository {
	return &SaleRepository{
		db:     db,
		logger: logger,
	}
}

// applyFilter appends the AND-combined optional conditions to a select.
// Region matches the free-text address as a case-insensitive substring.
func applyFilter(query squirrel.SelectBuilder, f models.SaleFilter) squirrel.SelectBuilder {
	if f.StartDate != nil {
		query = query.Where(squirrel.GtOrEq{"purchase_date": *f.StartDate})
	}
	if f.EndDate != nil {
		query = query.Where(squirrel.LtOrEq{"purchase_date": *f.EndDate})
	}
	if f.PaymentMethod != "" {
		query = query.Where(squirrel.Eq{"payment_method": f.PaymentMethod})
	}
	if f.Invoice != "" {
		query = query.Where(squirrel.Eq{"invoice": f.Invoice})
	}
	if f.Customer != "" {
		query = query.Where(squirrel.Eq{"customer": f.Customer})
	}
	if f.Item != "" {
		query = query.Where(squirrel.Eq{"item": f.Item})
	}
	if f.Region != "" {
		query = query.Where(squirrel.ILike{"address": "%" + f.Region + "%"})
	}
	return query
}

// InsertIgnoreDuplicates inserts a sale unless a row with the same
// (invoice, item, total) tuple already exists. Returns whether a row was
// actually written, so re-importing the same CSV stays idempotent.
func (r *SaleRepository) InsertIgnoreDuplicates(ctx context.Context, sale *models.Sale) (bool, error) {
	query := squirrel.Insert("sales").
		Columns("id", "customer", "invoice", "purchase_date", "address", "item", "quantity", "price", "total", "remarks", "payment_method", "created_at", "updated_at").
		Values(sale.ID, sale.Customer, sale.Invoice, sale.PurchaseDate, sale.Address, sale.Item, sale.Quantity, sale.Price, sale.Total, sale.Remarks, sale.PaymentMethod, sale.CreatedAt, sale.UpdatedAt).
		Suffix("ON CONFLICT (invoice, item, total) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// FilterSales returns matching rows ordered by purchase date descending.
// A limit of 0 means no limit.
func (r *SaleRepository) FilterSales(ctx context.Context, f models.SaleFilter, limit int) ([]*models.Sale, error) {
	query := applyFilter(squirrel.Select(saleColumns).From("sales"), f).
		OrderBy("purchase_date DESC").
		PlaceholderFormat(squirrel.Dollar)
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		var s models.Sale
		if err := rows.Scan(
			&s.ID, &s.Customer, &s.Invoice, &s.PurchaseDate, &s.Address, &s.Item,
			&s.Quantity, &s.Price, &s.Total, &s.Remarks, &s.PaymentMethod,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sales = append(sales, &s)
	}

	return sales, rows.Err()
}

func (r *SaleRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Sale, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := squirrel.Select(saleColumns).
		From("sales").
		Where(squirrel.Eq{"id": ids}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		var s models.Sale
		if err := rows.Scan(
			&s.ID, &s.Customer, &s.Invoice, &s.PurchaseDate, &s.Address, &s.Item,
			&s.Quantity, &s.Price, &s.Total, &s.Remarks, &s.PaymentMethod,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sales = append(sales, &s)
	}

	return sales, rows.Err()
}

// DistinctPaymentMethods returns the payment methods actually present in the
// data. The vocabulary is open; validation means membership in this set.
func (r *SaleRepository) DistinctPaymentMethods(ctx context.Context) ([]string, error) {
	query := squirrel.Select("DISTINCT payment_method").
		From("sales").
		Where(squirrel.NotEq{"payment_method": ""}).
		OrderBy("payment_method ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	return methods, rows.Err()
}

func (r *SaleRepository) PaymentSummary(ctx context.Context, f models.SaleFilter) ([]models.PaymentSummary, error) {
	query := applyFilter(
		squirrel.Select("payment_method", "COUNT(*)", "COALESCE(SUM(total), 0)").From("sales"), f).
		GroupBy("payment_method").
		OrderBy("COALESCE(SUM(total), 0) DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.PaymentSummary
	for rows.Next() {
		var s models.PaymentSummary
		if err := rows.Scan(&s.PaymentMethod, &s.Count, &s.Total); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func (r *SaleRepository) Totals(ctx context.Context, f models.SaleFilter) (models.SalesTotals, error) {
	query := applyFilter(
		squirrel.Select("COUNT(*)", "COALESCE(SUM(total), 0)").From("sales"), f).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return models.SalesTotals{}, err
	}

	var totals models.SalesTotals
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&totals.Count, &totals.Sum); err != nil {
		return models.SalesTotals{}, err
	}

	return totals, nil
}

// TrendPoints scans only the (purchase_date, total) projection; the
// aggregation engine buckets the points by interval.
func (r *SaleRepository) TrendPoints(ctx context.Context, f models.SaleFilter) ([]models.TrendPoint, error) {
	query := applyFilter(
		squirrel.Select("purchase_date", "total").From("sales"), f).
		OrderBy("purchase_date ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Date, &p.Total); err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

func groupColumn(groupBy models.SaleGroupBy) string {
	switch groupBy {
	case models.GroupByItem:
		return "item"
	case models.GroupByState:
		// Address is the only region proxy available; there is no
		// structured state field.
		return "address"
	case models.GroupByCustomer:
		return "customer"
	case models.GroupByInvoice:
		return "invoice"
	case models.GroupByPaymentMethod:
		return "payment_method"
	default:
		return ""
	}
}

func groupOrder(sortBy models.GroupSortBy) string {
	switch sortBy {
	case models.SortByCount:
		return "COUNT(*) DESC"
	case models.SortByQuantity:
		return "COALESCE(SUM(quantity), 0) DESC"
	default:
		return "COALESCE(SUM(total), 0) DESC"
	}
}

// GroupedSales computes per-bucket count, total and quantity for the given
// categorical field, plus a quantity-weighted average unit price (used for
// ITEM grouping).
func (r *SaleRepository) GroupedSales(ctx context.Context, f models.SaleFilter, groupBy models.SaleGroupBy, sortBy models.GroupSortBy, limit int) ([]models.SaleGroup, error) {
	column := groupColumn(groupBy)
	query := applyFilter(
		squirrel.Select(
			column,
			"COUNT(*)",
			"COALESCE(SUM(total), 0)",
			"COALESCE(SUM(quantity), 0)",
			"COALESCE(SUM(price * quantity) / NULLIF(SUM(quantity), 0), 0)",
		).From("sales"), f).
		GroupBy(column).
		OrderBy(groupOrder(sortBy)).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.SaleGroup
	for rows.Next() {
		var g models.SaleGroup
		if err := rows.Scan(&g.Key, &g.Count, &g.TotalSales, &g.TotalQuantity, &g.AvgUnitPrice); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// InvoiceStats rolls line items up per invoice over the filtered set and
// returns the unique invoice count, total and average invoice amount.
func (r *SaleRepository) InvoiceStats(ctx context.Context, f models.SaleFilter) (models.InvoiceStats, error) {
	inner := applyFilter(
		squirrel.Select("invoice", "SUM(total) AS invoice_total").From("sales"), f).
		GroupBy("invoice")

	query := squirrel.Select("COUNT(*)", "COALESCE(SUM(invoice_total), 0)", "COALESCE(AVG(invoice_total), 0)").
		FromSelect(inner, "invoices").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return models.InvoiceStats{}, err
	}

	var stats models.InvoiceStats
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&stats.InvoiceCount, &stats.TotalAmount, &stats.AverageAmount); err != nil {
		return models.InvoiceStats{}, err
	}

	return stats, nil
}
