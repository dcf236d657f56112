package models

import (
	"time"

	"github.com/google/uuid"
)

// Sale is one purchased line item. An invoice is not unique: one invoice
// usually carries several line items. The logical identity of a sale is the
// (invoice, item, total) tuple.
type Sale struct {
	ID            uuid.UUID `db:"id"`
	Customer      string    `db:"customer"`
	Invoice       string    `db:"invoice"`
	PurchaseDate  time.Time `db:"purchase_date"`
	Address       string    `db:"address"`
	Item          string    `db:"item"`
	Quantity      int       `db:"quantity"`
	Price         float64   `db:"price"`
	Total         float64   `db:"total"` // line total; 0 means given away free
	Remarks       string    `db:"remarks"`
	PaymentMethod string    `db:"payment_method"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// SaleVector ties one embedding to one sale. Vectors are replaced wholesale
// when the item text changes, never mutated in place.
type SaleVector struct {
	SaleID    uuid.UUID `db:"sale_id"`
	Embedding []float32 `db:"embedding"`
	CreatedAt time.Time `db:"created_at"`
}

// VectorMatch is one vector-search hit, closest first.
type VectorMatch struct {
	SaleID   uuid.UUID
	Distance float64
}

// SaleFilter holds the optional, AND-combined filters every sales query
// accepts. Region is matched against the free-text address as a
// case-insensitive substring; there are no structured geo fields.
type SaleFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	PaymentMethod string
	Invoice       string
	Customer      string
	Item          string
	Region        string
}

type SaleGroupBy string

const (
	GroupByItem          SaleGroupBy = "ITEM"
	GroupByState         SaleGroupBy = "STATE"
	GroupByCustomer      SaleGroupBy = "CUSTOMER"
	GroupByInvoice       SaleGroupBy = "INVOICE"
	GroupByPaymentMethod SaleGroupBy = "PAYMENT_METHOD"
)

type GroupSortBy string

const (
	SortByTotalSales GroupSortBy = "TOTAL_SALES"
	SortByCount      GroupSortBy = "COUNT"
	SortByQuantity   GroupSortBy = "QUANTITY"
)

// PaymentSummary is one per-payment-method bucket.
type PaymentSummary struct {
	PaymentMethod string
	Count         int64
	Total         float64
}

// SalesTotals is the scalar aggregate over a filtered set.
type SalesTotals struct {
	Count int64
	Sum   float64
}

// TrendPoint is the minimal projection a trend query scans: one date and one
// line total. Bucketing happens in the aggregation engine.
type TrendPoint struct {
	Date  time.Time
	Total float64
}

// SaleGroup is one bucket of a grouped aggregate. AvgUnitPrice is populated
// only for ITEM grouping and is weighted by quantity.
type SaleGroup struct {
	Key           string
	Count         int64
	TotalSales    float64
	TotalQuantity int64
	AvgUnitPrice  float64
}

// InvoiceStats are invoice-level statistics over a filtered set: line items
// rolled up per invoice first, then counted and averaged.
type InvoiceStats struct {
	InvoiceCount  int64
	TotalAmount   float64
	AverageAmount float64
}
