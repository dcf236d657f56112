package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"saleschat/internal/models"
	"saleschat/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestReport is the outcome of one CSV import.
type IngestReport struct {
	Rows     int
	Inserted int
	Skipped  int
	Embedded int
}

// SaleWriter is the insert-side storage access the importer needs.
type SaleWriter interface {
	InsertIgnoreDuplicates(ctx context.Context, sale *models.Sale) (bool, error)
}

// VectorWriter stores one embedding per sale.
type VectorWriter interface {
	Upsert(ctx context.Context, saleID uuid.UUID, embedding []float32) error
}

// BatchEmbedder embeds a batch of texts, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestService loads sales transactions from CSV. Re-importing the same
// file is a no-op: rows are identified by their (invoice, item, total) tuple
// and duplicates are skipped, not duplicated.
type IngestService struct {
	sales     SaleWriter
	vectors   VectorWriter
	embedder  BatchEmbedder
	batchSize int
	logger    *zap.Logger
}

func NewIngestService(sales SaleWriter, vectors VectorWriter, embedder BatchEmbedder, batchSize int, logger *zap.Logger) *IngestService {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &IngestService{
		sales:     sales,
		vectors:   vectors,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01/02/2006",
	time.RFC3339,
}

func parsePurchaseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// headerIndex maps the columns we care about by name, tolerating column
// reordering and capitalization differences between exports.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		index[key] = i
	}
	return index
}

func field(record []string, index map[string]int, names ...string) string {
	for _, name := range names {
		if i, ok := index[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
	}
	return ""
}

// ImportCSV reads the transactions file, inserts rows that are not already
// present, and embeds the item text of every inserted row. Malformed rows
// are logged and skipped; one bad line must not abort the import.
func (s *IngestService) ImportCSV(ctx context.Context, r io.Reader) (*IngestReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	index := headerIndex(header)

	report := &IngestReport{}
	var pending []*models.Sale

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("Skipping malformed CSV row", zap.Error(err))
			report.Skipped++
			continue
		}
		report.Rows++

		sale, err := s.parseRow(record, index)
		if err != nil {
			s.logger.Warn("Skipping invalid sales row",
				zap.Int("row", report.Rows),
				zap.Error(err),
			)
			report.Skipped++
			continue
		}

		pending = append(pending, sale)
		if len(pending) >= s.batchSize {
			if err := s.flush(ctx, pending, report); err != nil {
				return report, err
			}
			pending = pending[:0]
		}
	}

	if len(pending) > 0 {
		if err := s.flush(ctx, pending, report); err != nil {
			return report, err
		}
	}

	s.logger.Info("CSV import finished",
		zap.Int("rows", report.Rows),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("embedded", report.Embedded),
	)

	return report, nil
}

func (s *IngestService) parseRow(record []string, index map[string]int) (*models.Sale, error) {
	invoice := field(record, index, "invoice", "invoice_no", "invoice_number")
	item := field(record, index, "item", "item_name", "product")
	if invoice == "" || item == "" {
		return nil, fmt.Errorf("missing invoice or item")
	}

	date, err := parsePurchaseDate(field(record, index, "purchase_date", "date", "order_date"))
	if err != nil {
		return nil, err
	}

	quantity, err := strconv.Atoi(field(record, index, "quantity", "qty"))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %w", err)
	}

	price, err := strconv.ParseFloat(field(record, index, "price", "unit_price"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price: %w", err)
	}

	totalRaw := field(record, index, "total", "total_price", "amount")
	total := float64(quantity) * price
	if totalRaw != "" {
		total, err = strconv.ParseFloat(totalRaw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid total: %w", err)
		}
	}

	now := time.Now().UTC()
	return &models.Sale{
		ID:            uuid.New(),
		Customer:      field(record, index, "customer", "customer_name"),
		Invoice:       invoice,
		PurchaseDate:  date,
		Address:       field(record, index, "address", "purchase_address", "region"),
		Item:          item,
		Quantity:      quantity,
		Price:         price,
		Total:         total,
		Remarks:       field(record, index, "remarks", "notes"),
		PaymentMethod: field(record, index, "payment_method", "payment"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// flush inserts one batch and embeds the rows that were actually new.
// Storage calls run under the transient-error retry policy.
func (s *IngestService) flush(ctx context.Context, batch []*models.Sale, report *IngestReport) error {
	var inserted []*models.Sale
	for _, sale := range batch {
		var fresh bool
		err := postgres.WithRetry(ctx, func(ctx context.Context) error {
			var err error
			fresh, err = s.sales.InsertIgnoreDuplicates(ctx, sale)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to insert sale %s/%s: %w", sale.Invoice, sale.Item, err)
		}
		if fresh {
			inserted = append(inserted, sale)
			report.Inserted++
		} else {
			report.Skipped++
		}
	}

	if len(inserted) == 0 || s.embedder == nil {
		return nil
	}

	// Item text is embedded upper-cased; queries are normalized the same way.
	texts := make([]string, len(inserted))
	for i, sale := range inserted {
		texts[i] = strings.ToUpper(sale.Item)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed sales batch: %w", err)
	}

	for i, sale := range inserted {
		embedding := vectors[i]
		err := postgres.WithRetry(ctx, func(ctx context.Context) error {
			return s.vectors.Upsert(ctx, sale.ID, embedding)
		})
		if err != nil {
			return fmt.Errorf("failed to store embedding for sale %s: %w", sale.ID, err)
		}
		report.Embedded++
	}

	return nil
}
