package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"saleschat/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const NoRelevantRecordsMessage = "No sales records are relevant to this question."

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher answers "which sale ids are within this cosine distance of
// the query vector", closest first.
type VectorSearcher interface {
	SearchWithin(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.VectorMatch, error)
}

// RetrievalService answers free-text questions that structured aggregation
// does not cover: embed the query, find the nearest sale vectors within the
// distance threshold, then load and render those specific rows.
type RetrievalService struct {
	embedder   Embedder
	vectors    VectorSearcher
	sales      SaleStore
	aggregator *AggregationService
	threshold  float64
	topK       int
	logger     *zap.Logger
}

func NewRetrievalService(
	embedder Embedder,
	vectors VectorSearcher,
	sales SaleStore,
	aggregator *AggregationService,
	threshold float64,
	topK int,
	logger *zap.Logger,
) *RetrievalService {
	return &RetrievalService{
		embedder:   embedder,
		vectors:    vectors,
		sales:      sales,
		aggregator: aggregator,
		threshold:  threshold,
		topK:       topK,
		logger:     logger,
	}
}

// Retrieve runs the embed-then-search-then-format sequence for one query.
// The sequence is strictly ordered: search cannot start before embedding
// completes.
func (s *RetrievalService) Retrieve(ctx context.Context, query string) (string, error) {
	// Totals questions have a structured answer; route them through the
	// ANALYTICS path instead of embeddings so the two can never diverge.
	if isTotalsQuery(query) {
		return s.aggregator.Aggregate(ctx, AggregateRequest{
			Operation:     OperationAnalytics,
			AnalyticsType: AnalyticsTotalSales,
		})
	}

	// Item text was embedded upper-cased at ingestion; normalize the query
	// the same way for consistent ranking.
	embedding, err := s.embedder.Embed(ctx, strings.ToUpper(query))
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vectors.SearchWithin(ctx, embedding, s.threshold, s.topK)
	if err != nil {
		return "", fmt.Errorf("failed to search sale vectors: %w", err)
	}
	if len(matches) == 0 {
		return NoRelevantRecordsMessage, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.SaleID)
	}

	sales, err := s.sales.GetByIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to load matched sales: %w", err)
	}

	byID := make(map[uuid.UUID]*models.Sale, len(sales))
	for _, sale := range sales {
		byID[sale.ID] = sale
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant sales record(s):\n", len(matches))
	for _, m := range matches {
		sale, ok := byID[m.SaleID]
		if !ok {
			continue
		}
		b.WriteString(formatSaleLine(sale))
		b.WriteByte('\n')
	}

	s.logger.Debug("Retrieval completed",
		zap.Int("matches", len(matches)),
		zap.Float64("threshold", s.threshold),
	)

	return strings.TrimRight(b.String(), "\n"), nil
}

func isTotalsQuery(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "total sum") || strings.Contains(q, "total sales")
}

// CosineDistance is 1 - cosine similarity: 0 means identical direction,
// larger means less similar. Mismatched or zero-norm vectors count as
// maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}

	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// RankByDistance is the in-process reference for the storage-side vector
// search: brute-force cosine distance over all entries, threshold inclusive,
// ascending by distance. Small datasets must rank identically either way.
func RankByDistance(query []float32, entries []models.SaleVector, threshold float64) []models.VectorMatch {
	var matches []models.VectorMatch
	for _, e := range entries {
		d := CosineDistance(query, e.Embedding)
		if d <= threshold {
			matches = append(matches, models.VectorMatch{SaleID: e.SaleID, Distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches
}
