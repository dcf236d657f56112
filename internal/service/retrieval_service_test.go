package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"saleschat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	vector []float32
	calls  int
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeVectorSearcher struct {
	entries []models.SaleVector
}

func (f *fakeVectorSearcher) SearchWithin(_ context.Context, embedding []float32, threshold float64, limit int) ([]models.VectorMatch, error) {
	matches := RankByDistance(embedding, f.entries, threshold)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs count as maximally distant.
	assert.Equal(t, 1.0, CosineDistance([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
}

func TestRankByDistanceThresholdInclusive(t *testing.T) {
	near := uuid.New()
	mid := uuid.New()
	far := uuid.New()

	entries := []models.SaleVector{
		{SaleID: far, Embedding: []float32{0.1, 0.99499}}, // distance 0.9
		{SaleID: near, Embedding: []float32{0.9, 0.43589}}, // distance 0.1
		{SaleID: mid, Embedding: []float32{0.5, 0.86603}},  // distance 0.5
	}

	matches := RankByDistance([]float32{1, 0}, entries, 0.7)
	require.Len(t, matches, 2)
	assert.Equal(t, near, matches[0].SaleID)
	assert.Equal(t, mid, matches[1].SaleID)

	// The boundary itself is in, not out.
	boundary := RankByDistance([]float32{1, 0}, []models.SaleVector{
		{SaleID: near, Embedding: []float32{0, 1}},
	}, 1.0)
	require.Len(t, boundary, 1)
}

func TestRetrieveFormatsMatchesClosestFirst(t *testing.T) {
	store := sampleStore()
	nearSale := store.sales[0]
	midSale := store.sales[2]

	searcher := &fakeVectorSearcher{entries: []models.SaleVector{
		{SaleID: midSale.ID, Embedding: []float32{0.6, 0.8}},
		{SaleID: nearSale.ID, Embedding: []float32{1, 0}},
		{SaleID: store.sales[3].ID, Embedding: []float32{-1, 0}},
	}}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}

	svc := NewRetrievalService(embedder, searcher, store, newTestAggregator(store), 0.7, 10, zap.NewNop())

	out, err := svc.Retrieve(context.Background(), "widget purchases in Texas")
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Found 2 relevant sales record(s):", lines[0])
	assert.Contains(t, lines[1], nearSale.Invoice)
	assert.Contains(t, lines[2], midSale.Invoice)
}

func TestRetrieveNoMatchesReturnsSentinel(t *testing.T) {
	store := sampleStore()
	svc := NewRetrievalService(
		&fakeEmbedder{vector: []float32{1, 0}},
		&fakeVectorSearcher{},
		store, newTestAggregator(store), 0.7, 10, zap.NewNop(),
	)

	out, err := svc.Retrieve(context.Background(), "llama grooming kits")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantRecordsMessage, out)
}

func TestRetrieveTotalsQuerySkipsEmbedding(t *testing.T) {
	store := sampleStore()
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	svc := NewRetrievalService(embedder, &fakeVectorSearcher{}, store, newTestAggregator(store), 0.7, 10, zap.NewNop())

	out, err := svc.Retrieve(context.Background(), "What is the total sum of all transactions?")
	require.NoError(t, err)
	assert.Equal(t, "Total sales: 88.00", out)
	assert.Zero(t, embedder.calls)

	// The fast path and the analytics tool must agree.
	direct, err := newTestAggregator(store).Aggregate(context.Background(), AggregateRequest{
		Operation:     OperationAnalytics,
		AnalyticsType: AnalyticsTotalSales,
	})
	require.NoError(t, err)
	assert.Equal(t, direct, out)
}

func TestRetrieveEmbeddingFailurePropagates(t *testing.T) {
	store := sampleStore()
	svc := NewRetrievalService(
		&fakeEmbedder{err: errors.New("backend down")},
		&fakeVectorSearcher{}, store, newTestAggregator(store), 0.7, 10, zap.NewNop(),
	)

	_, err := svc.Retrieve(context.Background(), "anything")
	require.Error(t, err)
}
