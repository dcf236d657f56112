package repository

import (
	"context"
	"time"

	"saleschat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// VectorRepository owns the sale_vectors table. Distance ranking is pushed
// to the storage layer's cosine-distance operator; the contract (threshold
// inclusive, ascending order) mirrors service.RankByDistance.
type VectorRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewVectorRepository(db *pgxpool.Pool, logger *zap.Logger) *VectorRepository {
	return &VectorRepository{
		db:     db,
		logger: logger,
	}
}

func toFlatArray(embedding []float32) pgtype.FlatArray[float32] {
	out := make(pgtype.FlatArray[float32], 0, len(embedding))
	for _, v := range embedding {
		out = append(out, v)
	}
	return out
}

// Upsert replaces the vector for a sale wholesale. Vectors are never mutated
// in place.
func (r *VectorRepository) Upsert(ctx context.Context, saleID uuid.UUID, embedding []float32) error {
	sql := `INSERT INTO sale_vectors (sale_id, embedding, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (sale_id) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at`

	_, err := r.db.Exec(ctx, sql, saleID, toFlatArray(embedding), time.Now())
	return err
}

// SearchWithin returns sale ids whose embedding lies within the cosine
// distance threshold of the query vector, closest first. The boundary
// distance is included.
func (r *VectorRepository) SearchWithin(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.VectorMatch, error) {
	sql := `SELECT sale_id, embedding <=> $1 AS distance
		FROM sale_vectors
		WHERE embedding <=> $1 <= $2
		ORDER BY distance ASC
		LIMIT $3`

	rows, err := r.db.Query(ctx, sql, toFlatArray(embedding), threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.VectorMatch
	for rows.Next() {
		var m models.VectorMatch
		if err := rows.Scan(&m.SaleID, &m.Distance); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}
