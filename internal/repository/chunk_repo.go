package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/tgo/captain/knowdesk/internal/model"
)

const (
	minEfSearch = 40
	maxEfSearch = 1000
)

type scoredChunk struct {
	model.Chunk
	Distance float64 `gorm:"column:distance"`
}

// ChunkRepository is the pgvector-backed vector index.
type ChunkRepository struct {
	db         *gorm.DB
	dimensions int
}

func NewChunkRepository(db *gorm.DB, dimensions int) *ChunkRepository {
	return &ChunkRepository{db: db, dimensions: dimensions}
}

func (r *ChunkRepository) Store(ctx context.Context, chunk *model.Chunk) (uuid.UUID, error) {
	if n := len(chunk.Embedding.Slice()); n != r.dimensions {
		return uuid.Nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, r.dimensions)
	}
	if err := r.db.WithContext(ctx).Create(chunk).Error; err != nil {
		return uuid.Nil, err
	}
	return chunk.ID, nil
}

// Search returns the tenant's chunks whose cosine similarity to the query is
// strictly above threshold, most similar first, at most limit rows.
func (r *ChunkRepository) Search(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int, threshold float64) ([]model.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(embedding) != r.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), r.dimensions)
	}

	vec := pgvector.NewVector(embedding)

	var rows []scoredChunk
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The tenant filter runs after the HNSW scan; widen the candidate
		// list so small tenants are not crowded out by large ones.
		if err := tx.Exec(fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearchFor(limit))).Error; err != nil {
			return err
		}
		// Iterative scans need pgvector 0.8+; older versions reject the
		// setting and the savepoint keeps the transaction usable.
		if err := tx.SavePoint("iterative_scan").Error; err != nil {
			return err
		}
		if err := tx.Exec("SET LOCAL hnsw.iterative_scan = relaxed_order").Error; err != nil {
			if err := tx.RollbackTo("iterative_scan").Error; err != nil {
				return err
			}
		}

		return tx.Table("kd_chunks").
			Select("*, embedding <=> ? AS distance", vec).
			Where("tenant_id = ?", tenantID).
			Where("embedding IS NOT NULL").
			Where("1 - (embedding <=> ?) > ?", vec, threshold).
			Order("distance ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	// relaxed_order may return rows slightly out of order.
	slices.SortStableFunc(rows, func(a, b scoredChunk) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	hits := make([]model.SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, model.SearchHit{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			URL:        row.URL,
			ChunkIndex: row.ChunkIndex,
			Language:   row.Language,
			Metadata:   row.Metadata,
			Similarity: 1 - row.Distance,
		})
	}
	return hits, nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// efSearchFor sizes the HNSW candidate list for a query returning limit rows.
func efSearchFor(limit int) int {
	return min(max(limit*10, minEfSearch), maxEfSearch)
}
