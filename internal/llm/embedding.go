package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"
)

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingService wraps an eino embedder and enforces the system-wide
// embedding dimension.
type EmbeddingService struct {
	embedder   embedding.Embedder
	dimensions int
}

func NewEmbeddingService(embedder embedding.Embedder, dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &EmbeddingService{
		embedder:   embedder,
		dimensions: dimensions,
	}
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	ctx = withRunInfo(ctx, "embed", components.ComponentOfEmbedding)
	vectors, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	if len(vectors[0]) != s.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vectors[0]), s.dimensions)
	}

	result := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		result[i] = float32(v)
	}
	return result, nil
}

func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}
