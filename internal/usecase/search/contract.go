package search

import (
	"context"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
)

// Repository defines the storage contract for search operations.
type Repository interface {
	// Query returns up to n nearest candidates in ascending distance order.
	// A missing collection yields domain.ErrCollectionNotFound.
	Query(ctx context.Context, collection string, vector []float32, n int) ([]candidate.Candidate, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
