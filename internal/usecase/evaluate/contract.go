package evaluate

import (
	"context"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
)

// Repository returns raw nearest neighbours without deduplication.
type Repository interface {
	Query(ctx context.Context, collection string, vector []float32, n int) ([]candidate.Candidate, error)
}

// Embedder vectorizes caption text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
