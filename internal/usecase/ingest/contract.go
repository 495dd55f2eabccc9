package ingest

import (
	"context"

	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// Repository defines the storage contract for ingestion.
type Repository interface {
	EnsureCollection(ctx context.Context, collection string) error
	UpsertBatch(ctx context.Context, collection string, records []domain.Record) error
	Count(ctx context.Context, collection string) (int, error)
	IngestMarker(ctx context.Context, collection string) (*domain.IngestMarker, error)
	MarkIngested(ctx context.Context, collection string, records int) error
}

// PathResolver maps an image id to its file and its public path.
type PathResolver interface {
	AbsPath(imageID int64) string
	WebPath(imageID int64) string
}

// ImageLoader reads and preprocesses an image file. A missing file yields
// domain.ErrImageNotFound.
type ImageLoader interface {
	File(name string) ([]byte, error)
}

// ImageEmbedder vectorizes a preprocessed image.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}
