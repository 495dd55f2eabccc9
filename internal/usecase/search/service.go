package search

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/request"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/result"
	"github.com/kailas-cloud/clipsearch/internal/logger"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

// Service answers text-to-image queries with one result per image.
type Service struct {
	repo  Repository
	embed Embedder
}

// New creates a search service.
func New(repo Repository, embed Embedder) *Service {
	return &Service{repo: repo, embed: embed}
}

// Search embeds the query, over-fetches candidates, collapses them by image
// and returns at most req.K() results in ascending distance order.
// An empty collection is reported as domain.ErrCollectionNotFound.
func (s *Service) Search(
	ctx context.Context, collection string, req *request.Request,
) ([]result.Result, error) {
	ctx, span := otel.Tracer("github.com/kailas-cloud/clipsearch/search").Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("k", req.K()))

	emb, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	fetch := req.FetchSize()
	cands, err := s.repo.Query(ctx, collection, emb.Embedding, fetch)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%s is empty: %w", collection, domain.ErrCollectionNotFound)
	}

	ranked := candidate.Rank(cands, req.K())
	span.SetAttributes(attribute.Int("candidates", len(cands)), attribute.Int("results", len(ranked)))

	// a full page that still under-fills k means duplicates crowded out other images
	if len(ranked) < req.K() && len(cands) >= fetch {
		metrics.SearchUnderfilledTotal.Inc()
		logger.FromContext(ctx).Debug("Search under-filled",
			zap.String("collection", collection),
			zap.Int("k", req.K()),
			zap.Int("fetched", len(cands)),
			zap.Int("distinct_images", candidate.DistinctImages(cands)),
		)
	}

	return candidate.ToResults(ranked), nil
}
