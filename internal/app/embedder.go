package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/config"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
	"github.com/kailas-cloud/clipsearch/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/clipsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/clipsearch/internal/usecase/embedding"
)

// kvStore backs the query embedding cache.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// buildEmbedders assembles the decorator chains:
// images: OpenAI -> Instrumented;
// queries: OpenAI -> Instrumented -> Cached -> Instruction.
// The cache sits outside the limiter so hits never spend rate tokens.
func buildEmbedders(
	cfg config.Config, kv kvStore, action embeddinguc.LimitAction, logger *zap.Logger,
) (*embeddinguc.InstrumentedEmbedder, domain.Embedder) {
	ec := cfg.Embedding

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:           ec.APIKey,
		BaseURL:          ec.BaseURL,
		Model:            ec.Model,
		Dimensions:       ec.Dimensions,
		Provider:         ec.Provider,
		ImageInputFormat: ec.ImageInputFormat,
		Timeout:          time.Duration(ec.TimeoutSec) * time.Second,
		Logger:           logger,
	})

	// Pass nil interface (not typed nil pointer!) if the limiter is disabled.
	var limiter embeddinguc.Limiter
	if rl := embeddinguc.NewRateLimiter(ec.RateLimit.RPS, ec.RateLimit.Burst, action); rl != nil {
		limiter = rl
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(base, base, ec.Provider, ec.Model, limiter, logger)

	var query domain.Embedder = instrumented
	if kv != nil && ec.Cache {
		query = embcache.New(query, kv, ec.Model, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost, so the cache key includes it)
	if ec.QueryInstruction != "" {
		query = domain.NewInstructionEmbedder(query, ec.QueryInstruction)
	}

	return instrumented, query
}
