package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// Limiter is the local interface for rate limit enforcement.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// InstrumentedEmbedder wraps text and image embedders with rate limiting and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	text     domain.Embedder
	image    domain.ImageEmbedder
	provider string
	model    string
	limiter  Limiter
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps embedders with rate limiting and observability.
// image and limiter can be nil.
func NewInstrumentedEmbedder(
	text domain.Embedder, image domain.ImageEmbedder, provider, model string,
	limiter Limiter, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		text:     text,
		image:    image,
		provider: provider,
		model:    model,
		limiter:  limiter,
		logger:   logger,
	}
}

// Embed acquires a rate limit token and delegates to the text embedder.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	return p.do(ctx, "text", func(ctx context.Context) (domain.EmbeddingResult, error) {
		return p.text.Embed(ctx, text)
	})
}

// EmbedImage acquires a rate limit token and delegates to the image embedder.
func (p *InstrumentedEmbedder) EmbedImage(
	ctx context.Context, image []byte,
) (domain.EmbeddingResult, error) {
	if p.image == nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: image input not supported", domain.ErrEmbeddingProviderError)
	}
	return p.do(ctx, "image", func(ctx context.Context) (domain.EmbeddingResult, error) {
		return p.image.EmbedImage(ctx, image)
	})
}

func (p *InstrumentedEmbedder) do(
	ctx context.Context, input string,
	call func(context.Context) (domain.EmbeddingResult, error),
) (domain.EmbeddingResult, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			p.logger.Warn("Embedding rate limited",
				zap.String("provider", p.provider),
				zap.String("input", input),
				zap.Error(err),
			)
			return domain.EmbeddingResult{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	result, err := call(ctx)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.String("input", input),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed %s: %w", input, err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("input", input),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck delegates to the text embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := p.text.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health: %w", err)
	}
	return nil
}
