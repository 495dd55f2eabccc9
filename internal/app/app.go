// Package app is the composition root shared by the clipsearch binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/config"
	"github.com/kailas-cloud/clipsearch/internal/dataset"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
	embeddinguc "github.com/kailas-cloud/clipsearch/internal/usecase/embedding"
)

// Records is the vector store surface every backend implements.
type Records interface {
	Ping(ctx context.Context) error
	EnsureCollection(ctx context.Context, collection string) error
	UpsertBatch(ctx context.Context, collection string, records []domain.Record) error
	Count(ctx context.Context, collection string) (int, error)
	Query(ctx context.Context, collection string, vector []float32, n int) ([]candidate.Candidate, error)
	IngestMarker(ctx context.Context, collection string) (*domain.IngestMarker, error)
	MarkIngested(ctx context.Context, collection string, records int) error
}

// Options adjusts wiring per binary.
type Options struct {
	// LimitAction overrides embedding.rate_limit.action when set.
	LimitAction embeddinguc.LimitAction
}

// App holds the process-wide handles built once in main.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Records Records
	// QueryEmbedder embeds search text: cached and instruction-prefixed.
	QueryEmbedder domain.Embedder
	// Embedder embeds raw captions and images and reports provider health.
	Embedder *embeddinguc.InstrumentedEmbedder

	waitReady func(ctx context.Context, timeout time.Duration) error
	closers   []func()
}

// Build dials the configured backend and assembles the embedder chain.
func Build(cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	a := &App{Config: cfg, Logger: logger}

	be, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Records = be.records
	a.waitReady = be.waitReady
	a.closers = append(a.closers, be.close)

	action := opts.LimitAction
	if action == "" {
		action, err = embeddinguc.ParseLimitAction(cfg.Embedding.RateLimit.Action)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	a.Embedder, a.QueryEmbedder = buildEmbedders(cfg, be.kv, action, logger)

	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("image_input_format", cfg.Embedding.ImageInputFormat),
		zap.Bool("cache", be.kv != nil && cfg.Embedding.Cache),
		zap.Float64("rate_limit_rps", cfg.Embedding.RateLimit.RPS),
	)
	return a, nil
}

// WaitForReady blocks until the backend answers or the configured timeout elapses.
func (a *App) WaitForReady(ctx context.Context) error {
	timeout := time.Duration(a.Config.Database.ReadinessTimeout) * time.Second
	if err := a.waitReady(ctx, timeout); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}

// Collection returns the collection this process reads and writes.
func (a *App) Collection() string {
	return a.Config.Search.Collection
}

// Dataset returns the captions file and the image path resolver for the configured split.
func (a *App) Dataset() (captions string, resolver *dataset.Resolver) {
	captions, imageDir, webDir := dataset.Paths(a.Config.Dataset.Root, a.Config.Dataset.Split)
	return captions, dataset.NewResolver(imageDir, webDir)
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
