package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/app"
	"github.com/kailas-cloud/clipsearch/internal/config"
	"github.com/kailas-cloud/clipsearch/internal/dataset"
	"github.com/kailas-cloud/clipsearch/internal/imageproc"
	logpkg "github.com/kailas-cloud/clipsearch/internal/logger"
	embeddinguc "github.com/kailas-cloud/clipsearch/internal/usecase/embedding"
	ingestuc "github.com/kailas-cloud/clipsearch/internal/usecase/ingest"
	"github.com/kailas-cloud/clipsearch/internal/version"
)

func main() {
	force := flag.Bool("force", false, "re-ingest even if the collection is marked complete")
	split := flag.String("split", "", "dataset split to ingest (overrides dataset.split)")
	batchSize := flag.Int("batch-size", 0, "records per store write (overrides ingest.batch_size)")
	flag.Parse()

	env := config.GetEnv()
	cfg := config.MustLoad(env)
	if *split != "" {
		cfg.Dataset.Split = *split
		cfg.Search.Collection = ""
		cfg.ApplyDefaults()
	}
	if *batchSize > 0 {
		cfg.Ingest.BatchSize = *batchSize
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting clipsearch ingestion",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.String("split", cfg.Dataset.Split),
		zap.Bool("force", *force),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// batch commands wait for rate limit tokens instead of failing
	a, err := app.Build(cfg, logger, app.Options{LimitAction: embeddinguc.LimitActionWait})
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}
	defer a.Close()

	if err := a.WaitForReady(ctx); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}

	captions, resolver := a.Dataset()
	anns, err := dataset.Load(captions)
	if err != nil {
		logger.Fatal("Failed to load captions", zap.String("file", captions), zap.Error(err))
	}
	logger.Info("Captions loaded", zap.String("file", captions), zap.Int("annotations", len(anns)))

	svc := ingestuc.New(a.Records, resolver, imageproc.New(imageproc.CLIPSize), a.Embedder, ingestuc.Config{
		Collection:      a.Collection(),
		BatchSize:       cfg.Ingest.BatchSize,
		Force:           *force,
		LogMissingEvery: cfg.Ingest.LogMissingEvery,
	}, logger)

	rep, err := svc.Run(ctx, anns)
	if err != nil {
		logger.Fatal("Ingestion failed",
			zap.Int("processed", rep.Processed),
			zap.Int("skipped", rep.Skipped()),
			zap.Error(err),
		)
	}
	if rep.AlreadyIngested {
		logger.Info("Nothing to do, pass -force to re-ingest", zap.Int("documents", rep.Stored))
	}
}
