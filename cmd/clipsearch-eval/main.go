package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/app"
	"github.com/kailas-cloud/clipsearch/internal/config"
	"github.com/kailas-cloud/clipsearch/internal/dataset"
	logpkg "github.com/kailas-cloud/clipsearch/internal/logger"
	embeddinguc "github.com/kailas-cloud/clipsearch/internal/usecase/embedding"
	evaluateuc "github.com/kailas-cloud/clipsearch/internal/usecase/evaluate"
	"github.com/kailas-cloud/clipsearch/internal/version"
)

func main() {
	k := flag.Int("k", 0, "cutoff for Recall@K (overrides eval.k)")
	limit := flag.Int("limit", -1, "evaluate only the first n captions (overrides eval.limit, 0 = all)")
	flag.Parse()

	env := config.GetEnv()
	cfg := config.MustLoad(env)
	if *k > 0 {
		cfg.Eval.K = *k
	}
	if *limit >= 0 {
		cfg.Eval.Limit = *limit
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting clipsearch evaluation",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.Int("k", cfg.Eval.K),
		zap.Int("limit", cfg.Eval.Limit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(cfg, logger, app.Options{LimitAction: embeddinguc.LimitActionWait})
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}
	defer a.Close()

	if err := a.WaitForReady(ctx); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}

	captions, _ := a.Dataset()
	anns, err := dataset.Load(captions)
	if err != nil {
		logger.Fatal("Failed to load captions", zap.String("file", captions), zap.Error(err))
	}

	// captions are embedded raw, without the query instruction or cache
	svc := evaluateuc.New(a.Records, a.Embedder, evaluateuc.Config{
		Collection:    a.Collection(),
		K:             cfg.Eval.K,
		ProgressEvery: cfg.Eval.ProgressEvery,
		Limit:         cfg.Eval.Limit,
	}, logger)

	rep, err := svc.Run(ctx, anns)
	if err != nil {
		logger.Fatal("Evaluation failed", zap.Int("queries", rep.Queries), zap.Error(err))
	}

	fmt.Printf("Recall@%d: %.4f (%d/%d)\n", rep.K, rep.Recall(), rep.Hits, rep.Queries)
}
